package pfs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/saveio/paychan/common"
	"github.com/saveio/paychan/errors"
	"github.com/saveio/paychan/metrics"
	"github.com/saveio/paychan/utils"
	"github.com/saveio/themis/common/log"
)

const (
	maxErrorBody    = 1e5
	maxResponseBody = 1e6
	timestampLayout = "2006-01-02T15:04:05.000000"
)

// Info is the metadata a path-finding service publishes about itself.
type Info struct {
	Url                  string
	Price                *big.Int
	PaymentAddress       common.Address
	ChainId              common.ChainID
	TokenNetworkRegistry common.Address
	UserDeposit          common.Address
	ConfirmedBlock       common.BlockHeight
	Operator             string
	Version              string
	Message              string
	Latency              time.Duration
}

type infoJSON struct {
	PriceInfo      common.UInt256 `json:"price_info"`
	PaymentAddress common.Address `json:"payment_address"`
	NetworkInfo    struct {
		ChainId                     uint64         `json:"chain_id"`
		TokenNetworkRegistryAddress common.Address `json:"token_network_registry_address"`
		UserDepositAddress          common.Address `json:"user_deposit_address"`
		ConfirmedBlock              struct {
			Number uint64 `json:"number"`
		} `json:"confirmed_block"`
	} `json:"network_info"`
	Operator string `json:"operator"`
	Version  string `json:"version"`
	Message  string `json:"message"`
}

// Path is one candidate route returned by the service.
type Path struct {
	Nodes        []common.Address
	EstimatedFee *big.Int
}

type pathJSON struct {
	Path         []common.Address `json:"path"`
	EstimatedFee common.Int256    `json:"estimated_fee"`
}

type pathsRequest struct {
	From     common.Address `json:"from"`
	To       common.Address `json:"to"`
	Value    common.UInt256 `json:"value"`
	MaxPaths int            `json:"max_paths"`
	IOU      *IOU           `json:"iou,omitempty"`
}

type pathsResponse struct {
	Result []pathJSON `json:"result"`
}

type errorResponse struct {
	ErrorCode int             `json:"error_code"`
	Errors    json.RawMessage `json:"errors"`
}

type lastIOUResponse struct {
	LastIOU *IOU `json:"last_iou"`
}

// Client talks to path-finding services over HTTP. Transient failures are
// retried with the configured backoff, structured errors are not.
type Client struct {
	cli     *http.Client
	policy  utils.RetryPolicy
	metrics *metrics.Metrics
}

func NewClient(timeout time.Duration, policy utils.RetryPolicy, m *metrics.Metrics) *Client {
	return &Client{
		cli:     &http.Client{Timeout: timeout},
		policy:  policy,
		metrics: m,
	}
}

func (self *Client) do(ctx context.Context, method string, endpoint string, body interface{},
	dest interface{}) (int, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return 0, errors.Wrap(errors.ErrInvalidInput, err.Error())
		}
	}
	status := 0
	err := utils.Retry(ctx, self.policy, method+" "+endpoint, func() error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequest(method, endpoint, reader)
		if err != nil {
			return errors.Wrap(errors.ErrInvalidInput, err.Error())
		}
		req = req.WithContext(ctx)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := self.cli.Do(req)
		if err != nil {
			return errors.Wrap(errors.ErrNetwork, err.Error())
		}
		defer resp.Body.Close()
		status = resp.StatusCode

		if resp.StatusCode >= 300 {
			b, _ := ioutil.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			return statusError(resp.StatusCode, b)
		}
		if dest == nil {
			return nil
		}
		if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(dest); err != nil {
			return errors.Wrap(errors.ErrInvalidResponse, err.Error())
		}
		return nil
	})
	return status, err
}

// statusError keeps structured service errors apart from plain server
// failures, which are treated as transient.
func statusError(status int, body []byte) error {
	var resp errorResponse
	if err := json.Unmarshal(body, &resp); err == nil && resp.ErrorCode != 0 {
		return &errors.ServiceError{Status: status, Code: resp.ErrorCode, Errors: string(resp.Errors)}
	}
	if status >= 500 {
		return errors.ErrNetwork.Newf("bad response: %d %s", status, string(body))
	}
	return &errors.ServiceError{Status: status, Errors: string(body)}
}

func (self *Client) Info(ctx context.Context, pfsUrl string) (*Info, error) {
	start := time.Now()
	var resp infoJSON
	if _, err := self.do(ctx, http.MethodGet, strings.TrimRight(pfsUrl, "/")+"/api/v1/info", nil, &resp); err != nil {
		return nil, errors.Wrapf(err, "pfs info %s", pfsUrl)
	}
	latency := time.Since(start)
	self.metrics.PfsInfoLatency(latency)
	if resp.PriceInfo.Int == nil {
		return nil, errors.ErrInvalidResponse.Newf("pfs %s has no price", pfsUrl)
	}
	return &Info{
		Url:                  pfsUrl,
		Price:                resp.PriceInfo.Int,
		PaymentAddress:       resp.PaymentAddress,
		ChainId:              common.ChainID(resp.NetworkInfo.ChainId),
		TokenNetworkRegistry: resp.NetworkInfo.TokenNetworkRegistryAddress,
		UserDeposit:          resp.NetworkInfo.UserDepositAddress,
		ConfirmedBlock:       common.BlockHeight(resp.NetworkInfo.ConfirmedBlock.Number),
		Operator:             resp.Operator,
		Version:              resp.Version,
		Message:              resp.Message,
		Latency:              latency,
	}, nil
}

// FindPaths asks the service for at most maxPaths routes from our node to
// target. A 2201 service error means the query was served without a route.
func (self *Client) FindPaths(ctx context.Context, pfsUrl string, tokenNetwork common.TokenNetworkID,
	from common.Address, to common.Address, value *big.Int, maxPaths int, iou *IOU) ([]Path, error) {
	endpoint := fmt.Sprintf("%s/api/v1/%s/paths", strings.TrimRight(pfsUrl, "/"), tokenNetwork.Hex())
	req := &pathsRequest{From: from, To: to, Value: common.NewUInt256(value), MaxPaths: maxPaths, IOU: iou}
	var resp pathsResponse
	if _, err := self.do(ctx, http.MethodPost, endpoint, req, &resp); err != nil {
		return nil, errors.Wrapf(err, "pfs paths %s", pfsUrl)
	}
	paths := make([]Path, 0, len(resp.Result))
	for _, p := range resp.Result {
		if p.EstimatedFee.Int == nil {
			return nil, errors.ErrInvalidResponse.New("path without estimated fee")
		}
		paths = append(paths, Path{Nodes: p.Path, EstimatedFee: p.EstimatedFee.Int})
	}
	log.Debugf("[FindPaths] %s returned %d paths to %s", pfsUrl, len(paths), to.Hex())
	return paths, nil
}

// LastIOU fetches the latest IOU the service holds from signer. It returns
// nil when the service has none yet.
func (self *Client) LastIOU(ctx context.Context, pfsUrl string, tokenNetwork common.TokenNetworkID,
	signer common.Signer, receiver common.Address) (*IOU, error) {
	timestamp := time.Now().UTC().Format(timestampLayout)
	var data bytes.Buffer
	data.Write(receiver[:])
	sender := signer.Address()
	data.Write(sender[:])
	data.WriteString(timestamp)
	sig, err := signer.Sign(data.Bytes())
	if err != nil {
		return nil, errors.Wrap(err, "sign iou request")
	}
	query := url.Values{}
	query.Set("sender", sender.Hex())
	query.Set("receiver", receiver.Hex())
	query.Set("timestamp", timestamp)
	query.Set("signature", hexutil.Encode(sig))
	endpoint := fmt.Sprintf("%s/api/v1/%s/payment/iou?%s", strings.TrimRight(pfsUrl, "/"),
		tokenNetwork.Hex(), query.Encode())

	var resp lastIOUResponse
	status, err := self.do(ctx, http.MethodGet, endpoint, nil, &resp)
	if status == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "pfs last iou %s", pfsUrl)
	}
	return resp.LastIOU, nil
}
