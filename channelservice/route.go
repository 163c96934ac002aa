package channelservice

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/saveio/paychan/common"
	"github.com/saveio/paychan/errors"
	"github.com/saveio/paychan/metrics"
	"github.com/saveio/paychan/network/pfs"
	"github.com/saveio/paychan/transfer"
	"github.com/saveio/themis/common/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// RouteRequest asks for routes paying value to Target. Explicit Routes skip
// the path-finding service, PfsUrl overrides the configured services and
// DisablePfs keeps the request local whatever the configuration says.
type RouteRequest struct {
	TokenNetwork common.TokenNetworkID
	Target       common.Address
	Value        *big.Int
	Routes       [][]common.Address
	PfsUrl       string
	DisablePfs   bool
}

// Route is a path starting at our first hop and ending at the target, with
// the fee to add to the payment.
type Route struct {
	Path []common.Address
	Fee  *big.Int
}

func (self Route) Recipient() common.Address {
	if len(self.Path) == 0 {
		return common.EmptyAddress
	}
	return self.Path[0]
}

type PathFinder struct {
	service *ChannelService
	// serializes IOU updates per token network and service
	iouLock sync.Mutex
}

func NewPathFinder(service *ChannelService) *PathFinder {
	return &PathFinder{service: service}
}

// FindRoutes resolves routes for req and publishes the path_find result.
func (self *ChannelService) FindRoutes(ctx context.Context, req *RouteRequest) ([]Route, error) {
	key := fmt.Sprintf("%s/%s/%s", req.TokenNetwork.Hex(), req.Target.Hex(), req.Value)
	routes, err := self.pathFinder.FindRoutes(ctx, req)
	if err != nil {
		self.publishResult(transfer.NewFailed(transfer.OpPathFind, key, "", err))
		return nil, err
	}
	self.publishResult(transfer.NewSucceeded(transfer.OpPathFind, key, "", routes))
	return routes, nil
}

func (self *PathFinder) FindRoutes(ctx context.Context, req *RouteRequest) ([]Route, error) {
	if err := common.CheckUInt256(req.Value); err != nil {
		return nil, err
	}
	chainState := self.service.StateFromChannel()
	if _, ok := transfer.GetTokenAddress(chainState, req.TokenNetwork); !ok {
		return nil, errors.ErrUnknownTokenNetwork.Newf("token network %s", req.TokenNetwork.Hex())
	}
	presence := self.service.transport.Presence(req.Target)
	if !presence.Online {
		return nil, errors.ErrTargetOffline.Newf("target %s", req.Target.Hex())
	}
	if !presence.Caps.Receive {
		return nil, errors.ErrTargetNotReceiving.Newf("target %s", req.Target.Hex())
	}

	if len(req.Routes) > 0 {
		return explicitRoutes(self.service.address, req.Routes), nil
	}

	direct := transfer.GetChannelByKey(chainState, common.ChannelKey{TokenNetwork: req.TokenNetwork, Partner: req.Target})
	if transfer.GetStatus(direct) == transfer.ChannelStateOpened &&
		transfer.ComputeBalances(direct).Own.Capacity.Cmp(req.Value) >= 0 {
		return []Route{{Path: []common.Address{req.Target}, Fee: new(big.Int)}}, nil
	}

	pfsConfig := self.service.config.PathFinding
	if req.DisablePfs {
		return nil, errors.ErrDisabled.New("path finding service disabled for this request")
	}
	if pfsConfig.Mode == common.PfsDisabled && req.PfsUrl == "" {
		return nil, errors.ErrDisabled.New("path finding service is disabled")
	}

	routes, err := self.queryPfs(ctx, chainState, req)
	if err != nil {
		if errors.ErrNoRoutesFound.Is(err) {
			self.service.metrics.PfsQuery(metrics.OutcomeNoRoute)
		} else {
			self.service.metrics.PfsQuery(metrics.OutcomeFailure)
		}
		return nil, err
	}
	routes = self.filterRoutes(chainState, req, routes)
	if len(routes) == 0 {
		self.service.metrics.PfsQuery(metrics.OutcomeNoRoute)
		return nil, errors.ErrNoRoutesFound.Newf("no usable route to %s", req.Target.Hex())
	}
	self.service.metrics.PfsQuery(metrics.OutcomeSuccess)
	return routes, nil
}

func explicitRoutes(our common.Address, paths [][]common.Address) []Route {
	routes := make([]Route, 0, len(paths))
	for _, path := range paths {
		if len(path) > 0 && path[0] == our {
			path = path[1:]
		}
		if len(path) == 0 {
			continue
		}
		routes = append(routes, Route{Path: append([]common.Address(nil), path...), Fee: new(big.Int)})
	}
	return routes
}

func (self *PathFinder) queryPfs(ctx context.Context, chainState *transfer.ChainState, req *RouteRequest) ([]Route, error) {
	info, err := self.selectPfs(ctx, req.PfsUrl)
	if err != nil {
		return nil, err
	}

	self.iouLock.Lock()
	defer self.iouLock.Unlock()

	iou, err := self.createIOU(ctx, chainState, req.TokenNetwork, info)
	if err != nil {
		return nil, err
	}
	client := self.service.pfsClient
	storage := self.service.storage
	pfsConfig := self.service.config.PathFinding
	paths, err := client.FindPaths(ctx, info.Url, req.TokenNetwork, self.service.address, req.Target,
		req.Value, pfsConfig.MaxPaths, iou)
	if err != nil {
		if errors.IsNoRoute(err) {
			self.persistIOU(req.TokenNetwork, iou)
			return nil, errors.ErrNoRoutesFound.Wrap(err, "pfs "+info.Url)
		}
		if iou != nil {
			if clearErr := storage.ClearIOU(req.TokenNetwork, info.PaymentAddress); clearErr != nil {
				log.Errorf("[queryPfs] clear iou of %s: %s", info.Url, clearErr)
			}
		}
		return nil, err
	}
	self.persistIOU(req.TokenNetwork, iou)

	routes := make([]Route, 0, len(paths))
	for _, p := range paths {
		nodes := p.Nodes
		if len(nodes) > 0 && nodes[0] == self.service.address {
			nodes = nodes[1:]
		}
		if len(nodes) == 0 {
			continue
		}
		routes = append(routes, Route{
			Path: append([]common.Address(nil), nodes...),
			Fee:  ApplyFeeMargin(p.EstimatedFee, req.Value, pfsConfig.SafetyMargin),
		})
		if len(routes) == pfsConfig.MaxPaths {
			break
		}
	}
	return routes, nil
}

func (self *PathFinder) persistIOU(tokenNetwork common.TokenNetworkID, iou *pfs.IOU) {
	if iou == nil {
		return
	}
	if err := self.service.storage.PutIOU(tokenNetwork, iou); err != nil {
		log.Errorf("[persistIOU] %s: %s", iou.Receiver.Hex(), err)
	}
}

// createIOU returns the IOU paying info's price on top of the last one, or
// nil for a free service.
func (self *PathFinder) createIOU(ctx context.Context, chainState *transfer.ChainState,
	tokenNetwork common.TokenNetworkID, info *pfs.Info) (*pfs.IOU, error) {
	if info.Price.Sign() == 0 {
		return nil, nil
	}
	last, err := self.service.storage.GetIOU(tokenNetwork, info.PaymentAddress)
	if err != nil {
		return nil, err
	}
	if last == nil {
		last, err = self.service.pfsClient.LastIOU(ctx, info.Url, tokenNetwork, self.service.signer, info.PaymentAddress)
		if err != nil {
			return nil, err
		}
		if last != nil {
			if last.Sender != self.service.address || last.Receiver != info.PaymentAddress {
				return nil, errors.ErrInvalidIOU.Newf("pfs %s returned an iou of %s to %s", info.Url,
					last.Sender.Hex(), last.Receiver.Hex())
			}
			if err = last.Verify(); err != nil {
				return nil, err
			}
		}
	}
	pfsConfig := self.service.config.PathFinding
	expiration := transfer.GetBlockHeight(chainState) + pfsConfig.IouTimeout
	return pfs.NextIOU(self.service.signer, last, info.PaymentAddress, info.Price, pfsConfig.OneToNAddress,
		self.service.config.ChainId, expiration)
}

// selectPfs picks the service to query. Several configured services are
// asked for their info concurrently and the cheapest, then fastest, valid
// one wins.
func (self *PathFinder) selectPfs(ctx context.Context, explicitUrl string) (*pfs.Info, error) {
	urls := self.service.config.PathFinding.Urls
	if explicitUrl != "" {
		urls = []string{explicitUrl}
	}
	if len(urls) == 0 {
		return nil, errors.ErrNoValidPfs.New("no path finding service configured")
	}
	if len(urls) == 1 {
		info, err := self.service.pfsClient.Info(ctx, urls[0])
		if err != nil {
			return nil, err
		}
		if err = self.validatePfs(info); err != nil {
			return nil, err
		}
		return info, nil
	}

	parallelism := self.service.config.PathFinding.Parallelism
	if parallelism <= 0 {
		parallelism = 1
	}
	sem := semaphore.NewWeighted(int64(parallelism))
	infos := make([]*pfs.Info, len(urls))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, url := range urls {
		i, url := i, url
		group.Go(func() error {
			if err := sem.Acquire(groupCtx, 1); err != nil {
				return err
			}
			defer sem.Release(1)
			info, err := self.service.pfsClient.Info(groupCtx, url)
			if err != nil {
				log.Warnf("[selectPfs] %s: %s", url, err)
				return nil
			}
			if err = self.validatePfs(info); err != nil {
				log.Warnf("[selectPfs] %s rejected: %s", url, err)
				return nil
			}
			infos[i] = info
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, errors.Wrap(errors.ErrStopped, err.Error())
	}

	var valid []*pfs.Info
	for _, info := range infos {
		if info != nil {
			valid = append(valid, info)
		}
	}
	if len(valid) == 0 {
		return nil, errors.ErrNoValidPfs.Newf("none of %d path finding services is usable", len(urls))
	}
	sort.SliceStable(valid, func(i, j int) bool {
		if c := valid[i].Price.Cmp(valid[j].Price); c != 0 {
			return c < 0
		}
		return valid[i].Latency < valid[j].Latency
	})
	return valid[0], nil
}

func (self *PathFinder) validatePfs(info *pfs.Info) error {
	config := self.service.config
	if info.ChainId != config.ChainId {
		return errors.ErrNoValidPfs.Newf("pfs %s serves chain %d", info.Url, info.ChainId)
	}
	if registry := config.TokenNetworkRegistry; registry != common.EmptyAddress && info.TokenNetworkRegistry != registry {
		return errors.ErrNoValidPfs.Newf("pfs %s indexes registry %s", info.Url, info.TokenNetworkRegistry.Hex())
	}
	if maxPrice := config.PathFinding.MaxPrice; maxPrice != nil && info.Price.Cmp(maxPrice) > 0 {
		return errors.ErrNoValidPfs.Newf("pfs %s price %s above %s", info.Url, info.Price, maxPrice)
	}
	udc := config.Monitoring.UserDepositAddress
	if udc != common.EmptyAddress && info.UserDeposit != common.EmptyAddress && info.UserDeposit != udc {
		return errors.ErrNoValidPfs.Newf("pfs %s uses user deposit %s", info.Url, info.UserDeposit.Hex())
	}
	return nil
}

// ApplyFeeMargin adds the safety margin to an estimated fee and rounds up.
func ApplyFeeMargin(fee *big.Int, amount *big.Int, margin common.FeeMargin) *big.Int {
	estimated := decimal.NewFromBigInt(common.BigCopy(fee), 0)
	withMargin := estimated.Add(estimated.Abs().Mul(margin.FeeMargin))
	if !margin.AmountMargin.IsZero() {
		withMargin = withMargin.Add(decimal.NewFromBigInt(common.BigCopy(amount), 0).Mul(margin.AmountMargin))
	}
	return withMargin.Ceil().BigInt()
}

// filterRoutes picks the first route whose first hop is an online partner
// with an open channel able to carry value plus the fee. Routes through any
// other first hop are dropped, of those through the chosen one only the
// cheapest usable route stays.
func (self *PathFinder) filterRoutes(chainState *transfer.ChainState, req *RouteRequest, routes []Route) []Route {
	var chosen *Route
	for i := range routes {
		route := routes[i]
		if chosen != nil && route.Recipient() != chosen.Recipient() {
			continue
		}
		if !self.usableFirstHop(chainState, req, route) {
			continue
		}
		if chosen == nil || route.Fee.Cmp(chosen.Fee) < 0 {
			chosen = &route
		}
	}
	if chosen == nil {
		return nil
	}
	return []Route{*chosen}
}

func (self *PathFinder) usableFirstHop(chainState *transfer.ChainState, req *RouteRequest, route Route) bool {
	recipient := route.Recipient()
	channelState := transfer.GetChannelByKey(chainState,
		common.ChannelKey{TokenNetwork: req.TokenNetwork, Partner: recipient})
	if transfer.GetStatus(channelState) != transfer.ChannelStateOpened {
		log.Debugf("[filterRoutes] no open channel with %s", recipient.Hex())
		return false
	}
	needed := new(big.Int).Add(req.Value, common.BigMax(route.Fee, new(big.Int)))
	if transfer.ComputeBalances(channelState).Own.Capacity.Cmp(needed) < 0 {
		log.Debugf("[filterRoutes] channel with %s can not carry %s", recipient.Hex(), needed)
		return false
	}
	if !self.service.transport.Presence(recipient).Online {
		log.Debugf("[filterRoutes] %s is offline", recipient.Hex())
		return false
	}
	return true
}
