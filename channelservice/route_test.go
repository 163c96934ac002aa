package channelservice

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/saveio/paychan/common"
	"github.com/saveio/paychan/errors"
	"github.com/saveio/paychan/network/pfs"
	"github.com/saveio/paychan/network/transport"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindRoutesLocal(t *testing.T) {
	env := newTestEnv(t, testConfig())
	partner := env.partner.Address()
	env.openChannel(t, 100)
	env.transport.setPresence(partner, online)
	env.transport.setPresence(thirdAddress, online)
	ctx := context.Background()

	tests := []struct {
		name    string
		req     *RouteRequest
		want    []Route
		wantErr *errors.Error
	}{
		{
			name:    "unknown token network",
			req:     &RouteRequest{TokenNetwork: tokenAddress, Target: partner, Value: big.NewInt(1)},
			wantErr: errors.ErrUnknownTokenNetwork,
		},
		{
			name:    "target offline",
			req:     &RouteRequest{TokenNetwork: tokenNetworkId, Target: udcAddress, Value: big.NewInt(1)},
			wantErr: errors.ErrTargetOffline,
		},
		{
			name: "direct channel",
			req:  &RouteRequest{TokenNetwork: tokenNetworkId, Target: partner, Value: big.NewInt(100)},
			want: []Route{{Path: []common.Address{partner}, Fee: new(big.Int)}},
		},
		{
			name: "explicit routes",
			req: &RouteRequest{TokenNetwork: tokenNetworkId, Target: thirdAddress, Value: big.NewInt(1),
				Routes: [][]common.Address{{env.our(), partner, thirdAddress}, {env.our()}}},
			want: []Route{{Path: []common.Address{partner, thirdAddress}, Fee: new(big.Int)}},
		},
		{
			name:    "direct channel too small and no service",
			req:     &RouteRequest{TokenNetwork: tokenNetworkId, Target: partner, Value: big.NewInt(101)},
			wantErr: errors.ErrDisabled,
		},
		{
			name:    "out of range value",
			req:     &RouteRequest{TokenNetwork: tokenNetworkId, Target: partner, Value: big.NewInt(-1)},
			wantErr: errors.ErrOutOfRange,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			routes, err := env.service.FindRoutes(ctx, tt.req)
			if tt.wantErr != nil {
				assert.True(t, tt.wantErr.Is(err), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, routes)
		})
	}

	t.Run("target not receiving", func(t *testing.T) {
		env.transport.setPresence(udcAddress, transport.Presence{Online: true})
		_, err := env.service.FindRoutes(ctx, &RouteRequest{TokenNetwork: tokenNetworkId, Target: udcAddress,
			Value: big.NewInt(1)})
		assert.True(t, errors.ErrTargetNotReceiving.Is(err))
	})
}

func TestFilterRoutes(t *testing.T) {
	env := newTestEnv(t, testConfig())
	partner := env.partner.Address()
	env.openChannel(t, 100)
	env.transport.setPresence(partner, online)
	req := &RouteRequest{TokenNetwork: tokenNetworkId, Target: udcAddress, Value: big.NewInt(50)}
	chainState := env.service.StateFromChannel()

	routes := env.service.pathFinder.filterRoutes(chainState, req, []Route{
		{Path: []common.Address{partner, udcAddress}, Fee: big.NewInt(5)},
		{Path: []common.Address{partner, thirdAddress, udcAddress}, Fee: big.NewInt(2)},
		{Path: []common.Address{thirdAddress, udcAddress}, Fee: big.NewInt(1)},
	})
	assert.Equal(t, []Route{{Path: []common.Address{partner, thirdAddress, udcAddress}, Fee: big.NewInt(2)}}, routes)

	t.Run("fee exceeds capacity", func(t *testing.T) {
		routes := env.service.pathFinder.filterRoutes(chainState, req, []Route{
			{Path: []common.Address{partner, udcAddress}, Fee: big.NewInt(51)},
		})
		assert.Empty(t, routes)
	})
	t.Run("negative fee needs only the value", func(t *testing.T) {
		full := &RouteRequest{TokenNetwork: tokenNetworkId, Target: udcAddress, Value: big.NewInt(100)}
		routes := env.service.pathFinder.filterRoutes(chainState, full, []Route{
			{Path: []common.Address{partner, udcAddress}, Fee: big.NewInt(-3)},
		})
		assert.Len(t, routes, 1)
	})
	t.Run("offline first hop", func(t *testing.T) {
		env.transport.setPresence(partner, transport.Presence{})
		defer env.transport.setPresence(partner, online)
		routes := env.service.pathFinder.filterRoutes(chainState, req, []Route{
			{Path: []common.Address{partner, udcAddress}, Fee: big.NewInt(1)},
		})
		assert.Empty(t, routes)
	})
	t.Run("only the first usable first hop", func(t *testing.T) {
		env.openChannelWith(t, thirdAddress, testChannelId+1, 100)
		env.transport.setPresence(thirdAddress, online)
		chainState := env.service.StateFromChannel()

		tests := []struct {
			name       string
			candidates []Route
			want       []Route
		}{
			{
				name: "cheaper other first hop dropped",
				candidates: []Route{
					{Path: []common.Address{partner, udcAddress}, Fee: big.NewInt(5)},
					{Path: []common.Address{partner, thirdAddress, udcAddress}, Fee: big.NewInt(2)},
					{Path: []common.Address{thirdAddress, udcAddress}, Fee: big.NewInt(1)},
				},
				want: []Route{{Path: []common.Address{partner, thirdAddress, udcAddress}, Fee: big.NewInt(2)}},
			},
			{
				name: "unusable route does not choose the recipient",
				candidates: []Route{
					{Path: []common.Address{partner, udcAddress}, Fee: big.NewInt(60)},
					{Path: []common.Address{thirdAddress, udcAddress}, Fee: big.NewInt(4)},
					{Path: []common.Address{partner, thirdAddress, udcAddress}, Fee: big.NewInt(1)},
					{Path: []common.Address{thirdAddress, partner, udcAddress}, Fee: big.NewInt(3)},
				},
				want: []Route{{Path: []common.Address{thirdAddress, partner, udcAddress}, Fee: big.NewInt(3)}},
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				assert.Equal(t, tt.want, env.service.pathFinder.filterRoutes(chainState, req, tt.candidates))
			})
		}
	})
}

func TestApplyFeeMargin(t *testing.T) {
	tests := []struct {
		name   string
		fee    int64
		amount int64
		margin common.FeeMargin
		want   int64
	}{
		{"fee margin rounds up", 7, 100, common.FeeMargin{FeeMargin: decimal.RequireFromString("0.1")}, 8},
		{"zero fee", 0, 100, common.FeeMargin{FeeMargin: decimal.RequireFromString("0.1")}, 0},
		{"negative fee grows toward zero", -10, 100, common.FeeMargin{FeeMargin: decimal.RequireFromString("0.1")}, -9},
		{"amount margin", 10, 1000, common.FeeMargin{FeeMargin: decimal.RequireFromString("0.1"),
			AmountMargin: decimal.RequireFromString("0.005")}, 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ApplyFeeMargin(big.NewInt(tt.fee), big.NewInt(tt.amount), tt.margin)
			assert.Equal(t, tt.want, got.Int64())
		})
	}
}

type fakePfs struct {
	lock     sync.Mutex
	price    int64
	chainId  uint64
	pathCode int
	registry common.Address
	ious     []*pfs.IOU
	path     []common.Address
}

func (self *fakePfs) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		self.lock.Lock()
		defer self.lock.Unlock()
		switch {
		case r.URL.Path == "/api/v1/info":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"price_info":      self.price,
				"payment_address": pfsAddress,
				"network_info": map[string]interface{}{
					"chain_id":                       self.chainId,
					"token_network_registry_address": self.registry,
					"confirmed_block":                map[string]interface{}{"number": 42},
				},
			})
		case strings.HasSuffix(r.URL.Path, "/payment/iou"):
			w.WriteHeader(http.StatusNotFound)
		case strings.HasSuffix(r.URL.Path, "/paths"):
			var req struct {
				IOU *pfs.IOU `json:"iou"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			self.ious = append(self.ious, req.IOU)
			if self.pathCode != 0 {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]interface{}{"error_code": self.pathCode, "errors": "no route"})
				return
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"result": []map[string]interface{}{{"path": self.path, "estimated_fee": 7}},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func (self *fakePfs) setPathCode(code int) {
	self.lock.Lock()
	defer self.lock.Unlock()
	self.pathCode = code
}

func (self *fakePfs) setRegistry(registry common.Address) {
	self.lock.Lock()
	defer self.lock.Unlock()
	self.registry = registry
}

func (self *fakePfs) sentIOUs() []*pfs.IOU {
	self.lock.Lock()
	defer self.lock.Unlock()
	return append([]*pfs.IOU(nil), self.ious...)
}

func (self *fakePfs) lastIOU() *pfs.IOU {
	self.lock.Lock()
	defer self.lock.Unlock()
	if len(self.ious) == 0 {
		return nil
	}
	return self.ious[len(self.ious)-1]
}

func TestFindRoutesWithPfs(t *testing.T) {
	service := &fakePfs{price: 5, chainId: 337}
	srv := httptest.NewServer(service.handler(t))
	defer srv.Close()

	config := testConfig()
	config.PathFinding.Mode = common.PfsAuto
	config.PathFinding.Urls = []string{srv.URL}
	config.HttpRetries = 1
	config.HttpTimeout = time.Second
	env := newTestEnv(t, config)
	partner := env.partner.Address()
	env.openChannel(t, 100)
	env.transport.setPresence(partner, online)
	env.transport.setPresence(udcAddress, online)
	service.path = []common.Address{env.our(), partner, udcAddress}

	ctx := context.Background()
	req := &RouteRequest{TokenNetwork: tokenNetworkId, Target: udcAddress, Value: big.NewInt(50)}

	routes, err := env.service.FindRoutes(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, []Route{{Path: []common.Address{partner, udcAddress}, Fee: big.NewInt(8)}}, routes)

	sent := service.lastIOU()
	require.NotNil(t, sent)
	assert.Equal(t, int64(5), sent.Amount.Int64())
	assert.Equal(t, env.our(), sent.Sender)
	assert.Equal(t, pfsAddress, sent.Receiver)
	assert.NoError(t, sent.Verify())
	stored, err := env.storage.GetIOU(tokenNetworkId, pfsAddress)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, int64(5), stored.Amount.Int64())

	t.Run("disabled for the request", func(t *testing.T) {
		local := *req
		local.DisablePfs = true
		_, err := env.service.FindRoutes(ctx, &local)
		assert.True(t, errors.ErrDisabled.Is(err), "got %v", err)
		assert.Len(t, service.sentIOUs(), 1)
	})
	t.Run("registry mismatch", func(t *testing.T) {
		registry := common.HexToAddress("0x4444444444444444444444444444444444444444")
		env.service.config.TokenNetworkRegistry = registry
		defer func() { env.service.config.TokenNetworkRegistry = common.EmptyAddress }()
		_, err := env.service.FindRoutes(ctx, req)
		assert.True(t, errors.ErrNoValidPfs.Is(err), "got %v", err)
		assert.Len(t, service.sentIOUs(), 1)

		service.setRegistry(registry)
		defer service.setRegistry(common.EmptyAddress)
		routes, err := env.service.FindRoutes(ctx, req)
		require.NoError(t, err)
		assert.Len(t, routes, 1)
	})
	t.Run("no route keeps the iou", func(t *testing.T) {
		service.setPathCode(errors.CodeNoRoute)
		_, err := env.service.FindRoutes(ctx, req)
		assert.True(t, errors.ErrNoRoutesFound.Is(err))
		svc, ok := errors.AsServiceError(err)
		require.True(t, ok)
		assert.Equal(t, errors.CodeNoRoute, svc.Code)
		stored, err := env.storage.GetIOU(tokenNetworkId, pfsAddress)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, int64(15), stored.Amount.Int64())
	})
	t.Run("service error clears the iou", func(t *testing.T) {
		service.setPathCode(2000)
		_, err := env.service.FindRoutes(ctx, req)
		require.Error(t, err)
		_, isServiceError := errors.AsServiceError(err)
		assert.True(t, isServiceError)
		stored, err := env.storage.GetIOU(tokenNetworkId, pfsAddress)
		require.NoError(t, err)
		assert.Nil(t, stored)
	})
	t.Run("wrong chain", func(t *testing.T) {
		service.lock.Lock()
		service.chainId = 1
		service.lock.Unlock()
		_, err := env.service.FindRoutes(ctx, req)
		assert.True(t, errors.ErrNoValidPfs.Is(err))
	})
}

func TestSelectPfsPicksCheapest(t *testing.T) {
	expensive := &fakePfs{price: 9, chainId: 337}
	cheap := &fakePfs{price: 3, chainId: 337}
	foreign := &fakePfs{price: 1, chainId: 5}
	var urls []string
	for _, s := range []*fakePfs{expensive, cheap, foreign} {
		srv := httptest.NewServer(s.handler(t))
		defer srv.Close()
		urls = append(urls, srv.URL)
	}

	config := testConfig()
	config.PathFinding.Mode = common.PfsAuto
	config.PathFinding.Urls = append(urls, "http://127.0.0.1:1")
	config.PathFinding.Parallelism = 2
	config.HttpRetries = 1
	config.HttpTimeout = time.Second
	env := newTestEnv(t, config)

	info, err := env.service.pathFinder.selectPfs(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, urls[1], info.Url)
	assert.Equal(t, int64(3), info.Price.Int64())

	t.Run("price limit", func(t *testing.T) {
		env.service.config.PathFinding.MaxPrice = big.NewInt(2)
		defer func() { env.service.config.PathFinding.MaxPrice = common.BigCopy(common.MaxUint256) }()
		_, err := env.service.pathFinder.selectPfs(context.Background(), "")
		assert.True(t, errors.ErrNoValidPfs.Is(err))
	})
}
