package paychan

import (
	"context"
	"testing"

	"github.com/gogo/protobuf/proto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/saveio/paychan/common"
	"github.com/saveio/paychan/errors"
	"github.com/saveio/paychan/network/rpc/rpctest"
	"github.com/saveio/paychan/network/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopTransport struct{}

func (nopTransport) Send(ctx context.Context, recipient common.Address, message proto.Message) error {
	return nil
}

func (nopTransport) Broadcast(ctx context.Context, room string, message proto.Message) error {
	return nil
}

func (nopTransport) Presence(address common.Address) transport.Presence {
	return transport.Presence{}
}

func TestGetTimeout(t *testing.T) {
	tests := []struct {
		name       string
		settle     string
		reveal     string
		wantSettle common.BlockHeight
		wantReveal common.BlockHeight
		wantErr    bool
	}{
		{name: "defaults", wantSettle: 500, wantReveal: 50},
		{name: "overridden", settle: "120", reveal: "60", wantSettle: 120, wantReveal: 60},
		{name: "settle too short", settle: "99", reveal: "50", wantErr: true},
		{name: "not a number", settle: "ten", wantErr: true},
		{name: "negative", reveal: "-1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := &ChannelConfig{SettleTimeout: tt.settle, RevealTimeout: tt.reveal}
			settle, reveal, err := getTimeout(config, common.DefaultConfig())
			if tt.wantErr {
				assert.True(t, errors.ErrInvalidInput.Is(err), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSettle, settle)
			assert.Equal(t, tt.wantReveal, reveal)
		})
	}
}

func TestChannelLifecycle(t *testing.T) {
	signer, err := common.GenerateKeySigner()
	require.NoError(t, err)
	chain := rpctest.NewFakeChain()
	chain.SetHeight(10)

	config := DefaultChannelConfig()
	config.DBPath = t.TempDir()
	config.SettleTimeout = "200"
	config.Registry = prometheus.NewRegistry()

	channel, err := NewChannelService(config, signer, chain, nopTransport{})
	require.NoError(t, err)
	assert.Equal(t, common.BlockHeight(200), config.Engine.SettleTimeout)
	assert.Equal(t, Version, channel.GetVersion())

	require.NoError(t, channel.StartService())
	assert.Equal(t, signer.Address(), channel.Service.Address())
	assert.Empty(t, channel.Service.GetTokenNetworks())
	channel.Stop()
}

func TestNewChannelServiceErrors(t *testing.T) {
	signer, err := common.GenerateKeySigner()
	require.NoError(t, err)

	_, err = NewChannelService(DefaultChannelConfig(), signer, nil, nopTransport{})
	assert.True(t, errors.ErrInvalidInput.Is(err))

	config := DefaultChannelConfig()
	config.DBPath = t.TempDir()
	config.Engine.PathFinding.Mode = common.PfsAuto
	_, err = NewChannelService(config, signer, rpctest.NewFakeChain(), nopTransport{})
	assert.True(t, errors.ErrInvalidInput.Is(err))
}
