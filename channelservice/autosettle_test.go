package channelservice

import (
	"testing"
	"time"

	"github.com/saveio/paychan/common"
	"github.com/saveio/paychan/network/proxies"
	"github.com/saveio/paychan/network/rpc/rpctest"
	"github.com/saveio/paychan/network/transport"
	"github.com/saveio/paychan/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequiredSettleWait(t *testing.T) {
	chainState := &transfer.ChainState{ConfirmationBlocks: 5}
	channelState := &transfer.NettingChannelState{RevealTimeout: 50}
	lightClient := transport.Presence{Online: true, Caps: transport.Capabilities{Receive: true, LightClient: true}}

	tests := []struct {
		name      string
		weClosed  bool
		presence  transport.Presence
		wantBlock common.BlockHeight
	}{
		{"we closed, light client online", true, lightClient, 5},
		{"we closed, full node online", true, online, 50},
		{"we closed, light client offline", true, transport.Presence{Caps: lightClient.Caps}, 50},
		{"partner closed, light client online", false, lightClient, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantBlock, RequiredSettleWait(chainState, channelState, tt.weClosed, tt.presence))
		})
	}
}

func closeByPartner(env *testEnv, blockHeight common.BlockHeight) {
	env.service.HandleStateChange(&transfer.ContractReceiveChannelClosed{
		ContractReceive: confirmed(blockHeight),
		TokenNetwork:    tokenNetworkId,
		ChannelId:       testChannelId,
		Closer:          env.partner.Address(),
	})
}

func TestChannelsToSettle(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.openChannel(t, 100)
	closeByPartner(env, 20)
	autoSettle := NewAutoSettle(env.service)

	env.service.HandleStateChange(&transfer.Block{BlockHeight: 520})
	chainState := env.service.StateFromChannel()
	assert.Equal(t, transfer.ChannelStateSettleable, transfer.GetStatus(env.service.GetChannel(tokenNetworkId, env.partner.Address())))
	assert.Empty(t, autoSettle.ChannelsToSettle(chainState))

	env.service.HandleStateChange(&transfer.Block{BlockHeight: 570})
	chainState = env.service.StateFromChannel()
	due := autoSettle.ChannelsToSettle(chainState)
	require.Len(t, due, 1)
	assert.Equal(t, testChannelId, due[0].Identifier)
	assert.Empty(t, autoSettle.ChannelsToSettle(chainState))

	t.Run("settled channel forgotten", func(t *testing.T) {
		env.service.HandleStateChange(&transfer.ContractReceiveChannelSettled{
			ContractReceive: confirmed(575),
			TokenNetwork:    tokenNetworkId,
			ChannelId:       testChannelId,
		})
		chainState := env.service.StateFromChannel()
		require.Nil(t, transfer.GetChannelByKey(chainState, due[0].Key()))
		assert.Empty(t, autoSettle.ChannelsToSettle(chainState))
		autoSettle.lock.Lock()
		defer autoSettle.lock.Unlock()
		assert.Empty(t, autoSettle.requested)
	})
}

func TestAutoSettleOnBlock(t *testing.T) {
	config := testConfig()
	config.AutoSettle = true
	env := newTestEnv(t, config)
	our, partner := env.our(), env.partner.Address()
	env.openChannel(t, 100)
	closeByPartner(env, 20)

	env.chain.SetResult("getChannelInfo", rpctest.ChannelInfo(testChannelId, 520, proxies.ChannelStateClosed))
	env.chain.SetParticipant(our, rpctest.Participant(100, 0, false, common.EmptyBalanceHash, 0, common.EmptyLocksroot, 0))
	env.chain.SetParticipant(partner, rpctest.Participant(0, 0, true, common.EmptyBalanceHash, 0, common.EmptyLocksroot, 0))
	env.chain.SetHeight(560)
	env.start(t)
	assert.Empty(t, env.chain.Sent("settleChannel"))
	env.chain.SetHeight(570)

	assert.Eventually(t, func() bool {
		return len(env.chain.Sent("settleChannel")) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, transfer.ChannelStateSettling, transfer.GetStatus(env.service.GetChannel(tokenNetworkId, partner)))
}
