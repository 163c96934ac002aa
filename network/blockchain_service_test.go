package network

import (
	"context"
	"testing"

	"github.com/saveio/paychan/common"
	"github.com/saveio/paychan/network/rpc/rpctest"
	"github.com/saveio/paychan/transfer"
	"github.com/stretchr/testify/assert"
)

func TestBlockchainServiceCachesProxies(t *testing.T) {
	chain := rpctest.NewFakeChain()
	chain.SetHeight(12)
	our := common.HexToAddress("0x1111111111111111111111111111111111111111")
	partner := common.HexToAddress("0x2222222222222222222222222222222222222222")
	tokenNetwork := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	token := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	service := NewBlockchainService(our, chain, 0, nil)

	height, err := service.BlockHeight(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, common.BlockHeight(12), height)

	proxy := service.NewTokenNetwork(token, tokenNetwork)
	assert.Same(t, proxy, service.NewTokenNetwork(token, tokenNetwork))
	assert.Same(t, service.Token(token), proxy.Token())

	channelState := &transfer.NettingChannelState{
		Identifier:   3,
		TokenAddress: token,
		TokenNetwork: tokenNetwork,
		OurState:     transfer.NewNettingChannelEndState(our),
		PartnerState: transfer.NewNettingChannelEndState(partner),
	}
	channel := service.PaymentChannel(channelState)
	assert.Equal(t, common.ChannelID(3), channel.GetChannelId())
	assert.Same(t, channel, service.PaymentChannel(channelState))

	udc := common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
	assert.Equal(t, udc, service.UserDeposit(udc).Address())
}
