package transfer

import (
	"math/big"

	"github.com/saveio/paychan/common"
)

var (
	ourAddress      = common.HexToAddress("0x1111111111111111111111111111111111111111")
	partnerAddress  = common.HexToAddress("0x2222222222222222222222222222222222222222")
	thirdAddress    = common.HexToAddress("0x3333333333333333333333333333333333333333")
	tokenNetworkId  = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	tokenAddress    = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	testChainId     = common.ChainID(337)
	testChannelKey  = common.ChannelKey{TokenNetwork: tokenNetworkId, Partner: partnerAddress}
	testChannelId   = common.ChannelID(7)
	testSettleBlock = common.BlockHeight(500)
)

func newTestChannel(ourDeposit int64, partnerDeposit int64) *NettingChannelState {
	our := NewNettingChannelEndState(ourAddress)
	our.Deposit = big.NewInt(ourDeposit)
	partner := NewNettingChannelEndState(partnerAddress)
	partner.Deposit = big.NewInt(partnerDeposit)
	return &NettingChannelState{
		Identifier:         testChannelId,
		TokenAddress:       tokenAddress,
		TokenNetwork:       tokenNetworkId,
		ChainId:            testChainId,
		SettleTimeout:      testSettleBlock,
		RevealTimeout:      50,
		IsFirstParticipant: true,
		OpenBlock:          10,
		OurState:           our,
		PartnerState:       partner,
		Status:             StatusOpen{},
	}
}

func partnerProof(channel *NettingChannelState, nonce common.Nonce, transferred int64, locked int64,
	locks []*HashTimeLockState) *BalanceProofSignedState {
	return &BalanceProofSignedState{
		Nonce:             nonce,
		TransferredAmount: big.NewInt(transferred),
		LockedAmount:      big.NewInt(locked),
		LocksRoot:         ComputeLocksroot(locks),
		ChainId:           channel.ChainId,
		TokenNetwork:      channel.TokenNetwork,
		ChannelIdentifier: channel.Identifier,
		Signature:         common.Signature{1},
		Sender:            channel.PartnerState.Address,
	}
}

func newTestChainState(blockHeight common.BlockHeight) *ChainState {
	chainState := NewChainState(ourAddress, testChainId, blockHeight, 0, 50)
	chainState.TokenNetworks[tokenNetworkId] = tokenAddress
	return chainState
}

func openedChainState(ourDeposit int64, partnerDeposit int64) *ChainState {
	chainState := newTestChainState(100)
	channel := newTestChannel(ourDeposit, partnerDeposit)
	chainState.Channels[channel.Key()] = channel
	return chainState
}

func findEvent(events []Event, match func(Event) bool) Event {
	for _, e := range events {
		if match(e) {
			return e
		}
	}
	return nil
}
