package proxies

import (
	"context"
	"math/big"

	"github.com/saveio/paychan/common"
	"github.com/saveio/paychan/transfer"
)

// PaymentChannel binds a token network proxy to one channel generation.
type PaymentChannel struct {
	TokenNetwork      *TokenNetwork
	channelIdentifier common.ChannelID
	Partner           common.Address
	settleTimeout     common.BlockHeight
}

func NewPaymentChannel(tokenNetwork *TokenNetwork, channelState *transfer.NettingChannelState) *PaymentChannel {
	return &PaymentChannel{
		TokenNetwork:      tokenNetwork,
		channelIdentifier: channelState.Identifier,
		Partner:           channelState.PartnerState.Address,
		settleTimeout:     channelState.SettleTimeout,
	}
}

func (self *PaymentChannel) GetChannelId() common.ChannelID {
	return self.channelIdentifier
}

func (self *PaymentChannel) SettleTimeout() common.BlockHeight {
	return self.settleTimeout
}

func (self *PaymentChannel) Detail(ctx context.Context) (*ParticipantsDetails, error) {
	return self.TokenNetwork.DetailParticipants(ctx, self.channelIdentifier, self.Partner)
}

func (self *PaymentChannel) SetTotalDeposit(ctx context.Context, totalDeposit *big.Int) error {
	return self.TokenNetwork.SetTotalDeposit(ctx, self.channelIdentifier, totalDeposit, self.Partner)
}

func (self *PaymentChannel) Close(ctx context.Context, balanceProof *transfer.BalanceProofSignedState) error {
	return self.TokenNetwork.Close(ctx, self.channelIdentifier, self.Partner, balanceProof)
}

func (self *PaymentChannel) UpdateTransfer(ctx context.Context, balanceProof *transfer.BalanceProofSignedState,
	nonClosingSignature common.Signature) error {
	return self.TokenNetwork.UpdateNonClosingBalanceProof(ctx, self.channelIdentifier, self.Partner,
		balanceProof, nonClosingSignature)
}

func (self *PaymentChannel) Settle(ctx context.Context, our *SettleParticipant, partner *SettleParticipant) error {
	return self.TokenNetwork.Settle(ctx, self.channelIdentifier, our, partner)
}

func (self *PaymentChannel) CooperativeSettle(ctx context.Context, first *WithdrawPair, second *WithdrawPair) error {
	return self.TokenNetwork.CooperativeSettle(ctx, self.channelIdentifier, self.Partner, first, second)
}

func (self *PaymentChannel) Unlock(ctx context.Context, locks []*transfer.HashTimeLockState) error {
	return self.TokenNetwork.Unlock(ctx, self.channelIdentifier, self.TokenNetwork.config.NodeAddress,
		self.Partner, locks)
}
