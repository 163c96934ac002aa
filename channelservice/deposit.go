package channelservice

import (
	"context"
	"math/big"

	"github.com/saveio/paychan/common"
	"github.com/saveio/paychan/errors"
	"github.com/saveio/paychan/transfer"
	"github.com/saveio/paychan/utils"
	"github.com/saveio/themis/common/log"
)

// GetDeposits returns the amount to add on chain so our total deposit in
// channelState becomes totalDeposit.
func GetDeposits(channelState *transfer.NettingChannelState, totalDeposit *big.Int) (*big.Int, error) {
	if err := common.CheckUInt256(totalDeposit); err != nil {
		return nil, err
	}
	current := common.BigCopy(channelState.OurState.Deposit)
	increment := new(big.Int).Sub(totalDeposit, current)
	if increment.Sign() <= 0 {
		return nil, errors.ErrInvalidDeposit.Newf("total deposit %s does not exceed current deposit %s",
			totalDeposit, current)
	}
	return increment, nil
}

// SetTotalChannelDeposit raises our total deposit in the channel with partner
// and waits until the deposit is confirmed on chain. With waitOpen the
// channel may still be opening.
func (self *ChannelService) SetTotalChannelDeposit(ctx context.Context, tokenNetwork common.TokenNetworkID,
	partner common.Address, totalDeposit *big.Int, waitOpen bool) error {
	if err := common.CheckUInt256(totalDeposit); err != nil {
		return err
	}
	key := common.ChannelKey{TokenNetwork: tokenNetwork, Partner: partner}
	channelState := transfer.GetChannelByKey(self.StateFromChannel(), key)
	if channelState != nil {
		if _, err := GetDeposits(channelState, totalDeposit); err != nil {
			return err
		}
	} else if !waitOpen {
		return errors.ErrChannelNotFound.Newf("no channel with %s on %s", partner.Hex(), tokenNetwork.Hex())
	}

	sub, err := self.subscribe(TopicResult)
	if err != nil {
		return err
	}
	defer self.unsubscribe(sub)

	id, done, err := self.submitChannelOp(transfer.OpDeposit, key.String(), func(id string) error {
		return self.deposit(key, totalDeposit, waitOpen)
	})
	if err != nil {
		return err
	}
	return self.awaitOperation(ctx, sub, done, transfer.OpDeposit, id, func(result *transfer.OperationResult) bool {
		if result.Op != transfer.OpDeposit || result.Key != key.String() {
			return false
		}
		total, ok := result.Payload.(*big.Int)
		return ok && total.Cmp(totalDeposit) >= 0
	})
}

// DepositToChannel adds amount to our current deposit in the channel.
func (self *ChannelService) DepositToChannel(ctx context.Context, tokenNetwork common.TokenNetworkID,
	partner common.Address, amount *big.Int) error {
	if common.BigCopy(amount).Sign() <= 0 {
		return errors.ErrInvalidDeposit.Newf("deposit amount %s", amount)
	}
	key := common.ChannelKey{TokenNetwork: tokenNetwork, Partner: partner}
	channelState := transfer.GetChannelByKey(self.StateFromChannel(), key)
	current := new(big.Int)
	if channelState != nil {
		current = common.BigCopy(channelState.OurState.Deposit)
	}
	return self.SetTotalChannelDeposit(ctx, tokenNetwork, partner, current.Add(current, amount), channelState == nil)
}

func (self *ChannelService) deposit(key common.ChannelKey, totalDeposit *big.Int, waitOpen bool) error {
	ctx := self.ctx
	chainState := self.StateFromChannel()
	tokenAddress, ok := transfer.GetTokenAddress(chainState, key.TokenNetwork)
	if !ok {
		return errors.ErrUnknownTokenNetwork.Newf("token network %s", key.TokenNetwork.Hex())
	}
	channelState := transfer.GetChannelByKey(chainState, key)
	needed := totalDeposit
	if channelState != nil {
		var err error
		if needed, err = GetDeposits(channelState, totalDeposit); err != nil {
			return err
		}
	} else if !waitOpen {
		return errors.ErrChannelNotFound.Newf("no channel with %s", key.Partner.Hex())
	}

	if err := self.ensureAllowance(ctx, tokenAddress, key.TokenNetwork, needed); err != nil {
		return err
	}

	if channelState == nil {
		var err error
		if channelState, err = self.waitChannelOpened(ctx, key); err != nil {
			return err
		}
	}
	if transfer.GetStatus(channelState) != transfer.ChannelStateOpened {
		return errors.ErrChannelNotOpen.Newf("channel %d is %s", channelState.Identifier,
			transfer.GetStatus(channelState))
	}
	if _, err := GetDeposits(channelState, totalDeposit); err != nil {
		return err
	}

	payment := self.chain.PaymentChannel(channelState)
	err := utils.Retry(ctx, self.unboundedPolicy(), "setTotalDeposit", func() error {
		return payment.SetTotalDeposit(ctx, totalDeposit)
	})
	if err != nil {
		return err
	}
	log.Infof("[deposit] total deposit %s submitted to channel %d", totalDeposit, channelState.Identifier)
	return nil
}

// ensureAllowance approves the token network for at least needed, or for the
// configured minimum allowance when that is larger.
func (self *ChannelService) ensureAllowance(ctx context.Context, tokenAddress common.TokenAddress,
	spender common.Address, needed *big.Int) error {
	token := self.chain.Token(tokenAddress)
	return utils.Retry(ctx, self.unboundedPolicy(), "approve", func() error {
		allowance, err := token.Allowance(ctx, self.address, spender)
		if err != nil {
			return err
		}
		if allowance.Cmp(needed) >= 0 {
			return nil
		}
		return token.Approve(ctx, spender, common.BigMax(needed, self.config.MinimumAllowance))
	})
}

// waitChannelOpened returns the channel with key once it is known. The state
// is checked after subscribing so an open event between the two is not lost.
func (self *ChannelService) waitChannelOpened(ctx context.Context,
	key common.ChannelKey) (*transfer.NettingChannelState, error) {
	sub, err := self.subscribe(TopicEvent)
	if err != nil {
		return nil, err
	}
	defer self.unsubscribe(sub)

	if channelState := transfer.GetChannelByKey(self.StateFromChannel(), key); channelState != nil {
		return channelState, nil
	}
	for {
		select {
		case <-ctx.Done():
			return nil, errors.ErrStopped.New("wait for channel open")
		case msg, ok := <-sub:
			if !ok {
				return nil, errors.ErrStopped.New("wait for channel open")
			}
			if opened, isOpened := msg.(*transfer.EventChannelOpened); isOpened && opened.Channel.Key() == key {
				return opened.Channel, nil
			}
		}
	}
}
