package channelservice

import (
	"context"
	"math/big"

	"github.com/saveio/paychan/common"
	"github.com/saveio/paychan/errors"
	"github.com/saveio/paychan/network/proxies"
	"github.com/saveio/paychan/transfer"
	"github.com/saveio/paychan/utils"
	"github.com/saveio/themis/common/log"
)

func (self *ChannelService) userDeposit() (*proxies.UserDeposit, error) {
	address := self.config.Monitoring.UserDepositAddress
	if address == common.EmptyAddress {
		return nil, errors.ErrInvalidInput.New("no user deposit contract configured")
	}
	return self.chain.UserDeposit(address), nil
}

// PlanUdcWithdraw announces a withdraw of amount from our service
// collateral and returns the block the plan was mined in.
func (self *ChannelService) PlanUdcWithdraw(ctx context.Context, amount *big.Int) (common.BlockHeight, error) {
	if err := common.CheckUInt256(amount); err != nil {
		return 0, err
	}
	udc, err := self.userDeposit()
	if err != nil {
		return 0, err
	}
	key := udc.Address().Hex()
	var planned common.BlockHeight
	err = utils.Retry(ctx, self.txPolicy(), "planWithdraw", func() error {
		var err error
		planned, err = udc.PlanWithdraw(ctx, amount)
		return err
	})
	if err != nil {
		log.Errorf("[PlanUdcWithdraw] %s: %s", amount, err)
		self.publishResult(transfer.NewFailed(transfer.OpUdcWithdraw, key, "", err))
		return 0, err
	}
	log.Infof("[PlanUdcWithdraw] withdraw of %s planned at block %d", amount, planned)
	return planned, nil
}

// UdcWithdraw executes a withdraw planned before.
func (self *ChannelService) UdcWithdraw(ctx context.Context, amount *big.Int) error {
	if err := common.CheckUInt256(amount); err != nil {
		return err
	}
	udc, err := self.userDeposit()
	if err != nil {
		return err
	}
	key := udc.Address().Hex()
	err = utils.Retry(ctx, self.txPolicy(), "withdraw", func() error {
		return udc.Withdraw(ctx, amount)
	})
	if err != nil {
		log.Errorf("[UdcWithdraw] %s: %s", amount, err)
		self.publishResult(transfer.NewFailed(transfer.OpUdcWithdraw, key, "", err))
		return err
	}
	self.publishResult(transfer.NewSucceeded(transfer.OpUdcWithdraw, key, "", common.BigCopy(amount)))
	return nil
}
