package proxies

import (
	"context"
	"math/big"

	"github.com/saveio/paychan/common"
	"github.com/saveio/paychan/errors"
	"github.com/saveio/themis/common/log"
)

// UserDeposit is the collateral contract paying monitoring and path finding
// services.
type UserDeposit struct {
	contract
}

func NewUserDeposit(address common.Address, config *ProxyConfig) *UserDeposit {
	return &UserDeposit{contract{address: address, config: config}}
}

func (self *UserDeposit) Address() common.Address {
	return self.address
}

// EffectiveBalance is the deposit of owner minus its planned withdrawals.
func (self *UserDeposit) EffectiveBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	result, err := self.call(ctx, "effectiveBalance", owner)
	if err != nil {
		return nil, err
	}
	return uint256Field(result, "effectiveBalance", "balance")
}

func (self *UserDeposit) PlanWithdraw(ctx context.Context, amount *big.Int) (common.BlockHeight, error) {
	if amount == nil || amount.Sign() <= 0 {
		return 0, errors.ErrInvalidInput.New("planned withdraw must be positive")
	}
	balance, err := self.EffectiveBalance(ctx, self.config.NodeAddress)
	if err != nil {
		return 0, err
	}
	if balance.Cmp(amount) < 0 {
		return 0, errors.ErrInsufficientBalance.Newf("plan withdraw %s with effective balance %s", amount, balance)
	}
	receipt, err := self.transact(ctx, "planWithdraw", amount)
	if err != nil {
		return 0, err
	}
	log.Infof("[PlanWithdraw] amount %s planned at block %d", amount, receipt.BlockHeight)
	return receipt.BlockHeight, nil
}

func (self *UserDeposit) Withdraw(ctx context.Context, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errors.ErrInvalidInput.New("withdraw must be positive")
	}
	if _, err := self.transact(ctx, "withdraw", amount); err != nil {
		return err
	}
	log.Infof("[Withdraw] amount %s withdrawn from user deposit", amount)
	return nil
}
