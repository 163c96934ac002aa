package proxies

import (
	"context"
	"math/big"

	"github.com/saveio/paychan/common"
	"github.com/saveio/paychan/errors"
	"github.com/saveio/themis/common/log"
)

type Token struct {
	contract
}

func NewToken(address common.TokenAddress, config *ProxyConfig) *Token {
	return &Token{contract{address: address, config: config}}
}

func (self *Token) Address() common.TokenAddress {
	return self.address
}

func (self *Token) Allowance(ctx context.Context, owner common.Address, spender common.Address) (*big.Int, error) {
	result, err := self.call(ctx, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return uint256Field(result, "allowance", "allowance")
}

func (self *Token) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	result, err := self.call(ctx, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return uint256Field(result, "balanceOf", "balance")
}

// Approve sets the allowance of spender. The node must hold at least amount
// tokens, otherwise ErrInsufficientBalance is returned without a transaction.
func (self *Token) Approve(ctx context.Context, spender common.Address, amount *big.Int) error {
	if err := common.CheckUInt256(amount); err != nil {
		return err
	}
	balance, err := self.BalanceOf(ctx, self.config.NodeAddress)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 && amount.Cmp(common.MaxUint256) != 0 {
		return errors.ErrInsufficientBalance.Newf("approve %s with balance %s", amount, balance)
	}

	if _, err = self.transact(ctx, "approve", spender, amount); err != nil {
		return err
	}
	log.Infof("[Approve] token %s spender %s amount %s", self.address.Hex(), spender.Hex(), amount)
	return nil
}
