package proxies

import (
	"context"
	"math/big"

	"github.com/saveio/paychan/common"
	"github.com/saveio/paychan/errors"
	"github.com/saveio/paychan/metrics"
	"github.com/saveio/paychan/network/rpc"
	"github.com/saveio/themis/common/log"
)

// ProxyConfig is shared by every contract proxy of a node.
type ProxyConfig struct {
	NodeAddress   common.Address
	Service       rpc.TxService
	Confirmations common.BlockHeight
	Metrics       *metrics.Metrics
}

type contract struct {
	address common.Address
	config  *ProxyConfig
}

func (self *contract) transact(ctx context.Context, method string, args ...interface{}) (*rpc.Receipt, error) {
	call := &rpc.ContractCall{Contract: self.address, Method: method, Args: args}
	receipt, err := rpc.Transact(ctx, self.config.Service, call, self.config.Confirmations)
	if err != nil {
		log.Warnf("[%s] contract %s: %s", method, self.address.Hex(), err)
		self.config.Metrics.TxAttempt(method, metrics.OutcomeFailure)
		return receipt, err
	}
	self.config.Metrics.TxAttempt(method, metrics.OutcomeSuccess)
	return receipt, nil
}

func (self *contract) call(ctx context.Context, method string, args ...interface{}) (map[string]interface{}, error) {
	call := &rpc.ContractCall{Contract: self.address, Method: method, Args: args}
	result, err := self.config.Service.Call(ctx, call)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, errors.ErrInvalidResponse.Newf("%s returned nothing", method)
	}
	return result, nil
}

func field(result map[string]interface{}, method string, name string) (interface{}, error) {
	value, ok := result[name]
	if !ok {
		return nil, errors.ErrInvalidResponse.Newf("%s result misses %s", method, name)
	}
	return value, nil
}

func uint256Field(result map[string]interface{}, method string, name string) (*big.Int, error) {
	value, err := field(result, method, name)
	if err != nil {
		return nil, err
	}
	return common.DecodeUInt256(value)
}
