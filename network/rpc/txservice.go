package rpc

import (
	"context"

	"github.com/saveio/paychan/common"
	"github.com/saveio/paychan/errors"
	"github.com/saveio/themis/common/log"
)

const (
	ReceiptStatusFailed  uint64 = 0
	ReceiptStatusSuccess uint64 = 1
)

// ContractCall is one method invocation on a contract.
type ContractCall struct {
	Contract common.Address
	Method   string
	Args     []interface{}
}

type Receipt struct {
	TxHash      common.TxHash
	BlockHeight common.BlockHeight
	Status      uint64
}

// TxService submits contract calls to the chain. Implementations classify
// their errors with ErrNetwork/ErrTimeout for connectivity problems and
// ErrTransactionFailed for gas estimation failures.
type TxService interface {
	Send(ctx context.Context, call *ContractCall) (common.TxHash, error)
	WaitReceipt(ctx context.Context, txHash common.TxHash) (*Receipt, error)
	WaitConfirmations(ctx context.Context, receipt *Receipt, confirmations common.BlockHeight) error
	// Call runs a read-only method and returns its named outputs.
	Call(ctx context.Context, call *ContractCall) (map[string]interface{}, error)
	BlockHeight(ctx context.Context) (common.BlockHeight, error)
}

// Transact sends call and waits until its receipt has the given number of
// confirmations. A reverted transaction fails with ErrTransactionFailed.
func Transact(ctx context.Context, service TxService, call *ContractCall,
	confirmations common.BlockHeight) (*Receipt, error) {
	txHash, err := service.Send(ctx, call)
	if err != nil {
		return nil, err
	}
	log.Infof("[Transact] %s sent to %s, tx %s", call.Method, call.Contract.Hex(), txHash.Hex())

	receipt, err := service.WaitReceipt(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if receipt.Status != ReceiptStatusSuccess {
		return receipt, errors.ErrTransactionFailed.Newf("%s reverted in tx %s", call.Method, txHash.Hex())
	}
	if err = service.WaitConfirmations(ctx, receipt, confirmations); err != nil {
		return receipt, err
	}
	return receipt, nil
}
