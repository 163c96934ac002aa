package rpc

import (
	"context"
	"testing"

	"github.com/saveio/paychan/common"
	"github.com/saveio/paychan/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTxService struct {
	sendErr       error
	status        uint64
	confirmations common.BlockHeight
}

func (this *stubTxService) Send(ctx context.Context, call *ContractCall) (common.TxHash, error) {
	return common.TxHash{1}, this.sendErr
}

func (this *stubTxService) WaitReceipt(ctx context.Context, txHash common.TxHash) (*Receipt, error) {
	return &Receipt{TxHash: txHash, BlockHeight: 10, Status: this.status}, nil
}

func (this *stubTxService) WaitConfirmations(ctx context.Context, receipt *Receipt, confirmations common.BlockHeight) error {
	this.confirmations = confirmations
	return nil
}

func (this *stubTxService) Call(ctx context.Context, call *ContractCall) (map[string]interface{}, error) {
	return nil, nil
}

func (this *stubTxService) BlockHeight(ctx context.Context) (common.BlockHeight, error) {
	return 10, nil
}

func TestTransact(t *testing.T) {
	call := &ContractCall{Method: "approve"}

	service := &stubTxService{status: ReceiptStatusSuccess}
	receipt, err := Transact(context.Background(), service, call, 5)
	require.NoError(t, err)
	assert.Equal(t, common.BlockHeight(10), receipt.BlockHeight)
	assert.Equal(t, common.BlockHeight(5), service.confirmations)

	_, err = Transact(context.Background(), &stubTxService{status: ReceiptStatusFailed}, call, 5)
	assert.True(t, errors.ErrTransactionFailed.Is(err))

	_, err = Transact(context.Background(), &stubTxService{sendErr: errors.ErrNetwork.New("down")}, call, 5)
	assert.True(t, errors.ErrNetwork.Is(err))
}
