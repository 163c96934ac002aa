// Package rpctest provides an in-memory TxService for tests.
package rpctest

import (
	"context"
	"math/big"
	"sync"

	"github.com/saveio/paychan/common"
	"github.com/saveio/paychan/network/rpc"
)

type FakeChain struct {
	mu           sync.Mutex
	height       common.BlockHeight
	sent         []*rpc.ContractCall
	results      map[string]map[string]interface{}
	participants map[common.Address]map[string]interface{}
	failures     map[string][]error
	reverts      map[string]int
	receipts     map[common.TxHash]*rpc.Receipt
	onSend       func(call *rpc.ContractCall)
}

func NewFakeChain() *FakeChain {
	return &FakeChain{
		results:      make(map[string]map[string]interface{}),
		participants: make(map[common.Address]map[string]interface{}),
		failures:     make(map[string][]error),
		reverts:      make(map[string]int),
		receipts:     make(map[common.TxHash]*rpc.Receipt),
	}
}

func (this *FakeChain) SetHeight(height common.BlockHeight) {
	this.mu.Lock()
	defer this.mu.Unlock()
	this.height = height
}

// SetResult sets the outputs returned by the read-only method.
func (this *FakeChain) SetResult(method string, result map[string]interface{}) {
	this.mu.Lock()
	defer this.mu.Unlock()
	this.results[method] = result
}

// SetParticipant sets the getChannelParticipantInfo outputs of participant.
func (this *FakeChain) SetParticipant(participant common.Address, result map[string]interface{}) {
	this.mu.Lock()
	defer this.mu.Unlock()
	this.participants[participant] = result
}

// FailNext makes the next sends of method fail with errs, in order.
func (this *FakeChain) FailNext(method string, errs ...error) {
	this.mu.Lock()
	defer this.mu.Unlock()
	this.failures[method] = append(this.failures[method], errs...)
}

// RevertNext makes the next n transactions of method revert.
func (this *FakeChain) RevertNext(method string, n int) {
	this.mu.Lock()
	defer this.mu.Unlock()
	this.reverts[method] += n
}

// OnSend registers a hook run after every successful send.
func (this *FakeChain) OnSend(hook func(call *rpc.ContractCall)) {
	this.mu.Lock()
	defer this.mu.Unlock()
	this.onSend = hook
}

func (this *FakeChain) Sent(method string) []*rpc.ContractCall {
	this.mu.Lock()
	defer this.mu.Unlock()
	var calls []*rpc.ContractCall
	for _, call := range this.sent {
		if method == "" || call.Method == method {
			calls = append(calls, call)
		}
	}
	return calls
}

func (this *FakeChain) Send(ctx context.Context, call *rpc.ContractCall) (common.TxHash, error) {
	this.mu.Lock()
	if errs := this.failures[call.Method]; len(errs) > 0 {
		this.failures[call.Method] = errs[1:]
		this.mu.Unlock()
		return common.EmptyHash, errs[0]
	}
	this.sent = append(this.sent, call)
	txHash := common.BigToHash(big.NewInt(int64(len(this.sent))))
	receipt := &rpc.Receipt{TxHash: txHash, BlockHeight: this.height, Status: rpc.ReceiptStatusSuccess}
	if this.reverts[call.Method] > 0 {
		this.reverts[call.Method]--
		receipt.Status = rpc.ReceiptStatusFailed
	}
	this.receipts[txHash] = receipt
	hook := this.onSend
	this.mu.Unlock()

	if hook != nil && receipt.Status == rpc.ReceiptStatusSuccess {
		hook(call)
	}
	return txHash, nil
}

func (this *FakeChain) WaitReceipt(ctx context.Context, txHash common.TxHash) (*rpc.Receipt, error) {
	this.mu.Lock()
	defer this.mu.Unlock()
	return this.receipts[txHash], nil
}

func (this *FakeChain) WaitConfirmations(ctx context.Context, receipt *rpc.Receipt, confirmations common.BlockHeight) error {
	return nil
}

func (this *FakeChain) Call(ctx context.Context, call *rpc.ContractCall) (map[string]interface{}, error) {
	this.mu.Lock()
	defer this.mu.Unlock()
	if call.Method == "getChannelParticipantInfo" && len(call.Args) > 1 {
		if participant, ok := call.Args[1].(common.Address); ok {
			return copyResult(this.participants[participant]), nil
		}
	}
	return copyResult(this.results[call.Method]), nil
}

func (this *FakeChain) BlockHeight(ctx context.Context) (common.BlockHeight, error) {
	this.mu.Lock()
	defer this.mu.Unlock()
	return this.height, nil
}

func copyResult(result map[string]interface{}) map[string]interface{} {
	if result == nil {
		return nil
	}
	copied := make(map[string]interface{}, len(result))
	for k, v := range result {
		copied[k] = v
	}
	return copied
}

// Participant builds getChannelParticipantInfo outputs.
func Participant(deposit int64, withdrawn int64, isCloser bool, balanceHash common.BalanceHash,
	nonce common.Nonce, locksroot common.Locksroot, locked int64) map[string]interface{} {
	return map[string]interface{}{
		"deposit":       big.NewInt(deposit),
		"withdrawn":     big.NewInt(withdrawn),
		"is_closer":     isCloser,
		"balance_hash":  balanceHash,
		"nonce":         uint64(nonce),
		"locksroot":     locksroot,
		"locked_amount": big.NewInt(locked),
	}
}

// ChannelInfo builds getChannelInfo outputs.
func ChannelInfo(channelId common.ChannelID, settleBlock common.BlockHeight, state int) map[string]interface{} {
	return map[string]interface{}{
		"channel_identifier":  uint64(channelId),
		"settle_block_height": uint64(settleBlock),
		"state":               uint64(state),
	}
}
