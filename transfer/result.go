package transfer

import "fmt"

type Operation string

const (
	OpDeposit           Operation = "deposit"
	OpClose             Operation = "close"
	OpSettle            Operation = "settle"
	OpCooperativeSettle Operation = "cooperative_settle"
	OpUpdateTransfer    Operation = "update_transfer"
	OpUnlock            Operation = "unlock"
	OpPathFind          Operation = "path_find"
	OpMonitor           Operation = "monitor"
	OpFeeUpdate         Operation = "fee_update"
	OpUdcWithdraw       Operation = "udc_withdraw"
)

type ResultKind int

const (
	Requested ResultKind = iota
	Succeeded
	Failed
)

func (k ResultKind) String() string {
	switch k {
	case Requested:
		return "requested"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// OperationResult is the single tagged outcome type of every workflow,
// correlated by Op and Key.
type OperationResult struct {
	Op      Operation
	Key     string
	Kind    ResultKind
	Id      string
	Payload interface{}
	Err     error
}

func NewRequested(op Operation, key string, id string) *OperationResult {
	return &OperationResult{Op: op, Key: key, Kind: Requested, Id: id}
}

func NewSucceeded(op Operation, key string, id string, payload interface{}) *OperationResult {
	return &OperationResult{Op: op, Key: key, Kind: Succeeded, Id: id, Payload: payload}
}

func NewFailed(op Operation, key string, id string, err error) *OperationResult {
	return &OperationResult{Op: op, Key: key, Kind: Failed, Id: id, Err: err}
}

func (self *OperationResult) String() string {
	if self.Kind == Failed {
		return fmt.Sprintf("%s[%s] %s: %v", self.Op, self.Key, self.Kind, self.Err)
	}
	return fmt.Sprintf("%s[%s] %s", self.Op, self.Key, self.Kind)
}
