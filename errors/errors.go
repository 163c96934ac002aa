package errors

import (
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

// Kind groups errors by how the caller is expected to react.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation is fatal to the single request and never retried.
	KindValidation
	// KindTransient covers timeouts and connection failures, retried with backoff.
	KindTransient
	// KindTransactionFailed covers gas estimation failures and reverts, retried a bounded number of times.
	KindTransactionFailed
	// KindStateConflict marks an operation whose precondition was resolved elsewhere. It is abandoned silently.
	KindStateConflict
	// KindServiceProtocol is a structured error returned by a PFS or MS.
	KindServiceProtocol
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindTransient:
		return "transient"
	case KindTransactionFailed:
		return "transaction_failed"
	case KindStateConflict:
		return "state_conflict"
	case KindServiceProtocol:
		return "service_protocol"
	default:
		return "unknown"
	}
}

var (
	ErrInvalidInput         = Register(1, KindValidation, "invalid input")
	ErrOutOfRange           = Register(2, KindValidation, "value out of range")
	ErrChannelNotFound      = Register(3, KindValidation, "channel not found")
	ErrChannelNotOpen       = Register(4, KindValidation, "channel not open")
	ErrInvalidDeposit       = Register(5, KindValidation, "invalid deposit")
	ErrInsufficientBalance  = Register(6, KindValidation, "insufficient balance")
	ErrInvalidBalanceHash   = Register(7, KindValidation, "invalid balance hash")
	ErrNoSettleableChannel  = Register(8, KindValidation, "no settleable channel")
	ErrInvalidBalanceProof  = Register(9, KindValidation, "invalid balance proof")
	ErrInsufficientFee      = Register(10, KindValidation, "insufficient fee")
	ErrInsufficientCapacity = Register(11, KindValidation, "insufficient capacity")
	ErrUnknownTokenNetwork  = Register(12, KindValidation, "unknown token network")
	ErrTargetOffline        = Register(13, KindValidation, "target offline")
	ErrTargetNotReceiving   = Register(14, KindValidation, "target can not receive")
	ErrDisabled             = Register(15, KindValidation, "path finding disabled")
	ErrNoRoutesFound        = Register(16, KindValidation, "no routes found")
	ErrIOUDecrease          = Register(17, KindValidation, "iou amount decrease")
	ErrInvalidSignature     = Register(18, KindValidation, "invalid signature")

	ErrNetwork = Register(30, KindTransient, "network error")
	ErrTimeout = Register(31, KindTransient, "timeout")

	ErrTransactionFailed = Register(40, KindTransactionFailed, "transaction failed")

	ErrStateConflict = Register(50, KindStateConflict, "state conflict")
	ErrStopped       = Register(51, KindStateConflict, "service stopped")

	ErrServiceProtocol = Register(60, KindServiceProtocol, "service protocol error")
	ErrNoValidPfs      = Register(61, KindServiceProtocol, "no valid path finding service")
	ErrInvalidIOU      = Register(62, KindServiceProtocol, "invalid iou")
	ErrInvalidResponse = Register(63, KindServiceProtocol, "invalid service response")
)

var (
	usedCodes = map[uint32]*Error{}
	codesLock sync.Mutex
)

// Register returns a new error instance that is registered under the given
// code. Registering the same code twice panics.
func Register(code uint32, kind Kind, description string) *Error {
	codesLock.Lock()
	defer codesLock.Unlock()
	if e, ok := usedCodes[code]; ok {
		panic(fmt.Sprintf("error with code %d is already registered: %q", code, e.desc))
	}
	err := &Error{code: code, kind: kind, desc: description}
	usedCodes[code] = err
	return err
}

// Error is a registered error with a code and a kind.
type Error struct {
	code uint32
	kind Kind
	desc string
}

func (e *Error) Error() string { return e.desc }

func (e *Error) Code() uint32 { return e.code }

func (e *Error) Kind() Kind { return e.kind }

// New returns a new error wrapping e with an additional message.
func (e *Error) New(description string) error {
	return Wrap(e, description)
}

func (e *Error) Newf(description string, args ...interface{}) error {
	return Wrapf(e, description, args...)
}

// Wrap tags err with the code of e. err stays the cause, so structured
// errors such as *ServiceError remain reachable.
func (e *Error) Wrap(err error, description string) error {
	if err == nil {
		return nil
	}
	if !hasStack(err) {
		err = errors.WithStack(err)
	}
	return &codedError{code: e, msg: description, parent: err}
}

// Is reports whether err, or any error it wraps, carries the code of e.
func (e *Error) Is(err error) bool {
	for {
		if err == nil {
			return false
		}
		if c, ok := err.(*Error); ok {
			return c.code == e.code
		}
		if c, ok := err.(*codedError); ok && c.code.code == e.code {
			return true
		}
		switch x := err.(type) {
		case causer:
			err = x.Cause()
		case unwrapper:
			err = x.Unwrap()
		default:
			return false
		}
	}
}

type causer interface {
	Cause() error
}

type unwrapper interface {
	Unwrap() error
}

// Wrap extends err with an additional message and a stack trace.
// A nil err returns nil.
func Wrap(err error, description string) error {
	if err == nil {
		return nil
	}
	if !hasStack(err) {
		err = errors.WithStack(err)
	}
	return &wrappedError{msg: description, parent: err}
}

func Wrapf(err error, format string, args ...interface{}) error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

type wrappedError struct {
	msg    string
	parent error
}

func (e *wrappedError) Error() string {
	if e.msg == "" {
		return e.parent.Error()
	}
	return fmt.Sprintf("%s: %s", e.msg, e.parent.Error())
}

func (e *wrappedError) Cause() error { return e.parent }

func (e *wrappedError) Unwrap() error { return e.parent }

type codedError struct {
	code   *Error
	msg    string
	parent error
}

func (e *codedError) Error() string {
	if e.msg == "" {
		return fmt.Sprintf("%s: %s", e.code.desc, e.parent.Error())
	}
	return fmt.Sprintf("%s: %s: %s", e.code.desc, e.msg, e.parent.Error())
}

func (e *codedError) Cause() error { return e.parent }

func (e *codedError) Unwrap() error { return e.parent }

// Is lets the standard library errors.Is match the tagged code.
func (e *codedError) Is(target error) bool {
	c, ok := target.(*Error)
	return ok && c.code == e.code.code
}

func (e *codedError) As(target interface{}) bool {
	if t, ok := target.(**Error); ok {
		*t = e.code
		return true
	}
	return false
}

func hasStack(err error) bool {
	type stackTracer interface {
		StackTrace() errors.StackTrace
	}
	var st stackTracer
	return stderrors.As(err, &st)
}

// KindOf returns the kind of the first classified error found in the chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var svc *ServiceError
	if stderrors.As(err, &svc) {
		return KindServiceProtocol
	}
	var reg *Error
	if stderrors.As(err, &reg) {
		return reg.kind
	}
	return KindUnknown
}

// IsRetryable reports whether a transaction or request failing with err may be retried.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTransient, KindTransactionFailed:
		return true
	}
	return false
}

func IsStateConflict(err error) bool {
	return KindOf(err) == KindStateConflict
}
