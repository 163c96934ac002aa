package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorIs(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code *Error
		want bool
	}{
		{"same instance", ErrInvalidDeposit, ErrInvalidDeposit, true},
		{"wrapped once", ErrInvalidDeposit.New("delta is zero"), ErrInvalidDeposit, true},
		{"wrapped twice", Wrap(ErrNetwork.New("dial"), "info"), ErrNetwork, true},
		{"different code", ErrInvalidDeposit.New("x"), ErrNetwork, false},
		{"nil", nil, ErrNetwork, false},
		{"plain error", fmt.Errorf("boom"), ErrNetwork, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.Is(tt.err))
			assert.Equal(t, tt.want, stderrors.Is(tt.err, tt.code))
		})
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindValidation, KindOf(ErrInvalidBalanceHash.New("x")))
	assert.Equal(t, KindTransient, KindOf(ErrTimeout.New("x")))
	assert.Equal(t, KindTransactionFailed, KindOf(ErrTransactionFailed.New("revert")))
	assert.Equal(t, KindStateConflict, KindOf(ErrStateConflict))
	assert.Equal(t, KindServiceProtocol, KindOf(Wrap(&ServiceError{Status: 400, Code: 2201}, "paths")))
	assert.Equal(t, KindUnknown, KindOf(fmt.Errorf("x")))

	assert.True(t, IsRetryable(ErrNetwork.New("x")))
	assert.True(t, IsRetryable(ErrTransactionFailed))
	assert.False(t, IsRetryable(ErrInsufficientBalance))
	assert.False(t, IsRetryable(nil))
}

func TestServiceError(t *testing.T) {
	err := Wrap(&ServiceError{Status: 400, Code: CodeNoRoute, Errors: "no route"}, "find paths")
	assert.True(t, IsNoRoute(err))
	svc, ok := AsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, 400, svc.Status)

	assert.False(t, IsNoRoute(Wrap(&ServiceError{Status: 500, Code: 2000}, "x")))
	assert.False(t, IsNoRoute(ErrNetwork))
}

func TestCodeWrap(t *testing.T) {
	cause := &ServiceError{Status: 400, Code: CodeNoRoute, Errors: "no route"}
	err := ErrNoRoutesFound.Wrap(cause, "pfs http://pfs")
	assert.True(t, ErrNoRoutesFound.Is(err))
	assert.True(t, stderrors.Is(err, ErrNoRoutesFound))
	assert.False(t, ErrDisabled.Is(err))
	assert.True(t, IsNoRoute(err))
	svc, ok := AsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, cause, svc)
	assert.Contains(t, err.Error(), "code 2201")

	network := ErrInvalidResponse.Wrap(fmt.Errorf("eof"), "")
	assert.Equal(t, KindServiceProtocol, KindOf(network))
	assert.Nil(t, ErrInvalidResponse.Wrap(nil, "x"))
}

func TestRegisterDuplicatePanics(t *testing.T) {
	assert.Panics(t, func() {
		Register(ErrInvalidInput.Code(), KindValidation, "dup")
	})
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "nothing"))
}
