package channelservice

import (
	"context"
	"math/big"
	"testing"

	"github.com/saveio/paychan/common"
	"github.com/saveio/paychan/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUdcWithdraw(t *testing.T) {
	ctx := context.Background()

	t.Run("no user deposit contract", func(t *testing.T) {
		env := newTestEnv(t, testConfig())
		_, err := env.service.PlanUdcWithdraw(ctx, big.NewInt(1))
		assert.True(t, errors.ErrInvalidInput.Is(err))
		assert.True(t, errors.ErrInvalidInput.Is(env.service.UdcWithdraw(ctx, big.NewInt(1))))
	})

	config := testConfig()
	config.TxRetries = 1
	config.Monitoring.UserDepositAddress = udcAddress
	env := newTestEnv(t, config)
	env.chain.SetResult("effectiveBalance", map[string]interface{}{"balance": big.NewInt(50)})

	tests := []struct {
		name    string
		amount  *big.Int
		wantErr *errors.Error
	}{
		{"above effective balance", big.NewInt(51), errors.ErrInsufficientBalance},
		{"zero", big.NewInt(0), errors.ErrInvalidInput},
		{"out of range", new(big.Int).Lsh(big.NewInt(1), 256), errors.ErrOutOfRange},
		{"planned", big.NewInt(20), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			planned, err := env.service.PlanUdcWithdraw(ctx, tt.amount)
			if tt.wantErr != nil {
				assert.True(t, tt.wantErr.Is(err), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, common.BlockHeight(10), planned)
		})
	}

	require.NoError(t, env.service.UdcWithdraw(ctx, big.NewInt(20)))
	require.Len(t, env.chain.Sent("planWithdraw"), 1)
	calls := env.chain.Sent("withdraw")
	require.Len(t, calls, 1)
	assert.Equal(t, int64(20), calls[0].Args[0].(*big.Int).Int64())
}
