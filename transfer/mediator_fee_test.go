package transfer

import (
	"math/big"
	"testing"

	"github.com/saveio/paychan/common"
	"github.com/saveio/paychan/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feeModel(flat int64, proportional common.ProportionalFeeAmount, imbalance common.ProportionalFeeAmount,
	capFees bool) *MediationFeeModel {
	return NewMediationFeeModel(common.MediationFeeConfig{
		TokenToFlatFee:                  map[common.TokenAddress]*big.Int{common.EmptyAddress: big.NewInt(flat)},
		TokenToProportionalFee:          map[common.TokenAddress]common.ProportionalFeeAmount{common.EmptyAddress: proportional},
		TokenToProportionalImbalanceFee: map[common.TokenAddress]common.ProportionalFeeAmount{common.EmptyAddress: imbalance},
		CapMediationFees:                capFees,
	})
}

func TestMediationFee(t *testing.T) {
	tests := []struct {
		name     string
		model    *MediationFeeModel
		outDep   int64
		amountIn int64
		wantFee  int64
		wantErr  *errors.Error
	}{
		{"no fees", feeModel(0, 0, 0, true), 1000, 100, 0, nil},
		{"flat fee", feeModel(10, 0, 0, true), 1000, 100, 10, nil},
		{"proportional fee", feeModel(0, 10000, 0, true), 2000, 1000, 10, nil},
		{"flat and proportional", feeModel(10, 10000, 0, true), 2000, 1000, 20, nil},
		{"fee larger than amount", feeModel(10, 0, 0, true), 1000, 5, 0, errors.ErrInsufficientFee},
		{"not enough capacity", feeModel(0, 0, 0, true), 50, 100, 0, errors.ErrInsufficientCapacity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			channelIn := newTestChannel(1000, 1000)
			channelOut := newTestChannel(tt.outDep, 1000)
			fee, err := tt.model.Fee(channelIn, channelOut)(big.NewInt(tt.amountIn))
			if tt.wantErr != nil {
				assert.True(t, tt.wantErr.Is(err), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantFee, fee.Int64())

			out, err := tt.model.AmountOut(channelIn, channelOut, big.NewInt(tt.amountIn))
			require.NoError(t, err)
			assert.Equal(t, tt.amountIn-tt.wantFee, out.Int64())
		})
	}
}

func TestMixedMediationFee(t *testing.T) {
	tests := []struct {
		name       string
		capFees    bool
		channelIn  *NettingChannelState
		channelOut *NettingChannelState
		amountIn   int64
		wantFee    int64
	}{
		{"balanced channels", true, newTestChannel(500, 500), newTestChannel(500, 500), 200, 16},
		{"rebalancing rebate capped", true, newTestChannel(0, 1000), newTestChannel(1000, 0), 100, 0},
		{"rebalancing rebate uncapped", false, newTestChannel(0, 1000), newTestChannel(1000, 0), 100, -7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := feeModel(10, 10000, 20000, tt.capFees)
			amountIn := big.NewInt(tt.amountIn)
			fee, err := model.Fee(tt.channelIn, tt.channelOut)(amountIn)
			require.NoError(t, err)
			assert.Equal(t, tt.wantFee, fee.Int64())

			amountOut, err := model.AmountOut(tt.channelIn, tt.channelOut, amountIn)
			require.NoError(t, err)
			assert.Equal(t, tt.amountIn-tt.wantFee, amountOut.Int64())

			// amountOut plus the fees charged on both channels recovers amountIn
			// up to the flooring of amountOut.
			in := decimal.NewFromInt(tt.amountIn)
			charged := model.ChannelFee(tt.channelIn)(in).Add(model.ChannelFee(tt.channelOut)(bigToDecimal(amountOut).Neg()))
			residual := bigToDecimal(amountOut).Add(charged).Sub(in)
			if tt.capFees && tt.wantFee == 0 {
				assert.True(t, charged.IsNegative(), "charged %s", charged)
				return
			}
			assert.True(t, residual.LessThanOrEqual(decimal.Zero), "residual %s", residual)
			assert.True(t, residual.GreaterThan(decimal.NewFromInt(-1)), "residual %s", residual)
		})
	}
}

func TestProportionalClosedForm(t *testing.T) {
	config := &FeeConfig{Flat: new(big.Int), Proportional: 10000}
	fee, err := ProportionalFee{}.Fee(config, nil, nil)(big.NewInt(1000))
	require.NoError(t, err)
	assert.Equal(t, int64(10), fee.Int64())
}

func TestFindAmountOutRoot(t *testing.T) {
	feeIn := func(amount decimal.Decimal) decimal.Decimal {
		return amount.Abs().Mul(decimal.RequireFromString("0.003")).Add(decimal.NewFromInt(2))
	}
	feeOut := func(amount decimal.Decimal) decimal.Decimal {
		return amount.Abs().Mul(decimal.RequireFromString("0.007")).Add(decimal.NewFromInt(3))
	}
	amountIn := big.NewInt(12345)
	root, err := FindAmountOut(feeIn, feeOut, amountIn, big.NewInt(100000))
	require.NoError(t, err)
	f := MediationFeeFunction(feeIn, feeOut, decimal.NewFromBigInt(amountIn, 0))
	assert.True(t, f(root).Abs().LessThan(decimal.New(1, -6)), "f(root) = %s", f(root))
	assert.True(t, root.GreaterThanOrEqual(decimal.Zero))
	assert.True(t, root.LessThanOrEqual(decimal.NewFromInt(100000)))
}

func TestCappedFeeNeverNegative(t *testing.T) {
	rebate := func(decimal.Decimal) decimal.Decimal { return decimal.NewFromInt(-5) }
	none := func(decimal.Decimal) decimal.Decimal { return decimal.Zero }
	channelOut := newTestChannel(1000, 0)

	fee, err := solverFee(rebate, none, channelOut, true)(big.NewInt(100))
	require.NoError(t, err)
	assert.Equal(t, int64(0), fee.Int64())

	fee, err = solverFee(rebate, none, channelOut, false)(big.NewInt(100))
	require.NoError(t, err)
	assert.Equal(t, int64(-5), fee.Int64())
}

func TestCalculateImbalancePenalty(t *testing.T) {
	t.Run("regular curve", func(t *testing.T) {
		points := CalculateImbalancePenalty(big.NewInt(1000), 10000)
		require.Len(t, points, 21)
		assert.Equal(t, int64(0), points[0].Capacity.Int64())
		assert.Equal(t, int64(1000), points[20].Capacity.Int64())
		assert.Equal(t, int64(10), points[0].Fee.Int64())
		assert.Equal(t, int64(0), points[10].Fee.Int64())
		assert.Equal(t, int64(10), points[20].Fee.Int64())
		for i := 1; i <= 10; i++ {
			assert.True(t, points[i].Fee.Cmp(points[i-1].Fee) <= 0)
		}
	})
	t.Run("small capacity", func(t *testing.T) {
		assert.Len(t, CalculateImbalancePenalty(big.NewInt(5), 10000), 6)
	})
	t.Run("penalty above maximum slope", func(t *testing.T) {
		points := CalculateImbalancePenalty(big.NewInt(1000), 100000)
		assert.Equal(t, int64(50), points[0].Fee.Int64())
	})
	t.Run("disabled", func(t *testing.T) {
		assert.Nil(t, CalculateImbalancePenalty(big.NewInt(1000), 0))
		assert.Nil(t, CalculateImbalancePenalty(big.NewInt(0), 10000))
	})
	t.Run("fractional exponent", func(t *testing.T) {
		// 3% penalty gives the exponent 5/3.
		want := []int64{30, 25, 21, 17, 13, 9, 7, 4, 2, 1, 0, 1, 2, 4, 7, 9, 13, 17, 21, 25, 30}
		points := CalculateImbalancePenalty(big.NewInt(1000), 30000)
		require.Len(t, points, len(want))
		for i, point := range points {
			assert.Equal(t, int64(i*50), point.Capacity.Int64())
			assert.Equal(t, want[i], point.Fee.Int64(), "point %d", i)
		}
		assert.Equal(t, points, CalculateImbalancePenalty(big.NewInt(1000), 30000))
	})
}

func TestUnitPow(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		exponent string
		want     string
	}{
		{"zero exponent", "0.3", "0", "1"},
		{"zero base", "0", "1.5", "0"},
		{"one", "1", "7.25", "1"},
		{"integral", "0.5", "3", "0.125"},
		{"square root", "0.25", "0.5", "0.5"},
		{"mixed", "0.5", "1.6666666666666666666666666666667", "0.31498026247371829119180265181955"},
		{"tiny base", "0.0000000000000000001", "1.5", "0.000000000000000000000000000031622776601683793"},
	}
	tolerance := decimal.New(1, -25)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := unitPow(decimal.RequireFromString(tt.base), decimal.RequireFromString(tt.exponent))
			want := decimal.RequireFromString(tt.want)
			assert.True(t, got.Sub(want).Abs().LessThan(tolerance), "got %s want %s", got, want)
		})
	}

	ln := unitLn(decimalHalf)
	assert.True(t, ln.Sub(decimal.RequireFromString("-0.693147180559945309417232121458")).Abs().LessThan(tolerance),
		"ln(0.5) = %s", ln)
}

func TestInterpolate(t *testing.T) {
	points := []ImbalancePoint{
		{Capacity: big.NewInt(0), Fee: big.NewInt(10)},
		{Capacity: big.NewInt(10), Fee: big.NewInt(0)},
	}
	assert.True(t, Interpolate(points, decimal.NewFromInt(5)).Equal(decimal.NewFromInt(5)))
	assert.True(t, Interpolate(points, decimal.NewFromInt(-1)).Equal(decimal.NewFromInt(10)))
	assert.True(t, Interpolate(points, decimal.NewFromInt(20)).Equal(decimal.Zero))
	assert.True(t, Interpolate(nil, decimal.NewFromInt(3)).Equal(decimal.Zero))
}

func TestImbalanceChannelFee(t *testing.T) {
	channel := newTestChannel(500, 500)
	fee := ImbalanceFee{}.ChannelFee(&FeeConfig{ImbalancePenalty: 10000}, channel)
	assert.True(t, fee(decimal.Zero).Equal(decimal.Zero))
	assert.True(t, fee(decimal.NewFromInt(500)).Equal(decimal.NewFromInt(10)))
	assert.True(t, fee(decimal.NewFromInt(-500)).Equal(decimal.NewFromInt(10)))
}

func TestTokenConfigWildcard(t *testing.T) {
	model := NewMediationFeeModel(common.MediationFeeConfig{
		TokenToFlatFee: map[common.TokenAddress]*big.Int{
			common.EmptyAddress: big.NewInt(4),
			tokenAddress:        big.NewInt(6),
		},
		TokenToProportionalFee: map[common.TokenAddress]common.ProportionalFeeAmount{tokenAddress: 100},
	})
	assert.Equal(t, int64(6), model.TokenConfig(tokenAddress).Flat.Int64())
	assert.Equal(t, int64(4), model.TokenConfig(thirdAddress).Flat.Int64())
	assert.Equal(t, common.ProportionalFeeAmount(100), model.TokenConfig(tokenAddress).Proportional)
	assert.Equal(t, common.ProportionalFeeAmount(0), model.TokenConfig(thirdAddress).Proportional)
}

func TestFeeSchedule(t *testing.T) {
	schedule := feeModel(10, 10000, 0, true).FeeSchedule(newTestChannel(500, 500))
	assert.True(t, schedule.CapFees)
	assert.Equal(t, int64(5), schedule.Flat.Int64())
	assert.Equal(t, common.ProportionalFeeAmount(4975), schedule.Proportional)
	assert.Nil(t, schedule.ImbalancePenalty)
}
