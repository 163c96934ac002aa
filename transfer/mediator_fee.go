package transfer

import (
	"math/big"
	"sort"

	"github.com/saveio/paychan/common"
	"github.com/saveio/paychan/common/constants"
	"github.com/saveio/paychan/errors"
	"github.com/saveio/themis/common/log"
	"github.com/shopspring/decimal"
)

var (
	decimalZero     = decimal.Zero
	decimalOne      = decimal.NewFromInt(1)
	decimalTwo      = decimal.NewFromInt(2)
	decimalHalf     = decimal.New(5, -1)
	decimalMillion  = decimal.NewFromInt(constants.PartsPerMillion)
	maximumSlope    = decimal.RequireFromString(constants.ImbalanceMaximumSlope)
	bisectTolerance = decimal.New(1, -9)
)

const (
	maxBisectIterations = 512
	// curvePrecision is the number of decimal places kept while evaluating
	// the imbalance curve. Only the final fee of each point is rounded.
	curvePrecision = 30
)

// FeeFunc maps a signed amount crossing a channel to the fee charged on that
// channel. Positive amounts are received by us, negative ones sent.
type FeeFunc func(amount decimal.Decimal) decimal.Decimal

// FeeConfig is the resolved mediation fee configuration of one token.
type FeeConfig struct {
	Flat             *big.Int
	Proportional     common.ProportionalFeeAmount
	ImbalancePenalty common.ProportionalFeeAmount
	Cap              bool
}

type ImbalancePoint struct {
	Capacity *big.Int
	Fee      *big.Int
}

// FeeScheduleState is the per-channel fee description published to path finding services.
type FeeScheduleState struct {
	CapFees          bool
	Flat             *big.Int
	Proportional     common.ProportionalFeeAmount
	ImbalancePenalty []ImbalancePoint
}

type FeeModel interface {
	Name() string
	ChannelFee(config *FeeConfig, channel *NettingChannelState) FeeFunc
	Fee(config *FeeConfig, channelIn *NettingChannelState, channelOut *NettingChannelState) func(amountIn *big.Int) (*big.Int, error)
	Schedule(config *FeeConfig, channel *NettingChannelState, schedule *FeeScheduleState)
}

func bigToDecimal(v *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(common.BigCopy(v), 0)
}

func channelCapacities(channel *NettingChannelState) (own decimal.Decimal, total decimal.Decimal) {
	balances := ComputeBalances(channel)
	own = bigToDecimal(balances.Own.Capacity)
	total = own.Add(bigToDecimal(balances.Partner.Capacity))
	return own, total
}

// FlatFee charges the configured flat fee per mediation, half on each channel.
type FlatFee struct{}

func (FlatFee) Name() string { return "flat" }

func (FlatFee) ChannelFee(config *FeeConfig, channel *NettingChannelState) FeeFunc {
	half := bigToDecimal(config.Flat).Div(decimalTwo)
	return func(decimal.Decimal) decimal.Decimal { return half }
}

func (FlatFee) Fee(config *FeeConfig, channelIn *NettingChannelState,
	channelOut *NettingChannelState) func(*big.Int) (*big.Int, error) {
	return func(*big.Int) (*big.Int, error) { return common.BigCopy(config.Flat), nil }
}

func (FlatFee) Schedule(config *FeeConfig, channel *NettingChannelState, schedule *FeeScheduleState) {
	schedule.Flat = new(big.Int).Div(common.BigCopy(config.Flat), big.NewInt(2))
}

// ProportionalFee charges a per-hop ratio of the forwarded amount, split into
// two equal per-channel ratios.
type ProportionalFee struct{}

func (ProportionalFee) Name() string { return "proportional" }

// perChannelRatio converts a per-hop ppm into the per-channel ratio q with
// amountOut = amountIn*(1-q)/(1+q).
func perChannelRatio(perHop common.ProportionalFeeAmount) decimal.Decimal {
	r := decimal.NewFromInt(int64(perHop)).Div(decimalMillion)
	return r.Div(r.Add(decimalTwo))
}

func (ProportionalFee) ChannelFee(config *FeeConfig, channel *NettingChannelState) FeeFunc {
	q := perChannelRatio(config.Proportional)
	return func(amount decimal.Decimal) decimal.Decimal { return amount.Abs().Mul(q) }
}

func (ProportionalFee) Fee(config *FeeConfig, channelIn *NettingChannelState,
	channelOut *NettingChannelState) func(*big.Int) (*big.Int, error) {
	q := perChannelRatio(config.Proportional)
	return func(amountIn *big.Int) (*big.Int, error) {
		in := bigToDecimal(amountIn)
		out := in.Mul(decimalOne.Sub(q)).Div(decimalOne.Add(q)).Floor()
		return in.Sub(out).BigInt(), nil
	}
}

func (ProportionalFee) Schedule(config *FeeConfig, channel *NettingChannelState, schedule *FeeScheduleState) {
	ppm := perChannelRatio(config.Proportional).Mul(decimalMillion).Round(0)
	schedule.Proportional = common.ProportionalFeeAmount(ppm.IntPart())
}

// ImbalanceFee penalizes moving the channel away from a balanced split using
// a U-shaped piecewise-linear curve over the total capacity.
type ImbalanceFee struct{}

func (ImbalanceFee) Name() string { return "imbalance" }

// CalculateImbalancePenalty discretizes the penalty curve. It returns nil when
// the penalty or the capacity is zero.
func CalculateImbalancePenalty(totalCapacity *big.Int, ppm common.ProportionalFeeAmount) []ImbalancePoint {
	if ppm == 0 || totalCapacity == nil || totalCapacity.Sign() <= 0 {
		return nil
	}
	proportional := decimal.NewFromInt(int64(ppm)).Div(decimalMillion)
	if limit := maximumSlope.Div(decimalTwo); proportional.GreaterThan(limit) {
		log.Warnf("[CalculateImbalancePenalty] imbalance fee %d ppm too high, capped", ppm)
		proportional = limit
	}

	capacity := bigToDecimal(totalCapacity)
	maxFee := capacity.Mul(proportional)
	middle := capacity.Div(decimalTwo)
	exponent := maximumSlope.Mul(middle).DivRound(maxFee, curvePrecision)
	if limit := decimal.NewFromInt(constants.ImbalanceMaximumExponent); exponent.GreaterThan(limit) {
		exponent = limit
	}

	numPoints := int64(constants.ImbalanceDiscretisationPoints)
	if totalCapacity.IsInt64() && totalCapacity.Int64()+1 < numPoints {
		numPoints = totalCapacity.Int64() + 1
	}

	points := make([]ImbalancePoint, 0, numPoints)
	for i := int64(0); i < numPoints; i++ {
		x := capacity.Mul(decimal.NewFromInt(i)).Div(decimal.NewFromInt(numPoints - 1)).Floor()
		// a*|x-o|^b with a = maxFee/o^b, written as maxFee*(|x-o|/o)^b.
		ratio := x.Sub(middle).Abs().DivRound(middle, curvePrecision)
		y := maxFee.Mul(unitPow(ratio, exponent)).Round(0)
		points = append(points, ImbalancePoint{Capacity: x.BigInt(), Fee: y.BigInt()})
	}
	return points
}

// unitPow computes base^exponent for base in [0, 1] and a non-negative
// exponent. The integral part of the exponent is applied by multiplication,
// the fractional part as exp(f*ln(base)).
func unitPow(base decimal.Decimal, exponent decimal.Decimal) decimal.Decimal {
	if exponent.IsZero() || base.Equal(decimalOne) {
		return decimalOne
	}
	if base.IsZero() {
		return decimalZero
	}
	whole := exponent.Truncate(0)
	result := decimalOne
	for i := int64(0); i < whole.IntPart(); i++ {
		result = result.Mul(base).Truncate(curvePrecision)
	}
	fraction := exponent.Sub(whole)
	if fraction.IsZero() {
		return result
	}
	scale, err := fraction.Mul(unitLn(base)).Truncate(curvePrecision).ExpTaylor(curvePrecision)
	if err != nil {
		log.Errorf("[unitPow] exp of %s: %s", base, err)
		return result
	}
	return result.Mul(scale).Truncate(curvePrecision)
}

// unitLn is ln(x) for x in (0, 1]. x is first scaled into [0.5, 1] by powers
// of two, the rest is summed as 2*atanh((x-1)/(x+1)).
func unitLn(x decimal.Decimal) decimal.Decimal {
	doublings := int64(0)
	for x.LessThan(decimalHalf) {
		x = x.Mul(decimalTwo)
		doublings++
	}
	ln := atanhLn(x)
	if doublings > 0 {
		ln = ln.Sub(atanhLn(decimalHalf).Mul(decimal.NewFromInt(doublings)))
	}
	return ln
}

func atanhLn(x decimal.Decimal) decimal.Decimal {
	z := x.Sub(decimalOne).DivRound(x.Add(decimalOne), curvePrecision)
	z2 := z.Mul(z).Truncate(curvePrecision)
	epsilon := decimal.New(1, -curvePrecision)
	sum, power := z, z
	for k := int64(3); ; k += 2 {
		power = power.Mul(z2).Truncate(curvePrecision)
		term := power.DivRound(decimal.NewFromInt(k), curvePrecision)
		if term.Abs().LessThan(epsilon) {
			break
		}
		sum = sum.Add(term)
	}
	return sum.Mul(decimalTwo)
}

// Interpolate evaluates the piecewise-linear curve, clamping outside of it.
func Interpolate(points []ImbalancePoint, x decimal.Decimal) decimal.Decimal {
	if len(points) == 0 {
		return decimalZero
	}
	first := bigToDecimal(points[0].Capacity)
	if x.LessThanOrEqual(first) {
		return bigToDecimal(points[0].Fee)
	}
	index := sort.Search(len(points), func(i int) bool {
		return bigToDecimal(points[i].Capacity).GreaterThanOrEqual(x)
	})
	if index >= len(points) {
		return bigToDecimal(points[len(points)-1].Fee)
	}
	x1, y1 := bigToDecimal(points[index].Capacity), bigToDecimal(points[index].Fee)
	x0, y0 := bigToDecimal(points[index-1].Capacity), bigToDecimal(points[index-1].Fee)
	if x1.Equal(x0) {
		return y1
	}
	return y0.Add(y1.Sub(y0).Mul(x.Sub(x0)).Div(x1.Sub(x0)))
}

func (ImbalanceFee) ChannelFee(config *FeeConfig, channel *NettingChannelState) FeeFunc {
	own, total := channelCapacities(channel)
	points := CalculateImbalancePenalty(total.BigInt(), config.ImbalancePenalty)
	if points == nil {
		return func(decimal.Decimal) decimal.Decimal { return decimalZero }
	}
	before := Interpolate(points, own)
	return func(amount decimal.Decimal) decimal.Decimal {
		return Interpolate(points, own.Add(amount)).Sub(before)
	}
}

func (m ImbalanceFee) Fee(config *FeeConfig, channelIn *NettingChannelState,
	channelOut *NettingChannelState) func(*big.Int) (*big.Int, error) {
	return solverFee(m.ChannelFee(config, channelIn), m.ChannelFee(config, channelOut), channelOut, false)
}

func (ImbalanceFee) Schedule(config *FeeConfig, channel *NettingChannelState, schedule *FeeScheduleState) {
	_, total := channelCapacities(channel)
	schedule.ImbalancePenalty = CalculateImbalancePenalty(total.BigInt(), config.ImbalancePenalty)
}

// MediationFeeFunction is f(amountOut) = feeIn(amountIn) + feeOut(-amountOut) - amountIn + amountOut.
func MediationFeeFunction(feeIn FeeFunc, feeOut FeeFunc, amountIn decimal.Decimal) func(decimal.Decimal) decimal.Decimal {
	in := feeIn(amountIn)
	return func(amountOut decimal.Decimal) decimal.Decimal {
		return in.Add(feeOut(amountOut.Neg())).Sub(amountIn).Add(amountOut)
	}
}

// FindAmountOut bisects f over [0, outCapacity] for its root. The upper bound
// is returned so that flooring it never drops below an integral root.
func FindAmountOut(feeIn FeeFunc, feeOut FeeFunc, amountIn *big.Int, outCapacity *big.Int) (decimal.Decimal, error) {
	f := MediationFeeFunction(feeIn, feeOut, bigToDecimal(amountIn))
	lo, hi := decimalZero, bigToDecimal(outCapacity)
	if hi.IsNegative() {
		hi = decimalZero
	}

	if f(lo).IsPositive() {
		return decimalZero, errors.ErrInsufficientFee.Newf("amount %s does not cover the fees", amountIn)
	}
	if f(hi).IsNegative() {
		return decimalZero, errors.ErrInsufficientCapacity.Newf("capacity %s too small to mediate %s", outCapacity, amountIn)
	}

	for i := 0; i < maxBisectIterations && hi.Sub(lo).GreaterThan(bisectTolerance); i++ {
		mid := lo.Add(hi).Div(decimalTwo)
		if f(mid).IsPositive() {
			hi = mid
		} else {
			lo = mid
		}
	}
	return hi, nil
}

func solverFee(feeIn FeeFunc, feeOut FeeFunc, channelOut *NettingChannelState,
	capFees bool) func(*big.Int) (*big.Int, error) {
	outCapacity := ComputeBalances(channelOut).Own.Capacity
	return func(amountIn *big.Int) (*big.Int, error) {
		root, err := FindAmountOut(feeIn, feeOut, amountIn, outCapacity)
		if err != nil {
			return nil, err
		}
		fee := new(big.Int).Sub(amountIn, root.Floor().BigInt())
		if capFees && fee.Sign() < 0 {
			fee.SetInt64(0)
		}
		return fee, nil
	}
}

// MediationFeeModel sums every configured model, resolving per-token config
// with the zero address as wildcard.
type MediationFeeModel struct {
	config common.MediationFeeConfig
	models []FeeModel
}

func NewMediationFeeModel(config common.MediationFeeConfig) *MediationFeeModel {
	return &MediationFeeModel{
		config: config,
		models: []FeeModel{FlatFee{}, ProportionalFee{}, ImbalanceFee{}},
	}
}

func (self *MediationFeeModel) Config() common.MediationFeeConfig {
	return self.config
}

func (self *MediationFeeModel) TokenConfig(token common.TokenAddress) *FeeConfig {
	config := &FeeConfig{Flat: new(big.Int), Cap: self.config.CapMediationFees}
	if flat, ok := self.config.TokenToFlatFee[token]; ok {
		config.Flat = common.BigCopy(flat)
	} else if flat, ok := self.config.TokenToFlatFee[common.EmptyAddress]; ok {
		config.Flat = common.BigCopy(flat)
	}
	if proportional, ok := self.config.TokenToProportionalFee[token]; ok {
		config.Proportional = proportional
	} else {
		config.Proportional = self.config.TokenToProportionalFee[common.EmptyAddress]
	}
	if imbalance, ok := self.config.TokenToProportionalImbalanceFee[token]; ok {
		config.ImbalancePenalty = imbalance
	} else {
		config.ImbalancePenalty = self.config.TokenToProportionalImbalanceFee[common.EmptyAddress]
	}
	return config
}

func (self *MediationFeeModel) ChannelFee(channel *NettingChannelState) FeeFunc {
	config := self.TokenConfig(channel.TokenAddress)
	var funcs []FeeFunc
	for _, model := range self.models {
		funcs = append(funcs, model.ChannelFee(config, channel))
	}
	return func(amount decimal.Decimal) decimal.Decimal {
		sum := decimalZero
		for _, f := range funcs {
			sum = sum.Add(f(amount))
		}
		return sum
	}
}

// Fee returns the fee kept when forwarding amountIn from channelIn to channelOut.
func (self *MediationFeeModel) Fee(channelIn *NettingChannelState, channelOut *NettingChannelState) func(*big.Int) (*big.Int, error) {
	config := self.TokenConfig(channelOut.TokenAddress)
	return solverFee(self.ChannelFee(channelIn), self.ChannelFee(channelOut), channelOut, config.Cap)
}

// AmountOut is amountIn minus the mediation fee.
func (self *MediationFeeModel) AmountOut(channelIn *NettingChannelState, channelOut *NettingChannelState,
	amountIn *big.Int) (*big.Int, error) {
	fee, err := self.Fee(channelIn, channelOut)(amountIn)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Sub(amountIn, fee), nil
}

func (self *MediationFeeModel) FeeSchedule(channel *NettingChannelState) *FeeScheduleState {
	config := self.TokenConfig(channel.TokenAddress)
	schedule := &FeeScheduleState{CapFees: config.Cap, Flat: new(big.Int)}
	for _, model := range self.models {
		model.Schedule(config, channel, schedule)
	}
	return schedule
}
