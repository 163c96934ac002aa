package common

import (
	"math/big"
	"time"

	"github.com/saveio/paychan/common/constants"
	"github.com/saveio/paychan/errors"
	"github.com/saveio/themis/common/log"
	"github.com/shopspring/decimal"
)

// PfsMode selects how path-finding services are picked.
type PfsMode int

const (
	PfsDisabled PfsMode = iota
	PfsAuto
)

// FeeMargin is added to PFS-estimated fees. With a zero AmountMargin the
// fee is multiplied by 1+FeeMargin, otherwise AmountMargin*amount is added too.
type FeeMargin struct {
	FeeMargin    decimal.Decimal
	AmountMargin decimal.Decimal
}

type PathFindingConfig struct {
	Mode          PfsMode
	Urls          []string
	MaxPrice      *big.Int
	MaxPaths      int
	SafetyMargin  FeeMargin
	Parallelism   int
	IouTimeout    BlockHeight
	OneToNAddress Address
	Room          string
}

type MonitoringConfig struct {
	Enabled bool
	Reward  *big.Int
	// RateToSvt maps a token to the value of one token unit in service
	// tokens, scaled by 1e18. Tokens without an entry are always monitored.
	RateToSvt                map[TokenAddress]*big.Int
	Debounce                 time.Duration
	UserDepositAddress       Address
	MonitoringServiceAddress Address
	Room                     string
}

// MediationFeeConfig is keyed by token, EmptyAddress is the wildcard entry.
type MediationFeeConfig struct {
	TokenToFlatFee                  map[TokenAddress]*big.Int
	TokenToProportionalFee          map[TokenAddress]ProportionalFeeAmount
	TokenToProportionalImbalanceFee map[TokenAddress]ProportionalFeeAmount
	CapMediationFees                bool
}

type EngineConfig struct {
	ChainId ChainID
	// TokenNetworkRegistry is the registry path-finding services must index.
	TokenNetworkRegistry Address
	MaxMsgQueue          int
	PollingInterval      time.Duration
	HttpTimeout          time.Duration
	HttpRetries          uint64
	TxRetries            uint64
	ConfirmationBlocks   BlockHeight
	RevealTimeout        BlockHeight
	SettleTimeout        BlockHeight
	MinimumAllowance     *big.Int
	AutoSettle           bool
	MediationFeeConfig   MediationFeeConfig
	PathFinding          PathFindingConfig
	Monitoring           MonitoringConfig
}

func DefaultConfig() *EngineConfig {
	return &EngineConfig{
		MaxMsgQueue:        constants.DefaultMaxMsgQueue,
		PollingInterval:    constants.DefaultPollingInterval * time.Millisecond,
		HttpTimeout:        constants.DefaultHttpTimeout * time.Millisecond,
		HttpRetries:        constants.DefaultHttpRetries,
		TxRetries:          constants.DefaultTxRetries,
		ConfirmationBlocks: constants.DefaultNumberOfConfirmationsBlock,
		RevealTimeout:      constants.DefaultRevealTimeout,
		SettleTimeout:      constants.DefaultSettleTimeout,
		MinimumAllowance:   new(big.Int).Set(MaxUint256),
		AutoSettle:         constants.DefaultAutoSettle,
		MediationFeeConfig: MediationFeeConfig{
			TokenToFlatFee:                  map[TokenAddress]*big.Int{},
			TokenToProportionalFee:          map[TokenAddress]ProportionalFeeAmount{},
			TokenToProportionalImbalanceFee: map[TokenAddress]ProportionalFeeAmount{},
			CapMediationFees:                true,
		},
		PathFinding: PathFindingConfig{
			Mode:         PfsDisabled,
			MaxPrice:     new(big.Int).Set(MaxUint256),
			MaxPaths:     constants.DefaultPfsMaxPaths,
			SafetyMargin: FeeMargin{FeeMargin: decimal.RequireFromString(constants.DefaultPfsSafetyMargin)},
			Parallelism:  constants.DefaultPfsParallelism,
			IouTimeout:   constants.DefaultPfsIouTimeout,
			Room:         constants.DefaultPfsRoom,
		},
		Monitoring: MonitoringConfig{
			Enabled:   false,
			Reward:    new(big.Int),
			RateToSvt: map[TokenAddress]*big.Int{},
			Debounce:  constants.DefaultMonitoringDebounce * time.Millisecond,
			Room:      constants.DefaultMonitoringRoom,
		},
	}
}

var (
	errInvalidTimeouts = errors.ErrInvalidInput.New("settle timeout should be at least double of reveal timeout")
	errNoPfsUrls       = errors.ErrInvalidInput.New("path finding enabled without service urls")
)

var Config *EngineConfig

func init() {
	Config = DefaultConfig()
}

func SetPollingInterval(interval time.Duration) {
	if Config == nil {
		log.Error("[SetPollingInterval] Config is nil")
		panic("[SetPollingInterval] Config is nil")
	}
	Config.PollingInterval = interval
}

func SetConfirmationBlocks(blocks BlockHeight) {
	if Config == nil {
		log.Error("[SetConfirmationBlocks] Config is nil")
		panic("[SetConfirmationBlocks] Config is nil")
	}
	Config.ConfirmationBlocks = blocks
}

// Validate checks the timeout relationship the protocol relies on.
func (self *EngineConfig) Validate() error {
	if self.SettleTimeout < 2*self.RevealTimeout {
		log.Errorf("settle timeout(%d) should be at least double of revealTimeout(%d)",
			self.SettleTimeout, self.RevealTimeout)
		return errInvalidTimeouts
	}
	if self.PathFinding.Mode == PfsAuto && len(self.PathFinding.Urls) == 0 {
		return errNoPfsUrls
	}
	return nil
}
