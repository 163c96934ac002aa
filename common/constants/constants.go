package constants

const (
	AddrLen   = 20
	HashLen   = 32
	SecretLen = 32
)

const (
	DefaultSettleTimeout = 500
	DefaultRevealTimeout = 50

	DefaultMaxMsgQueue                = 10000
	DefaultPollingInterval            = 1000  //ms
	DefaultHttpTimeout                = 30000 //ms
	DefaultHttpRetries                = 3
	DefaultTxRetries                  = 3
	DefaultNumberOfConfirmationsBlock = 5
	DefaultAutoSettle                 = true

	DefaultPfsMaxPaths     = 3
	DefaultPfsParallelism  = 5
	DefaultPfsIouTimeout   = 200000
	DefaultPfsSafetyMargin = "0.1"

	RequestTimeout = 60 //s

	DefaultMonitoringDebounce = 5000 //ms
	DefaultMonitoringRoom     = "monitoring"
	DefaultPfsRoom            = "path_finding"
)

// Mediation fee curve parameters.
const (
	ImbalanceDiscretisationPoints = 21
	ImbalanceMaximumSlope         = "0.1"
	ImbalanceMaximumExponent      = 10
	PartsPerMillion               = 1000000
)

// Message type ids used when packing data to sign.
const (
	MessageTypeBalanceProof       = 1
	MessageTypeBalanceProofUpdate = 2
	MessageTypeWithdraw           = 3
	MessageTypeCooperativeSettle  = 4
	MessageTypeIOU                = 5
	MessageTypeMSReward           = 6
)
