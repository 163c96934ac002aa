package transfer

import (
	"math/big"

	"github.com/saveio/paychan/common"
)

type Event interface{}

// ContractSendChannelUpdateTransfer asks the engine to submit the partner's
// latest balance proof after the partner closed.
type ContractSendChannelUpdateTransfer struct {
	Key          common.ChannelKey
	ChannelId    common.ChannelID
	BalanceProof *BalanceProofSignedState
	Expiration   common.BlockHeight
}

// ContractSendChannelUnlock asks the engine to claim registered partner locks
// after settlement.
type ContractSendChannelUnlock struct {
	Key       common.ChannelKey
	ChannelId common.ChannelID
	Locks     []*HashTimeLockState
}

// SendBalanceProof is an unsigned balance proof produced for our side. Lock
// is set for a locked transfer, SecretHash for an unlock.
type SendBalanceProof struct {
	Key          common.ChannelKey
	BalanceProof *BalanceProofSignedState
	Lock         *HashTimeLockState
	SecretHash   *common.SecretHash
}

type SendWithdrawRequest struct {
	Key       common.ChannelKey
	ChannelId common.ChannelID
	Withdraw  *PendingWithdrawState
}

type SendWithdrawExpired struct {
	Key       common.ChannelKey
	ChannelId common.ChannelID
	Withdraw  *PendingWithdrawState
}

type EventTokenNetworkCreated struct {
	TokenNetwork common.TokenNetworkID
	TokenAddress common.TokenAddress
}

// Lifecycle notifications carry the channel snapshot after the transition.

type EventChannelOpened struct {
	Channel *NettingChannelState
}

type EventChannelDeposit struct {
	Channel      *NettingChannelState
	Participant  common.Address
	TotalDeposit *big.Int
}

type EventChannelWithdraw struct {
	Channel       *NettingChannelState
	Participant   common.Address
	TotalWithdraw *big.Int
}

type EventChannelClosing struct {
	Channel *NettingChannelState
}

type EventChannelClosed struct {
	Channel *NettingChannelState
}

type EventChannelSettleable struct {
	Channel *NettingChannelState
}

type EventChannelSettling struct {
	Channel *NettingChannelState
}

type EventChannelSettled struct {
	Channel *NettingChannelState
}

// EventChannelCapacityChanged is emitted whenever either capacity may have moved.
type EventChannelCapacityChanged struct {
	Channel *NettingChannelState
}

type EventBalanceProofSent struct {
	Channel      *NettingChannelState
	BalanceProof *BalanceProofSignedState
}

type EventBalanceProofReceived struct {
	Channel      *NettingChannelState
	BalanceProof *BalanceProofSignedState
}

// EventInvalidStateChange reports a rejected local action or received message.
type EventInvalidStateChange struct {
	Key    common.ChannelKey
	Reason error
}
