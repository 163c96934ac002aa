package transfer

import (
	"math/big"

	"github.com/saveio/paychan/common"
)

type StateChange interface{}

// ContractReceiveStateChange is a chain event. It only affects state once
// it has enough confirmations.
type ContractReceiveStateChange interface {
	StateChange
	TxBlockHeight() common.BlockHeight
	IsConfirmed() bool
}

// ContractReceive is embedded in every chain event.
type ContractReceive struct {
	TransactionHash common.TxHash
	BlockHeight     common.BlockHeight
	Confirmed       bool
}

func (self *ContractReceive) TxBlockHeight() common.BlockHeight { return self.BlockHeight }

func (self *ContractReceive) IsConfirmed() bool { return self.Confirmed }

type Block struct {
	BlockHeight common.BlockHeight
	BlockHash   common.Hash
}

type ContractReceiveNewTokenNetwork struct {
	ContractReceive
	TokenNetwork common.TokenNetworkID
	TokenAddress common.TokenAddress
}

type ContractReceiveChannelOpened struct {
	ContractReceive
	TokenNetwork  common.TokenNetworkID
	ChannelId     common.ChannelID
	Participant1  common.Address
	Participant2  common.Address
	SettleTimeout common.BlockHeight
}

type ContractReceiveChannelNewDeposit struct {
	ContractReceive
	TokenNetwork common.TokenNetworkID
	ChannelId    common.ChannelID
	Participant  common.Address
	TotalDeposit *big.Int
}

type ContractReceiveChannelWithdraw struct {
	ContractReceive
	TokenNetwork  common.TokenNetworkID
	ChannelId     common.ChannelID
	Participant   common.Address
	TotalWithdraw *big.Int
}

type ContractReceiveChannelClosed struct {
	ContractReceive
	TokenNetwork common.TokenNetworkID
	ChannelId    common.ChannelID
	Closer       common.Address
}

type ContractReceiveUpdateTransfer struct {
	ContractReceive
	TokenNetwork common.TokenNetworkID
	ChannelId    common.ChannelID
	Participant  common.Address
	Nonce        common.Nonce
}

type ContractReceiveChannelSettled struct {
	ContractReceive
	TokenNetwork common.TokenNetworkID
	ChannelId    common.ChannelID
}

type ContractReceiveSecretReveal struct {
	ContractReceive
	SecretHash common.SecretHash
}

// ActionChannelClose marks a local close request as in flight.
type ActionChannelClose struct {
	Key common.ChannelKey
}

type ActionChannelCloseFailed struct {
	Key common.ChannelKey
}

// ActionChannelSettle marks a local settle request as in flight.
type ActionChannelSettle struct {
	Key common.ChannelKey
}

type ActionChannelSettleFailed struct {
	Key common.ChannelKey
}

type ActionTransferDirect struct {
	Key    common.ChannelKey
	Amount *big.Int
}

type ActionSendLockedTransfer struct {
	Key  common.ChannelKey
	Lock *HashTimeLockState
}

type ActionUnlock struct {
	Key        common.ChannelKey
	SecretHash common.SecretHash
}

type ActionWithdrawRequest struct {
	Key           common.ChannelKey
	TotalWithdraw *big.Int
	Expiration    common.BlockHeight
}

// ReceiveBalanceProof carries a partner balance proof whose signature was
// already verified. Lock is set for a locked transfer, SecretHash for an unlock.
type ReceiveBalanceProof struct {
	Key          common.ChannelKey
	BalanceProof *BalanceProofSignedState
	Lock         *HashTimeLockState
	SecretHash   *common.SecretHash
}

// ReceiveWithdraw carries a partner withdraw request or expiry whose
// signature was already verified.
type ReceiveWithdraw struct {
	Key      common.ChannelKey
	Withdraw *PendingWithdrawState
}
