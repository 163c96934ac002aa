package transfer

import (
	"math/big"

	"github.com/saveio/paychan/common"
)

const (
	ChannelStateOpened     = "open"
	ChannelStateClosing    = "closing"
	ChannelStateClosed     = "closed"
	ChannelStateSettleable = "settleable"
	ChannelStateSettling   = "settling"
	ChannelStateSettled    = "settled"
)

// ChannelStatus is the tagged lifecycle state of a channel. Close data is
// only reachable through the closed-family variants.
type ChannelStatus interface {
	Name() string
	isChannelStatus()
}

// CloseInfo is carried by every status reached through a confirmed close.
type CloseInfo struct {
	CloseBlock       common.BlockHeight
	CloseParticipant common.Address
}

type StatusOpen struct{}

type StatusClosing struct{}

type StatusClosed struct {
	CloseInfo
}

type StatusSettleable struct {
	CloseInfo
}

type StatusSettling struct {
	CloseInfo
}

// StatusSettled has a zero CloseInfo when settled cooperatively.
type StatusSettled struct {
	CloseInfo
	SettleBlock common.BlockHeight
}

func (StatusOpen) Name() string       { return ChannelStateOpened }
func (StatusClosing) Name() string    { return ChannelStateClosing }
func (StatusClosed) Name() string     { return ChannelStateClosed }
func (StatusSettleable) Name() string { return ChannelStateSettleable }
func (StatusSettling) Name() string   { return ChannelStateSettling }
func (StatusSettled) Name() string    { return ChannelStateSettled }

func (StatusOpen) isChannelStatus()       {}
func (StatusClosing) isChannelStatus()    {}
func (StatusClosed) isChannelStatus()     {}
func (StatusSettleable) isChannelStatus() {}
func (StatusSettling) isChannelStatus()   {}
func (StatusSettled) isChannelStatus()    {}

type BalanceProofSignedState struct {
	Nonce             common.Nonce
	TransferredAmount *big.Int
	LockedAmount      *big.Int
	LocksRoot         common.Locksroot
	AdditionalHash    common.AdditionalHash
	ChainId           common.ChainID
	TokenNetwork      common.TokenNetworkID
	ChannelIdentifier common.ChannelID
	Signature         common.Signature
	Sender            common.Address
}

func (self *BalanceProofSignedState) BalanceHash() common.BalanceHash {
	return HashBalanceData(self.TransferredAmount, self.LockedAmount, self.LocksRoot)
}

func (self *BalanceProofSignedState) Copy() *BalanceProofSignedState {
	if self == nil {
		return nil
	}
	bp := *self
	bp.TransferredAmount = common.BigCopy(self.TransferredAmount)
	bp.LockedAmount = common.BigCopy(self.LockedAmount)
	bp.Signature = append(common.Signature(nil), self.Signature...)
	return &bp
}

type HashTimeLockState struct {
	Amount     *big.Int
	Expiration common.BlockHeight
	SecretHash common.SecretHash
	// Registered is set once the secret is registered on chain before expiration.
	Registered bool
}

func (self *HashTimeLockState) Copy() *HashTimeLockState {
	lock := *self
	lock.Amount = common.BigCopy(self.Amount)
	return &lock
}

type WithdrawKind int

const (
	WithdrawRequest WithdrawKind = iota
	WithdrawConfirmation
	WithdrawExpired
)

type PendingWithdrawState struct {
	Kind          WithdrawKind
	TotalWithdraw *big.Int
	Expiration    common.BlockHeight
	Nonce         common.Nonce
	Participant   common.Address
	Signature     common.Signature
}

func (self *PendingWithdrawState) Copy() *PendingWithdrawState {
	w := *self
	w.TotalWithdraw = common.BigCopy(self.TotalWithdraw)
	w.Signature = append(common.Signature(nil), self.Signature...)
	return &w
}

type NettingChannelEndState struct {
	Address          common.Address
	Deposit          *big.Int
	Withdraw         *big.Int
	Locks            []*HashTimeLockState
	BalanceProof     *BalanceProofSignedState
	PendingWithdraws []*PendingWithdrawState
	NextNonce        common.Nonce
}

func NewNettingChannelEndState(address common.Address) *NettingChannelEndState {
	return &NettingChannelEndState{
		Address:   address,
		Deposit:   new(big.Int),
		Withdraw:  new(big.Int),
		NextNonce: 1,
	}
}

func (self *NettingChannelEndState) Copy() *NettingChannelEndState {
	end := &NettingChannelEndState{
		Address:      self.Address,
		Deposit:      common.BigCopy(self.Deposit),
		Withdraw:     common.BigCopy(self.Withdraw),
		BalanceProof: self.BalanceProof.Copy(),
		NextNonce:    self.NextNonce,
	}
	for _, lock := range self.Locks {
		end.Locks = append(end.Locks, lock.Copy())
	}
	for _, w := range self.PendingWithdraws {
		end.PendingWithdraws = append(end.PendingWithdraws, w.Copy())
	}
	return end
}

func (self *NettingChannelEndState) TransferredAmount() *big.Int {
	if self.BalanceProof == nil {
		return new(big.Int)
	}
	return common.BigCopy(self.BalanceProof.TransferredAmount)
}

func (self *NettingChannelEndState) LockedAmount() *big.Int {
	if self.BalanceProof == nil {
		return new(big.Int)
	}
	return common.BigCopy(self.BalanceProof.LockedAmount)
}

func (self *NettingChannelEndState) Nonce() common.Nonce {
	if self.BalanceProof == nil {
		return 0
	}
	return self.BalanceProof.Nonce
}

type NettingChannelState struct {
	Identifier         common.ChannelID
	TokenAddress       common.TokenAddress
	TokenNetwork       common.TokenNetworkID
	ChainId            common.ChainID
	SettleTimeout      common.BlockHeight
	RevealTimeout      common.BlockHeight
	IsFirstParticipant bool
	OpenBlock          common.BlockHeight
	OurState           *NettingChannelEndState
	PartnerState       *NettingChannelEndState
	Status             ChannelStatus
}

func (self *NettingChannelState) Key() common.ChannelKey {
	return common.ChannelKey{TokenNetwork: self.TokenNetwork, Partner: self.PartnerState.Address}
}

func (self *NettingChannelState) HistoryKey() common.HistoryKey {
	return common.HistoryKey{ChannelKey: self.Key(), ChannelId: self.Identifier}
}

func (self *NettingChannelState) Copy() *NettingChannelState {
	if self == nil {
		return nil
	}
	ch := *self
	ch.OurState = self.OurState.Copy()
	ch.PartnerState = self.PartnerState.Copy()
	return &ch
}

// ChainState is replaced, never mutated, once handed out as a snapshot.
type ChainState struct {
	BlockHeight        common.BlockHeight
	ChainId            common.ChainID
	Our                common.Address
	ConfirmationBlocks common.BlockHeight
	RevealTimeout      common.BlockHeight
	TokenNetworks      map[common.TokenNetworkID]common.TokenAddress
	Channels           map[common.ChannelKey]*NettingChannelState
	OldChannels        map[common.HistoryKey]*NettingChannelState
	PendingChanges     []ContractReceiveStateChange
}

func NewChainState(our common.Address, chainId common.ChainID, blockHeight common.BlockHeight,
	confirmationBlocks common.BlockHeight, revealTimeout common.BlockHeight) *ChainState {
	return &ChainState{
		BlockHeight:        blockHeight,
		ChainId:            chainId,
		Our:                our,
		ConfirmationBlocks: confirmationBlocks,
		RevealTimeout:      revealTimeout,
		TokenNetworks:      make(map[common.TokenNetworkID]common.TokenAddress),
		Channels:           make(map[common.ChannelKey]*NettingChannelState),
		OldChannels:        make(map[common.HistoryKey]*NettingChannelState),
	}
}

// Copy duplicates the maps. Channel values are shared and must be copied
// before being modified.
func (self *ChainState) Copy() *ChainState {
	cs := *self
	cs.TokenNetworks = make(map[common.TokenNetworkID]common.TokenAddress, len(self.TokenNetworks))
	for k, v := range self.TokenNetworks {
		cs.TokenNetworks[k] = v
	}
	cs.Channels = make(map[common.ChannelKey]*NettingChannelState, len(self.Channels))
	for k, v := range self.Channels {
		cs.Channels[k] = v
	}
	cs.OldChannels = make(map[common.HistoryKey]*NettingChannelState, len(self.OldChannels))
	for k, v := range self.OldChannels {
		cs.OldChannels[k] = v
	}
	cs.PendingChanges = append([]ContractReceiveStateChange(nil), self.PendingChanges...)
	return &cs
}
