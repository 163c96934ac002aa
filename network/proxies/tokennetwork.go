package proxies

import (
	"bytes"
	"context"
	"math/big"
	"sync"

	"github.com/saveio/paychan/common"
	"github.com/saveio/paychan/errors"
	"github.com/saveio/paychan/transfer"
	"github.com/saveio/themis/common/log"
)

// On-chain channel states.
const (
	ChannelStateNonExistent = iota
	ChannelStateOpened
	ChannelStateClosed
	ChannelStateSettled
	ChannelStateRemoved
)

type ChannelData struct {
	ChannelIdentifier common.ChannelID
	SettleBlockHeight common.BlockHeight
	State             int
}

// ParticipantDetails is the authoritative on-chain record of one participant.
type ParticipantDetails struct {
	Address      common.Address
	Deposit      *big.Int
	Withdrawn    *big.Int
	IsCloser     bool
	BalanceHash  common.BalanceHash
	Nonce        common.Nonce
	Locksroot    common.Locksroot
	LockedAmount *big.Int
}

type ParticipantsDetails struct {
	OurDetails     *ParticipantDetails
	PartnerDetails *ParticipantDetails
}

// SettleParticipant is one side of a settleChannel call.
type SettleParticipant struct {
	Address           common.Address
	TransferredAmount *big.Int
	LockedAmount      *big.Int
	Locksroot         common.Locksroot
}

func (self *SettleParticipant) maximum() *big.Int {
	return common.BigSum(self.TransferredAmount, self.LockedAmount)
}

// WithdrawPair is the consent of one participant to a cooperative settle.
type WithdrawPair struct {
	Participant          common.Address
	TotalWithdraw        *big.Int
	Expiration           common.BlockHeight
	ParticipantSignature common.Signature
	PartnerSignature     common.Signature
}

// OrderSettleParticipants puts the participant with the smaller
// transferred+locked sum first. Equal sums are ordered by address so both
// participants build the same call.
func OrderSettleParticipants(a *SettleParticipant, b *SettleParticipant) (*SettleParticipant, *SettleParticipant) {
	switch a.maximum().Cmp(b.maximum()) {
	case -1:
		return a, b
	case 1:
		return b, a
	}
	if bytes.Compare(a.Address[:], b.Address[:]) <= 0 {
		return a, b
	}
	return b, a
}

type TokenNetwork struct {
	contract
	token                 *Token
	opLock                sync.Mutex
	channelOperationsLock map[common.Address]*sync.Mutex
}

func NewTokenNetwork(address common.TokenNetworkID, token *Token, config *ProxyConfig) *TokenNetwork {
	return &TokenNetwork{
		contract:              contract{address: address, config: config},
		token:                 token,
		channelOperationsLock: make(map[common.Address]*sync.Mutex),
	}
}

func (self *TokenNetwork) Address() common.TokenNetworkID {
	return self.address
}

func (self *TokenNetwork) Token() *Token {
	return self.token
}

// getOperationLock serializes transactions touching the channel with partner.
func (self *TokenNetwork) getOperationLock(partner common.Address) *sync.Mutex {
	self.opLock.Lock()
	defer self.opLock.Unlock()

	lock, exist := self.channelOperationsLock[partner]
	if !exist {
		lock = new(sync.Mutex)
		self.channelOperationsLock[partner] = lock
	}
	return lock
}

func (self *TokenNetwork) DetailChannel(ctx context.Context, partner common.Address) (*ChannelData, error) {
	result, err := self.call(ctx, "getChannelInfo", self.config.NodeAddress, partner)
	if err != nil {
		return nil, err
	}
	data := new(ChannelData)
	for name, decode := range map[string]func(interface{}) error{
		"channel_identifier": func(v interface{}) error {
			id, err := common.DecodeUInt64(v)
			data.ChannelIdentifier = common.ChannelID(id)
			return err
		},
		"settle_block_height": func(v interface{}) error {
			height, err := common.DecodeUInt64(v)
			data.SettleBlockHeight = common.BlockHeight(height)
			return err
		},
		"state": func(v interface{}) error {
			state, err := common.DecodeUInt64(v)
			if err == nil && state > ChannelStateRemoved {
				return errors.ErrOutOfRange.Newf("unknown channel state %d", state)
			}
			data.State = int(state)
			return err
		},
	} {
		value, err := field(result, "getChannelInfo", name)
		if err != nil {
			return nil, err
		}
		if err = decode(value); err != nil {
			return nil, err
		}
	}
	return data, nil
}

func (self *TokenNetwork) detailParticipant(ctx context.Context, channelId common.ChannelID,
	participant common.Address, partner common.Address) (*ParticipantDetails, error) {
	const method = "getChannelParticipantInfo"
	result, err := self.call(ctx, method, channelId, participant, partner)
	if err != nil {
		return nil, err
	}

	details := &ParticipantDetails{Address: participant}
	if details.Deposit, err = uint256Field(result, method, "deposit"); err != nil {
		return nil, err
	}
	if details.Withdrawn, err = uint256Field(result, method, "withdrawn"); err != nil {
		return nil, err
	}
	if details.LockedAmount, err = uint256Field(result, method, "locked_amount"); err != nil {
		return nil, err
	}
	value, err := field(result, method, "is_closer")
	if err != nil {
		return nil, err
	}
	if details.IsCloser, err = common.DecodeBool(value); err != nil {
		return nil, err
	}
	if value, err = field(result, method, "nonce"); err != nil {
		return nil, err
	}
	nonce, err := common.DecodeUInt64(value)
	if err != nil {
		return nil, err
	}
	details.Nonce = common.Nonce(nonce)
	if value, err = field(result, method, "balance_hash"); err != nil {
		return nil, err
	}
	if details.BalanceHash, err = common.DecodeHash(value); err != nil {
		return nil, err
	}
	if value, err = field(result, method, "locksroot"); err != nil {
		return nil, err
	}
	if details.Locksroot, err = common.DecodeHash(value); err != nil {
		return nil, err
	}
	return details, nil
}

// DetailParticipants returns the on-chain records of both participants.
func (self *TokenNetwork) DetailParticipants(ctx context.Context, channelId common.ChannelID,
	partner common.Address) (*ParticipantsDetails, error) {
	our, err := self.detailParticipant(ctx, channelId, self.config.NodeAddress, partner)
	if err != nil {
		return nil, err
	}
	theirs, err := self.detailParticipant(ctx, channelId, partner, self.config.NodeAddress)
	if err != nil {
		return nil, err
	}
	return &ParticipantsDetails{OurDetails: our, PartnerDetails: theirs}, nil
}

// checkForOutdatedChannel fails with ErrStateConflict when the channel with
// partner is not the expected one anymore.
func (self *TokenNetwork) checkForOutdatedChannel(ctx context.Context, partner common.Address,
	channelId common.ChannelID) (*ChannelData, error) {
	data, err := self.DetailChannel(ctx, partner)
	if err != nil {
		return nil, err
	}
	if data.ChannelIdentifier != channelId {
		return nil, errors.ErrStateConflict.Newf("channel %d replaced by %d", channelId, data.ChannelIdentifier)
	}
	return data, nil
}

// checkChannelState turns a failed transaction into ErrStateConflict when the
// on-chain state shows the operation is not needed anymore.
func (self *TokenNetwork) checkChannelState(ctx context.Context, txErr error, partner common.Address,
	channelId common.ChannelID, accept ...int) error {
	data, err := self.checkForOutdatedChannel(ctx, partner, channelId)
	if err != nil {
		if errors.IsStateConflict(err) {
			return err
		}
		return txErr
	}
	for _, state := range accept {
		if data.State == state {
			return txErr
		}
	}
	return errors.ErrStateConflict.Newf("channel %d is in on-chain state %d", channelId, data.State)
}

// SetTotalDeposit raises our total deposit in the channel with partner.
func (self *TokenNetwork) SetTotalDeposit(ctx context.Context, channelId common.ChannelID,
	totalDeposit *big.Int, partner common.Address) error {
	if err := common.CheckUInt256(totalDeposit); err != nil {
		return err
	}
	if _, err := self.checkForOutdatedChannel(ctx, partner, channelId); err != nil {
		return err
	}

	opLock := self.getOperationLock(partner)
	opLock.Lock()
	defer opLock.Unlock()

	details, err := self.detailParticipant(ctx, channelId, self.config.NodeAddress, partner)
	if err != nil {
		return err
	}
	amountToDeposit := new(big.Int).Sub(totalDeposit, details.Deposit)
	if amountToDeposit.Sign() <= 0 {
		return errors.ErrStateConflict.Newf("current deposit %s already covers %s", details.Deposit, totalDeposit)
	}

	balance, err := self.token.BalanceOf(ctx, self.config.NodeAddress)
	if err != nil {
		return err
	}
	if balance.Cmp(amountToDeposit) < 0 {
		return errors.ErrInsufficientBalance.Newf("deposit %s with balance %s", amountToDeposit, balance)
	}

	if _, err = self.transact(ctx, "setTotalDeposit", channelId, self.config.NodeAddress, totalDeposit, partner); err != nil {
		return self.checkChannelState(ctx, err, partner, channelId, ChannelStateOpened)
	}
	log.Infof("[SetTotalDeposit] channel %d total deposit %s", channelId, totalDeposit)
	return nil
}

// Close closes the channel with the partner's latest balance proof, nil when
// the partner never sent one.
func (self *TokenNetwork) Close(ctx context.Context, channelId common.ChannelID, partner common.Address,
	balanceProof *transfer.BalanceProofSignedState) error {
	if _, err := self.checkForOutdatedChannel(ctx, partner, channelId); err != nil {
		return err
	}

	opLock := self.getOperationLock(partner)
	opLock.Lock()
	defer opLock.Unlock()

	var balanceHash common.BalanceHash
	var nonce common.Nonce
	var additionalHash common.AdditionalHash
	var signature common.Signature
	if balanceProof != nil {
		balanceHash = balanceProof.BalanceHash()
		nonce = balanceProof.Nonce
		additionalHash = balanceProof.AdditionalHash
		signature = balanceProof.Signature
	}

	if _, err := self.transact(ctx, "closeChannel", channelId, partner, balanceHash, nonce,
		additionalHash, signature); err != nil {
		return self.checkChannelState(ctx, err, partner, channelId, ChannelStateOpened)
	}
	log.Infof("[Close] channel %d with %s closed", channelId, partner.Hex())
	return nil
}

// UpdateNonClosingBalanceProof submits the closing partner's proof with our
// countersignature.
func (self *TokenNetwork) UpdateNonClosingBalanceProof(ctx context.Context, channelId common.ChannelID,
	partner common.Address, balanceProof *transfer.BalanceProofSignedState, nonClosingSignature common.Signature) error {
	if balanceProof == nil {
		return errors.ErrInvalidInput.New("update transfer without balance proof")
	}
	if _, err := self.checkForOutdatedChannel(ctx, partner, channelId); err != nil {
		return err
	}

	if _, err := self.transact(ctx, "updateNonClosingBalanceProof", channelId, partner, self.config.NodeAddress,
		balanceProof.BalanceHash(), balanceProof.Nonce, balanceProof.AdditionalHash,
		balanceProof.Signature, nonClosingSignature); err != nil {
		return self.checkChannelState(ctx, err, partner, channelId, ChannelStateClosed)
	}
	log.Infof("[UpdateNonClosingBalanceProof] channel %d nonce %d", channelId, balanceProof.Nonce)
	return nil
}

// Settle submits settleChannel with the participants ordered by
// OrderSettleParticipants.
func (self *TokenNetwork) Settle(ctx context.Context, channelId common.ChannelID,
	our *SettleParticipant, partner *SettleParticipant) error {
	if _, err := self.checkForOutdatedChannel(ctx, partner.Address, channelId); err != nil {
		return err
	}

	opLock := self.getOperationLock(partner.Address)
	opLock.Lock()
	defer opLock.Unlock()

	first, second := OrderSettleParticipants(our, partner)
	if _, err := self.transact(ctx, "settleChannel", channelId,
		first.Address, first.TransferredAmount, first.LockedAmount, first.Locksroot,
		second.Address, second.TransferredAmount, second.LockedAmount, second.Locksroot); err != nil {
		return self.checkChannelState(ctx, err, partner.Address, channelId, ChannelStateClosed)
	}
	log.Infof("[Settle] channel %d with %s settled", channelId, partner.Address.Hex())
	return nil
}

// CooperativeSettle settles an open channel with the consent of both
// participants, first and second in the channel's participant order.
func (self *TokenNetwork) CooperativeSettle(ctx context.Context, channelId common.ChannelID,
	partner common.Address, first *WithdrawPair, second *WithdrawPair) error {
	if _, err := self.checkForOutdatedChannel(ctx, partner, channelId); err != nil {
		return err
	}

	opLock := self.getOperationLock(partner)
	opLock.Lock()
	defer opLock.Unlock()

	if _, err := self.transact(ctx, "cooperativeSettle", channelId,
		first.Participant, first.TotalWithdraw, first.Expiration, first.ParticipantSignature, first.PartnerSignature,
		second.Participant, second.TotalWithdraw, second.Expiration, second.ParticipantSignature,
		second.PartnerSignature); err != nil {
		return self.checkChannelState(ctx, err, partner, channelId, ChannelStateOpened)
	}
	log.Infof("[CooperativeSettle] channel %d with %s settled", channelId, partner.Hex())
	return nil
}

// Unlock claims the locks of sender whose secrets were registered on chain.
// The channel is settled at this point so it is not checked for staleness.
func (self *TokenNetwork) Unlock(ctx context.Context, channelId common.ChannelID, receiver common.Address,
	sender common.Address, locks []*transfer.HashTimeLockState) error {
	if len(locks) == 0 {
		return nil
	}
	if _, err := self.transact(ctx, "unlock", channelId, receiver, sender, transfer.EncodeLocks(locks)); err != nil {
		return err
	}
	log.Infof("[Unlock] channel %d unlocked %d locks of %s", channelId, len(locks), sender.Hex())
	return nil
}
