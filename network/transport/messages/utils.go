package messages

import (
	"bytes"
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/saveio/paychan/common"
	"github.com/saveio/paychan/common/constants"
	"github.com/saveio/paychan/errors"
	"github.com/saveio/paychan/transfer"
)

const (
	MessageTypePFSFeeUpdate      = 20
	MessageTypePFSCapacityUpdate = 21
)

// SignedMessage is a message carrying a signature over DataToSign.
type SignedMessage interface {
	DataToSign() []byte
	SetSignature(signature common.Signature)
}

// Sign signs msg in place.
func Sign(signer common.Signer, msg SignedMessage) error {
	sig, err := signer.Sign(msg.DataToSign())
	if err != nil {
		return errors.Wrap(err, "sign message")
	}
	msg.SetSignature(sig)
	return nil
}

func uint256Bytes(v *big.Int) []byte {
	return math.PaddedBigBytes(common.BigCopy(v), 32)
}

func uint64Bytes(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func amountBytes(s string) []byte {
	v, err := common.ParseUInt256(s)
	if err != nil {
		v = new(big.Int)
	}
	return uint256Bytes(v)
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func NewCanonicalIdentifier(chainId common.ChainID, tokenNetwork common.TokenNetworkID,
	channelId common.ChannelID) *CanonicalIdentifier {
	return &CanonicalIdentifier{
		ChainId:             uint64(chainId),
		TokenNetworkAddress: common.BytesCopy(tokenNetwork[:]),
		ChannelIdentifier:   uint64(channelId),
	}
}

func (m *CanonicalIdentifier) pack(buf *bytes.Buffer) {
	buf.Write(common.BytesToAddress(m.GetTokenNetworkAddress()).Bytes())
	buf.Write(uint256Bytes(new(big.Int).SetUint64(m.GetChainId())))
	buf.Write(uint256Bytes(new(big.Int).SetUint64(m.GetChannelIdentifier())))
}

func (m *CanonicalIdentifier) GetChainId() uint64 {
	if m == nil {
		return 0
	}
	return m.ChainId
}

func (m *CanonicalIdentifier) GetTokenNetworkAddress() []byte {
	if m == nil {
		return nil
	}
	return m.TokenNetworkAddress
}

func (m *CanonicalIdentifier) GetChannelIdentifier() uint64 {
	if m == nil {
		return 0
	}
	return m.ChannelIdentifier
}

// NewBalanceProof converts a signed balance proof into its wire form.
func NewBalanceProof(bp *transfer.BalanceProofSignedState) *BalanceProof {
	balanceHash := bp.BalanceHash()
	return &BalanceProof{
		CanonicalIdentifier: NewCanonicalIdentifier(bp.ChainId, bp.TokenNetwork, bp.ChannelIdentifier),
		BalanceHash:         common.BytesCopy(balanceHash[:]),
		Nonce:               uint64(bp.Nonce),
		AdditionalHash:      common.BytesCopy(bp.AdditionalHash[:]),
		Signature:           common.BytesCopy(bp.Signature),
	}
}

// DataToSign of a MonitorRequest is the reward proof signed by the
// non-closing participant.
func (m *MonitorRequest) DataToSign() []byte {
	var buf bytes.Buffer
	buf.Write(common.BytesToAddress(m.MonitoringServiceContractAddress).Bytes())
	buf.Write(uint256Bytes(new(big.Int).SetUint64(m.BalanceProof.CanonicalIdentifier.GetChainId())))
	buf.Write(uint256Bytes(big.NewInt(constants.MessageTypeMSReward)))
	buf.Write(common.BytesToAddress(m.NonClosingParticipant).Bytes())
	buf.Write(m.NonClosingSignature)
	buf.Write(amountBytes(m.RewardAmount))
	return buf.Bytes()
}

func (m *MonitorRequest) SetSignature(signature common.Signature) {
	m.Signature = signature
}

// NewMonitorRequest countersigns the partner's balance proof and builds the
// request. The reward proof still has to be signed with Sign.
func NewMonitorRequest(signer common.Signer, bp *transfer.BalanceProofSignedState, reward *big.Int,
	msContract common.Address) (*MonitorRequest, error) {
	nonClosingSignature, err := signer.Sign(transfer.PackBalanceProofUpdate(bp))
	if err != nil {
		return nil, errors.Wrap(err, "sign balance proof update")
	}
	our := signer.Address()
	return &MonitorRequest{
		BalanceProof:                     NewBalanceProof(bp),
		NonClosingParticipant:            common.BytesCopy(our[:]),
		NonClosingSignature:              nonClosingSignature,
		RewardAmount:                     amountString(reward),
		MonitoringServiceContractAddress: common.BytesCopy(msContract[:]),
	}, nil
}

func NewFeeSchedule(schedule *transfer.FeeScheduleState) *FeeSchedule {
	msg := &FeeSchedule{
		CapFees:      schedule.CapFees,
		Flat:         amountString(schedule.Flat),
		Proportional: uint64(schedule.Proportional),
	}
	for _, point := range schedule.ImbalancePenalty {
		msg.ImbalancePenalty = append(msg.ImbalancePenalty, &ImbalancePoint{
			Capacity: amountString(point.Capacity),
			Fee:      amountString(point.Fee),
		})
	}
	return msg
}

func (m *FeeSchedule) pack(buf *bytes.Buffer) {
	if m.CapFees {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	buf.Write(amountBytes(m.Flat))
	buf.Write(uint256Bytes(new(big.Int).SetUint64(m.Proportional)))
	for _, point := range m.ImbalancePenalty {
		buf.Write(amountBytes(point.Capacity))
		buf.Write(amountBytes(point.Fee))
	}
}

func NewPFSFeeUpdate(channel *transfer.NettingChannelState, schedule *transfer.FeeScheduleState,
	timestamp int64) *PFSFeeUpdate {
	our := channel.OurState.Address
	return &PFSFeeUpdate{
		CanonicalIdentifier: NewCanonicalIdentifier(channel.ChainId, channel.TokenNetwork, channel.Identifier),
		UpdatingParticipant: common.BytesCopy(our[:]),
		FeeSchedule:         NewFeeSchedule(schedule),
		Timestamp:           timestamp,
	}
}

func (m *PFSFeeUpdate) DataToSign() []byte {
	var buf bytes.Buffer
	m.CanonicalIdentifier.pack(&buf)
	buf.Write(uint256Bytes(big.NewInt(MessageTypePFSFeeUpdate)))
	buf.Write(common.BytesToAddress(m.UpdatingParticipant).Bytes())
	if m.FeeSchedule != nil {
		m.FeeSchedule.pack(&buf)
	}
	buf.Write(uint64Bytes(uint64(m.Timestamp)))
	return buf.Bytes()
}

func (m *PFSFeeUpdate) SetSignature(signature common.Signature) {
	m.Signature = signature
}

func NewPFSCapacityUpdate(channel *transfer.NettingChannelState) *PFSCapacityUpdate {
	balances := transfer.ComputeBalances(channel)
	our := channel.OurState.Address
	partner := channel.PartnerState.Address
	return &PFSCapacityUpdate{
		CanonicalIdentifier: NewCanonicalIdentifier(channel.ChainId, channel.TokenNetwork, channel.Identifier),
		UpdatingParticipant: common.BytesCopy(our[:]),
		OtherParticipant:    common.BytesCopy(partner[:]),
		UpdatingNonce:       uint64(channel.OurState.Nonce()),
		OtherNonce:          uint64(channel.PartnerState.Nonce()),
		UpdatingCapacity:    amountString(balances.Own.Capacity),
		OtherCapacity:       amountString(balances.Partner.Capacity),
		RevealTimeout:       uint64(channel.RevealTimeout),
	}
}

func (m *PFSCapacityUpdate) DataToSign() []byte {
	var buf bytes.Buffer
	m.CanonicalIdentifier.pack(&buf)
	buf.Write(uint256Bytes(big.NewInt(MessageTypePFSCapacityUpdate)))
	buf.Write(common.BytesToAddress(m.UpdatingParticipant).Bytes())
	buf.Write(common.BytesToAddress(m.OtherParticipant).Bytes())
	buf.Write(uint64Bytes(m.UpdatingNonce))
	buf.Write(uint64Bytes(m.OtherNonce))
	buf.Write(amountBytes(m.UpdatingCapacity))
	buf.Write(amountBytes(m.OtherCapacity))
	buf.Write(uint256Bytes(new(big.Int).SetUint64(m.RevealTimeout)))
	return buf.Bytes()
}

func (m *PFSCapacityUpdate) SetSignature(signature common.Signature) {
	m.Signature = signature
}

func hashBytes(h common.Hash) []byte {
	return common.BytesCopy(h[:])
}

// NewTransfer wraps our balance proof. The proof must already be signed.
func NewTransfer(bp *transfer.BalanceProofSignedState, lock *transfer.HashTimeLockState,
	secretHash *common.SecretHash) *Transfer {
	msg := &Transfer{
		CanonicalIdentifier: NewCanonicalIdentifier(bp.ChainId, bp.TokenNetwork, bp.ChannelIdentifier),
		Nonce:               uint64(bp.Nonce),
		TransferredAmount:   amountString(bp.TransferredAmount),
		LockedAmount:        amountString(bp.LockedAmount),
		Locksroot:           hashBytes(bp.LocksRoot),
		AdditionalHash:      hashBytes(bp.AdditionalHash),
		Signature:           common.BytesCopy(bp.Signature),
	}
	if lock != nil {
		msg.Lock = &Lock{
			Amount:     amountString(lock.Amount),
			Expiration: uint64(lock.Expiration),
			SecretHash: hashBytes(lock.SecretHash),
		}
	}
	if secretHash != nil {
		msg.SecretHash = hashBytes(*secretHash)
	}
	return msg
}

// BalanceProof decodes the carried proof. Every field is range checked and
// the sender is recovered from the signature.
func (m *Transfer) BalanceProof() (*transfer.BalanceProofSignedState, error) {
	tokenNetwork, err := common.DecodeAddress(m.CanonicalIdentifier.GetTokenNetworkAddress())
	if err != nil {
		return nil, err
	}
	bp := &transfer.BalanceProofSignedState{
		Nonce:             common.Nonce(m.Nonce),
		ChainId:           common.ChainID(m.CanonicalIdentifier.GetChainId()),
		TokenNetwork:      tokenNetwork,
		ChannelIdentifier: common.ChannelID(m.CanonicalIdentifier.GetChannelIdentifier()),
		Signature:         common.BytesCopy(m.Signature),
	}
	if bp.TransferredAmount, err = common.ParseUInt256(m.TransferredAmount); err != nil {
		return nil, err
	}
	if bp.LockedAmount, err = common.ParseUInt256(m.LockedAmount); err != nil {
		return nil, err
	}
	if bp.LocksRoot, err = common.DecodeHash(m.Locksroot); err != nil {
		return nil, err
	}
	if bp.AdditionalHash, err = common.DecodeHash(m.AdditionalHash); err != nil {
		return nil, err
	}
	if bp.Sender, err = common.RecoverAddress(transfer.PackBalanceProof(bp), bp.Signature); err != nil {
		return nil, err
	}
	return bp, nil
}

// HashTimeLock decodes the carried lock, nil for a transfer without lock.
func (m *Transfer) HashTimeLock() (*transfer.HashTimeLockState, error) {
	if m.Lock == nil {
		return nil, nil
	}
	amount, err := common.ParseUInt256(m.Lock.Amount)
	if err != nil {
		return nil, err
	}
	secretHash, err := common.DecodeHash(m.Lock.SecretHash)
	if err != nil {
		return nil, err
	}
	return &transfer.HashTimeLockState{
		Amount:     amount,
		Expiration: common.BlockHeight(m.Lock.Expiration),
		SecretHash: secretHash,
	}, nil
}

// UnlockedSecretHash returns the secret hash of an unlock, nil otherwise.
func (m *Transfer) UnlockedSecretHash() (*common.SecretHash, error) {
	if len(m.SecretHash) == 0 {
		return nil, nil
	}
	secretHash, err := common.DecodeHash(m.SecretHash)
	if err != nil {
		return nil, err
	}
	return &secretHash, nil
}

func NewWithdrawRequest(channel *transfer.NettingChannelState, w *transfer.PendingWithdrawState) *WithdrawRequest {
	return &WithdrawRequest{
		CanonicalIdentifier: NewCanonicalIdentifier(channel.ChainId, channel.TokenNetwork, channel.Identifier),
		Participant:         common.BytesCopy(w.Participant[:]),
		TotalWithdraw:       amountString(w.TotalWithdraw),
		Expiration:          uint64(w.Expiration),
		Nonce:               uint64(w.Nonce),
		Expired:             w.Kind == transfer.WithdrawExpired,
	}
}

// DataToSign extends the on-chain withdraw consent with the message nonce
// and the expired flag.
func (m *WithdrawRequest) DataToSign() []byte {
	total, err := common.ParseUInt256(m.TotalWithdraw)
	if err != nil {
		total = new(big.Int)
	}
	var buf bytes.Buffer
	buf.Write(transfer.PackWithdraw(common.BytesToAddress(m.CanonicalIdentifier.GetTokenNetworkAddress()),
		common.ChainID(m.CanonicalIdentifier.GetChainId()), common.ChannelID(m.CanonicalIdentifier.GetChannelIdentifier()),
		common.BytesToAddress(m.Participant), total, common.BlockHeight(m.Expiration)))
	buf.Write(uint64Bytes(m.Nonce))
	if m.Expired {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

func (m *WithdrawRequest) SetSignature(signature common.Signature) {
	m.Signature = signature
}

// PendingWithdraw decodes the request after checking it was signed by its
// participant.
func (m *WithdrawRequest) PendingWithdraw() (*transfer.PendingWithdrawState, error) {
	participant, err := common.DecodeAddress(m.Participant)
	if err != nil {
		return nil, err
	}
	total, err := common.ParseUInt256(m.TotalWithdraw)
	if err != nil {
		return nil, err
	}
	if err = common.VerifySignature(participant, m.DataToSign(), m.Signature); err != nil {
		return nil, err
	}
	kind := transfer.WithdrawRequest
	if m.Expired {
		kind = transfer.WithdrawExpired
	}
	return &transfer.PendingWithdrawState{
		Kind:          kind,
		TotalWithdraw: total,
		Expiration:    common.BlockHeight(m.Expiration),
		Nonce:         common.Nonce(m.Nonce),
		Participant:   participant,
		Signature:     common.BytesCopy(m.Signature),
	}, nil
}
