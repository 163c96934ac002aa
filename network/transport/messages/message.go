package messages

import (
	proto "github.com/gogo/protobuf/proto"
)

// Amounts are carried as decimal strings so they keep their full 256 bits.

type CanonicalIdentifier struct {
	ChainId             uint64 `protobuf:"varint,1,opt,name=chain_id,json=chainId,proto3" json:"chain_id,omitempty"`
	TokenNetworkAddress []byte `protobuf:"bytes,2,opt,name=token_network_address,json=tokenNetworkAddress,proto3" json:"token_network_address,omitempty"`
	ChannelIdentifier   uint64 `protobuf:"varint,3,opt,name=channel_identifier,json=channelIdentifier,proto3" json:"channel_identifier,omitempty"`
}

func (m *CanonicalIdentifier) Reset()         { *m = CanonicalIdentifier{} }
func (m *CanonicalIdentifier) String() string { return proto.CompactTextString(m) }
func (*CanonicalIdentifier) ProtoMessage()    {}

type BalanceProof struct {
	CanonicalIdentifier *CanonicalIdentifier `protobuf:"bytes,1,opt,name=canonical_identifier,json=canonicalIdentifier,proto3" json:"canonical_identifier,omitempty"`
	BalanceHash         []byte               `protobuf:"bytes,2,opt,name=balance_hash,json=balanceHash,proto3" json:"balance_hash,omitempty"`
	Nonce               uint64               `protobuf:"varint,3,opt,name=nonce,proto3" json:"nonce,omitempty"`
	AdditionalHash      []byte               `protobuf:"bytes,4,opt,name=additional_hash,json=additionalHash,proto3" json:"additional_hash,omitempty"`
	Signature           []byte               `protobuf:"bytes,5,opt,name=signature,proto3" json:"signature,omitempty"`
}

func (m *BalanceProof) Reset()         { *m = BalanceProof{} }
func (m *BalanceProof) String() string { return proto.CompactTextString(m) }
func (*BalanceProof) ProtoMessage()    {}

// MonitorRequest asks a monitoring service to submit BalanceProof on behalf
// of NonClosingParticipant for RewardAmount.
type MonitorRequest struct {
	BalanceProof                     *BalanceProof `protobuf:"bytes,1,opt,name=balance_proof,json=balanceProof,proto3" json:"balance_proof,omitempty"`
	NonClosingParticipant            []byte        `protobuf:"bytes,2,opt,name=non_closing_participant,json=nonClosingParticipant,proto3" json:"non_closing_participant,omitempty"`
	NonClosingSignature              []byte        `protobuf:"bytes,3,opt,name=non_closing_signature,json=nonClosingSignature,proto3" json:"non_closing_signature,omitempty"`
	RewardAmount                     string        `protobuf:"bytes,4,opt,name=reward_amount,json=rewardAmount,proto3" json:"reward_amount,omitempty"`
	MonitoringServiceContractAddress []byte        `protobuf:"bytes,5,opt,name=monitoring_service_contract_address,json=monitoringServiceContractAddress,proto3" json:"monitoring_service_contract_address,omitempty"`
	Signature                        []byte        `protobuf:"bytes,6,opt,name=signature,proto3" json:"signature,omitempty"`
}

func (m *MonitorRequest) Reset()         { *m = MonitorRequest{} }
func (m *MonitorRequest) String() string { return proto.CompactTextString(m) }
func (*MonitorRequest) ProtoMessage()    {}

type ImbalancePoint struct {
	Capacity string `protobuf:"bytes,1,opt,name=capacity,proto3" json:"capacity,omitempty"`
	Fee      string `protobuf:"bytes,2,opt,name=fee,proto3" json:"fee,omitempty"`
}

func (m *ImbalancePoint) Reset()         { *m = ImbalancePoint{} }
func (m *ImbalancePoint) String() string { return proto.CompactTextString(m) }
func (*ImbalancePoint) ProtoMessage()    {}

type FeeSchedule struct {
	CapFees          bool              `protobuf:"varint,1,opt,name=cap_fees,json=capFees,proto3" json:"cap_fees,omitempty"`
	Flat             string            `protobuf:"bytes,2,opt,name=flat,proto3" json:"flat,omitempty"`
	Proportional     uint64            `protobuf:"varint,3,opt,name=proportional,proto3" json:"proportional,omitempty"`
	ImbalancePenalty []*ImbalancePoint `protobuf:"bytes,4,rep,name=imbalance_penalty,json=imbalancePenalty,proto3" json:"imbalance_penalty,omitempty"`
}

func (m *FeeSchedule) Reset()         { *m = FeeSchedule{} }
func (m *FeeSchedule) String() string { return proto.CompactTextString(m) }
func (*FeeSchedule) ProtoMessage()    {}

type PFSFeeUpdate struct {
	CanonicalIdentifier *CanonicalIdentifier `protobuf:"bytes,1,opt,name=canonical_identifier,json=canonicalIdentifier,proto3" json:"canonical_identifier,omitempty"`
	UpdatingParticipant []byte               `protobuf:"bytes,2,opt,name=updating_participant,json=updatingParticipant,proto3" json:"updating_participant,omitempty"`
	FeeSchedule         *FeeSchedule         `protobuf:"bytes,3,opt,name=fee_schedule,json=feeSchedule,proto3" json:"fee_schedule,omitempty"`
	Timestamp           int64                `protobuf:"varint,4,opt,name=timestamp,proto3" json:"timestamp,omitempty"`
	Signature           []byte               `protobuf:"bytes,5,opt,name=signature,proto3" json:"signature,omitempty"`
}

func (m *PFSFeeUpdate) Reset()         { *m = PFSFeeUpdate{} }
func (m *PFSFeeUpdate) String() string { return proto.CompactTextString(m) }
func (*PFSFeeUpdate) ProtoMessage()    {}

type PFSCapacityUpdate struct {
	CanonicalIdentifier *CanonicalIdentifier `protobuf:"bytes,1,opt,name=canonical_identifier,json=canonicalIdentifier,proto3" json:"canonical_identifier,omitempty"`
	UpdatingParticipant []byte               `protobuf:"bytes,2,opt,name=updating_participant,json=updatingParticipant,proto3" json:"updating_participant,omitempty"`
	OtherParticipant    []byte               `protobuf:"bytes,3,opt,name=other_participant,json=otherParticipant,proto3" json:"other_participant,omitempty"`
	UpdatingNonce       uint64               `protobuf:"varint,4,opt,name=updating_nonce,json=updatingNonce,proto3" json:"updating_nonce,omitempty"`
	OtherNonce          uint64               `protobuf:"varint,5,opt,name=other_nonce,json=otherNonce,proto3" json:"other_nonce,omitempty"`
	UpdatingCapacity    string               `protobuf:"bytes,6,opt,name=updating_capacity,json=updatingCapacity,proto3" json:"updating_capacity,omitempty"`
	OtherCapacity       string               `protobuf:"bytes,7,opt,name=other_capacity,json=otherCapacity,proto3" json:"other_capacity,omitempty"`
	RevealTimeout       uint64               `protobuf:"varint,8,opt,name=reveal_timeout,json=revealTimeout,proto3" json:"reveal_timeout,omitempty"`
	Signature           []byte               `protobuf:"bytes,9,opt,name=signature,proto3" json:"signature,omitempty"`
}

func (m *PFSCapacityUpdate) Reset()         { *m = PFSCapacityUpdate{} }
func (m *PFSCapacityUpdate) String() string { return proto.CompactTextString(m) }
func (*PFSCapacityUpdate) ProtoMessage()    {}

type Lock struct {
	Amount     string `protobuf:"bytes,1,opt,name=amount,proto3" json:"amount,omitempty"`
	Expiration uint64 `protobuf:"varint,2,opt,name=expiration,proto3" json:"expiration,omitempty"`
	SecretHash []byte `protobuf:"bytes,3,opt,name=secret_hash,json=secretHash,proto3" json:"secret_hash,omitempty"`
}

func (m *Lock) Reset()         { *m = Lock{} }
func (m *Lock) String() string { return proto.CompactTextString(m) }
func (*Lock) ProtoMessage()    {}

// Transfer carries a full balance proof to the partner. Lock is set for a
// locked transfer and SecretHash for an unlock.
type Transfer struct {
	CanonicalIdentifier *CanonicalIdentifier `protobuf:"bytes,1,opt,name=canonical_identifier,json=canonicalIdentifier,proto3" json:"canonical_identifier,omitempty"`
	Nonce               uint64               `protobuf:"varint,2,opt,name=nonce,proto3" json:"nonce,omitempty"`
	TransferredAmount   string               `protobuf:"bytes,3,opt,name=transferred_amount,json=transferredAmount,proto3" json:"transferred_amount,omitempty"`
	LockedAmount        string               `protobuf:"bytes,4,opt,name=locked_amount,json=lockedAmount,proto3" json:"locked_amount,omitempty"`
	Locksroot           []byte               `protobuf:"bytes,5,opt,name=locksroot,proto3" json:"locksroot,omitempty"`
	AdditionalHash      []byte               `protobuf:"bytes,6,opt,name=additional_hash,json=additionalHash,proto3" json:"additional_hash,omitempty"`
	Lock                *Lock                `protobuf:"bytes,7,opt,name=lock,proto3" json:"lock,omitempty"`
	SecretHash          []byte               `protobuf:"bytes,8,opt,name=secret_hash,json=secretHash,proto3" json:"secret_hash,omitempty"`
	Signature           []byte               `protobuf:"bytes,9,opt,name=signature,proto3" json:"signature,omitempty"`
}

func (m *Transfer) Reset()         { *m = Transfer{} }
func (m *Transfer) String() string { return proto.CompactTextString(m) }
func (*Transfer) ProtoMessage()    {}

type WithdrawRequest struct {
	CanonicalIdentifier *CanonicalIdentifier `protobuf:"bytes,1,opt,name=canonical_identifier,json=canonicalIdentifier,proto3" json:"canonical_identifier,omitempty"`
	Participant         []byte               `protobuf:"bytes,2,opt,name=participant,proto3" json:"participant,omitempty"`
	TotalWithdraw       string               `protobuf:"bytes,3,opt,name=total_withdraw,json=totalWithdraw,proto3" json:"total_withdraw,omitempty"`
	Expiration          uint64               `protobuf:"varint,4,opt,name=expiration,proto3" json:"expiration,omitempty"`
	Nonce               uint64               `protobuf:"varint,5,opt,name=nonce,proto3" json:"nonce,omitempty"`
	Expired             bool                 `protobuf:"varint,6,opt,name=expired,proto3" json:"expired,omitempty"`
	Signature           []byte               `protobuf:"bytes,7,opt,name=signature,proto3" json:"signature,omitempty"`
}

func (m *WithdrawRequest) Reset()         { *m = WithdrawRequest{} }
func (m *WithdrawRequest) String() string { return proto.CompactTextString(m) }
func (*WithdrawRequest) ProtoMessage()    {}
