package transfer

import (
	"bytes"
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/saveio/paychan/common"
	"github.com/saveio/paychan/common/constants"
)

func uint256Bytes(v *big.Int) []byte {
	return math.PaddedBigBytes(common.BigCopy(v), 32)
}

func uint64Bytes(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

// HashBalanceData is the on-chain balance hash. All-zero data hashes to the
// empty hash, the value a participant without any balance proof has on chain.
func HashBalanceData(transferredAmount *big.Int, lockedAmount *big.Int, locksroot common.Locksroot) common.BalanceHash {
	if common.IsZero(transferredAmount) && common.IsZero(lockedAmount) && common.LocksrootEmpty(locksroot) {
		return common.EmptyBalanceHash
	}
	return crypto.Keccak256Hash(uint256Bytes(transferredAmount), uint256Bytes(lockedAmount), locksroot[:])
}

// EncodeLock packs a lock the way the unlock call expects it.
func EncodeLock(lock *HashTimeLockState) []byte {
	var buf bytes.Buffer
	buf.Write(uint256Bytes(new(big.Int).SetUint64(uint64(lock.Expiration))))
	buf.Write(uint256Bytes(lock.Amount))
	buf.Write(lock.SecretHash[:])
	return buf.Bytes()
}

func EncodeLocks(locks []*HashTimeLockState) []byte {
	var buf bytes.Buffer
	for _, lock := range locks {
		buf.Write(EncodeLock(lock))
	}
	return buf.Bytes()
}

// ComputeLocksroot returns the empty locksroot when no lock is pending.
func ComputeLocksroot(locks []*HashTimeLockState) common.Locksroot {
	if len(locks) == 0 {
		return common.EmptyLocksroot
	}
	return crypto.Keccak256Hash(EncodeLocks(locks))
}

func packCanonical(msgType int, tokenNetwork common.TokenNetworkID, chainId common.ChainID,
	channelId common.ChannelID) *bytes.Buffer {
	var buf bytes.Buffer
	buf.Write(tokenNetwork[:])
	buf.Write(uint256Bytes(new(big.Int).SetUint64(uint64(chainId))))
	buf.Write(uint256Bytes(big.NewInt(int64(msgType))))
	buf.Write(uint256Bytes(new(big.Int).SetUint64(uint64(channelId))))
	return &buf
}

// PackBalanceProof is the data signed by the sender of a balance proof.
func PackBalanceProof(bp *BalanceProofSignedState) []byte {
	buf := packCanonical(constants.MessageTypeBalanceProof, bp.TokenNetwork, bp.ChainId, bp.ChannelIdentifier)
	balanceHash := bp.BalanceHash()
	buf.Write(balanceHash[:])
	buf.Write(uint64Bytes(uint64(bp.Nonce)))
	buf.Write(bp.AdditionalHash[:])
	return buf.Bytes()
}

// PackBalanceProofUpdate is the data the non-closing participant countersigns
// to submit the partner's proof after a close.
func PackBalanceProofUpdate(bp *BalanceProofSignedState) []byte {
	buf := packCanonical(constants.MessageTypeBalanceProofUpdate, bp.TokenNetwork, bp.ChainId, bp.ChannelIdentifier)
	balanceHash := bp.BalanceHash()
	buf.Write(balanceHash[:])
	buf.Write(uint64Bytes(uint64(bp.Nonce)))
	buf.Write(bp.AdditionalHash[:])
	buf.Write(bp.Signature)
	return buf.Bytes()
}

func PackWithdraw(tokenNetwork common.TokenNetworkID, chainId common.ChainID, channelId common.ChannelID,
	participant common.Address, totalWithdraw *big.Int, expiration common.BlockHeight) []byte {
	buf := packCanonical(constants.MessageTypeWithdraw, tokenNetwork, chainId, channelId)
	buf.Write(participant[:])
	buf.Write(uint256Bytes(totalWithdraw))
	buf.Write(uint256Bytes(new(big.Int).SetUint64(uint64(expiration))))
	return buf.Bytes()
}

// EmptyBalanceProof stands for a participant which never sent anything.
func EmptyBalanceProof(channel *NettingChannelState, sender common.Address) *BalanceProofSignedState {
	return &BalanceProofSignedState{
		TransferredAmount: new(big.Int),
		LockedAmount:      new(big.Int),
		ChainId:           channel.ChainId,
		TokenNetwork:      channel.TokenNetwork,
		ChannelIdentifier: channel.Identifier,
		Sender:            sender,
	}
}
