package common

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

const (
	AddressLength = ethcommon.AddressLength
	HashLength    = ethcommon.HashLength
)

type Address = ethcommon.Address

type Hash = ethcommon.Hash

type TokenAddress = Address

type TokenNetworkID = Address

type BalanceHash = Hash

type Locksroot = Hash

type SecretHash = Hash

type AdditionalHash = Hash

type TxHash = Hash

type BlockHeight uint64

type ChannelID uint64

type ChainID uint64

type Nonce uint64

type MessageID uint64

type Signature []byte

// ProportionalFeeAmount is expressed in parts per million.
type ProportionalFeeAmount uint64

var EmptyAddress = Address{}

var EmptyHash = Hash{}

var EmptyLocksroot = Locksroot{}

var EmptyBalanceHash = BalanceHash{}

// ChannelKey identifies the live channel with a partner on a token network.
type ChannelKey struct {
	TokenNetwork TokenNetworkID
	Partner      Address
}

func (self ChannelKey) String() string {
	return self.TokenNetwork.Hex() + "/" + self.Partner.Hex()
}

// HistoryKey identifies one generation of a channel, including settled ones.
type HistoryKey struct {
	ChannelKey
	ChannelId ChannelID
}

func BytesToAddress(b []byte) Address {
	return ethcommon.BytesToAddress(b)
}

func BigToHash(b *big.Int) Hash {
	return ethcommon.BigToHash(b)
}

func HexToAddress(s string) Address {
	return ethcommon.HexToAddress(s)
}

func IsHexAddress(s string) bool {
	return ethcommon.IsHexAddress(s)
}

func LocksrootEmpty(locksroot Locksroot) bool {
	return locksroot == EmptyLocksroot
}

func BigZero() *big.Int {
	return new(big.Int)
}

// BigCopy returns a copy of v, treating nil as zero.
func BigCopy(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

func BigMax(a, b *big.Int) *big.Int {
	if BigCopy(a).Cmp(BigCopy(b)) >= 0 {
		return BigCopy(a)
	}
	return BigCopy(b)
}

func BigMin(a, b *big.Int) *big.Int {
	if BigCopy(a).Cmp(BigCopy(b)) <= 0 {
		return BigCopy(a)
	}
	return BigCopy(b)
}

func BigSum(values ...*big.Int) *big.Int {
	sum := new(big.Int)
	for _, v := range values {
		if v != nil {
			sum.Add(sum, v)
		}
	}
	return sum
}

func IsZero(v *big.Int) bool {
	return v == nil || v.Sign() == 0
}

func BytesCopy(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
