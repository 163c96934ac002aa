package common

import (
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/saveio/paychan/errors"
)

// DecodeAddress accepts an Address, a 20 byte slice or a hex string.
func DecodeAddress(value interface{}) (Address, error) {
	switch v := value.(type) {
	case Address:
		return v, nil
	case []byte:
		if len(v) != AddressLength {
			return EmptyAddress, errors.ErrOutOfRange.Newf("address of %d bytes", len(v))
		}
		return BytesToAddress(v), nil
	case string:
		if !IsHexAddress(v) {
			return EmptyAddress, errors.ErrOutOfRange.Newf("invalid address %q", v)
		}
		return HexToAddress(v), nil
	default:
		return EmptyAddress, errors.ErrOutOfRange.Newf("can not decode %T as address", value)
	}
}

// DecodeHash accepts a Hash, a 32 byte slice or a 0x prefixed hex string.
// An empty slice or string decodes to the empty hash.
func DecodeHash(value interface{}) (Hash, error) {
	var raw []byte
	switch v := value.(type) {
	case Hash:
		return v, nil
	case []byte:
		raw = v
	case string:
		if v == "" {
			return EmptyHash, nil
		}
		if !strings.HasPrefix(v, "0x") {
			v = "0x" + v
		}
		decoded, err := hexutil.Decode(v)
		if err != nil {
			return EmptyHash, errors.ErrOutOfRange.Newf("invalid hash %q: %s", v, err)
		}
		raw = decoded
	default:
		return EmptyHash, errors.ErrOutOfRange.Newf("can not decode %T as hash", value)
	}
	if len(raw) == 0 {
		return EmptyHash, nil
	}
	if len(raw) != HashLength {
		return EmptyHash, errors.ErrOutOfRange.Newf("hash of %d bytes", len(raw))
	}
	var hash Hash
	copy(hash[:], raw)
	return hash, nil
}

func DecodeBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		switch v {
		case "true", "1":
			return true, nil
		case "false", "0", "":
			return false, nil
		}
	case uint64:
		if v <= 1 {
			return v == 1, nil
		}
	case int:
		if v == 0 || v == 1 {
			return v == 1, nil
		}
	}
	return false, errors.ErrOutOfRange.Newf("can not decode %v as bool", value)
}
