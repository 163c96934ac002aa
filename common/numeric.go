package common

import (
	"encoding/json"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/saveio/paychan/errors"
)

var (
	MaxUint256 = new(big.Int).Set(math.MaxBig256)
	MaxInt256  = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(1))
	MinInt256  = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 255))
)

// CheckUInt256 fails unless 0 <= v < 2^256.
func CheckUInt256(v *big.Int) error {
	if v == nil {
		return errors.ErrOutOfRange.New("nil uint256")
	}
	if v.Sign() < 0 || v.Cmp(MaxUint256) > 0 {
		return errors.ErrOutOfRange.Newf("%s does not fit uint256", v)
	}
	return nil
}

// CheckInt256 fails unless -2^255 <= v < 2^255.
func CheckInt256(v *big.Int) error {
	if v == nil {
		return errors.ErrOutOfRange.New("nil int256")
	}
	if v.Cmp(MinInt256) < 0 || v.Cmp(MaxInt256) > 0 {
		return errors.ErrOutOfRange.Newf("%s does not fit int256", v)
	}
	return nil
}

// ParseUInt256 parses a decimal or 0x-prefixed hex string.
func ParseUInt256(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "-") {
		return nil, errors.ErrOutOfRange.Newf("negative uint256 %q", s)
	}
	v, ok := math.ParseBig256(s)
	if !ok {
		return nil, errors.ErrOutOfRange.Newf("invalid uint256 %q", s)
	}
	return v, nil
}

func ParseInt256(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	v, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return nil, errors.ErrOutOfRange.Newf("invalid int256 %q", s)
	}
	if err := CheckInt256(v); err != nil {
		return nil, err
	}
	return v, nil
}

func ParseUInt64(s string) (uint64, error) {
	v, ok := math.ParseUint64(strings.TrimSpace(s))
	if !ok {
		return 0, errors.ErrOutOfRange.Newf("invalid uint64 %q", s)
	}
	return v, nil
}

// DecodeUInt256 converts a value decoded from an external source into a
// range-checked big integer.
func DecodeUInt256(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		if err := CheckUInt256(v); err != nil {
			return nil, err
		}
		return new(big.Int).Set(v), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case int64:
		if v < 0 {
			return nil, errors.ErrOutOfRange.Newf("negative uint256 %d", v)
		}
		return big.NewInt(v), nil
	case int:
		if v < 0 {
			return nil, errors.ErrOutOfRange.Newf("negative uint256 %d", v)
		}
		return big.NewInt(int64(v)), nil
	case string:
		return ParseUInt256(v)
	case json.Number:
		return ParseUInt256(v.String())
	default:
		return nil, errors.ErrOutOfRange.Newf("can not decode %T as uint256", value)
	}
}

// DecodeUInt64 converts an external value into a uint64, rejecting anything wider.
func DecodeUInt64(value interface{}) (uint64, error) {
	switch v := value.(type) {
	case uint64:
		return v, nil
	case uint32:
		return uint64(v), nil
	case int:
		if v < 0 {
			return 0, errors.ErrOutOfRange.Newf("negative uint64 %d", v)
		}
		return uint64(v), nil
	case int64:
		if v < 0 {
			return 0, errors.ErrOutOfRange.Newf("negative uint64 %d", v)
		}
		return uint64(v), nil
	case *big.Int:
		if v == nil || v.Sign() < 0 || !v.IsUint64() {
			return 0, errors.ErrOutOfRange.Newf("%v does not fit uint64", v)
		}
		return v.Uint64(), nil
	case string:
		return ParseUInt64(v)
	case json.Number:
		return ParseUInt64(v.String())
	default:
		return 0, errors.ErrOutOfRange.Newf("can not decode %T as uint64", value)
	}
}

// UInt256 is a JSON amount which refuses values outside [0, 2^256).
type UInt256 struct {
	*big.Int
}

func NewUInt256(v *big.Int) UInt256 {
	return UInt256{BigCopy(v)}
}

func (u UInt256) MarshalJSON() ([]byte, error) {
	if u.Int == nil {
		return []byte("0"), nil
	}
	return []byte(u.Int.String()), nil
}

func (u *UInt256) UnmarshalJSON(data []byte) error {
	v, err := ParseUInt256(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	u.Int = v
	return nil
}

// Int256 is a signed JSON amount which refuses values outside the int256 range.
type Int256 struct {
	*big.Int
}

func (i Int256) MarshalJSON() ([]byte, error) {
	if i.Int == nil {
		return []byte("0"), nil
	}
	return []byte(i.Int.String()), nil
}

func (i *Int256) UnmarshalJSON(data []byte) error {
	v, err := ParseInt256(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	i.Int = v
	return nil
}
