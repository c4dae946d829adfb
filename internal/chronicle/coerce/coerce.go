// Package coerce converts between the loosely typed wire representation of
// the event log and typed application values.
//
// Wire forms, which Canonical produces from any accepted raw input:
//
//	Address -> checksum hex string
//	UInt    -> *big.Int
//	Bytes32 -> [32]byte
//	String  -> string
//
// Typed forms, which ToWire accepts and FromWire returns:
//
//	Address -> common.Address
//	UInt    -> uint64
//	Bytes32 -> string of at most 32 bytes
//	String  -> string
//
// Decoding Bytes32 into a string removes every NUL byte, so the zero
// padding added by ToWire disappears. Content that itself contains NUL bytes
// does not survive the round trip. This matches what existing producers of
// the wire log expect and is kept as is.
package coerce

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/schema"
	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/types"
)

var (
	// ErrTypeMismatch indicates a value that cannot be read as the
	// requested kind.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrUnsupportedPrimitiveKind indicates a kind outside the closed set.
	ErrUnsupportedPrimitiveKind = schema.ErrUnsupportedPrimitiveKind
	// ErrSchemaArityMismatch indicates a value count or key set that does
	// not match the schema.
	ErrSchemaArityMismatch = errors.New("schema arity mismatch")
)

// Bytes32Len is the width of the fixed-size byte string kind.
const Bytes32Len = 32

func mismatch(raw any, k schema.Kind) error {
	return fmt.Errorf("%w: %T is not %s", ErrTypeMismatch, raw, k)
}

func checkKind(k schema.Kind) error {
	if !k.Valid() {
		return fmt.Errorf("%w: %q", ErrUnsupportedPrimitiveKind, k)
	}
	return nil
}

// ToWire serializes a typed value of kind k into its wire form.
func ToWire(v any, k schema.Kind) (any, error) {
	if err := checkKind(k); err != nil {
		return nil, err
	}
	switch k {
	case schema.KindAddress:
		switch a := v.(type) {
		case common.Address:
			return a.Hex(), nil
		case types.AddressValue:
			return a.String(), nil
		}
	case schema.KindUInt:
		switch n := v.(type) {
		case uint64:
			return new(big.Int).SetUint64(n), nil
		case uint:
			return new(big.Int).SetUint64(uint64(n)), nil
		case uint32:
			return new(big.Int).SetUint64(uint64(n)), nil
		case types.UIntValue:
			return new(big.Int).SetUint64(uint64(n)), nil
		}
	case schema.KindBytes32:
		if s, ok := v.(string); ok {
			return PadBytes32(s)
		}
	case schema.KindString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	}
	return nil, mismatch(v, k)
}

// FromWire deserializes a raw wire value of kind k into its typed form.
func FromWire(raw any, k schema.Kind) (any, error) {
	c, err := Canonical(raw, k)
	if err != nil {
		return nil, err
	}
	switch k {
	case schema.KindAddress:
		return common.HexToAddress(c.(string)), nil
	case schema.KindUInt:
		n := c.(*big.Int)
		if !n.IsUint64() {
			return nil, fmt.Errorf("%w: %s overflows uint64", ErrTypeMismatch, n)
		}
		return n.Uint64(), nil
	case schema.KindBytes32:
		return TrimBytes32(c.([32]byte)), nil
	default:
		return c, nil
	}
}

// Canonical reads raw as kind k and returns the canonical wire form. It
// accepts the shapes produced by ToWire as well as the string encodings
// used by JSON transports (decimal or 0x integers, 0x hex byte strings).
func Canonical(raw any, k schema.Kind) (any, error) {
	if err := checkKind(k); err != nil {
		return nil, err
	}
	switch k {
	case schema.KindAddress:
		return canonicalAddress(raw)
	case schema.KindUInt:
		return canonicalUInt(raw)
	case schema.KindBytes32:
		return canonicalBytes32(raw)
	default:
		if s, ok := raw.(string); ok {
			return s, nil
		}
		return nil, mismatch(raw, k)
	}
}

func canonicalAddress(raw any) (any, error) {
	switch a := raw.(type) {
	case string:
		if !common.IsHexAddress(a) {
			return nil, fmt.Errorf("%w: %q is not an address", ErrTypeMismatch, a)
		}
		return common.HexToAddress(a).Hex(), nil
	case common.Address:
		return a.Hex(), nil
	case types.AddressValue:
		return a.String(), nil
	}
	return nil, mismatch(raw, schema.KindAddress)
}

func canonicalUInt(raw any) (any, error) {
	var n *big.Int
	switch v := raw.(type) {
	case *big.Int:
		if v == nil {
			return nil, mismatch(raw, schema.KindUInt)
		}
		n = new(big.Int).Set(v)
	case big.Int:
		n = new(big.Int).Set(&v)
	case uint64:
		n = new(big.Int).SetUint64(v)
	case uint:
		n = new(big.Int).SetUint64(uint64(v))
	case uint32:
		n = new(big.Int).SetUint64(uint64(v))
	case int:
		n = big.NewInt(int64(v))
	case int64:
		n = big.NewInt(v)
	case float64:
		if v != math.Trunc(v) || v > 1<<53 {
			return nil, fmt.Errorf("%w: %v is not an exact integer", ErrTypeMismatch, v)
		}
		n = big.NewInt(int64(v))
	case json.Number:
		return parseBig(string(v))
	case string:
		return parseBig(v)
	default:
		return nil, mismatch(raw, schema.KindUInt)
	}
	if n.Sign() < 0 {
		return nil, fmt.Errorf("%w: %s is negative", ErrTypeMismatch, n)
	}
	return n, nil
}

func parseBig(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
	}
	n, ok := new(big.Int).SetString(s, base)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q is not an unsigned integer", ErrTypeMismatch, s)
	}
	return n, nil
}

func canonicalBytes32(raw any) (any, error) {
	switch v := raw.(type) {
	case [32]byte:
		return v, nil
	case types.Bytes32Value:
		return [32]byte(v), nil
	case common.Hash:
		return [32]byte(v), nil
	case []byte:
		return padBytes(v)
	case string:
		b, err := hexutil.Decode(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not 0x hex: %v", ErrTypeMismatch, v, err)
		}
		return padBytes(b)
	}
	return nil, mismatch(raw, schema.KindBytes32)
}

func padBytes(b []byte) ([32]byte, error) {
	var out [32]byte
	if len(b) > Bytes32Len {
		return out, fmt.Errorf("%w: %d bytes exceed %d", ErrTypeMismatch, len(b), Bytes32Len)
	}
	copy(out[:], b)
	return out, nil
}

// PadBytes32 encodes s into the fixed-size byte string, right-padded with
// zero bytes.
func PadBytes32(s string) ([32]byte, error) {
	return padBytes([]byte(s))
}

// TrimBytes32 decodes a fixed-size byte string into a string, removing
// every NUL byte.
func TrimBytes32(b [32]byte) string {
	return strings.ReplaceAll(string(b[:]), "\x00", "")
}
