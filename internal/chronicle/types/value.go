package types

import (
	"encoding/hex"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

// ValueType tags which member of a Value slot is meaningful.
type ValueType string

const (
	ValueTypeAddress ValueType = "Address"
	ValueTypeUInt    ValueType = "UInt"
	ValueTypeBytes32 ValueType = "Bytes32"
)

// Valid reports whether t is one of the storable slot types.
func (t ValueType) Valid() bool {
	switch t {
	case ValueTypeAddress, ValueTypeUInt, ValueTypeBytes32:
		return true
	}
	return false
}

// Value is the tagged union held by an event's primary slot and by every
// property. Exactly one of AddressValue, UIntValue or Bytes32Value.
type Value interface {
	Type() ValueType
	String() string
	isValue()
}

type AddressValue common.Address

func (AddressValue) Type() ValueType { return ValueTypeAddress }
func (v AddressValue) String() string { return common.Address(v).Hex() }
func (v AddressValue) Address() common.Address { return common.Address(v) }
func (AddressValue) isValue() {}

type UIntValue uint64

func (UIntValue) Type() ValueType { return ValueTypeUInt }
func (v UIntValue) String() string { return strconv.FormatUint(uint64(v), 10) }
func (UIntValue) isValue() {}

type Bytes32Value [32]byte

func (Bytes32Value) Type() ValueType { return ValueTypeBytes32 }
func (v Bytes32Value) String() string { return "0x" + hex.EncodeToString(v[:]) }
func (Bytes32Value) isValue() {}

// Matches reports whether the tag agrees with the populated member.
func Matches(t ValueType, v Value) bool {
	return v != nil && t.Valid() && v.Type() == t
}
