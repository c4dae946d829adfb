package types

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInvalidIdentity = errors.New("identity must be a 20-byte hex address")
	ErrInvalidHandle   = errors.New("store handle must be a 20-byte hex address")
)

// Identity is a caller identity in EIP-55 checksum form.
type Identity string

// ParseIdentity accepts an address with or without the 0x prefix and in any
// letter case, and returns its checksum form.
func ParseIdentity(s string) (Identity, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentity, s)
	}
	return Identity(common.HexToAddress(s).Hex()), nil
}

// MustIdentity is ParseIdentity for literals.
func MustIdentity(s string) Identity {
	id, err := ParseIdentity(s)
	if err != nil {
		panic(err)
	}
	return id
}

func IdentityFromAddress(a common.Address) Identity { return Identity(a.Hex()) }

func (id Identity) Address() common.Address { return common.HexToAddress(string(id)) }

func (id Identity) Value() AddressValue { return AddressValue(id.Address()) }

func (id Identity) String() string { return string(id) }

// Handle addresses one event store instance created by a factory.
type Handle string

func ParseHandle(s string) (Handle, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidHandle, s)
	}
	return Handle(common.HexToAddress(s).Hex()), nil
}

func HandleFromAddress(a common.Address) Handle { return Handle(a.Hex()) }

func (h Handle) Address() common.Address { return common.HexToAddress(string(h)) }

func (h Handle) String() string { return string(h) }
