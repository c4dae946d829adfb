package service

import (
	"fmt"
	"strings"

	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/coerce"
)

// Action names an operation subject to the gate.
type Action string

const (
	ActionAppend Action = "append"
	ActionGrant  Action = "grant"
	ActionRevoke Action = "revoke"
)

// Role names a set of identities within one store.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleWriter Role = "writer"
)

// ParseRole accepts a non-empty role that fits the fixed-size encoding.
func ParseRole(s string) (Role, error) {
	if s == "" || strings.ContainsRune(s, 0) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
	if len(s) > coerce.Bytes32Len {
		return "", fmt.Errorf("%w: %q exceeds %d bytes", ErrInvalidRole, s, coerce.Bytes32Len)
	}
	return Role(s), nil
}

// Policy maps each action to the roles that permit it. Holding any one of
// the listed roles is enough.
type Policy map[Action][]Role

// DefaultPolicy lets admins and writers append and only admins change
// membership.
func DefaultPolicy() Policy {
	return Policy{
		ActionAppend: {RoleAdmin, RoleWriter},
		ActionGrant:  {RoleAdmin},
		ActionRevoke: {RoleAdmin},
	}
}

func (p Policy) clone() Policy {
	out := make(Policy, len(p))
	for a, roles := range p {
		out[a] = append([]Role(nil), roles...)
	}
	return out
}
