package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/coerce"
	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/schema"
	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/store"
	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/types"
)

var (
	// ErrUnauthorized indicates a caller without a role permitted for the
	// action.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidProperty indicates a property whose tag disagrees with its
	// value, whose name is empty or too long, or that breaks the schema of
	// its event type.
	ErrInvalidProperty = errors.New("invalid property")
	// ErrUnknownOperation indicates a submission naming no known operation.
	ErrUnknownOperation = errors.New("unknown operation")
	// ErrInvalidRole indicates an empty role or one too long to encode.
	ErrInvalidRole = errors.New("invalid role")
)

// Error codes carried across transports. Each names one sentinel.
const (
	CodeUnauthorized             = "unauthorized"
	CodeNotFound                 = "not_found"
	CodeInvalidProperty          = "invalid_property"
	CodeUnknownEventType         = "unknown_event_type"
	CodeTypeMismatch             = "type_mismatch"
	CodeUnsupportedPrimitiveKind = "unsupported_primitive_kind"
	CodeSchemaArityMismatch      = "schema_arity_mismatch"
	CodeMalformedLog             = "malformed_log"
	CodeInvalidIdentity          = "invalid_identity"
	CodeInvalidHandle            = "invalid_handle"
	CodeInvalidRole              = "invalid_role"
	CodeUnknownOperation         = "unknown_operation"
	CodeInternal                 = "internal_error"
)

// errorCodes is checked in order; wrapped errors may match several sentinels and
// the first match wins.
var errorCodes = []struct {
	code string
	err  error
}{
	{CodeUnauthorized, ErrUnauthorized},
	{CodeNotFound, store.ErrNotFound},
	{CodeInvalidProperty, ErrInvalidProperty},
	{CodeUnknownEventType, schema.ErrUnknownEventType},
	{CodeUnsupportedPrimitiveKind, coerce.ErrUnsupportedPrimitiveKind},
	{CodeTypeMismatch, coerce.ErrTypeMismatch},
	{CodeSchemaArityMismatch, coerce.ErrSchemaArityMismatch},
	{CodeMalformedLog, coerce.ErrMalformedLog},
	{CodeInvalidIdentity, types.ErrInvalidIdentity},
	{CodeInvalidHandle, types.ErrInvalidHandle},
	{CodeInvalidRole, ErrInvalidRole},
	{CodeUnknownOperation, ErrUnknownOperation},
}

// Code returns the transport code of err, or CodeInternal when err belongs
// to no known class.
func Code(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// FromCode rebuilds an error received from a transport so that errors.Is
// matches the original sentinel.
func FromCode(code, msg string) error {
	for _, c := range errorCodes {
		if c.code == code {
			return fmt.Errorf("%w: %s", c.err, msg)
		}
	}
	return errors.New(msg)
}

// IsTerminal reports whether err is a definite rejection: resubmitting the
// same operation cannot succeed. Everything else, including context errors,
// may be transient.
func IsTerminal(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return Code(err) != CodeInternal
}
