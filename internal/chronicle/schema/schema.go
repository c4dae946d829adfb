// Package schema maps event-type and record names to ordered property
// schemas. The registry is built once from a fixed table and is read-only
// afterwards, so one registry can be shared by every store instance.
package schema

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownEventType indicates no schema is registered for a name.
	ErrUnknownEventType = errors.New("unknown event type")
	// ErrUnsupportedPrimitiveKind indicates a kind outside the closed set.
	ErrUnsupportedPrimitiveKind = errors.New("unsupported primitive kind")
	// ErrPropertyMismatch indicates properties that do not follow the
	// registered schema of their event type.
	ErrPropertyMismatch = errors.New("properties do not match schema")
)

// Kind is a wire-level primitive kind.
type Kind string

const (
	KindAddress Kind = "Address"
	KindUInt    Kind = "UInt"
	KindBytes32 Kind = "Bytes32"
	KindString  Kind = "String"
)

// ParseKind resolves a kind name. "BigNumber" is accepted as an alias of
// UInt.
func ParseKind(s string) (Kind, error) {
	switch strings.TrimSpace(s) {
	case "Address":
		return KindAddress, nil
	case "UInt", "BigNumber":
		return KindUInt, nil
	case "Bytes32":
		return KindBytes32, nil
	case "String":
		return KindString, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedPrimitiveKind, s)
}

func (k Kind) Valid() bool {
	switch k {
	case KindAddress, KindUInt, KindBytes32, KindString:
		return true
	}
	return false
}

// Field is one named position of a schema.
type Field struct {
	Name string
	Kind Kind
}

// Schema is an ordered mapping of field name to kind.
type Schema struct {
	Name   string
	Fields []Field
}

// Keys returns the field names in schema order.
func (s Schema) Keys() []string {
	keys := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		keys[i] = f.Name
	}
	return keys
}

func (s Schema) Len() int { return len(s.Fields) }

// KindOf returns the kind of the named field.
func (s Schema) KindOf(name string) (Kind, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f.Kind, true
		}
	}
	return "", false
}

func (s Schema) validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("schema name is required")
	}
	seen := make(map[string]struct{}, len(s.Fields))
	for i, f := range s.Fields {
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("schema %s: field %d has no name", s.Name, i)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("schema %s: duplicate field %s", s.Name, f.Name)
		}
		seen[f.Name] = struct{}{}
		if !f.Kind.Valid() {
			return fmt.Errorf("schema %s field %s: %w: %q", s.Name, f.Name, ErrUnsupportedPrimitiveKind, f.Kind)
		}
	}
	return nil
}
