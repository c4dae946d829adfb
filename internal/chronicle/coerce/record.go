package coerce

import (
	"fmt"
	"sort"

	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/schema"
)

// Record is a set of raw wire values laid out by a schema. Values are kept
// as received; Typed and Canonical read them on demand.
type Record struct {
	Schema schema.Schema
	Values map[string]any
}

// RecordFromPositionalValues zips values onto the schema's keys in order.
func RecordFromPositionalValues(values []any, s schema.Schema) (Record, error) {
	if len(values) != s.Len() {
		return Record{}, fmt.Errorf("%w: %s has %d keys, got %d values", ErrSchemaArityMismatch, s.Name, s.Len(), len(values))
	}
	rec := Record{Schema: s, Values: make(map[string]any, len(values))}
	for i, f := range s.Fields {
		rec.Values[f.Name] = values[i]
	}
	return rec, nil
}

// RecordFromArgs checks that args carries exactly the schema's keys.
func RecordFromArgs(args map[string]any, s schema.Schema) (Record, error) {
	for _, f := range s.Fields {
		if _, ok := args[f.Name]; !ok {
			return Record{}, fmt.Errorf("%w: %s is missing %s", ErrSchemaArityMismatch, s.Name, f.Name)
		}
	}
	if len(args) != s.Len() {
		extra := make([]string, 0)
		for k := range args {
			if _, ok := s.KindOf(k); !ok {
				extra = append(extra, k)
			}
		}
		sort.Strings(extra)
		return Record{}, fmt.Errorf("%w: %s has unexpected keys %v", ErrSchemaArityMismatch, s.Name, extra)
	}
	values := make(map[string]any, len(args))
	for k, v := range args {
		values[k] = v
	}
	return Record{Schema: s, Values: values}, nil
}

func (r Record) kind(name string) (schema.Kind, error) {
	k, ok := r.Schema.KindOf(name)
	if !ok {
		return "", fmt.Errorf("%w: %s has no field %s", ErrSchemaArityMismatch, r.Schema.Name, name)
	}
	return k, nil
}

// Typed decodes one field into its typed form.
func (r Record) Typed(name string) (any, error) {
	k, err := r.kind(name)
	if err != nil {
		return nil, err
	}
	v, err := FromWire(r.Values[name], k)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", r.Schema.Name, name, err)
	}
	return v, nil
}

// Canonical returns one field in canonical wire form.
func (r Record) Canonical(name string) (any, error) {
	k, err := r.kind(name)
	if err != nil {
		return nil, err
	}
	v, err := Canonical(r.Values[name], k)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", r.Schema.Name, name, err)
	}
	return v, nil
}

// Decode returns every field in typed form, keyed by name.
func (r Record) Decode() (map[string]any, error) {
	out := make(map[string]any, r.Schema.Len())
	for _, f := range r.Schema.Fields {
		v, err := r.Typed(f.Name)
		if err != nil {
			return nil, err
		}
		out[f.Name] = v
	}
	return out, nil
}

// Positional returns the canonical values in schema order.
func (r Record) Positional() ([]any, error) {
	out := make([]any, 0, r.Schema.Len())
	for _, f := range r.Schema.Fields {
		v, err := r.Canonical(f.Name)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (r Record) str(name string) (string, error) {
	v, err := r.Typed(name)
	if err != nil {
		return "", err
	}
	s, _ := v.(string)
	return s, nil
}

func (r Record) uint(name string) (uint64, error) {
	v, err := r.Typed(name)
	if err != nil {
		return 0, err
	}
	n, _ := v.(uint64)
	return n, nil
}
