package schema

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/types"
)

// Names of the built-in schemas in schemas.yaml.
const (
	EsEvent           = "EsEvent"
	EsEventProperty   = "EsEventProperty"
	AppendCommand     = "AppendCommand"
	AppendProperty    = "AppendProperty"
	RoleCommand       = "RoleCommand"
	RoleGranted       = "RoleGranted"
	RoleRevoked       = "RoleRevoked"
	EventStoreCreated = "EventStoreCreated"
)

//go:embed schemas.yaml
var defaultTable []byte

// Registry stores schemas by name. It has no mutating methods.
type Registry struct {
	schemas map[string]Schema
}

// New builds a registry from schemas, rejecting duplicates and unknown kinds.
func New(schemas ...Schema) (*Registry, error) {
	r := &Registry{schemas: make(map[string]Schema, len(schemas))}
	for _, s := range schemas {
		s.Name = strings.TrimSpace(s.Name)
		if err := s.validate(); err != nil {
			return nil, err
		}
		if _, exists := r.schemas[s.Name]; exists {
			return nil, fmt.Errorf("schema already registered: %s", s.Name)
		}
		fields := make([]Field, len(s.Fields))
		copy(fields, s.Fields)
		s.Fields = fields
		r.schemas[s.Name] = s
	}
	return r, nil
}

type yamlField struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`
}

type yamlSchema struct {
	Name   string      `yaml:"name"`
	Fields []yamlField `yaml:"fields"`
}

// Parse builds a registry from a YAML table: a list of {name, fields}
// entries, each field a {name, kind} pair.
func Parse(table []byte) (*Registry, error) {
	var entries []yamlSchema
	if err := yaml.Unmarshal(table, &entries); err != nil {
		return nil, fmt.Errorf("parse schema table: %w", err)
	}
	schemas := make([]Schema, 0, len(entries))
	for _, e := range entries {
		s := Schema{Name: e.Name, Fields: make([]Field, 0, len(e.Fields))}
		for _, f := range e.Fields {
			k, err := ParseKind(f.Kind)
			if err != nil {
				return nil, fmt.Errorf("schema %s field %s: %w", e.Name, f.Name, err)
			}
			s.Fields = append(s.Fields, Field{Name: f.Name, Kind: k})
		}
		schemas = append(schemas, s)
	}
	return New(schemas...)
}

var defaultRegistry = sync.OnceValue(func() *Registry {
	r, err := Parse(defaultTable)
	if err != nil {
		panic(fmt.Sprintf("schema: embedded table: %v", err))
	}
	return r
})

// Default returns the registry built from the embedded table.
func Default() *Registry { return defaultRegistry() }

// SchemaFor returns the schema registered under eventType.
func (r *Registry) SchemaFor(eventType string) (Schema, error) {
	s, ok := r.schemas[eventType]
	if !ok {
		return Schema{}, fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}
	return s, nil
}

func (r *Registry) Has(eventType string) bool {
	_, ok := r.schemas[eventType]
	return ok
}

// Names returns every registered name, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.schemas))
	for n := range r.schemas {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// KindForValueType maps a storable slot type to its primitive kind.
func KindForValueType(t types.ValueType) (Kind, error) {
	switch t {
	case types.ValueTypeAddress:
		return KindAddress, nil
	case types.ValueTypeUInt:
		return KindUInt, nil
	case types.ValueTypeBytes32:
		return KindBytes32, nil
	}
	return "", fmt.Errorf("%w: value type %q", ErrUnsupportedPrimitiveKind, t)
}

// ValidateProperties checks props against the schema of eventType: same
// names in the same order, and each value type matching the field kind.
// It returns ErrUnknownEventType when no schema is registered so callers can
// choose whether unregistered types are acceptable.
func (r *Registry) ValidateProperties(eventType string, props []types.Property) error {
	s, err := r.SchemaFor(eventType)
	if err != nil {
		return err
	}
	if len(props) != s.Len() {
		return fmt.Errorf("%w: %s expects %d properties, got %d", ErrPropertyMismatch, eventType, s.Len(), len(props))
	}
	for i, p := range props {
		f := s.Fields[i]
		if p.Name != f.Name {
			return fmt.Errorf("%w: %s property %d is %q, want %q", ErrPropertyMismatch, eventType, i, p.Name, f.Name)
		}
		k, err := KindForValueType(p.ValueType)
		if err != nil || k != f.Kind {
			return fmt.Errorf("%w: %s property %s has type %q, want %s", ErrPropertyMismatch, eventType, p.Name, p.ValueType, f.Kind)
		}
	}
	return nil
}
