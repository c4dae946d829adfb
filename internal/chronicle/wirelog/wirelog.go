// Package wirelog is the protobuf encoding of wire logs and submissions.
// The messages are declared in wirelog.proto and built at init into
// dynamic messages, so encoding and decoding go through proto.Marshal and
// proto.Unmarshal.
//
// Record values are positional, in the key order of the schema named by
// Record.name. uint holds a big-endian unsigned integer without leading
// zeros.
package wirelog

import (
	"errors"
	"fmt"
	"math/big"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/coerce"
	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/schema"
	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/types"
)

// ContentType is the media type of encoded messages.
const ContentType = "application/x-protobuf"

var ErrMalformed = errors.New("malformed wirelog message")

// Marshal encodes a wire log. Every record must match its registered schema.
func Marshal(log []types.WireEvent, reg *schema.Registry) ([]byte, error) {
	m := dynamicpb.NewMessage(logMsg)
	records := m.Mutable(logRecords).List()
	for i, w := range log {
		rec, err := toRecord(w, reg)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		records.Append(protoreflect.ValueOfMessage(rec))
	}
	return marshal(m)
}

// Unmarshal decodes a wire log. Args hold canonical wire values.
func Unmarshal(b []byte, reg *schema.Registry) ([]types.WireEvent, error) {
	m := dynamicpb.NewMessage(logMsg)
	if err := unmarshal(b, m); err != nil {
		return nil, err
	}
	records := m.Get(logRecords).List()
	out := make([]types.WireEvent, 0, records.Len())
	for i := range records.Len() {
		w, err := fromRecord(records.Get(i).Message(), reg)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, w)
	}
	return out, nil
}

// MarshalSubmission encodes sub. Args are laid out by the command schema the
// operation takes; properties by AppendProperty.
func MarshalSubmission(sub types.Submission, reg *schema.Registry) ([]byte, error) {
	m := dynamicpb.NewMessage(submissionMsg)
	setString(m, subOp, string(sub.Op))
	setString(m, subCaller, sub.Caller)
	setString(m, subStore, sub.Store)

	if name, ok := argsSchema(sub.Op); ok {
		rec, err := toRecord(types.WireEvent{Name: name, Args: sub.Args}, reg)
		if err != nil {
			return nil, fmt.Errorf("args: %w", err)
		}
		m.Set(subArgs, protoreflect.ValueOfMessage(rec))
	}
	props := m.Mutable(subProperties).List()
	for i, p := range sub.Properties {
		rec, err := toRecord(types.WireEvent{Name: schema.AppendProperty, Args: p}, reg)
		if err != nil {
			return nil, fmt.Errorf("property %d: %w", i, err)
		}
		props.Append(protoreflect.ValueOfMessage(rec))
	}
	return marshal(m)
}

// UnmarshalSubmission decodes a submission written by MarshalSubmission.
func UnmarshalSubmission(b []byte, reg *schema.Registry) (types.Submission, error) {
	m := dynamicpb.NewMessage(submissionMsg)
	if err := unmarshal(b, m); err != nil {
		return types.Submission{}, err
	}
	sub := types.Submission{
		Op:     types.Operation(m.Get(subOp).String()),
		Caller: m.Get(subCaller).String(),
		Store:  m.Get(subStore).String(),
	}
	if m.Has(subArgs) {
		w, err := fromRecord(m.Get(subArgs).Message(), reg)
		if err != nil {
			return types.Submission{}, fmt.Errorf("args: %w", err)
		}
		sub.Args = w.Args
	}
	props := m.Get(subProperties).List()
	for i := range props.Len() {
		w, err := fromRecord(props.Get(i).Message(), reg)
		if err != nil {
			return types.Submission{}, fmt.Errorf("property %d: %w", i, err)
		}
		sub.Properties = append(sub.Properties, w.Args)
	}
	return sub, nil
}

func argsSchema(op types.Operation) (string, bool) {
	switch op {
	case types.OpAppend:
		return schema.AppendCommand, true
	case types.OpGrant, types.OpRevoke:
		return schema.RoleCommand, true
	}
	return "", false
}

func marshal(m proto.Message) ([]byte, error) {
	b, err := proto.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return b, nil
}

func unmarshal(b []byte, m proto.Message) error {
	if err := proto.Unmarshal(b, m); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

func setString(m *dynamicpb.Message, fd protoreflect.FieldDescriptor, s string) {
	if s != "" {
		m.Set(fd, protoreflect.ValueOfString(s))
	}
}

func toRecord(w types.WireEvent, reg *schema.Registry) (*dynamicpb.Message, error) {
	rec, err := coerce.DecodeRecord(w, reg)
	if err != nil {
		return nil, err
	}
	values, err := rec.Positional()
	if err != nil {
		return nil, err
	}
	m := dynamicpb.NewMessage(recordMsg)
	setString(m, recordName, w.Name)
	list := m.Mutable(recordValues).List()
	for i, f := range rec.Schema.Fields {
		list.Append(protoreflect.ValueOfMessage(toValue(f.Kind, values[i])))
	}
	return m, nil
}

// toValue encodes a canonical value of kind k.
func toValue(k schema.Kind, v any) *dynamicpb.Message {
	m := dynamicpb.NewMessage(valueMsg)
	switch k {
	case schema.KindAddress:
		m.Set(valueAddress, protoreflect.ValueOfString(v.(string)))
	case schema.KindUInt:
		m.Set(valueUInt, protoreflect.ValueOfBytes(v.(*big.Int).Bytes()))
	case schema.KindBytes32:
		fixed := v.([32]byte)
		m.Set(valueFixed, protoreflect.ValueOfBytes(fixed[:]))
	default:
		m.Set(valueText, protoreflect.ValueOfString(v.(string)))
	}
	return m
}

func fromRecord(m protoreflect.Message, reg *schema.Registry) (types.WireEvent, error) {
	name := m.Get(recordName).String()
	list := m.Get(recordValues).List()
	values := make([]any, 0, list.Len())
	for i := range list.Len() {
		v, err := fromValue(list.Get(i).Message())
		if err != nil {
			return types.WireEvent{}, err
		}
		values = append(values, v)
	}

	s, err := reg.SchemaFor(name)
	if err != nil {
		return types.WireEvent{}, err
	}
	rec, err := coerce.RecordFromPositionalValues(values, s)
	if err != nil {
		return types.WireEvent{}, err
	}
	canonical, err := rec.Positional()
	if err != nil {
		return types.WireEvent{}, err
	}
	rec, _ = coerce.RecordFromPositionalValues(canonical, s)
	return types.WireEvent{Name: name, Args: rec.Values}, nil
}

func fromValue(m protoreflect.Message) (any, error) {
	fd := m.WhichOneof(valueOneof)
	if fd == nil {
		return nil, fmt.Errorf("%w: empty value", ErrMalformed)
	}
	v := m.Get(fd)
	switch fd.Number() {
	case valueUInt.Number():
		return new(big.Int).SetBytes(v.Bytes()), nil
	case valueFixed.Number():
		return append([]byte(nil), v.Bytes()...), nil
	default:
		return v.String(), nil
	}
}
