package coerce

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/schema"
	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/types"
)

// ErrMalformedLog indicates a wire log whose property records do not line up
// with the events that precede them.
var ErrMalformedLog = errors.New("malformed event log")

// Slot keys shared by every record that carries a tagged value.
const (
	keyValueType    = "ValueType"
	keyAddressValue = "AddressValue"
	keyUIntValue    = "UIntValue"
	keyBytes32Value = "Bytes32Value"
)

// ValueToWire serializes a tagged value into the wire form of its kind.
func ValueToWire(v types.Value) (any, error) {
	switch x := v.(type) {
	case types.AddressValue:
		return ToWire(x.Address(), schema.KindAddress)
	case types.UIntValue:
		return ToWire(uint64(x), schema.KindUInt)
	case types.Bytes32Value:
		return [32]byte(x), nil
	}
	return nil, fmt.Errorf("%w: %T is not a slot value", ErrTypeMismatch, v)
}

// ValueFromWire reads raw as the slot member selected by t. Bytes32 values
// are kept as the full 32 bytes.
func ValueFromWire(raw any, t types.ValueType) (types.Value, error) {
	k, err := schema.KindForValueType(t)
	if err != nil {
		return nil, err
	}
	c, err := Canonical(raw, k)
	if err != nil {
		return nil, err
	}
	switch t {
	case types.ValueTypeAddress:
		return types.AddressValue(common.HexToAddress(c.(string))), nil
	case types.ValueTypeUInt:
		n := c.(*big.Int)
		if !n.IsUint64() {
			return nil, fmt.Errorf("%w: %s overflows uint64", ErrTypeMismatch, n)
		}
		return types.UIntValue(n.Uint64()), nil
	default:
		return types.Bytes32Value(c.([32]byte)), nil
	}
}

func slotKey(t types.ValueType) string {
	switch t {
	case types.ValueTypeAddress:
		return keyAddressValue
	case types.ValueTypeUInt:
		return keyUIntValue
	}
	return keyBytes32Value
}

// EncodeSlot writes the tag and all three members of a value slot into args.
// Unselected members hold their zero value.
func EncodeSlot(v types.Value, args map[string]any) error {
	if v == nil {
		return fmt.Errorf("%w: empty slot", ErrTypeMismatch)
	}
	tag, err := PadBytes32(string(v.Type()))
	if err != nil {
		return err
	}
	args[keyValueType] = tag
	args[keyAddressValue] = common.Address{}.Hex()
	args[keyUIntValue] = new(big.Int)
	args[keyBytes32Value] = [32]byte{}

	w, err := ValueToWire(v)
	if err != nil {
		return err
	}
	args[slotKey(v.Type())] = w
	return nil
}

// DecodeSlot reads the tag of rec and the member it selects.
func DecodeSlot(rec Record) (types.ValueType, types.Value, error) {
	tag, err := rec.str(keyValueType)
	if err != nil {
		return "", nil, err
	}
	t := types.ValueType(tag)
	if !t.Valid() {
		return "", nil, fmt.Errorf("%w: value type %q", schema.ErrUnsupportedPrimitiveKind, tag)
	}
	raw, err := rec.Canonical(slotKey(t))
	if err != nil {
		return "", nil, err
	}
	v, err := ValueFromWire(raw, t)
	if err != nil {
		return "", nil, err
	}
	return t, v, nil
}

func bytes32(s string) ([32]byte, error) {
	b, err := PadBytes32(s)
	if err != nil {
		return b, fmt.Errorf("%q: %w", s, err)
	}
	return b, nil
}

// EncodeEvent renders ev as an EsEvent record.
func EncodeEvent(ev types.Event) (types.WireEvent, error) {
	typ, err := bytes32(ev.Type)
	if err != nil {
		return types.WireEvent{}, err
	}
	ver, err := bytes32(ev.Version)
	if err != nil {
		return types.WireEvent{}, err
	}
	args := map[string]any{
		"Id":            new(big.Int).SetUint64(ev.ID),
		"Type":          typ,
		"Version":       ver,
		"TxOrigin":      ev.Originator.Address().Hex(),
		"Created":       big.NewInt(ev.CreatedAt.UnixMilli()),
		"PropertyCount": new(big.Int).SetUint64(ev.PropertyCount),
	}
	if err := EncodeSlot(ev.Value, args); err != nil {
		return types.WireEvent{}, err
	}
	return types.WireEvent{Name: schema.EsEvent, Args: args}, nil
}

// EncodeProperty renders p as an EsEventProperty record.
func EncodeProperty(p types.Property) (types.WireEvent, error) {
	name, err := bytes32(p.Name)
	if err != nil {
		return types.WireEvent{}, err
	}
	args := map[string]any{
		"EventIndex":         new(big.Int).SetUint64(p.EventIndex),
		"EventPropertyIndex": new(big.Int).SetUint64(p.PropertyIndex),
		"Name":               name,
	}
	if err := EncodeSlot(p.Value, args); err != nil {
		return types.WireEvent{}, err
	}
	return types.WireEvent{Name: schema.EsEventProperty, Args: args}, nil
}

// EncodeEnvelope renders an event followed by its properties.
func EncodeEnvelope(env types.EventEnvelope) ([]types.WireEvent, error) {
	out := make([]types.WireEvent, 0, 1+len(env.Properties))
	ev, err := EncodeEvent(env.Event)
	if err != nil {
		return nil, err
	}
	out = append(out, ev)
	for _, p := range env.Properties {
		w, err := EncodeProperty(p)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

// DecodeRecord looks up the schema named by w and binds its args to it.
func DecodeRecord(w types.WireEvent, reg *schema.Registry) (Record, error) {
	s, err := reg.SchemaFor(w.Name)
	if err != nil {
		return Record{}, err
	}
	return RecordFromArgs(w.Args, s)
}

func expect(w types.WireEvent, name string, reg *schema.Registry) (Record, error) {
	if w.Name != name {
		return Record{}, fmt.Errorf("%w: record %q is not %s", ErrMalformedLog, w.Name, name)
	}
	return DecodeRecord(w, reg)
}

// DecodeEvent reads an EsEvent record.
func DecodeEvent(w types.WireEvent, reg *schema.Registry) (types.Event, error) {
	rec, err := expect(w, schema.EsEvent, reg)
	if err != nil {
		return types.Event{}, err
	}
	var ev types.Event
	if ev.ID, err = rec.uint("Id"); err != nil {
		return types.Event{}, err
	}
	if ev.Type, err = rec.str("Type"); err != nil {
		return types.Event{}, err
	}
	if ev.Version, err = rec.str("Version"); err != nil {
		return types.Event{}, err
	}
	if ev.ValueType, ev.Value, err = DecodeSlot(rec); err != nil {
		return types.Event{}, err
	}
	origin, err := rec.Typed("TxOrigin")
	if err != nil {
		return types.Event{}, err
	}
	ev.Originator = types.IdentityFromAddress(origin.(common.Address))
	created, err := rec.uint("Created")
	if err != nil {
		return types.Event{}, err
	}
	if created > math.MaxInt64 {
		return types.Event{}, fmt.Errorf("%w: created %d overflows int64 milliseconds", ErrTypeMismatch, created)
	}
	ev.CreatedAt = time.UnixMilli(int64(created)).UTC()
	if ev.PropertyCount, err = rec.uint("PropertyCount"); err != nil {
		return types.Event{}, err
	}
	return ev, nil
}

// DecodeProperty reads an EsEventProperty record.
func DecodeProperty(w types.WireEvent, reg *schema.Registry) (types.Property, error) {
	rec, err := expect(w, schema.EsEventProperty, reg)
	if err != nil {
		return types.Property{}, err
	}
	var p types.Property
	if p.EventIndex, err = rec.uint("EventIndex"); err != nil {
		return types.Property{}, err
	}
	if p.PropertyIndex, err = rec.uint("EventPropertyIndex"); err != nil {
		return types.Property{}, err
	}
	if p.Name, err = rec.str("Name"); err != nil {
		return types.Property{}, err
	}
	if p.ValueType, p.Value, err = DecodeSlot(rec); err != nil {
		return types.Property{}, err
	}
	return p, nil
}

// DecodeLog groups a wire log into envelopes. Each EsEvent record must be
// followed by exactly PropertyCount EsEventProperty records for the same
// event, in index order.
func DecodeLog(log []types.WireEvent, reg *schema.Registry) ([]types.EventEnvelope, error) {
	out := make([]types.EventEnvelope, 0)
	closeLast := func() error {
		if len(out) == 0 {
			return nil
		}
		last := out[len(out)-1]
		if uint64(len(last.Properties)) != last.Event.PropertyCount {
			return fmt.Errorf("%w: event %d declares %d properties, log has %d",
				ErrMalformedLog, last.Event.ID, last.Event.PropertyCount, len(last.Properties))
		}
		return nil
	}
	for i, w := range log {
		switch w.Name {
		case schema.EsEvent:
			if err := closeLast(); err != nil {
				return nil, err
			}
			ev, err := DecodeEvent(w, reg)
			if err != nil {
				return nil, fmt.Errorf("record %d: %w", i, err)
			}
			out = append(out, types.EventEnvelope{Event: ev, Properties: make([]types.Property, 0, ev.PropertyCount)})
		case schema.EsEventProperty:
			p, err := DecodeProperty(w, reg)
			if err != nil {
				return nil, fmt.Errorf("record %d: %w", i, err)
			}
			if len(out) == 0 {
				return nil, fmt.Errorf("%w: record %d is a property with no event", ErrMalformedLog, i)
			}
			cur := &out[len(out)-1]
			if p.EventIndex != cur.Event.ID || p.PropertyIndex != uint64(len(cur.Properties)) {
				return nil, fmt.Errorf("%w: record %d is property %d/%d, want %d/%d",
					ErrMalformedLog, i, p.EventIndex, p.PropertyIndex, cur.Event.ID, len(cur.Properties))
			}
			cur.Properties = append(cur.Properties, p)
		default:
			if !reg.Has(w.Name) {
				return nil, fmt.Errorf("record %d: %w: %q", i, schema.ErrUnknownEventType, w.Name)
			}
			return nil, fmt.Errorf("%w: record %d is %s", ErrMalformedLog, i, w.Name)
		}
	}
	if err := closeLast(); err != nil {
		return nil, err
	}
	return out, nil
}

// WireJSON converts a wire value into a JSON-friendly form: big integers as
// decimal strings and fixed byte strings as 0x hex. Canonical accepts both.
func WireJSON(raw any) any {
	switch v := raw.(type) {
	case *big.Int:
		if v == nil {
			return "0"
		}
		return v.String()
	case [32]byte:
		return "0x" + hex.EncodeToString(v[:])
	case []byte:
		return "0x" + hex.EncodeToString(v)
	}
	return raw
}

// WireEventJSON applies WireJSON to every arg of w.
func WireEventJSON(w types.WireEvent) types.WireEvent {
	args := make(map[string]any, len(w.Args))
	for k, v := range w.Args {
		args[k] = WireJSON(v)
	}
	return types.WireEvent{Name: w.Name, Args: args}
}
