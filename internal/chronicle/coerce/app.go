package coerce

import (
	"fmt"

	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/types"
)

// PlainValue unwraps a slot value: addresses become checksummed hex,
// integers uint64 and Bytes32 the text with NUL bytes removed.
func PlainValue(v types.Value) (any, error) {
	switch x := v.(type) {
	case types.AddressValue:
		return x.String(), nil
	case types.UIntValue:
		return uint64(x), nil
	case types.Bytes32Value:
		return TrimBytes32([32]byte(x)), nil
	}
	return nil, fmt.Errorf("%w: %T is not a slot value", ErrTypeMismatch, v)
}

// ToAppEvent projects env into its application-facing form. A later
// property wins over an earlier one with the same name.
func ToAppEvent(env types.EventEnvelope) (types.AppEvent, error) {
	value, err := PlainValue(env.Event.Value)
	if err != nil {
		return types.AppEvent{}, fmt.Errorf("event %d: %w", env.Event.ID, err)
	}
	payload := make(map[string]any, len(env.Properties))
	for _, p := range env.Properties {
		v, err := PlainValue(p.Value)
		if err != nil {
			return types.AppEvent{}, fmt.Errorf("event %d property %s: %w", env.Event.ID, p.Name, err)
		}
		payload[p.Name] = v
	}
	return types.AppEvent{
		Type:    env.Event.Type,
		Value:   value,
		Payload: payload,
		Meta: types.AppEventMeta{
			ID:       env.Event.ID,
			Version:  env.Event.Version,
			TxOrigin: env.Event.Originator,
			Created:  env.Event.CreatedAt,
		},
	}, nil
}
