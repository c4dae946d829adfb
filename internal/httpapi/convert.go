package httpapi

import (
	"time"

	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/coerce"
	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/types"
)

func eventToJSON(ev types.Event) types.EventJSON {
	return types.EventJSON{
		ID:            ev.ID,
		Type:          ev.Type,
		Version:       ev.Version,
		ValueType:     string(ev.ValueType),
		Value:         ev.Value.String(),
		Originator:    ev.Originator.String(),
		CreatedAt:     ev.CreatedAt.UTC().Format(time.RFC3339Nano),
		PropertyCount: ev.PropertyCount,
	}
}

func eventsToJSON(events []types.Event) []types.EventJSON {
	out := make([]types.EventJSON, 0, len(events))
	for _, ev := range events {
		out = append(out, eventToJSON(ev))
	}
	return out
}

func propertiesToJSON(props []types.Property) []types.PropertyJSON {
	out := make([]types.PropertyJSON, 0, len(props))
	for _, p := range props {
		out = append(out, types.PropertyJSON{
			EventIndex:    p.EventIndex,
			PropertyIndex: p.PropertyIndex,
			Name:          p.Name,
			ValueType:     string(p.ValueType),
			Value:         p.Value.String(),
		})
	}
	return out
}

func logToJSON(log []types.WireEvent) []types.WireEvent {
	out := make([]types.WireEvent, 0, len(log))
	for _, w := range log {
		out = append(out, coerce.WireEventJSON(w))
	}
	return out
}

func handlesToJSON(hs []types.Handle) []string {
	out := make([]string, 0, len(hs))
	for _, h := range hs {
		out = append(out, h.String())
	}
	return out
}

func identitiesToJSON(ids []types.Identity) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}
