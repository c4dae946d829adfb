package types

import "time"

// Event is one immutable entry of an event log. ID, CreatedAt and
// PropertyCount are assigned by the log at append time.
type Event struct {
	ID            uint64
	Type          string
	Version       string
	ValueType     ValueType
	Value         Value
	Originator    Identity
	CreatedAt     time.Time
	PropertyCount uint64
}

// Property is a named, typed sub-value of an Event. EventIndex and
// PropertyIndex are assigned by the log; callers only fill Name and the
// value slot.
type Property struct {
	EventIndex    uint64
	PropertyIndex uint64
	Name          string
	ValueType     ValueType
	Value         Value
}

// EventEnvelope is an event together with its properties, in index order.
type EventEnvelope struct {
	Event      Event
	Properties []Property
}

// Property returns the first property named name.
func (e EventEnvelope) Property(name string) (Property, bool) {
	for _, p := range e.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

// AppEvent is the application-facing view of an EventEnvelope: the event
// type, its properties keyed by name as plain values, and the log metadata
// kept apart from the payload. Value carries the event's own slot.
type AppEvent struct {
	Type    string         `json:"type"`
	Value   any            `json:"value"`
	Payload map[string]any `json:"payload"`
	Meta    AppEventMeta   `json:"meta"`
}

// AppEventMeta is the log metadata of an AppEvent.
type AppEventMeta struct {
	ID       uint64    `json:"id"`
	Version  string    `json:"version"`
	TxOrigin Identity  `json:"txOrigin"`
	Created  time.Time `json:"created"`
}
