// Package store declares the persistence contract of an event log. Each log
// is one append-only stream; implementations live in the memory and sqlite
// subpackages.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/types"
)

// ErrNotFound is returned for ids that were never assigned.
var ErrNotFound = errors.New("not found")

// EventLog persists the events of one stream.
type EventLog interface {
	// Append stores ev and props as one atomic unit. The log assigns the
	// event id, creation time, property count and property indices, and
	// returns the stored records.
	Append(ctx context.Context, ev types.Event, props []types.Property) (types.Event, []types.Property, error)

	Get(ctx context.Context, id uint64) (types.Event, error)

	// Properties returns the properties of event id in index order. The
	// slice is empty, not nil, when the event has none.
	Properties(ctx context.Context, id uint64) ([]types.Property, error)

	Count(ctx context.Context) (uint64, error)

	// List returns up to limit events with id >= from, in id order.
	List(ctx context.Context, from uint64, limit int) ([]types.Event, error)
}

// Provider opens event logs by stream name. Opening a stream that does not
// exist yet creates it empty.
type Provider interface {
	Open(ctx context.Context, stream string) (EventLog, error)
}

// Stream names used by the factory and its instances.
const FactoryStream = "factory"

func EventsStream(h types.Handle) string { return h.String() + "/events" }

func RBACStream(h types.Handle) string { return h.String() + "/rbac" }

// Stamp fills the fields an EventLog assigns at append: id, creation time
// truncated to milliseconds, property count and property indices. props is
// copied.
func Stamp(ev types.Event, props []types.Property, id uint64, now time.Time) (types.Event, []types.Property) {
	ev.ID = id
	ev.CreatedAt = now.UTC().Truncate(time.Millisecond)
	ev.PropertyCount = uint64(len(props))
	out := make([]types.Property, len(props))
	for i, p := range props {
		p.EventIndex = id
		p.PropertyIndex = uint64(i)
		out[i] = p
	}
	return ev, out
}
