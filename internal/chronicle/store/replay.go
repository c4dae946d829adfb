package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/types"
)

const defaultPageSize = 200

// ErrLogRequired indicates a missing event log.
var ErrLogRequired = errors.New("event log is required")

// ApplyFunc consumes one replayed event with its properties.
type ApplyFunc func(env types.EventEnvelope) error

// Replay reads log from the first event in id order and hands each event,
// with its properties, to apply. It returns the number of events applied and
// fails on an id gap.
func Replay(ctx context.Context, log EventLog, pageSize int, apply ApplyFunc) (uint64, error) {
	if log == nil {
		return 0, ErrLogRequired
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	var next uint64
	for {
		events, err := log.List(ctx, next, pageSize)
		if err != nil {
			return next, err
		}
		if len(events) == 0 {
			return next, nil
		}
		for _, ev := range events {
			if ev.ID != next {
				return next, fmt.Errorf("event id gap: expected %d got %d", next, ev.ID)
			}
			props, err := log.Properties(ctx, ev.ID)
			if err != nil {
				return next, err
			}
			if uint64(len(props)) != ev.PropertyCount {
				return next, fmt.Errorf("event %d: property count %d, stored %d", ev.ID, ev.PropertyCount, len(props))
			}
			if err := apply(types.EventEnvelope{Event: ev, Properties: props}); err != nil {
				return next, fmt.Errorf("apply event %d: %w", ev.ID, err)
			}
			next++
		}
	}
}
