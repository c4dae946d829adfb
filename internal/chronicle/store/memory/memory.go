// Package memory keeps event logs in process memory. It is intended for
// tests and dev environments; nothing survives a restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/store"
	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/types"
)

// EventLog is an in-memory append-only stream.
type EventLog struct {
	mu     sync.RWMutex
	now    func() time.Time
	events []types.Event
	props  [][]types.Property
}

func NewEventLog() *EventLog {
	return &EventLog{now: time.Now}
}

// WithClock replaces the time source used to stamp appended events.
func (l *EventLog) WithClock(now func() time.Time) *EventLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
	return l
}

func (l *EventLog) Append(_ context.Context, ev types.Event, props []types.Property) (types.Event, []types.Property, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ev, stored := store.Stamp(ev, props, uint64(len(l.events)), l.now())
	l.events = append(l.events, ev)
	l.props = append(l.props, stored)

	out := make([]types.Property, len(stored))
	copy(out, stored)
	return ev, out, nil
}

func (l *EventLog) Get(_ context.Context, id uint64) (types.Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if id >= uint64(len(l.events)) {
		return types.Event{}, store.ErrNotFound
	}
	return l.events[id], nil
}

func (l *EventLog) Properties(_ context.Context, id uint64) ([]types.Property, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if id >= uint64(len(l.events)) {
		return nil, store.ErrNotFound
	}
	out := make([]types.Property, len(l.props[id]))
	copy(out, l.props[id])
	return out, nil
}

func (l *EventLog) Count(_ context.Context) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.events)), nil
}

func (l *EventLog) List(_ context.Context, from uint64, limit int) ([]types.Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := uint64(len(l.events))
	if from >= n || limit <= 0 {
		return []types.Event{}, nil
	}
	end := n
	if uint64(limit) < end-from {
		end = from + uint64(limit)
	}
	out := make([]types.Event, end-from)
	copy(out, l.events[from:end])
	return out, nil
}

// Provider hands out one EventLog per stream name.
type Provider struct {
	mu   sync.Mutex
	now  func() time.Time
	logs map[string]*EventLog
}

func NewProvider() *Provider {
	return &Provider{now: time.Now, logs: make(map[string]*EventLog)}
}

// WithClock sets the time source of every log opened afterwards.
func (p *Provider) WithClock(now func() time.Time) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now = now
	return p
}

func (p *Provider) Open(_ context.Context, stream string) (store.EventLog, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.logs[stream]
	if !ok {
		l = &EventLog{now: p.now}
		p.logs[stream] = l
	}
	return l, nil
}

// Streams returns the number of streams opened so far.  Test-only helper.
func (p *Provider) Streams() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.logs)
}
