package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/coerce"
	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/schema"
	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/store"
	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/types"
)

// AppendRequest is one event to append. The log assigns id, creation time
// and property indices; Properties only need Name and the value slot.
type AppendRequest struct {
	Type       string
	Version    string
	ValueType  types.ValueType
	Value      types.Value
	Properties []types.Property
}

// EventStore is one append-only ledger gated by a Gate.
type EventStore struct {
	mu       sync.Mutex
	handle   types.Handle
	log      store.EventLog
	gate     *Gate
	registry *schema.Registry
	strict   bool
	logger   *slog.Logger
}

// EventStoreOptions configures NewEventStore.
type EventStoreOptions struct {
	Handle   types.Handle
	Registry *schema.Registry
	// StrictSchemas rejects event types without a registered schema.
	StrictSchemas bool
	Logger        *slog.Logger
}

func NewEventStore(log store.EventLog, gate *Gate, opt EventStoreOptions) *EventStore {
	if opt.Registry == nil {
		opt.Registry = schema.Default()
	}
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	return &EventStore{
		handle:   opt.Handle,
		log:      log,
		gate:     gate,
		registry: opt.Registry,
		strict:   opt.StrictSchemas,
		logger:   opt.Logger.With("store", opt.Handle),
	}
}

func (s *EventStore) Handle() types.Handle { return s.handle }

// Append authorizes caller, validates req and appends it with its
// properties as one unit.
func (s *EventStore) Append(ctx context.Context, caller types.Identity, req AppendRequest) (types.Event, error) {
	env, err := s.append(ctx, caller, req)
	if err != nil {
		return types.Event{}, err
	}
	return env.Event, nil
}

func (s *EventStore) append(ctx context.Context, caller types.Identity, req AppendRequest) (types.EventEnvelope, error) {
	ctx, span := tracer.Start(ctx, "EventStore.Append")
	defer span.End()
	span.SetAttributes(
		attribute.String("store", s.handle.String()),
		attribute.String("type", req.Type),
		attribute.Int("properties", len(req.Properties)),
	)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.gate.IsAuthorized(caller, ActionAppend) {
		span.SetStatus(codes.Error, "unauthorized")
		return types.EventEnvelope{}, fmt.Errorf("%w: %s may not append", ErrUnauthorized, caller)
	}
	if err := s.validate(req); err != nil {
		span.RecordError(err)
		return types.EventEnvelope{}, err
	}

	ev, props, err := s.log.Append(ctx, types.Event{
		Type:       req.Type,
		Version:    req.Version,
		ValueType:  req.ValueType,
		Value:      req.Value,
		Originator: caller,
	}, req.Properties)
	if err != nil {
		span.RecordError(err)
		return types.EventEnvelope{}, fmt.Errorf("append %s: %w", req.Type, err)
	}
	s.logger.Debug("event appended", "id", ev.ID, "type", ev.Type, "properties", ev.PropertyCount)
	return types.EventEnvelope{Event: ev, Properties: props}, nil
}

func fitsBytes32(field, s string) error {
	if _, err := coerce.ToWire(s, schema.KindBytes32); err != nil {
		return fmt.Errorf("%s %q: %w", field, s, err)
	}
	return nil
}

func (s *EventStore) validate(req AppendRequest) error {
	if err := fitsBytes32("type", req.Type); err != nil {
		return err
	}
	if err := fitsBytes32("version", req.Version); err != nil {
		return err
	}
	if !types.Matches(req.ValueType, req.Value) {
		return fmt.Errorf("%w: value of type %q does not match its tag", coerce.ErrTypeMismatch, req.ValueType)
	}
	for i, p := range req.Properties {
		if p.Name == "" {
			return fmt.Errorf("%w: property %d has no name", ErrInvalidProperty, i)
		}
		if len(p.Name) > coerce.Bytes32Len {
			return fmt.Errorf("%w: property name %q exceeds %d bytes", ErrInvalidProperty, p.Name, coerce.Bytes32Len)
		}
		if !types.Matches(p.ValueType, p.Value) {
			return fmt.Errorf("%w: property %s value does not match tag %q", ErrInvalidProperty, p.Name, p.ValueType)
		}
	}

	err := s.registry.ValidateProperties(req.Type, req.Properties)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, schema.ErrUnknownEventType):
		if s.strict {
			return err
		}
		return nil
	default:
		return fmt.Errorf("%w: %w", ErrInvalidProperty, err)
	}
}

// GetEvent returns event id, or store.ErrNotFound.
func (s *EventStore) GetEvent(ctx context.Context, id uint64) (types.Event, error) {
	return s.log.Get(ctx, id)
}

// GetProperties returns the properties of event id in index order.
func (s *EventStore) GetProperties(ctx context.Context, id uint64) ([]types.Property, error) {
	return s.log.Properties(ctx, id)
}

func (s *EventStore) EventCount(ctx context.Context) (uint64, error) {
	return s.log.Count(ctx)
}

// ListEvents returns up to limit events with id >= from.
func (s *EventStore) ListEvents(ctx context.Context, from uint64, limit int) ([]types.Event, error) {
	return s.log.List(ctx, from, limit)
}
