package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/store"
	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/types"
	dbpkg "github.com/BrandonDHaskell/Chronicle/internal/db"
)

// EventLog is one stream of the events table. Reads go straight to the pool;
// appends run on the shared writer.
type EventLog struct {
	db     *sql.DB
	writer *dbpkg.Worker
	stream string
	now    func() time.Time
}

// NewEventLog binds a log to stream. It does not touch the database; use
// Provider.Open to make sure the stream row exists before appending.
func NewEventLog(db *sql.DB, writer *dbpkg.Worker, stream string) *EventLog {
	return &EventLog{db: db, writer: writer, stream: stream, now: time.Now}
}

// WithClock replaces the time source used to stamp appended events.
func (l *EventLog) WithClock(now func() time.Time) *EventLog {
	l.now = now
	return l
}

func (l *EventLog) Append(ctx context.Context, ev types.Event, props []types.Property) (types.Event, []types.Property, error) {
	var (
		stored      types.Event
		storedProps []types.Property
	)
	err := l.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var next uint64
		if err := tx.QueryRowContext(ctx, `
SELECT COALESCE(MAX(event_id) + 1, 0) FROM events WHERE stream = ?;
`, l.stream).Scan(&next); err != nil {
			return fmt.Errorf("Append next id: %w", err)
		}

		stored, storedProps = store.Stamp(ev, props, next, l.now())

		vt, addr, num, b32, err := slotArgs(stored.Value)
		if err != nil {
			return fmt.Errorf("Append event %d: %w", next, err)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO events(
  stream, event_id, type, version,
  value_type, address_value, uint_value, bytes32_value,
  originator, created_at_ms, property_count
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
			l.stream, next, stored.Type, stored.Version,
			vt, addr, num, b32,
			stored.Originator.String(), stored.CreatedAt.UnixMilli(), stored.PropertyCount,
		); err != nil {
			return fmt.Errorf("Append insert event: %w", err)
		}

		for _, p := range storedProps {
			vt, addr, num, b32, err := slotArgs(p.Value)
			if err != nil {
				return fmt.Errorf("Append property %d: %w", p.PropertyIndex, err)
			}
			if _, err := tx.ExecContext(ctx, `
INSERT INTO event_properties(
  stream, event_id, property_index, name,
  value_type, address_value, uint_value, bytes32_value
) VALUES (?, ?, ?, ?, ?, ?, ?, ?);
`,
				l.stream, next, p.PropertyIndex, p.Name,
				vt, addr, num, b32,
			); err != nil {
				return fmt.Errorf("Append insert property %d: %w", p.PropertyIndex, err)
			}
		}
		return nil
	})
	if err != nil {
		return types.Event{}, nil, err
	}
	return stored, storedProps, nil
}

const selectEvent = `
SELECT event_id, type, version,
       value_type, address_value, uint_value, bytes32_value,
       originator, created_at_ms, property_count
FROM events`

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (types.Event, error) {
	var (
		ev        types.Event
		slot      slotRow
		origin    string
		createdMs int64
	)
	if err := row.Scan(
		&ev.ID, &ev.Type, &ev.Version,
		&slot.valueType, &slot.addr, &slot.num, &slot.b32,
		&origin, &createdMs, &ev.PropertyCount,
	); err != nil {
		return types.Event{}, err
	}
	vt, v, err := slot.value()
	if err != nil {
		return types.Event{}, fmt.Errorf("event %d: %w", ev.ID, err)
	}
	ev.ValueType, ev.Value = vt, v
	ev.Originator = types.Identity(origin)
	ev.CreatedAt = time.UnixMilli(createdMs).UTC()
	return ev, nil
}

func (l *EventLog) Get(ctx context.Context, id uint64) (types.Event, error) {
	ev, err := scanEvent(l.db.QueryRowContext(ctx,
		selectEvent+` WHERE stream = ? AND event_id = ?;`, l.stream, id))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Event{}, store.ErrNotFound
	}
	if err != nil {
		return types.Event{}, fmt.Errorf("Get %d: %w", id, err)
	}
	return ev, nil
}

func (l *EventLog) Properties(ctx context.Context, id uint64) ([]types.Property, error) {
	if _, err := l.Get(ctx, id); err != nil {
		return nil, err
	}
	rows, err := l.db.QueryContext(ctx, `
SELECT property_index, name, value_type, address_value, uint_value, bytes32_value
FROM event_properties
WHERE stream = ? AND event_id = ?
ORDER BY property_index;
`, l.stream, id)
	if err != nil {
		return nil, fmt.Errorf("Properties %d: %w", id, err)
	}
	defer rows.Close()

	out := make([]types.Property, 0)
	for rows.Next() {
		var (
			p    types.Property
			slot slotRow
		)
		if err := rows.Scan(&p.PropertyIndex, &p.Name, &slot.valueType, &slot.addr, &slot.num, &slot.b32); err != nil {
			return nil, fmt.Errorf("Properties %d scan: %w", id, err)
		}
		if p.ValueType, p.Value, err = slot.value(); err != nil {
			return nil, fmt.Errorf("Properties %d/%d: %w", id, p.PropertyIndex, err)
		}
		p.EventIndex = id
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Properties %d: %w", id, err)
	}
	return out, nil
}

func (l *EventLog) Count(ctx context.Context) (uint64, error) {
	var n uint64
	if err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE stream = ?;`, l.stream,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("Count: %w", err)
	}
	return n, nil
}

func (l *EventLog) List(ctx context.Context, from uint64, limit int) ([]types.Event, error) {
	out := make([]types.Event, 0)
	if limit <= 0 {
		return out, nil
	}
	rows, err := l.db.QueryContext(ctx,
		selectEvent+` WHERE stream = ? AND event_id >= ? ORDER BY event_id LIMIT ?;`,
		l.stream, from, limit)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("List scan: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	return out, nil
}

// Provider opens EventLogs that share one pool and one writer.
type Provider struct {
	db     *sql.DB
	writer *dbpkg.Worker
	now    func() time.Time
}

func NewProvider(db *sql.DB, writer *dbpkg.Worker) *Provider {
	return &Provider{db: db, writer: writer, now: time.Now}
}

// WithClock sets the time source of every log opened afterwards.
func (p *Provider) WithClock(now func() time.Time) *Provider {
	p.now = now
	return p
}

// Open records stream in the streams table if it is new and returns its log.
func (p *Provider) Open(ctx context.Context, stream string) (store.EventLog, error) {
	nowMs := p.now().UTC().UnixMilli()
	if err := p.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return ensureStream(ctx, tx, stream, nowMs)
	}); err != nil {
		return nil, err
	}
	return NewEventLog(p.db, p.writer, stream).WithClock(p.now), nil
}

// Streams lists every stream name, sorted.
func (p *Provider) Streams(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT stream FROM streams ORDER BY stream;`)
	if err != nil {
		return nil, fmt.Errorf("Streams: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("Streams scan: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
