package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/store"
	sqlitestore "github.com/BrandonDHaskell/Chronicle/internal/chronicle/store/sqlite"
	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/types"
)

var origin = types.MustIdentity("0x00000000000000000000000000000000000000a1")

func openLog(t *testing.T, stream string) (store.EventLog, *sqlitestore.Provider) {
	t.Helper()
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	p := sqlitestore.NewProvider(conn, w).WithClock(func() time.Time {
		return time.Date(2026, 2, 15, 12, 0, 0, 123456789, time.UTC)
	})
	l, err := p.Open(context.Background(), stream)
	if err != nil {
		t.Fatalf("Open %s: %v", stream, err)
	}
	return l, p
}

func sampleProps() []types.Property {
	var sku [32]byte
	copy(sku[:], "sku-1")
	return []types.Property{
		{Name: "buyer", ValueType: types.ValueTypeAddress, Value: types.AddressValue(common.HexToAddress("0xb0b"))},
		{Name: "qty", ValueType: types.ValueTypeUInt, Value: types.UIntValue(^uint64(0))},
		{Name: "sku", ValueType: types.ValueTypeBytes32, Value: types.Bytes32Value(sku)},
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Append: stored values
// ═══════════════════════════════════════════════════════════════════════════

func TestEventLog_Append_RoundTrip(t *testing.T) {
	ctx := context.Background()
	l, _ := openLog(t, "s/events")

	ev, props, err := l.Append(ctx, types.Event{
		Type: "ItemSold", Version: "2",
		ValueType: types.ValueTypeUInt, Value: types.UIntValue(7),
		Originator: origin,
	}, sampleProps())
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if ev.ID != 0 || ev.PropertyCount != 3 || len(props) != 3 {
		t.Fatalf("Append returned id=%d count=%d props=%d", ev.ID, ev.PropertyCount, len(props))
	}

	got, err := l.Get(ctx, 0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	gotCreated, wantEv := got.CreatedAt, ev
	got.CreatedAt, wantEv.CreatedAt = time.Time{}, time.Time{}
	if got != wantEv {
		t.Errorf("Get = %+v\nwant  %+v", got, wantEv)
	}
	got.CreatedAt = gotCreated
	wantCreated := time.Date(2026, 2, 15, 12, 0, 0, 123000000, time.UTC)
	if !got.CreatedAt.Equal(wantCreated) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, wantCreated)
	}

	gotProps, err := l.Properties(ctx, 0)
	if err != nil {
		t.Fatalf("Properties: %v", err)
	}
	for i, p := range gotProps {
		if p != props[i] {
			t.Errorf("property %d = %+v, want %+v", i, p, props[i])
		}
	}
}

func TestEventLog_Append_IDsAreContiguous(t *testing.T) {
	ctx := context.Background()
	l, _ := openLog(t, "s/events")

	for i := 0; i < 5; i++ {
		ev, _, err := l.Append(ctx, types.Event{
			Type: "Ping", Version: "1",
			ValueType: types.ValueTypeUInt, Value: types.UIntValue(uint64(i)),
			Originator: origin,
		}, nil)
		if err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
		if ev.ID != uint64(i) {
			t.Errorf("append %d got id %d", i, ev.ID)
		}
	}
	n, err := l.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 5 {
		t.Errorf("Count = %d, want 5", n)
	}

	page, err := l.List(ctx, 2, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page) != 2 || page[0].ID != 2 || page[1].ID != 3 {
		t.Errorf("List(2,2) = %+v", page)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Reads: missing ids and empty properties
// ═══════════════════════════════════════════════════════════════════════════

func TestEventLog_Get_NotFound(t *testing.T) {
	l, _ := openLog(t, "s/events")
	if _, err := l.Get(context.Background(), 0); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Get: err = %v, want ErrNotFound", err)
	}
	if _, err := l.Properties(context.Background(), 0); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Properties: err = %v, want ErrNotFound", err)
	}
}

func TestEventLog_Properties_EmptyNotNil(t *testing.T) {
	ctx := context.Background()
	l, _ := openLog(t, "s/events")
	if _, _, err := l.Append(ctx, types.Event{
		Type: "Ping", Version: "1",
		ValueType: types.ValueTypeAddress, Value: origin.Value(),
		Originator: origin,
	}, nil); err != nil {
		t.Fatalf("Append: %v", err)
	}
	props, err := l.Properties(ctx, 0)
	if err != nil {
		t.Fatalf("Properties: %v", err)
	}
	if props == nil || len(props) != 0 {
		t.Fatalf("Properties = %#v, want empty non-nil", props)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Streams: isolation and append-only enforcement
// ═══════════════════════════════════════════════════════════════════════════

func TestProvider_StreamsAreIsolated(t *testing.T) {
	ctx := context.Background()
	a, p := openLog(t, "a/events")
	b, err := p.Open(ctx, "b/events")
	if err != nil {
		t.Fatalf("Open b: %v", err)
	}

	ev := types.Event{Type: "Ping", Version: "1", ValueType: types.ValueTypeUInt, Value: types.UIntValue(1), Originator: origin}
	if _, _, err := a.Append(ctx, ev, nil); err != nil {
		t.Fatalf("Append a: %v", err)
	}
	got, _, err := b.Append(ctx, ev, nil)
	if err != nil {
		t.Fatalf("Append b: %v", err)
	}
	if got.ID != 0 {
		t.Errorf("first id in stream b = %d, want 0", got.ID)
	}

	streams, err := p.Streams(ctx)
	if err != nil {
		t.Fatalf("Streams: %v", err)
	}
	if len(streams) != 2 || streams[0] != "a/events" || streams[1] != "b/events" {
		t.Errorf("Streams = %v", streams)
	}

	// Reopening is a no-op for the stream row.
	if _, err := p.Open(ctx, "a/events"); err != nil {
		t.Fatalf("reopen: %v", err)
	}
}

func TestEventLog_RowsAreAppendOnly(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	l, err := sqlitestore.NewProvider(conn, w).Open(ctx, "s/events")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, _, err := l.Append(ctx, types.Event{
		Type: "Ping", Version: "1",
		ValueType: types.ValueTypeUInt, Value: types.UIntValue(1),
		Originator: origin,
	}, sampleProps()); err != nil {
		t.Fatalf("Append: %v", err)
	}

	for _, stmt := range []string{
		`UPDATE events SET type = 'Pong'`,
		`DELETE FROM events`,
		`UPDATE event_properties SET name = 'x'`,
		`DELETE FROM event_properties`,
	} {
		if _, err := conn.ExecContext(ctx, stmt); err == nil {
			t.Errorf("%s: expected trigger to abort", stmt)
		}
	}

	if n, _ := l.Count(ctx); n != 1 {
		t.Errorf("Count after rejected writes = %d, want 1", n)
	}
}

func TestReplay_OverSQLite(t *testing.T) {
	ctx := context.Background()
	l, _ := openLog(t, "s/events")
	for i := 0; i < 4; i++ {
		if _, _, err := l.Append(ctx, types.Event{
			Type: "Ping", Version: "1",
			ValueType: types.ValueTypeUInt, Value: types.UIntValue(uint64(i)),
			Originator: origin,
		}, sampleProps()[:i%3]); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	var total int
	n, err := store.Replay(ctx, l, 2, func(env types.EventEnvelope) error {
		total += len(env.Properties)
		return nil
	})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if n != 4 || total != 0+1+2+0 {
		t.Errorf("Replay applied %d events, %d properties", n, total)
	}
}
