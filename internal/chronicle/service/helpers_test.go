package service_test

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/schema"
	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/service"
	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/store"
	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/store/memory"
	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/store/sqlite"
	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/types"
	"github.com/BrandonDHaskell/Chronicle/internal/db"
)

var (
	alice = types.MustIdentity("0x00000000000000000000000000000000000000a1")
	bob   = types.MustIdentity("0x00000000000000000000000000000000000000b0")
	carol = types.MustIdentity("0x00000000000000000000000000000000000000c0")

	factoryAddr = common.HexToAddress("0x00000000000000000000000000000000000f0c70")
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestFactory builds a factory over provider with the default registry
// and policy.
func newTestFactory(t *testing.T, provider store.Provider) *service.Factory {
	t.Helper()
	f, err := service.NewFactory(context.Background(), provider, schema.Default(), service.FactoryConfig{
		Address: factoryAddr,
	}, quietLogger())
	require.NoError(t, err)
	return f
}

// newTestInstance creates one store owned by alice on a fresh in-memory
// provider.
func newTestInstance(t *testing.T) (*service.Factory, *service.Instance) {
	t.Helper()
	f := newTestFactory(t, memory.NewProvider())
	h, err := f.CreateStore(context.Background(), alice)
	require.NoError(t, err)
	inst, err := f.Open(context.Background(), h)
	require.NoError(t, err)
	return f, inst
}

func ping(v uint64) service.AppendRequest {
	return service.AppendRequest{
		Type: "Ping", Version: "1",
		ValueType: types.ValueTypeUInt, Value: types.UIntValue(v),
	}
}

// newSQLiteProvider returns a provider over a per-test in-memory database
// together with its writer, so tests can hold the writer busy.
func newSQLiteProvider(t *testing.T) (*sqlite.Provider, *db.Worker) {
	t.Helper()
	name := "service_" + strings.ReplaceAll(t.Name(), "/", "_")
	conn, err := db.OpenDSN(context.Background(), db.MemoryDSN(name))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	w := db.NewWorker(conn)
	t.Cleanup(w.Close)
	return sqlite.NewProvider(conn, w), w
}

// holdWriter occupies w until the returned release func is called.
func holdWriter(t *testing.T, w *db.Worker) (release func()) {
	t.Helper()
	started := make(chan struct{})
	done := make(chan struct{})
	finished := make(chan error, 1)
	go func() {
		finished <- w.Do(context.Background(), func(context.Context, *sql.Tx) error {
			close(started)
			<-done
			return nil
		})
	}()
	<-started
	return func() {
		close(done)
		require.NoError(t, <-finished)
	}
}
