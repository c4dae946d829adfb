package client_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/client"
	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/schema"
	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/service"
	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/store/memory"
	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/types"
	"github.com/BrandonDHaskell/Chronicle/internal/httpapi"
)

var (
	alice = types.MustIdentity("0x00000000000000000000000000000000000000a1")
	bob   = types.MustIdentity("0x00000000000000000000000000000000000000b0")
	carol = types.MustIdentity("0x00000000000000000000000000000000000000c0")
)

func newExecutor(t *testing.T) *service.Executor {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f, err := service.NewFactory(context.Background(), memory.NewProvider(), schema.Default(), service.FactoryConfig{
		Address: common.HexToAddress("0xf0c7"),
	}, logger)
	require.NoError(t, err)
	return service.NewExecutor(f, logger)
}

// scenario runs the writer scenario against any backend.
func scenario(t *testing.T, backend client.Backend) {
	t.Helper()
	ctx := context.Background()
	a := client.New(backend, nil, alice)

	h, err := a.CreateStore(ctx)
	require.NoError(t, err)

	granted, err := a.Grant(ctx, h, "writer", bob)
	require.NoError(t, err)
	require.Len(t, granted, 1)
	again, err := a.Grant(ctx, h, "writer", bob)
	require.NoError(t, err)
	assert.Empty(t, again)

	env, err := a.As(bob).Append(ctx, h, client.Command{
		Type: "Ping", Version: "1", Value: types.UIntValue(42),
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), env.Event.ID)
	assert.Equal(t, uint64(0), env.Event.PropertyCount)
	assert.Equal(t, types.UIntValue(42), env.Event.Value)
	assert.Equal(t, bob, env.Event.Originator)

	env, err = a.Append(ctx, h, client.Command{
		Type: "ItemSold", Version: "1", Value: bob.Value(),
		Properties: []client.Property{
			{Name: "sku", Value: types.Bytes32Value{1, 2, 3}},
			{Name: "qty", Value: types.UIntValue(5)},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), env.Event.ID)
	require.Len(t, env.Properties, 2)
	assert.Equal(t, types.UIntValue(5), env.Properties[1].Value)

	_, err = a.As(carol).Append(ctx, h, client.Command{Type: "Ping", Version: "1", Value: types.UIntValue(1)})
	assert.ErrorIs(t, err, service.ErrUnauthorized)
}

func TestLocalBackend_Scenario(t *testing.T) {
	scenario(t, client.LocalBackend{Executor: newExecutor(t)})
}

func TestHTTPBackend_Scenario(t *testing.T) {
	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Executor: newExecutor(t),
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	scenario(t, client.NewHTTPBackend(ts.URL))
}

func TestAppend_RejectsOversizedFieldsBeforeSubmitting(t *testing.T) {
	var calls atomic.Int32
	backend := backendFunc(func(context.Context, types.Submission) ([]types.WireEvent, error) {
		calls.Add(1)
		return nil, nil
	})
	c := client.New(backend, nil, alice)
	_, err := c.Append(context.Background(), "0x00000000000000000000000000000000000000c0", client.Command{
		Type: "a-very-long-event-type-name-over-32", Version: "1", Value: types.UIntValue(1),
	})
	assert.Error(t, err)
	assert.Zero(t, calls.Load())
}

type backendFunc func(context.Context, types.Submission) ([]types.WireEvent, error)

func (f backendFunc) Submit(ctx context.Context, sub types.Submission) ([]types.WireEvent, error) {
	return f(ctx, sub)
}

// flakyServer fails the first n requests with 503 and then answers with an
// empty event list.
func flakyServer(t *testing.T, n int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= n {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(types.SubmitResponse{Events: []types.WireEvent{}})
	}))
	t.Cleanup(ts.Close)
	return ts, &hits
}

func TestHTTPBackend_RetriesIdempotentOperations(t *testing.T) {
	ts, hits := flakyServer(t, 2)
	b := client.NewHTTPBackend(ts.URL, client.WithRetries(5, 10*time.Millisecond))

	out, err := b.Submit(context.Background(), types.Submission{Op: types.OpGrant, Caller: alice.String()})
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, int32(3), hits.Load())
}

func TestHTTPBackend_NeverRetriesAppend(t *testing.T) {
	ts, hits := flakyServer(t, 2)
	b := client.NewHTTPBackend(ts.URL, client.WithRetries(5, 10*time.Millisecond))

	_, err := b.Submit(context.Background(), types.Submission{Op: types.OpAppend, Caller: alice.String()})
	assert.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())

	_, err = b.Submit(context.Background(), types.Submission{Op: types.OpCreateStore, Caller: alice.String()})
	assert.Error(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestHTTPBackend_TerminalErrorsAreNotRetried(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: types.ErrorBody{Code: service.CodeUnauthorized, Message: "no"}})
	}))
	defer ts.Close()

	b := client.NewHTTPBackend(ts.URL, client.WithRetries(5, 10*time.Millisecond))
	_, err := b.Submit(context.Background(), types.Submission{Op: types.OpRevoke, Caller: alice.String()})
	assert.ErrorIs(t, err, service.ErrUnauthorized)
	assert.Equal(t, int32(1), hits.Load())
}

func TestDispatch_ReturnsAppEvent(t *testing.T) {
	ctx := context.Background()
	a := client.New(client.LocalBackend{Executor: newExecutor(t)}, nil, alice)
	h, err := a.CreateStore(ctx)
	require.NoError(t, err)

	var sku types.Bytes32Value
	copy(sku[:], "sku-9")
	ev, err := a.Dispatch(ctx, h, client.Command{
		Type: "ItemSold", Version: "1", Value: bob.Value(),
		Properties: []client.Property{
			{Name: "sku", Value: sku},
			{Name: "qty", Value: types.UIntValue(5)},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "ItemSold", ev.Type)
	assert.Equal(t, bob.String(), ev.Value)
	assert.Equal(t, map[string]any{"sku": "sku-9", "qty": uint64(5)}, ev.Payload)
	assert.Equal(t, uint64(0), ev.Meta.ID)
	assert.Equal(t, "1", ev.Meta.Version)
	assert.Equal(t, alice, ev.Meta.TxOrigin)
	assert.False(t, ev.Meta.Created.IsZero())

	_, err = a.As(carol).Dispatch(ctx, h, client.Command{Type: "Ping", Version: "1", Value: types.UIntValue(1)})
	assert.ErrorIs(t, err, service.ErrUnauthorized)
}
