package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/service"
	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/store"
	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/store/memory"
	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/types"
)

// providers runs fn once per storage backend.
func providers(t *testing.T, fn func(t *testing.T, provider store.Provider)) {
	t.Run("memory", func(t *testing.T) { fn(t, memory.NewProvider()) })
	t.Run("sqlite", func(t *testing.T) {
		provider, _ := newSQLiteProvider(t)
		fn(t, provider)
	})
}

func subject(i int) types.Identity {
	return types.MustIdentity(fmt.Sprintf("0x%040x", 0x1000+i))
}

// ── Concurrent writers ──────────────────────────────────────────────────────

func TestAppend_ConcurrentWritersGetContiguousIDs(t *testing.T) {
	providers(t, func(t *testing.T, provider store.Provider) {
		ctx := context.Background()
		f := newTestFactory(t, provider)
		h, err := f.CreateStore(ctx, alice)
		require.NoError(t, err)
		inst, err := f.Open(ctx, h)
		require.NoError(t, err)

		const n = 32
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				req := ping(uint64(i))
				req.Properties = []types.Property{{Name: "seq", ValueType: types.ValueTypeUInt, Value: types.UIntValue(i)}}
				_, err := inst.Store.Append(ctx, alice, req)
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		count, err := inst.Store.EventCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(n), count)

		events, err := inst.Store.ListEvents(ctx, 0, n+1)
		require.NoError(t, err)
		require.Len(t, events, n)
		seen := make(map[types.UIntValue]bool, n)
		for i, ev := range events {
			assert.Equal(t, uint64(i), ev.ID)
			props, err := inst.Store.GetProperties(ctx, ev.ID)
			require.NoError(t, err)
			require.Len(t, props, int(ev.PropertyCount))
			assert.Equal(t, ev.Value, props[0].Value, "properties stay with their event")
			seen[ev.Value.(types.UIntValue)] = true
		}
		assert.Len(t, seen, n)
	})
}

func TestGrant_ConcurrentGrantsAllApplied(t *testing.T) {
	providers(t, func(t *testing.T, provider store.Provider) {
		ctx := context.Background()
		f := newTestFactory(t, provider)
		h, err := f.CreateStore(ctx, alice)
		require.NoError(t, err)
		inst, err := f.Open(ctx, h)
		require.NoError(t, err)

		const n = 16
		var wg sync.WaitGroup
		for i := range n {
			wg.Add(2)
			// Two goroutines race to grant the same subject; one wins.
			for range 2 {
				go func() {
					defer wg.Done()
					_, err := inst.Gate.Grant(ctx, alice, "writer", subject(i))
					assert.NoError(t, err)
				}()
			}
		}
		wg.Wait()

		assert.Len(t, inst.Gate.Members(service.RoleWriter), n)
		hist, err := inst.Gate.History(ctx)
		require.NoError(t, err)
		assert.Len(t, hist, n+1, "bootstrap plus one grant per subject")

		restarted := newTestFactory(t, provider)
		again, err := restarted.Open(ctx, h)
		require.NoError(t, err)
		assert.Equal(t, inst.Gate.Members(service.RoleWriter), again.Gate.Members(service.RoleWriter))
	})
}

func TestCreateStore_ConcurrentHandlesUnique(t *testing.T) {
	providers(t, func(t *testing.T, provider store.Provider) {
		ctx := context.Background()
		f := newTestFactory(t, provider)

		const n = 12
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			handles = make(map[types.Handle]types.Identity, n)
		)
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				owner := subject(i % 3)
				h, err := f.CreateStore(ctx, owner)
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				handles[h] = owner
				mu.Unlock()
			}()
		}
		wg.Wait()
		assert.Len(t, handles, n)

		restarted := newTestFactory(t, provider)
		all := restarted.ListAllStores()
		assert.Len(t, all, n)
		for _, h := range all {
			owner, ok := restarted.OwnerOf(h)
			require.True(t, ok)
			assert.Equal(t, handles[h], owner)
		}
	})
}

// ── Cancellation over sqlite ────────────────────────────────────────────────

func TestGrant_CancelledWhileQueuedLeavesMembershipUnchanged(t *testing.T) {
	provider, w := newSQLiteProvider(t)
	f := newTestFactory(t, provider)
	ctx := context.Background()
	h, err := f.CreateStore(ctx, alice)
	require.NoError(t, err)
	inst, err := f.Open(ctx, h)
	require.NoError(t, err)

	release := holdWriter(t, w)
	cctx, cancel := context.WithCancel(ctx)
	errc := make(chan error, 1)
	go func() {
		_, err := inst.Gate.Grant(cctx, alice, "writer", bob)
		errc <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	release()
	require.ErrorIs(t, <-errc, context.Canceled)
	assert.False(t, inst.Gate.HasRole(bob, service.RoleWriter))

	restarted := newTestFactory(t, provider)
	again, err := restarted.Open(ctx, h)
	require.NoError(t, err)
	assert.False(t, again.Gate.HasRole(bob, service.RoleWriter), "durable state matches memory")

	granted, err := inst.Gate.Grant(ctx, alice, "writer", bob)
	require.NoError(t, err)
	assert.Len(t, granted, 1, "the retried grant is effective")
}
