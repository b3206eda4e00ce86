package flowstate_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jrsteele09/go-opencloud-oauth/flowstate"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const testState = "0f8fad5b-d9cb-469f-a165-70867728950e"

func testPending() *flowstate.Pending {
	return &flowstate.Pending{
		SessionKey: "alice",
		Verifier:   "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk",
		Scopes:     []string{"openid", "profile"},
		CreatedAt:  time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC),
	}
}

// storeContract runs the behaviour every Store must share.
func storeContract(t *testing.T, store flowstate.Store) {
	ctx := context.Background()

	t.Run("take returns what was saved", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, testState, testPending(), time.Minute))

		got, err := store.Take(ctx, testState)
		require.NoError(t, err)
		require.Equal(t, "alice", got.SessionKey)
		require.Equal(t, testPending().Verifier, got.Verifier)
		require.Equal(t, []string{"openid", "profile"}, got.Scopes)
		require.True(t, testPending().CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("single use", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, testState, testPending(), time.Minute))

		_, err := store.Take(ctx, testState)
		require.NoError(t, err)
		_, err = store.Take(ctx, testState)
		require.ErrorIs(t, err, flowstate.ErrNotFound)
	})

	t.Run("concurrent take", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, testState, testPending(), time.Minute))

		var wins atomic.Int32
		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := store.Take(ctx, testState); err == nil {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		require.Equal(t, int32(1), wins.Load())
	})

	t.Run("unknown state", func(t *testing.T) {
		_, err := store.Take(ctx, "nope")
		require.ErrorIs(t, err, flowstate.ErrNotFound)
	})

	t.Run("invalid arguments", func(t *testing.T) {
		require.ErrorIs(t, store.Save(ctx, "", testPending(), time.Minute), flowstate.ErrInvalidState)
		require.ErrorIs(t, store.Save(ctx, testState, testPending(), 0), flowstate.ErrInvalidTTL)
		require.Error(t, store.Save(ctx, testState, nil, time.Minute))
		_, err := store.Take(ctx, "")
		require.ErrorIs(t, err, flowstate.ErrInvalidState)
	})
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, flowstate.NewMemoryStore())
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	store := flowstate.NewMemoryStore(flowstate.WithClock(func() time.Time { return now }))

	require.NoError(t, store.Save(ctx, "a", testPending(), time.Minute))
	require.NoError(t, store.Save(ctx, "b", testPending(), time.Hour))

	now = now.Add(2 * time.Minute)

	_, err := store.Take(ctx, "a")
	require.ErrorIs(t, err, flowstate.ErrNotFound)

	require.NoError(t, store.Save(ctx, "c", testPending(), time.Minute))
	now = now.Add(2 * time.Minute)
	require.Equal(t, 1, store.Purge())
	require.Equal(t, 1, store.Len())

	_, err = store.Take(ctx, "b")
	require.NoError(t, err)
}

func TestMemoryStore_CopiesOnSave(t *testing.T) {
	ctx := context.Background()
	store := flowstate.NewMemoryStore()

	p := testPending()
	require.NoError(t, store.Save(ctx, testState, p, time.Minute))
	p.Scopes[0] = "mutated"

	got, err := store.Take(ctx, testState)
	require.NoError(t, err)
	require.Equal(t, "openid", got.Scopes[0])
}

func TestMemoryStore_Janitor(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := flowstate.NewMemoryStore()
	require.NoError(t, store.Save(ctx, testState, testPending(), time.Millisecond))

	store.StartJanitor(ctx, 5*time.Millisecond)
	require.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func newRedisStore(t *testing.T) (*flowstate.RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return flowstate.NewRedisStore(client, ""), mr
}

func TestRedisStore(t *testing.T) {
	store, _ := newRedisStore(t)
	storeContract(t, store)
}

func TestRedisStore_Expiry(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)

	require.NoError(t, store.Save(ctx, testState, testPending(), time.Minute))
	require.True(t, mr.Exists(flowstate.DefaultKeyPrefix+testState))
	require.Equal(t, time.Minute, mr.TTL(flowstate.DefaultKeyPrefix+testState))

	mr.FastForward(2 * time.Minute)

	_, err := store.Take(ctx, testState)
	require.ErrorIs(t, err, flowstate.ErrNotFound)
}

func TestRedisStore_CorruptPayload(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)

	require.NoError(t, mr.Set(flowstate.DefaultKeyPrefix+testState, "{not json"))

	_, err := store.Take(ctx, testState)
	require.Error(t, err)
	require.NotErrorIs(t, err, flowstate.ErrNotFound)
}
