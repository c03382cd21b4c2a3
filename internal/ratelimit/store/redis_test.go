package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	s, err := NewRedisStore(context.Background(), &RedisConfig{
		Address: mr.Addr(),
		Prefix:  "test:",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestRedisStore_PutGet(t *testing.T) {
	t.Parallel()

	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	want := []time.Time{time.Unix(0, 1_700_000_000_123_456_789), time.Unix(0, 1_700_000_001_000_000_000)}
	require.NoError(t, s.Put(ctx, "client", want, time.Minute))

	got, err := s.Get(ctx, "client")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, want[0].Equal(got[0]))
	assert.True(t, want[1].Equal(got[1]))

	assert.True(t, mr.Exists("test:client"))
	assert.Equal(t, time.Minute, mr.TTL("test:client"))

	raw, err := mr.Get("test:client")
	require.NoError(t, err)
	assert.Equal(t, "[1700000000123456789,1700000001000000000]", raw)
}

func TestRedisStore_GetMissing(t *testing.T) {
	t.Parallel()

	s, _ := newTestRedisStore(t)

	got, err := s.Get(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedisStore_GetCorrupt(t *testing.T) {
	t.Parallel()

	s, mr := newTestRedisStore(t)
	require.NoError(t, mr.Set("test:bad", "not-json"))

	_, err := s.Get(context.Background(), "bad")
	assert.Error(t, err)
}

func TestRedisStore_UpdateAndDelete(t *testing.T) {
	t.Parallel()

	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		stored, err := s.Update(ctx, "k", time.Minute, func(current []time.Time) ([]time.Time, error) {
			return append(current, time.Unix(int64(i), 0)), nil
		})
		require.NoError(t, err)
		assert.Len(t, stored, i)
	}

	stored, err := s.Update(ctx, "k", time.Minute, func([]time.Time) ([]time.Time, error) {
		return nil, nil
	})
	require.NoError(t, err)
	assert.Empty(t, stored)
	assert.False(t, mr.Exists("test:k"))

	require.NoError(t, s.Put(ctx, "k", stampsAt(1), 0))
	require.NoError(t, s.Delete(ctx, "k"))
	assert.False(t, mr.Exists("test:k"))
}

func TestRedisStore_UpdateCallerErrorAborts(t *testing.T) {
	t.Parallel()

	s, _ := newTestRedisStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "k", stampsAt(1), 0))

	boom := errors.New("boom")
	_, err := s.Update(ctx, "k", 0, func([]time.Time) ([]time.Time, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestRedisStore_ConcurrentUpdates(t *testing.T) {
	t.Parallel()

	s, _ := newTestRedisStore(t)
	s.maxTxRetries = 1000
	ctx := context.Background()

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update(ctx, "shared", time.Minute, func(current []time.Time) ([]time.Time, error) {
				return append(current, time.Now()), nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.Get(ctx, "shared")
	require.NoError(t, err)
	assert.Len(t, got, workers)
}

func TestRedisStore_Conflict(t *testing.T) {
	t.Parallel()

	s, mr := newTestRedisStore(t)
	s.maxTxRetries = 2
	ctx := context.Background()

	// Writing the watched key from inside fn aborts every EXEC.
	_, err := s.Update(ctx, "hot", 0, func(current []time.Time) ([]time.Time, error) {
		require.NoError(t, mr.Set("test:hot", "[1]"))
		return append(current, time.Now()), nil
	})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestRedisStore_Metrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	metrics := NewMetricsWithRegisterer("test", reg)
	mr := miniredis.RunT(t)
	s, err := NewRedisStore(context.Background(), &RedisConfig{
		Address:      mr.Addr(),
		Prefix:       "m:",
		MaxTxRetries: 2,
		Metrics:      metrics,
	})
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k", []time.Time{time.Unix(1, 0)}, time.Minute))
	_, err = s.Get(ctx, "k")
	require.NoError(t, err)
	_, err = s.Update(ctx, "hot", 0, func(current []time.Time) ([]time.Time, error) {
		require.NoError(t, mr.Set("m:hot", "[1]"))
		return append(current, time.Now()), nil
	})
	require.ErrorIs(t, err, ErrConflict)

	assert.InDelta(t, 1, testutil.ToFloat64(metrics.operationsTotal.WithLabelValues("put", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.operationsTotal.WithLabelValues("get", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.operationsTotal.WithLabelValues("update", "error")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.txRetries), 0)

	// A second set of metrics on the same registry shares the collectors.
	again := NewMetricsWithRegisterer("test", reg)
	assert.Same(t, metrics.txRetries, again.txRetries)
}

func TestRedisStore_Ping(t *testing.T) {
	t.Parallel()

	s, mr := newTestRedisStore(t)
	assert.NoError(t, s.Ping(context.Background()))

	mr.SetError("ERR server down")
	assert.Error(t, s.Ping(context.Background()))
	mr.SetError("")

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Ping(context.Background()), ErrClosed)
}

func TestRedisStore_Closed(t *testing.T) {
	t.Parallel()

	s, _ := newTestRedisStore(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Put(context.Background(), "k", nil, 0), ErrClosed)
	assert.ErrorIs(t, s.Delete(context.Background(), "k"), ErrClosed)
}

func TestRedisStore_FromClientNotOwned(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	s := NewRedisStoreFromClient(client, "p:")
	require.NoError(t, s.Close())

	assert.NoError(t, client.Ping(context.Background()).Err())
}

func TestNewRedisStore_Unreachable(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisStore(context.Background(), &RedisConfig{
		Address:           addr,
		DialTimeout:       50 * time.Millisecond,
		ConnectionRetries: 1,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
	})
	assert.Error(t, err)
}

func TestDecorrelatedJitterBackoff(t *testing.T) {
	t.Parallel()

	b := newDecorrelatedJitterBackoff(10*time.Millisecond, 100*time.Millisecond)

	assert.Equal(t, 10*time.Millisecond, b.next())
	for i := 0; i < 20; i++ {
		d := b.next()
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.LessOrEqual(t, d, 100*time.Millisecond)
	}
}
