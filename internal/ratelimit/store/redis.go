package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vyrodovalexey/avagate/internal/observability"
)

// DefaultMaxTxRetries bounds the WATCH/MULTI retries of one Update.
const DefaultMaxTxRetries = 16

// RedisConfig holds configuration for Redis store.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string

	// Connection pool settings
	PoolSize     int
	MinIdleConns int
	MaxRetries   int

	// Timeouts
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// InitialBackoff is the initial backoff duration for connection retries.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration for connection retries.
	MaxBackoff time.Duration

	// ConnectionRetries is the number of connection retry attempts.
	ConnectionRetries int

	// MaxTxRetries bounds optimistic transaction retries per Update.
	MaxTxRetries int

	Logger observability.Logger

	// Metrics records operation counts and latencies. Nil disables them.
	Metrics *Metrics
}

// DefaultRedisConfig returns a RedisConfig with default values.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Address:           "localhost:6379",
		Prefix:            "avagate:ratelimit:",
		PoolSize:          10,
		MinIdleConns:      2,
		MaxRetries:        3,
		DialTimeout:       5 * time.Second,
		ReadTimeout:       3 * time.Second,
		WriteTimeout:      3 * time.Second,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		ConnectionRetries: 5,
		MaxTxRetries:      DefaultMaxTxRetries,
	}
}

// RedisStore implements Store on Redis. Each key holds a JSON array of
// unix-nanosecond timestamps; Update runs inside a WATCH/MULTI transaction.
type RedisStore struct {
	client       *redis.Client
	prefix       string
	maxTxRetries int
	logger       observability.Logger
	metrics      *Metrics
	owned        bool
	closed       atomic.Bool
}

// NewRedisStore creates a Redis store and waits for the server to answer,
// retrying with decorrelated jitter backoff.
func NewRedisStore(ctx context.Context, cfg *RedisConfig) (*RedisStore, error) {
	cfg = normalizeRedisConfig(cfg)

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := connectWithRetry(ctx, client, cfg); err != nil {
		_ = client.Close()
		return nil, err
	}

	s := NewRedisStoreFromClient(client, cfg.Prefix)
	s.maxTxRetries = cfg.MaxTxRetries
	s.logger = cfg.Logger
	s.metrics = cfg.Metrics
	s.owned = true
	return s, nil
}

// NewRedisStoreFromClient wraps an existing client. The client is not closed
// by Close.
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{
		client:       client,
		prefix:       prefix,
		maxTxRetries: DefaultMaxTxRetries,
		logger:       observability.NopLogger(),
	}
}

func normalizeRedisConfig(cfg *RedisConfig) *RedisConfig {
	defaults := DefaultRedisConfig()
	if cfg == nil {
		cfg = defaults
	}

	out := *cfg
	if out.Address == "" {
		out.Address = defaults.Address
	}
	if out.DialTimeout <= 0 {
		out.DialTimeout = defaults.DialTimeout
	}
	if out.ConnectionRetries <= 0 {
		out.ConnectionRetries = defaults.ConnectionRetries
	}
	if out.InitialBackoff <= 0 {
		out.InitialBackoff = defaults.InitialBackoff
	}
	if out.MaxBackoff <= 0 {
		out.MaxBackoff = defaults.MaxBackoff
	}
	if out.MaxTxRetries <= 0 {
		out.MaxTxRetries = defaults.MaxTxRetries
	}
	if out.Logger == nil {
		out.Logger = observability.NopLogger()
	}
	return &out
}

// connectWithRetry pings until the server answers or the attempts run out.
func connectWithRetry(ctx context.Context, client *redis.Client, cfg *RedisConfig) error {
	totalTimeout := time.Duration(cfg.ConnectionRetries+1) * cfg.DialTimeout
	if totalTimeout > 2*time.Minute {
		totalTimeout = 2 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, totalTimeout)
	defer cancel()

	backoff := newDecorrelatedJitterBackoff(cfg.InitialBackoff, cfg.MaxBackoff)

	var lastErr error
	for attempt := 0; attempt <= cfg.ConnectionRetries; attempt++ {
		pingCtx, pingCancel := context.WithTimeout(ctx, cfg.DialTimeout)
		lastErr = client.Ping(pingCtx).Err()
		pingCancel()

		if lastErr == nil {
			if attempt > 0 {
				cfg.Logger.Info("redis connection established after retry",
					observability.String("address", cfg.Address),
					observability.Int("attempt", attempt+1),
				)
			}
			return nil
		}
		if attempt == cfg.ConnectionRetries {
			break
		}

		wait := backoff.next()
		cfg.Logger.Debug("redis connection failed, retrying",
			observability.String("address", cfg.Address),
			observability.Int("attempt", attempt+1),
			observability.Duration("backoff", wait),
			observability.Error(lastErr),
		)
		cfg.Metrics.connectionRetry()

		select {
		case <-ctx.Done():
			return fmt.Errorf("redis connection timeout exceeded: %w", ctx.Err())
		case <-time.After(wait):
		}
	}

	return fmt.Errorf("failed to connect to redis after %d attempts: %w", cfg.ConnectionRetries+1, lastErr)
}

// decorrelatedJitterBackoff computes sleep = min(cap, rand(base, prev*3)).
type decorrelatedJitterBackoff struct {
	base    time.Duration
	cap     time.Duration
	current time.Duration
}

func newDecorrelatedJitterBackoff(base, maxBackoff time.Duration) *decorrelatedJitterBackoff {
	return &decorrelatedJitterBackoff{base: base, cap: maxBackoff}
}

func (b *decorrelatedJitterBackoff) next() time.Duration {
	if b.current == 0 {
		b.current = b.base
		return b.current
	}

	upper := b.current * 3
	//nolint:gosec // weak random is acceptable for jitter
	d := b.base + time.Duration(rand.Int64N(int64(upper-b.base)+1))
	if d > b.cap {
		d = b.cap
	}
	b.current = d
	return d
}

func (s *RedisStore) prefixKey(key string) string {
	return s.prefix + key
}

func (s *RedisStore) observe(op string, start time.Time, err error) {
	s.metrics.observe(op, start, err)
}

// Ping implements Pinger.
func (s *RedisStore) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) (stamps []time.Time, err error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	start := time.Now()
	defer func() { s.observe("get", start, err) }()

	raw, err := s.client.Get(ctx, s.prefixKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return []time.Time{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return decodeStamps(raw)
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, key string, stamps []time.Time, ttl time.Duration) (err error) {
	if s.closed.Load() {
		return ErrClosed
	}
	start := time.Now()
	defer func() { s.observe("put", start, err) }()

	if len(stamps) == 0 {
		return s.client.Del(ctx, s.prefixKey(key)).Err()
	}
	data, err := encodeStamps(stamps)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.prefixKey(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Update implements Store with an optimistic WATCH/MULTI transaction. A
// concurrent write to the key aborts the transaction and fn runs again on the
// fresh value.
func (s *RedisStore) Update(
	ctx context.Context, key string, ttl time.Duration, fn UpdateFunc,
) (stored []time.Time, err error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	start := time.Now()
	defer func() { s.observe("update", start, err) }()

	k := s.prefixKey(key)
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, k).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("redis get: %w", err)
		}
		current, err := decodeStamps(raw)
		if err != nil {
			return err
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		var data []byte
		if len(next) > 0 {
			if data, err = encodeStamps(next); err != nil {
				return err
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(next) == 0 {
				pipe.Del(ctx, k)
			} else {
				pipe.Set(ctx, k, data, ttl)
			}
			return nil
		})
		if err != nil {
			return err
		}
		stored = cloneStamps(next)
		return nil
	}

	for attempt := 0; attempt < s.maxTxRetries; attempt++ {
		err = s.client.Watch(ctx, txf, k)
		if err == nil {
			return stored, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return nil, err
		}
		s.metrics.txRetry()
	}

	s.logger.Warn("redis update gave up after conflicts",
		observability.String("key", key),
		observability.Int("retries", s.maxTxRetries),
	)
	return nil, ErrConflict
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key string) (err error) {
	if s.closed.Load() {
		return ErrClosed
	}
	start := time.Now()
	defer func() { s.observe("delete", start, err) }()

	if err := s.client.Del(ctx, s.prefixKey(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.owned {
		return s.client.Close()
	}
	return nil
}

func encodeStamps(stamps []time.Time) ([]byte, error) {
	nanos := make([]int64, len(stamps))
	for i, t := range stamps {
		nanos[i] = t.UnixNano()
	}
	return json.Marshal(nanos)
}

func decodeStamps(raw []byte) ([]time.Time, error) {
	if len(raw) == 0 {
		return []time.Time{}, nil
	}
	var nanos []int64
	if err := json.Unmarshal(raw, &nanos); err != nil {
		return nil, fmt.Errorf("decode stored timestamps: %w", err)
	}
	stamps := make([]time.Time, len(nanos))
	for i, n := range nanos {
		stamps[i] = time.Unix(0, n)
	}
	return stamps, nil
}

var (
	_ Store  = (*RedisStore)(nil)
	_ Pinger = (*RedisStore)(nil)
)
