package store

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultShards is the number of lock shards of a MemoryStore.
const DefaultShards = 64

// entry represents stored timestamps with expiration.
type entry struct {
	stamps     []time.Time
	expiration time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiration.IsZero() && now.After(e.expiration)
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// MemoryStore implements Store in process memory. Keys are spread over
// mutex-guarded shards, so operations on one key are serialized while
// unrelated keys proceed in parallel.
type MemoryStore struct {
	shards    []*shard
	cleanup   *time.Ticker
	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithCleanupInterval(time.Minute)
}

// NewMemoryStoreWithCleanupInterval creates a new in-memory store with custom cleanup interval.
func NewMemoryStoreWithCleanupInterval(interval time.Duration) *MemoryStore {
	if interval <= 0 {
		interval = time.Minute
	}

	s := &MemoryStore{
		shards:  make([]*shard, DefaultShards),
		cleanup: time.NewTicker(interval),
		done:    make(chan struct{}),
	}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string]*entry)}
	}

	go s.startCleanup()

	return s
}

func (s *MemoryStore) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

func (s *MemoryStore) check(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}

// Ping implements Pinger.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return s.check(ctx)
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]time.Time, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[key]
	if !ok {
		return []time.Time{}, nil
	}
	if e.expired(time.Now()) {
		delete(sh.entries, key)
		return []time.Time{}, nil
	}
	return cloneStamps(e.stamps), nil
}

// Put implements Store.
func (s *MemoryStore) Put(ctx context.Context, key string, stamps []time.Time, ttl time.Duration) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sh.store(key, stamps, ttl)
	return nil
}

// Update implements Store. fn runs with the key's shard locked.
func (s *MemoryStore) Update(
	ctx context.Context, key string, ttl time.Duration, fn UpdateFunc,
) ([]time.Time, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	current := []time.Time{}
	if e, ok := sh.entries[key]; ok && !e.expired(time.Now()) {
		current = cloneStamps(e.stamps)
	}

	next, err := fn(current)
	if err != nil {
		return nil, err
	}

	sh.store(key, next, ttl)
	return cloneStamps(next), nil
}

func (sh *shard) store(key string, stamps []time.Time, ttl time.Duration) {
	if len(stamps) == 0 {
		delete(sh.entries, key)
		return
	}

	e := &entry{stamps: cloneStamps(stamps)}
	if ttl > 0 {
		e.expiration = time.Now().Add(ttl)
	}
	sh.entries[key] = e
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	sh := s.shardFor(key)
	sh.mu.Lock()
	delete(sh.entries, key)
	sh.mu.Unlock()
	return nil
}

// Size returns the number of live keys.
func (s *MemoryStore) Size() int {
	now := time.Now()
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for _, e := range sh.entries {
			if !e.expired(now) {
				n++
			}
		}
		sh.mu.Unlock()
	}
	return n
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.cleanup.Stop()
		close(s.done)
	})
	return nil
}

// startCleanup starts the background cleanup goroutine.
func (s *MemoryStore) startCleanup() {
	for {
		select {
		case <-s.done:
			return
		case <-s.cleanup.C:
			s.removeExpired()
		}
	}
}

// removeExpired removes expired entries.
func (s *MemoryStore) removeExpired() {
	now := time.Now()
	for _, sh := range s.shards {
		sh.mu.Lock()
		for key, e := range sh.entries {
			if e.expired(now) {
				delete(sh.entries, key)
			}
		}
		sh.mu.Unlock()
	}
}

var (
	_ Store  = (*MemoryStore)(nil)
	_ Pinger = (*MemoryStore)(nil)
)
