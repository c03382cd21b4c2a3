package cors

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/vyrodovalexey/avagate/internal/observability"
)

// MemoryUsage is an estimate of the bytes held by the cache.
type MemoryUsage struct {
	Headers int
	Strings int
	Total   int
}

// Stats describes the cache contents.
type Stats struct {
	Entries       int
	HeaderStrings int
	Memory        MemoryUsage
}

// Cache memoizes compiled header sets by configuration fingerprint.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*HeaderSet
	group   singleflight.Group

	// memo caches the memory estimate for the key set hashed into memoKey.
	memoMu  sync.Mutex
	memo    *MemoryUsage
	memoKey string

	logger  observability.Logger
	metrics *Metrics
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(c *Cache) {
		c.metrics = metrics
	}
}

// NewCache creates an empty cache.
func NewCache(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]*HeaderSet),
		logger:  observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = NewMetrics("avagate")
	}
	return c
}

// Get returns the compiled set for cfg and its fingerprint, compiling it on
// first use.
func (c *Cache) Get(cfg Config) (*HeaderSet, string) {
	n := cfg.Normalize()
	fp := Fingerprint(n)
	return c.get(fp, n), fp
}

// get looks up fp and compiles n on a miss. Concurrent misses for the same
// fingerprint share one compilation, and the first stored set is kept.
func (c *Cache) get(fp string, n Config) *HeaderSet {
	c.mu.RLock()
	hs, ok := c.entries[fp]
	c.mu.RUnlock()
	if ok {
		c.metrics.hits.Inc()
		return hs
	}

	v, _, _ := c.group.Do(fp, func() (interface{}, error) {
		c.mu.RLock()
		existing, ok := c.entries[fp]
		c.mu.RUnlock()
		if ok {
			return existing, nil
		}

		compiled := compileNormalized(n, fp)

		c.mu.Lock()
		defer c.mu.Unlock()
		if existing, ok := c.entries[fp]; ok {
			return existing, nil
		}
		c.entries[fp] = compiled
		c.metrics.entries.Set(float64(len(c.entries)))
		c.logger.Debug("compiled cors policy",
			observability.String("fingerprint", fp),
			observability.Int("entries", len(c.entries)),
		)
		return compiled, nil
	})

	c.metrics.misses.Inc()
	return v.(*HeaderSet)
}

// Len returns the number of compiled sets.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear drops every compiled set and the memory estimate.
func (c *Cache) Clear() {
	c.mu.Lock()
	n := len(c.entries)
	c.entries = make(map[string]*HeaderSet)
	c.mu.Unlock()

	c.memoMu.Lock()
	c.memo = nil
	c.memoKey = ""
	c.memoMu.Unlock()

	c.metrics.entries.Set(0)
	c.metrics.clears.Inc()
	c.logger.Info("cleared cors policy cache", observability.Int("dropped", n))
}

// Stats reports entry counts and a memory estimate. The estimate is
// recomputed only when the set of cached fingerprints changes.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	keys := make([]string, 0, len(c.entries))
	snapshot := make(map[string]*HeaderSet, len(c.entries))
	for k, v := range c.entries {
		keys = append(keys, k)
		snapshot[k] = v
	}
	c.mu.RUnlock()

	slices.Sort(keys)
	key := keysHash(keys)

	c.memoMu.Lock()
	defer c.memoMu.Unlock()

	if c.memo == nil || c.memoKey != key {
		var usage MemoryUsage
		for fp, hs := range snapshot {
			headers, block := hs.memorySize()
			usage.Headers += len(fp) + headers
			usage.Strings += len(fp) + block
		}
		usage.Total = usage.Headers + usage.Strings
		c.memo = &usage
		c.memoKey = key
	}

	return Stats{
		Entries:       len(keys),
		HeaderStrings: len(keys),
		Memory:        *c.memo,
	}
}

func keysHash(sorted []string) string {
	h := sha256.New()
	for _, k := range sorted {
		h.Write([]byte(k))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
