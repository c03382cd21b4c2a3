package gate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vyrodovalexey/avagate/internal/auth"
	"github.com/vyrodovalexey/avagate/internal/config"
	"github.com/vyrodovalexey/avagate/internal/cors"
	"github.com/vyrodovalexey/avagate/internal/observability"
	"github.com/vyrodovalexey/avagate/internal/pipeline"
	"github.com/vyrodovalexey/avagate/internal/ratelimit"
	"github.com/vyrodovalexey/avagate/internal/ratelimit/store"
)

const metricsNamespace = "avagate"

// ErrClosed is returned by Reload after Close.
var ErrClosed = errors.New("gate is closed")

// Gate serves HTTP through a pipeline assembled from configuration. The
// pipeline can be replaced at runtime with Reload; requests already running
// finish on the pipeline they started with.
type Gate struct {
	logger           observability.Logger
	app              http.Handler
	passwordVerifier auth.PasswordVerifier
	bearerVerifier   auth.BearerVerifier
	customVerifier   auth.CustomVerifier
	store            store.Store
	metrics          *observability.Metrics
	registerer       prometheus.Registerer

	cache       *cors.Cache
	authMetrics *auth.Metrics
	rlMetrics   *ratelimit.Metrics
	stMetrics   *store.Metrics

	current atomic.Pointer[instance]
	mu      sync.Mutex
	closed  bool
}

// instance is one assembled pipeline and the store it owns.
type instance struct {
	cfg       *config.Config
	pipeline  *pipeline.Pipeline
	store     store.Store
	storeCfg  config.StoreConfig
	ownsStore bool
}

// New validates cfg and assembles the gate. Units run in the order cors,
// ratelimit, auth, then the application handler; disabled units are left
// out.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Gate, error) {
	g := &Gate{
		logger:     observability.NopLogger(),
		app:        http.NotFoundHandler(),
		registerer: prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.metrics != nil {
		g.registerer = g.metrics.Registry()
	}

	g.cache = cors.NewCache(
		cors.WithLogger(g.logger),
		cors.WithMetrics(cors.NewMetricsWithRegisterer(metricsNamespace, g.registerer)),
	)
	g.authMetrics = auth.NewMetricsWithRegisterer(metricsNamespace, g.registerer)
	g.rlMetrics = ratelimit.NewMetricsWithRegisterer(metricsNamespace, g.registerer)
	g.stMetrics = store.NewMetricsWithRegisterer(metricsNamespace, g.registerer)

	inst, err := g.build(ctx, cfg, nil)
	if err != nil {
		return nil, err
	}
	g.current.Store(inst)

	g.logger.Info("gate assembled", observability.Strings("units", unitsOf(cfg)))
	return g, nil
}

// ServeHTTP runs the request through the current pipeline.
func (g *Gate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	inst := g.current.Load()
	start := time.Now()
	if g.metrics != nil {
		g.metrics.IncActive()
		defer g.metrics.DecActive()
	}

	req := pipeline.FromHTTP(r)
	res := pipeline.NewStreamWriter(w)
	out := inst.pipeline.ProcessWith(req, res)
	res.Commit()

	if g.metrics != nil {
		stage := out.StoppedBy
		if out.Completed {
			stage = observability.StageCompleted
		}
		g.metrics.RecordRequest(r.Method, stage, out.Status(), time.Since(start))
	}
}

// Config returns the configuration currently in effect.
func (g *Gate) Config() *config.Config {
	return g.current.Load().cfg
}

// CacheStats reports the CORS header cache.
func (g *Gate) CacheStats() cors.Stats {
	return g.cache.Stats()
}

// Ready reports whether the rate limit store is reachable. Stores that
// cannot be pinged are always ready.
func (g *Gate) Ready(ctx context.Context) error {
	if p, ok := g.current.Load().store.(store.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Reload assembles a pipeline from cfg and swaps it in. On error the current
// pipeline stays in effect. The CORS cache is cleared after a successful
// swap. The rate limit store is kept when its configuration is unchanged, so
// client windows survive the reload.
func (g *Gate) Reload(ctx context.Context, cfg *config.Config) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return ErrClosed
	}

	prev := g.current.Load()
	next, err := g.build(ctx, cfg, prev)
	if err != nil {
		g.recordReload(false)
		g.logger.Error("gate reload rejected, keeping previous pipeline", observability.Error(err))
		return err
	}

	g.current.Store(next)
	g.cache.Clear()

	if prev.ownsStore && prev.store != next.store {
		if err := prev.store.Close(); err != nil {
			g.logger.Warn("failed to close previous rate limit store", observability.Error(err))
		}
	}

	g.recordReload(true)
	g.logger.Info("gate reloaded", observability.Strings("units", unitsOf(cfg)))
	return nil
}

// Close releases the store the gate built. It is safe to call more than
// once.
func (g *Gate) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil
	}
	g.closed = true

	inst := g.current.Load()
	if inst.ownsStore {
		return inst.store.Close()
	}
	return nil
}

func (g *Gate) recordReload(success bool) {
	if g.metrics != nil {
		g.metrics.RecordReload(success)
	}
}

func (g *Gate) build(ctx context.Context, cfg *config.Config, prev *instance) (inst *instance, err error) {
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, err
	}

	inst = &instance{
		cfg:      cfg,
		pipeline: pipeline.New(pipeline.WithLogger(g.logger)),
	}

	if cfg.CORS.Enabled {
		inst.pipeline.Use(cors.Middleware(g.cache, cfg.CORS.Policy))
	}

	if cfg.RateLimit.Enabled {
		if err := g.buildStore(ctx, inst, cfg.RateLimit.Store, prev); err != nil {
			return nil, err
		}
		defer func() {
			if err != nil && inst.ownsStore && (prev == nil || prev.store != inst.store) {
				_ = inst.store.Close()
			}
		}()

		limiter, err := ratelimit.New(limiterConfig(&cfg.RateLimit), inst.store,
			ratelimit.WithLogger(g.logger),
			ratelimit.WithMetrics(g.rlMetrics),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create rate limiter: %w", err)
		}
		inst.pipeline.Use(limiter.Middleware())
	}

	if cfg.Auth.Enabled {
		dispatcher, err := g.buildDispatcher(&cfg.Auth)
		if err != nil {
			return nil, err
		}
		inst.pipeline.Use(dispatcher.Middleware())
	}

	inst.pipeline.Use(pipeline.HTTPHandlerUnit(g.app))
	return inst, nil
}

func (g *Gate) buildStore(ctx context.Context, inst *instance, sc config.StoreConfig, prev *instance) error {
	if g.store != nil {
		inst.store = g.store
		return nil
	}

	if prev != nil && prev.ownsStore && reflect.DeepEqual(prev.storeCfg, sc) {
		inst.store, inst.storeCfg, inst.ownsStore = prev.store, sc, true
		return nil
	}

	var st store.Store
	switch sc.Type {
	case "", config.StoreMemory:
		st = store.NewMemoryStore()
	case config.StoreRedis:
		redis, err := store.NewRedisStore(ctx, redisConfig(&sc.Redis, g.logger, g.stMetrics))
		if err != nil {
			return fmt.Errorf("failed to create redis store: %w", err)
		}
		st = redis
	default:
		return fmt.Errorf("%w: %q", config.ErrUnknownStore, sc.Type)
	}

	if sc.Breaker.Enabled {
		st = store.NewBreakerStore(st, breakerConfig(&sc.Breaker), g.logger)
	}

	inst.store, inst.storeCfg, inst.ownsStore = st, sc, true
	return nil
}

func (g *Gate) buildDispatcher(ac *config.AuthConfig) (*auth.Dispatcher, error) {
	methods := make([]auth.Method, 0, len(ac.Methods))
	for _, name := range ac.Methods {
		method, err := auth.ParseMethod(name)
		if err != nil {
			return nil, err
		}
		methods = append(methods, method)
	}

	cfg := &auth.Config{
		Methods:          methods,
		Secret:           []byte(ac.Secret),
		PasswordVerifier: g.passwordVerifier,
		BearerVerifier:   g.bearerVerifier,
		CustomVerifier:   g.customVerifier,
		SkipPaths:        ac.SkipPaths,
	}
	if cfg.PasswordVerifier == nil && len(ac.Users) > 0 {
		creds, err := auth.NewBcryptCredentials(ac.Users)
		if err != nil {
			return nil, fmt.Errorf("failed to load users: %w", err)
		}
		cfg.PasswordVerifier = creds.Verify
	}
	if cfg.BearerVerifier == nil && len(ac.Tokens) > 0 {
		cfg.BearerVerifier = auth.NewStaticTokens(ac.Tokens).Verify
	}

	return auth.NewDispatcher(cfg,
		auth.WithLogger(g.logger),
		auth.WithMetrics(g.authMetrics),
	)
}

func limiterConfig(rc *config.RateLimitConfig) ratelimit.Config {
	// Validation has already accepted KeyBy.
	keyFunc, _ := ratelimit.KeyFuncByName(rc.KeyBy, rc.Header)
	return ratelimit.Config{
		Window:                 rc.Window.Duration(),
		Max:                    rc.Max,
		StatusCode:             rc.StatusCode,
		Message:                rc.Message,
		KeyFunc:                keyFunc,
		SkipSuccessfulRequests: rc.SkipSuccessful,
		SkipFailedRequests:     rc.SkipFailed,
		FailOpen:               rc.FailOpen,
		Headers:                rc.Headers,
	}
}

func redisConfig(rc *config.RedisConfig, logger observability.Logger, metrics *store.Metrics) *store.RedisConfig {
	out := store.DefaultRedisConfig()
	out.Address = rc.Address
	out.Password = rc.Password
	out.DB = rc.DB
	out.Logger = logger
	out.Metrics = metrics
	if rc.Prefix != "" {
		out.Prefix = rc.Prefix
	}
	if rc.PoolSize > 0 {
		out.PoolSize = rc.PoolSize
	}
	if rc.DialTimeout > 0 {
		out.DialTimeout = rc.DialTimeout.Duration()
	}
	if rc.ReadTimeout > 0 {
		out.ReadTimeout = rc.ReadTimeout.Duration()
	}
	if rc.WriteTimeout > 0 {
		out.WriteTimeout = rc.WriteTimeout.Duration()
	}
	if rc.ConnectionRetries > 0 {
		out.ConnectionRetries = rc.ConnectionRetries
	}
	return out
}

func breakerConfig(bc *config.BreakerConfig) store.BreakerConfig {
	out := store.DefaultBreakerConfig()
	if bc.Threshold > 0 {
		out.Threshold = bc.Threshold
	}
	if bc.FailureRatio > 0 {
		out.FailureRatio = bc.FailureRatio
	}
	if bc.Timeout > 0 {
		out.Timeout = bc.Timeout.Duration()
	}
	return out
}

func unitsOf(cfg *config.Config) []string {
	var units []string
	if cfg.CORS.Enabled {
		units = append(units, "cors")
	}
	if cfg.RateLimit.Enabled {
		units = append(units, "ratelimit")
	}
	if cfg.Auth.Enabled {
		units = append(units, "auth")
	}
	return append(units, "handler")
}
