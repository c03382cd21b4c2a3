package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vyrodovalexey/avagate/internal/config"
	"github.com/vyrodovalexey/avagate/internal/gate"
	"github.com/vyrodovalexey/avagate/internal/health"
	"github.com/vyrodovalexey/avagate/internal/middleware"
	"github.com/vyrodovalexey/avagate/internal/observability"
)

// defaultShutdownTimeout applies when the configuration leaves it unset.
const defaultShutdownTimeout = 15 * time.Second

// application holds all application components.
type application struct {
	config  *config.Config
	logger  observability.Logger
	gate    *gate.Gate
	metrics *observability.Metrics
	health  *health.Checker
	tracer  *observability.Tracer
	server  *http.Server
	watcher *config.Watcher
}

// runApplication builds the application and serves until ctx is cancelled.
func runApplication(ctx context.Context, cfg *config.Config, configPath string, logger observability.Logger) error {
	app, err := newApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}
	app.startConfigWatcher(ctx, configPath)
	return app.run(ctx)
}

// newApplication initializes all application components.
func newApplication(ctx context.Context, cfg *config.Config, logger observability.Logger) (*application, error) {
	tracer, err := observability.NewTracer(ctx, observability.TracerConfig{
		Enabled:      cfg.Tracing.Enabled,
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SamplingRate: cfg.Tracing.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	metrics := observability.NewMetrics("avagate")
	metrics.SetBuildInfo(version)

	upstream, err := upstreamHandler(cfg.Server.Upstream, logger)
	if err != nil {
		_ = tracer.Shutdown(ctx)
		return nil, err
	}

	g, err := gate.New(ctx, cfg,
		gate.WithLogger(logger),
		gate.WithMetrics(metrics),
		gate.WithApp(upstream),
	)
	if err != nil {
		_ = tracer.Shutdown(ctx)
		return nil, fmt.Errorf("failed to create gate: %w", err)
	}

	checker := health.NewChecker(version, logger)
	checker.RegisterCheck("ratelimit_store", health.ErrorCheck(g.Ready, !cfg.RateLimit.FailOpen))

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", checker.LivenessHandler())
	mux.HandleFunc("/readyz", checker.ReadinessHandler())
	if cfg.Metrics.Enabled {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		mux.Handle(path, metrics.Handler())
	}
	mux.Handle("/", g)

	handler := middleware.Chain(mux,
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.TraceContext(nil),
		middleware.Logging(logger),
	)

	return &application{
		config:  cfg,
		logger:  logger,
		gate:    g,
		metrics: metrics,
		health:  checker,
		tracer:  tracer,
		server: &http.Server{
			Addr:              cfg.Server.Address,
			Handler:           handler,
			ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout.Duration(),
		},
	}, nil
}

// upstreamHandler proxies to target, or answers 404 when no upstream is
// configured.
func upstreamHandler(target string, logger observability.Logger) (http.Handler, error) {
	if target == "" {
		return http.NotFoundHandler(), nil
	}

	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream %q: %w", target, err)
	}

	proxy := httputil.NewSingleHostReverseProxy(u)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.WithContext(r.Context()).Error("upstream request failed",
			observability.String("upstream", target),
			observability.String("path", r.URL.Path),
			observability.Error(err),
		)
		w.WriteHeader(http.StatusBadGateway)
	}
	return proxy, nil
}

// startConfigWatcher reloads the gate when the configuration file changes.
// Failing to watch is logged and the process keeps its initial
// configuration.
func (a *application) startConfigWatcher(ctx context.Context, configPath string) {
	watcher, err := config.NewWatcher(configPath, func(newCfg *config.Config) {
		if newCfg.Server.Address != a.config.Server.Address {
			a.logger.Warn("server address changes take effect after restart",
				observability.String("current", a.config.Server.Address),
				observability.String("configured", newCfg.Server.Address),
			)
		}
		if err := a.gate.Reload(ctx, newCfg); err != nil {
			a.logger.Error("failed to reload configuration", observability.Error(err))
		}
	},
		config.WithLogger(a.logger),
		config.WithErrorCallback(func(error) { a.metrics.RecordReload(false) }),
	)
	if err != nil {
		a.logger.Warn("failed to create config watcher", observability.Error(err))
		return
	}

	if err := watcher.Start(ctx); err != nil {
		a.logger.Warn("failed to start config watcher", observability.Error(err))
		_ = watcher.Stop()
		return
	}
	a.watcher = watcher
}

// run serves HTTP until ctx is cancelled, then shuts down.
func (a *application) run(ctx context.Context) error {
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		a.logger.Info("listening", observability.String("address", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egCtx.Done()
		return a.shutdown()
	})

	return eg.Wait()
}

// shutdown drains the server and releases every component.
func (a *application) shutdown() error {
	a.logger.Info("shutting down")

	timeout := a.config.Server.ShutdownTimeout.Duration()
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := a.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http server shutdown: %w", err))
	}
	if a.watcher != nil {
		if err := a.watcher.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("config watcher: %w", err))
		}
	}
	if err := a.gate.Close(); err != nil {
		errs = append(errs, fmt.Errorf("gate: %w", err))
	}
	if err := a.tracer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("tracer: %w", err))
	}

	a.logger.Info("avagate stopped")
	return errors.Join(errs...)
}
