// Package server builds the link checker's dependency graph and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/linkcheck/internal/api"
	"github.com/JakeFAU/linkcheck/internal/clock/system"
	"github.com/JakeFAU/linkcheck/internal/config"
	idgen "github.com/JakeFAU/linkcheck/internal/id/uuid"
	"github.com/JakeFAU/linkcheck/internal/linkcheck"
	"github.com/JakeFAU/linkcheck/internal/metrics"
	"github.com/JakeFAU/linkcheck/internal/progress"
	progresssinks "github.com/JakeFAU/linkcheck/internal/progress/sinks"
	"github.com/JakeFAU/linkcheck/internal/stream"
)

const defaultShutdownTimeout = 10 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg         *config.Config
	logger      *zap.Logger
	service     *linkcheck.Service
	apiServer   *api.Server
	progressHub *progress.Hub
}

// Option customizes Build.
type Option func(*buildOptions)

type buildOptions struct {
	registerer prometheus.Registerer
}

// WithRegisterer sets where the progress Prometheus sink registers its
// collectors. Defaults to prometheus.DefaultRegisterer.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *buildOptions) {
		o.registerer = reg
	}
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	o := buildOptions{registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&o)
	}

	app := &App{cfg: cfg, logger: logger}
	app.logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.Int("concurrency", cfg.Checker.Concurrency),
		zap.Int("budget_seconds", cfg.Checker.BudgetSeconds),
		zap.Bool("auth", cfg.Auth.Enabled),
		zap.Bool("metrics", cfg.Metrics.Enabled),
	)

	if cfg.Metrics.Enabled {
		metrics.Init()
	}

	events, err := setupProgress(ctx, app, o.registerer)
	if err != nil {
		return nil, err
	}

	app.service = setupService(app, events)
	app.apiServer = api.NewServer(app.service, *cfg, logger.Named("api"))
	return app, nil
}

func setupProgress(ctx context.Context, app *App, reg prometheus.Registerer) (progress.Emitter, error) {
	if !app.cfg.Progress.Enabled {
		app.logger.Info("progress tracking disabled")
		return nil, nil
	}
	var sinkList []progress.Sink
	if app.cfg.Progress.LogEnabled {
		sinkList = append(sinkList, progresssinks.NewLogSink(app.logger.Named("progress_log")))
		app.logger.Debug("Added progress log sink")
	}
	if app.cfg.Metrics.Enabled && reg != nil {
		promSink, err := progresssinks.NewPrometheusSink(reg)
		if err != nil {
			return nil, fmt.Errorf("progress prometheus sink init failed: %w", err)
		}
		sinkList = append(sinkList, promSink)
		app.logger.Debug("Added progress prometheus sink")
	}
	if len(sinkList) == 0 {
		app.logger.Warn("progress tracking enabled but no sinks configured")
		return nil, nil
	}
	hubCfg := progress.Config{
		BufferSize:     app.cfg.Progress.BufferSize,
		MaxBatchEvents: app.cfg.Progress.Batch.MaxEvents,
		MaxBatchWait:   time.Duration(app.cfg.Progress.Batch.MaxWaitMs) * time.Millisecond,
		SinkTimeout:    time.Duration(app.cfg.Progress.SinkTimeoutMs) * time.Millisecond,
		BaseContext:    context.WithoutCancel(ctx),
		Logger:         app.logger.Named("progress_hub"),
	}
	app.progressHub = progress.NewHub(hubCfg, sinkList...)
	app.logger.Info("progress hub initialized",
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
		zap.Duration("sink_timeout", hubCfg.SinkTimeout),
	)
	return app.progressHub, nil
}

func setupService(app *App, events progress.Emitter) *linkcheck.Service {
	clock := system.New()
	proberCfg := app.cfg.ProberConfig()
	prober := linkcheck.NewHTTPProber(proberCfg)
	app.logger.Info("prober config",
		zap.Duration("request_timeout", proberCfg.RequestTimeout),
		zap.Int("max_redirects", proberCfg.MaxRedirects),
		zap.String("user_agent", proberCfg.UserAgent),
	)

	policy := app.cfg.RetryPolicy()
	retrier := linkcheck.NewRetrier(prober, policy, clock, events, app.logger.Named("retry"))
	app.logger.Info("retry policy",
		zap.Int("max_retries", policy.MaxRetries),
		zap.Durations("backoff", policy.Backoff),
		zap.Int("fail_fast_domains", len(policy.FailFast)),
	)

	schedCfg := app.cfg.SchedulerConfig()
	scheduler := linkcheck.NewScheduler(schedCfg, retrier, clock, events, app.logger.Named("scheduler"))
	app.logger.Info("scheduler config",
		zap.Int("concurrency", schedCfg.Concurrency),
		zap.Duration("domain_delay", schedCfg.DomainDelay),
		zap.Duration("budget", schedCfg.Budget),
	)

	normalizer := linkcheck.NewNormalizer(app.cfg.CanonicalHosts())
	return linkcheck.NewService(normalizer, scheduler, idgen.New(), clock, events, app.logger.Named("service"))
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Handler exposes the HTTP routes, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run listens on the configured port and serves until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", a.cfg.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is canceled, then stops taking
// new requests and lets in-flight streams finish within the shutdown timeout.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("http server started", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutdown initiated")
		a.apiServer.SetReady(false)

		timeout := a.cfg.ShutdownTimeout()
		if timeout <= 0 {
			timeout = defaultShutdownTimeout
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// Check runs one batch outside HTTP and writes NDJSON events to w.
func (a *App) Check(ctx context.Context, req linkcheck.Request, w io.Writer) (linkcheck.Summary, error) {
	emitter := stream.NewEmitter(w, stream.NDJSONEncoder{}, a.logger.Named("stream"))
	defer emitter.Close()

	events := make(chan linkcheck.Event, max(a.cfg.Checker.Concurrency, 0))
	summaryCh := make(chan linkcheck.Summary, 1)
	go func() {
		summaryCh <- a.service.Run(ctx, req, events)
	}()

	werr := emitter.Drain(events)
	summary := <-summaryCh
	if werr != nil {
		return summary, fmt.Errorf("write results: %w", werr)
	}
	return summary, nil
}

// Close gracefully shuts down the application.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
			errs = append(errs, err)
		}
		if dropped := a.progressHub.Dropped(); dropped > 0 {
			a.logger.Warn("progress events dropped during lifetime", zap.Int64("dropped", dropped))
		}
	}
	a.logger.Info("shutdown complete")
	// Sync commonly fails on stderr/stdout with EINVAL; not worth surfacing.
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
