// Package app initializes and holds long-lived harvester services, acting as
// a dependency injection container for the CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/harvester/internal/clock/system"
	"github.com/JakeFAU/harvester/internal/config"
	"github.com/JakeFAU/harvester/internal/dispatcher"
	"github.com/JakeFAU/harvester/internal/extract"
	"github.com/JakeFAU/harvester/internal/fetcher"
	collyfetcher "github.com/JakeFAU/harvester/internal/fetcher/colly"
	"github.com/JakeFAU/harvester/internal/fetcher/headless"
	"github.com/JakeFAU/harvester/internal/harvest"
	"github.com/JakeFAU/harvester/internal/hash/xxhash"
	"github.com/JakeFAU/harvester/internal/id/uuid"
	"github.com/JakeFAU/harvester/internal/identity"
	"github.com/JakeFAU/harvester/internal/metrics"
	"github.com/JakeFAU/harvester/internal/policy/ratelimit"
	"github.com/JakeFAU/harvester/internal/retry"
	"github.com/JakeFAU/harvester/internal/storage/local"
	"github.com/JakeFAU/harvester/internal/telemetry"
	"github.com/JakeFAU/harvester/internal/worker"
)

// Option customizes App construction.
type Option func(*options)

type options struct {
	direct    harvest.Fetcher
	automated harvest.Fetcher
	clock     harvest.Clock
	ids       harvest.IDGenerator
	sleeper   harvest.Sleeper
	sinks     []worker.Sink
	skipSinks bool
}

// WithFetchers replaces the transports. A nil argument keeps the default.
func WithFetchers(direct, automated harvest.Fetcher) Option {
	return func(o *options) {
		o.direct = direct
		o.automated = automated
	}
}

// WithClock replaces the wall clock.
func WithClock(c harvest.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithIDs replaces the run id generator.
func WithIDs(ids harvest.IDGenerator) Option {
	return func(o *options) { o.ids = ids }
}

// WithSleeper replaces the timer used for retry backoff.
func WithSleeper(s harvest.Sleeper) Option {
	return func(o *options) { o.sleeper = s }
}

// WithSinks replaces the archivers built from configuration.
func WithSinks(sinks ...worker.Sink) Option {
	return func(o *options) {
		o.sinks = sinks
		o.skipSinks = true
	}
}

// App holds the shared, long-lived services. It is built once per command
// and closed when the command finishes.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	clock      harvest.Clock
	ids        harvest.IDGenerator
	writer     *local.Writer
	pipeline   *worker.Pipeline
	dispatcher *dispatcher.Dispatcher
	metrics    *metrics.Server
	closers    []closer
}

type closer struct {
	name  string
	close func(context.Context) error
}

// New wires the harvester from cfg. It fails fast when the export
// directory is unusable or a configured archiver cannot be reached.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = system.New()
	}
	if o.ids == nil {
		o.ids = uuid.New()
	}

	logger.Info("initializing harvester services",
		zap.String("export_dir", cfg.ExportPath()),
		zap.String("mode", string(cfg.Mode)),
	)

	writer, err := local.New(local.Config{ExportDir: cfg.ExportPath()}, o.clock, logger)
	if err != nil {
		return nil, fmt.Errorf("init writer: %w", err)
	}

	a := &App{cfg: cfg, logger: logger, clock: o.clock, ids: o.ids, writer: writer}

	sinks := o.sinks
	if !o.skipSinks {
		sinks, err = a.openSinks(ctx)
		if err != nil {
			a.Close(context.WithoutCancel(ctx))
			return nil, err
		}
	}

	identities := identity.NewProvider(identity.NewPool(cfg.Identity.UserAgents), logger)
	direct := o.direct
	if direct == nil {
		direct = a.newDirect(identities)
	}
	automated := o.automated
	if automated == nil {
		automated = a.newAutomated(identities)
	}

	retryOpts := []retry.Option{retry.WithBackoffStep(cfg.Retry.BackoffStep)}
	if o.sleeper != nil {
		retryOpts = append(retryOpts, retry.WithSleeper(o.sleeper))
	}
	controller := retry.New(fetcher.NewSwitch(direct, automated), logger, retryOpts...)
	extractor := extract.New(extract.Config{
		MinParagraphLength: cfg.Extract.MinParagraphLength,
		Readability:        cfg.Extract.Readability,
	}, o.clock, xxhash.New(), logger)

	a.pipeline = worker.New(controller, extractor, writer, o.clock, worker.Config{Attempts: cfg.Retry.Attempts}, logger, sinks...)
	a.dispatcher = dispatcher.New(a.pipeline, o.ids, o.clock, logger)

	if cfg.Tracing.Enabled {
		tp, err := telemetry.InitTracerProvider(ctx, cfg.Tracing.ServiceName)
		if err != nil {
			a.Close(context.WithoutCancel(ctx))
			return nil, fmt.Errorf("init tracing: %w", err)
		}
		a.closers = append(a.closers, closer{name: "tracing", close: tp.Shutdown})
	}

	if cfg.Metrics.Addr != "" {
		a.metrics = metrics.NewServer(cfg.Metrics.Addr, logger)
		if err := a.metrics.Start(); err != nil {
			a.Close(context.WithoutCancel(ctx))
			return nil, fmt.Errorf("start metrics server: %w", err)
		}
		a.closers = append(a.closers, closer{name: "metrics", close: a.metrics.Shutdown})
	}

	logger.Info("harvester services initialized", zap.Int("archivers", len(sinks)))
	return a, nil
}

func (a *App) newDirect(identities *identity.Provider) harvest.Fetcher {
	var opts []collyfetcher.Option
	if limiter := ratelimit.New(ratelimit.Config{RPS: a.cfg.Direct.PerHostRPS}); limiter.Enabled() {
		opts = append(opts, collyfetcher.WithLimiter(limiter))
	}
	return collyfetcher.New(collyfetcher.Config{
		Timeout:     a.cfg.Direct.Timeout,
		JitterMin:   a.cfg.Direct.JitterMin,
		JitterMax:   a.cfg.Direct.JitterMax,
		MaxBodySize: a.cfg.Direct.MaxBodyBytes,
	}, identities, a.logger, opts...)
}

func (a *App) newAutomated(identities *identity.Provider) harvest.Fetcher {
	f, err := headless.NewChromedp(headless.Config{
		PageLoadTimeout: a.cfg.Automated.PageLoadTimeout,
		ScrollWaitMin:   a.cfg.Automated.ScrollWaitMin,
		ScrollWaitMax:   a.cfg.Automated.ScrollWaitMax,
		ExecPath:        a.cfg.Automated.ExecPath,
		Headful:         !a.cfg.Automated.Headless,
	}, identities, a.logger)
	if err != nil {
		a.logger.Warn("automated fetcher unavailable", zap.Error(err))
		return headless.NewUnavailable(err)
	}
	return f
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// ExportDir returns the directory files are written to.
func (a *App) ExportDir() string {
	return a.writer.Dir()
}

// Single runs one URL and returns its outcome.
func (a *App) Single(ctx context.Context, url string, mode harvest.Mode, scrollToEnd bool) harvest.Outcome {
	runID, err := a.ids.NewID()
	if err != nil {
		a.logger.Warn("run id generation failed", zap.Error(err))
	}
	return a.pipeline.Process(ctx, url, worker.Options{
		RunID:       runID,
		Mode:        mode,
		ScrollToEnd: scrollToEnd,
		Prefix:      a.cfg.Output.Prefix,
	})
}

// Batch runs urls through the worker pool.
func (a *App) Batch(ctx context.Context, urls []string, opts dispatcher.Options) harvest.Report {
	if opts.PrefixOverride == "" {
		opts.PrefixOverride = a.cfg.Output.Prefix
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = a.cfg.ConcurrencyFor(opts.Mode)
	}
	return a.dispatcher.RunBatch(ctx, urls, opts)
}

// Close releases every service in reverse order of creation.
func (a *App) Close(ctx context.Context) {
	a.logger.Info("shutting down harvester services")
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(ctx); err != nil {
			a.logger.Warn("error closing service", zap.String("service", c.name), zap.Error(err))
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if len(errs) > 0 {
		a.logger.Warn("shutdown finished with errors", zap.Error(errors.Join(errs...)))
	}
}
