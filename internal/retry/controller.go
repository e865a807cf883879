// Package retry wraps a transport with bounded attempts and linear backoff.
package retry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/harvester/internal/harvest"
	"github.com/JakeFAU/harvester/internal/metrics"
)

// Defaults used when the caller leaves a knob unset.
const (
	DefaultAttempts    = 3
	DefaultBackoffStep = 2 * time.Second
)

// LinearBackoff waits Step after the first failure, 2*Step after the second, and so on.
type LinearBackoff struct {
	Step time.Duration
}

// Backoff returns the wait after failed attempt n (1-based).
func (b LinearBackoff) Backoff(attempt int) time.Duration {
	if attempt < 1 || b.Step <= 0 {
		return 0
	}
	return time.Duration(attempt) * b.Step
}

// Controller retries a harvest.Fetcher.
type Controller struct {
	fetcher harvest.Fetcher
	backoff LinearBackoff
	sleeper harvest.Sleeper
	logger  *zap.Logger
}

// Option customizes a Controller.
type Option func(*Controller)

// WithSleeper replaces the timer used between attempts.
func WithSleeper(s harvest.Sleeper) Option {
	return func(c *Controller) { c.sleeper = s }
}

// WithBackoffStep sets the linear backoff unit. Negative values disable waiting.
func WithBackoffStep(step time.Duration) Option {
	return func(c *Controller) { c.backoff.Step = step }
}

// New builds a Controller around fetcher.
func New(fetcher harvest.Fetcher, logger *zap.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{
		fetcher: fetcher,
		backoff: LinearBackoff{Step: DefaultBackoffStep},
		sleeper: harvest.TimerSleeper{},
		logger:  logger.Named("retry"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchWithRetry attempts the fetch up to maxAttempts times (values below 1
// count as 1). It reports false when no attempt produced a page: attempts
// exhausted, the browser could not start, or ctx ended. It never panics on
// transport failures and never returns an error.
func (c *Controller) FetchWithRetry(ctx context.Context, request harvest.FetchRequest, maxAttempts int) (harvest.Page, bool) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	mode := string(request.Mode)
	if mode == "" {
		mode = string(harvest.ModeDirect)
	}
	log := c.logger.With(zap.String("url", request.URL), zap.String("mode", mode))

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		log.Info("fetch attempt started", zap.Int("attempt", attempt), zap.Int("max_attempts", maxAttempts))

		start := time.Now()
		page, err := c.fetcher.Fetch(ctx, request)
		if err == nil {
			metrics.ObserveFetchAttempt(mode, "success", time.Since(start))
			return page, true
		}

		switch {
		case harvest.IsAutomationSetup(err):
			metrics.ObserveFetchAttempt(mode, "setup_error", time.Since(start))
			// DPanic is the audit log's CRITICAL level.
			log.DPanic("automation engine unavailable, giving up", zap.Error(err))
			return harvest.Page{}, false
		case ctx.Err() != nil || errors.Is(err, context.Canceled):
			metrics.ObserveFetchAttempt(mode, "canceled", time.Since(start))
			log.Warn("fetch canceled", zap.Int("attempt", attempt), zap.Error(err))
			return harvest.Page{}, false
		}

		metrics.ObserveFetchAttempt(mode, outcomeOf(err), time.Since(start))
		log.Warn("fetch attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.Error(err),
		)

		if attempt == maxAttempts {
			break
		}
		wait := c.backoff.Backoff(attempt)
		log.Info("waiting before next attempt", zap.Duration("wait", wait))
		metrics.ObserveRetryBackoff(mode, wait)
		if err := c.sleeper.Sleep(ctx, wait); err != nil {
			log.Warn("retry wait interrupted", zap.Error(err))
			return harvest.Page{}, false
		}
	}

	log.Error("fetch failed permanently", zap.Int("attempts", maxAttempts))
	return harvest.Page{}, false
}

func outcomeOf(err error) string {
	var transportErr *harvest.TransportError
	if errors.As(err, &transportErr) {
		return string(transportErr.Kind)
	}
	return "error"
}
