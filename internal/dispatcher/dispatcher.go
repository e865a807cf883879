// Package dispatcher fans a URL list out to a fixed pool of pipeline workers
// and gathers their outcomes into a report.
package dispatcher

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/harvester/internal/harvest"
	"github.com/JakeFAU/harvester/internal/worker"
)

// Default pool sizes per transport mode.
const (
	DefaultDirectConcurrency    = 8
	DefaultAutomatedConcurrency = 3
)

// Processor runs one URL to completion.
type Processor interface {
	Process(ctx context.Context, url string, opts worker.Options) harvest.Outcome
}

// Options configure one batch.
type Options struct {
	Mode        harvest.Mode
	ScrollToEnd bool
	// Concurrency is the worker pool size; values below 1 use the mode default.
	Concurrency int
	// PrefixOverride replaces the per-URL domain prefix when set.
	PrefixOverride string
	// OnOutcome, when set, is called from the collecting goroutine as each
	// URL completes.
	OnOutcome func(harvest.Outcome)
}

// Dispatcher runs batches.
type Dispatcher struct {
	processor Processor
	ids       harvest.IDGenerator
	clock     harvest.Clock
	logger    *zap.Logger
}

// New creates a Dispatcher.
func New(processor Processor, ids harvest.IDGenerator, clock harvest.Clock, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		processor: processor,
		ids:       ids,
		clock:     clock,
		logger:    logger.Named("dispatcher"),
	}
}

// DefaultConcurrency returns the pool size used for mode.
func DefaultConcurrency(mode harvest.Mode) int {
	if mode == harvest.ModeAutomated {
		return DefaultAutomatedConcurrency
	}
	return DefaultDirectConcurrency
}

// RunBatch processes every URL and returns once each has an outcome. The
// report lists URLs in completion order and always accounts for all of
// them: URLs left unstarted when ctx ends are reported as failed.
func (d *Dispatcher) RunBatch(ctx context.Context, urls []string, opts Options) harvest.Report {
	report := harvest.Report{
		RunID:     d.runID(),
		Mode:      opts.Mode,
		Succeeded: []string{},
		Failed:    []string{},
		Started:   d.clock.Now(),
	}

	workers := opts.Concurrency
	if workers < 1 {
		workers = DefaultConcurrency(opts.Mode)
	}
	workers = max(1, min(workers, len(urls)))

	d.logger.Info("batch started",
		zap.String("run_id", report.RunID),
		zap.String("mode", string(opts.Mode)),
		zap.Int("urls", len(urls)),
		zap.Int("workers", workers),
	)

	taskOpts := worker.Options{
		RunID:       report.RunID,
		Mode:        opts.Mode,
		ScrollToEnd: opts.ScrollToEnd,
		Prefix:      opts.PrefixOverride,
	}
	tasks := make(chan string)
	outcomes := make(chan harvest.Outcome, workers)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(tasks)
		for i, url := range urls {
			select {
			case tasks <- url:
			case <-ctx.Done():
				for _, rest := range urls[i:] {
					outcomes <- harvest.Failed(rest, "canceled")
				}
				return
			}
		}
	}()

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for url := range tasks {
				outcomes <- d.runTask(ctx, url, taskOpts)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	for outcome := range outcomes {
		report.Record(outcome)
		if opts.OnOutcome != nil {
			opts.OnOutcome(outcome)
		}
	}

	report.Finished = d.clock.Now()
	d.logger.Info("batch finished",
		zap.String("run_id", report.RunID),
		zap.Int("succeeded", len(report.Succeeded)),
		zap.Int("failed", len(report.Failed)),
		zap.Duration("elapsed", report.Finished.Sub(report.Started)),
	)
	return report
}

// runTask isolates one URL: a panic becomes a failure outcome.
func (d *Dispatcher) runTask(ctx context.Context, url string, opts worker.Options) (outcome harvest.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("task panicked",
				zap.String("url", url),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			outcome = harvest.Failed(url, fmt.Sprintf("panic: %v", r))
		}
	}()
	if ctx.Err() != nil {
		return harvest.Failed(url, "canceled")
	}
	outcome = d.processor.Process(ctx, url, opts)
	outcome.URL = url
	return outcome
}

func (d *Dispatcher) runID() string {
	if d.ids != nil {
		id, err := d.ids.NewID()
		if err == nil {
			return id
		}
		d.logger.Warn("run id generation failed", zap.Error(err))
	}
	return d.clock.Now().UTC().Format("20060102T150405.000000000Z")
}
