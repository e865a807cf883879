// Package worker runs one URL through fetch, extraction, persistence and
// archiving.
package worker

import (
	"context"
	"fmt"
	"runtime/debug"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/harvester/internal/harvest"
	"github.com/JakeFAU/harvester/internal/metrics"
	"github.com/JakeFAU/harvester/internal/telemetry"
)

// Retrier fetches a page with bounded attempts. It reports false when no
// page could be obtained.
type Retrier interface {
	FetchWithRetry(ctx context.Context, request harvest.FetchRequest, maxAttempts int) (harvest.Page, bool)
}

// Config controls Pipeline behavior.
type Config struct {
	// Attempts is the maximum number of fetch attempts per URL.
	Attempts int
}

// Options describe one URL's run.
type Options struct {
	RunID       string
	Mode        harvest.Mode
	ScrollToEnd bool
	// Prefix overrides the domain-derived file prefix when set.
	Prefix string
}

// Sink is a named archiver.
type Sink struct {
	Name     string
	Archiver harvest.Archiver
}

// Pipeline processes single URLs. It is safe for concurrent use when its
// collaborators are.
type Pipeline struct {
	retrier   Retrier
	extractor harvest.Extractor
	writer    harvest.Writer
	sinks     []Sink
	clock     harvest.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Pipeline.
func New(
	retrier Retrier,
	extractor harvest.Extractor,
	writer harvest.Writer,
	clock harvest.Clock,
	cfg Config,
	logger *zap.Logger,
	sinks ...Sink,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	return &Pipeline{
		retrier:   retrier,
		extractor: extractor,
		writer:    writer,
		sinks:     sinks,
		clock:     clock,
		cfg:       cfg,
		logger:    logger.Named("pipeline"),
	}
}

// Process fetches, extracts, saves and archives url. It never panics and
// never returns an error: every failure, including a panic in a
// collaborator, becomes a failure Outcome.
func (p *Pipeline) Process(ctx context.Context, url string, opts Options) (outcome harvest.Outcome) {
	start := p.clock.Now()
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	ctx, span := telemetry.Tracer().Start(ctx, "harvest.process", trace.WithAttributes(
		attribute.String("harvest.url", url),
		attribute.String("harvest.mode", string(opts.Mode)),
		attribute.String("harvest.run_id", opts.RunID),
	))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked",
				zap.String("url", url),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			outcome = harvest.Failed(url, fmt.Sprintf("panic: %v", r))
		}
		outcome.Duration = p.clock.Now().Sub(start)
		if outcome.Status != harvest.StatusSuccess {
			span.SetStatus(codes.Error, outcome.Reason)
		}
	}()

	p.logger.Info("processing", zap.String("url", url), zap.String("mode", string(opts.Mode)))

	page, ok := p.retrier.FetchWithRetry(ctx, harvest.FetchRequest{
		URL:         url,
		Mode:        opts.Mode,
		ScrollToEnd: opts.ScrollToEnd,
	}, p.cfg.Attempts)
	if !ok {
		metrics.ObservePage(url, string(harvest.StatusFailure), 0)
		if ctx.Err() != nil {
			return harvest.Failed(url, "canceled")
		}
		return harvest.Failed(url, fmt.Sprintf("no result after %d attempts", p.cfg.Attempts))
	}
	metrics.ObservePage(url, string(harvest.StatusSuccess), len(page.Body))

	doc := p.extractor.Extract(page.Markup(), url)
	doc.Metadata.Mode = opts.Mode

	prefix := opts.Prefix
	if prefix == "" {
		prefix = harvest.DomainPrefix(url)
	}
	paths, err := p.writer.Save(ctx, &doc, prefix)
	if err != nil {
		p.logger.Error("save failed", zap.String("url", url), zap.Error(err))
		return harvest.Failed(url, err.Error())
	}
	p.logger.Info("data saved",
		zap.String("url", url),
		zap.String("record", paths.Record),
		zap.String("table", paths.Table),
		zap.Duration("elapsed", p.clock.Now().Sub(start)),
	)

	p.archive(ctx, harvest.SavedDocument{RunID: opts.RunID, Prefix: prefix, Document: &doc, Paths: paths})
	return harvest.Succeeded(url, paths)
}

// archive fans saved out to every sink. Failures are logged and counted but
// never change the outcome.
func (p *Pipeline) archive(ctx context.Context, saved harvest.SavedDocument) {
	for _, sink := range p.sinks {
		if sink.Archiver == nil {
			continue
		}
		if err := sink.Archiver.Archive(ctx, saved); err != nil {
			metrics.ObserveArchive(sink.Name, "failure")
			p.logger.Warn("archive failed",
				zap.String("archiver", sink.Name),
				zap.String("url", saved.Document.Metadata.URL),
				zap.Error(err),
			)
			continue
		}
		metrics.ObserveArchive(sink.Name, "success")
	}
}
