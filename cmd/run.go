package cmd

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/JakeFAU/harvester/internal/dispatcher"
	"github.com/JakeFAU/harvester/internal/harvest"
)

// batchRequest is a resolved batch invocation.
type batchRequest struct {
	inputPath   string
	mode        harvest.Mode
	scrollToEnd bool
	concurrency int
}

func printOutcome(out io.Writer, o harvest.Outcome) {
	label := "[SUCCESS]"
	if o.Status != harvest.StatusSuccess {
		label = "[FAILURE]"
	}
	fmt.Fprintf(out, "%s Finished: %s\n", label, o.URL)
}

func printSummary(out io.Writer, report harvest.Report) {
	fmt.Fprintf(out, "Batch complete: %d succeeded, %d failed (run %s)\n",
		len(report.Succeeded), len(report.Failed), report.RunID)
}

func runSingle(ctx context.Context, s *session, out io.Writer, url string, mode harvest.Mode, scrollToEnd bool) error {
	if url == "" {
		url = s.cfg.Single.DefaultURL
	}
	s.logger.Info("single run starting", zap.String("url", url), zap.String("mode", string(mode)))
	return withRunner(ctx, s, func(r Runner) error {
		outcome := r.Single(ctx, url, mode, scrollToEnd)
		printOutcome(out, outcome)
		if outcome.Status == harvest.StatusSuccess {
			fmt.Fprintf(out, "Saved %s\n", outcome.Paths.Record)
		} else {
			s.logger.Warn("single run failed", zap.String("url", url), zap.String("reason", outcome.Reason))
		}
		return nil
	})
}

func runBatch(ctx context.Context, s *session, out io.Writer, req batchRequest) error {
	urls, err := dispatcher.ReadURLs(req.inputPath)
	if err != nil {
		s.logger.Error("input list unavailable", zap.String("path", req.inputPath), zap.Error(err))
		return err
	}
	s.logger.Info("batch starting",
		zap.String("input", req.inputPath),
		zap.Int("urls", len(urls)),
		zap.String("mode", string(req.mode)),
		zap.Int("concurrency", req.concurrency),
	)
	return withRunner(ctx, s, func(r Runner) error {
		report := r.Batch(ctx, urls, dispatcher.Options{
			Mode:        req.mode,
			ScrollToEnd: req.scrollToEnd,
			Concurrency: req.concurrency,
			OnOutcome:   func(o harvest.Outcome) { printOutcome(out, o) },
		})
		printSummary(out, report)
		return nil
	})
}
