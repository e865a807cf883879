package harvest

import (
	"context"
	"time"
)

// Fetcher performs a single fetch attempt for a URL.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (Page, error)
}

// Extractor converts raw markup into a Document. It never fails.
type Extractor interface {
	Extract(markup Markup, sourceURL string) Document
}

// Writer persists a Document under a filename prefix.
type Writer interface {
	Save(ctx context.Context, doc *Document, prefix string) (Paths, error)
}

// Archiver receives saved documents for secondary storage or notification.
type Archiver interface {
	Archive(ctx context.Context, saved SavedDocument) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run and record IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Hasher computes digests of raw markup.
type Hasher interface {
	Hash(data []byte) string
}

// Sleeper blocks for a duration or until the context ends.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

// Sleep calls f.
func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

// TimerSleeper sleeps on a real timer.
type TimerSleeper struct{}

// Sleep waits for d, returning early with the context error if ctx ends first.
func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
