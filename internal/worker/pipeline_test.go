package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/harvester/internal/harvest"
	"github.com/JakeFAU/harvester/internal/retry"
)

type fakeRetrier struct {
	mu       sync.Mutex
	page     harvest.Page
	ok       bool
	requests []harvest.FetchRequest
	attempts []int
}

func (f *fakeRetrier) FetchWithRetry(_ context.Context, req harvest.FetchRequest, maxAttempts int) (harvest.Page, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	f.attempts = append(f.attempts, maxAttempts)
	return f.page, f.ok
}

type fakeExtractor struct {
	panicWith any
}

func (f fakeExtractor) Extract(markup harvest.Markup, sourceURL string) harvest.Document {
	if f.panicWith != nil {
		panic(f.panicWith)
	}
	return harvest.Document{Metadata: harvest.Metadata{URL: sourceURL, Title: string(markup.Body)}}
}

type fakeWriter struct {
	mu       sync.Mutex
	err      error
	prefixes []string
	docs     []harvest.Document
}

func (w *fakeWriter) Save(_ context.Context, doc *harvest.Document, prefix string) (harvest.Paths, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return harvest.Paths{}, w.err
	}
	w.prefixes = append(w.prefixes, prefix)
	w.docs = append(w.docs, *doc)
	return harvest.Paths{Record: "/out/" + prefix + ".json", Table: "/out/" + prefix + ".xlsx"}, nil
}

type fakeArchiver struct {
	mu    sync.Mutex
	err   error
	saved []harvest.SavedDocument
}

func (a *fakeArchiver) Archive(_ context.Context, saved harvest.SavedDocument) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.saved = append(a.saved, saved)
	return a.err
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func okPage(body string) harvest.Page {
	return harvest.Page{StatusCode: 200, Body: []byte(body), ContentType: "text/html"}
}

func TestProcessSuccessFlow(t *testing.T) {
	t.Parallel()

	retrier := &fakeRetrier{page: okPage("Welcome"), ok: true}
	writer := &fakeWriter{}
	primary := &fakeArchiver{}
	p := New(retrier, fakeExtractor{}, writer, &fakeClock{}, Config{Attempts: 3}, zap.NewNop(),
		Sink{Name: "primary", Archiver: primary})

	outcome := p.Process(context.Background(), "https://www.Example.com/page", Options{
		RunID:       "run-1",
		Mode:        harvest.ModeAutomated,
		ScrollToEnd: true,
	})

	assert.Equal(t, harvest.StatusSuccess, outcome.Status)
	assert.Equal(t, "https://www.Example.com/page", outcome.URL)
	assert.Equal(t, "/out/example_com.json", outcome.Paths.Record)
	assert.Positive(t, outcome.Duration)

	require.Len(t, retrier.requests, 1)
	assert.Equal(t, harvest.FetchRequest{
		URL:         "https://www.Example.com/page",
		Mode:        harvest.ModeAutomated,
		ScrollToEnd: true,
	}, retrier.requests[0])
	assert.Equal(t, []int{3}, retrier.attempts)

	require.Len(t, writer.docs, 1)
	assert.Equal(t, harvest.ModeAutomated, writer.docs[0].Metadata.Mode)
	assert.Equal(t, "Welcome", writer.docs[0].Metadata.Title)

	require.Len(t, primary.saved, 1)
	assert.Equal(t, "run-1", primary.saved[0].RunID)
	assert.Equal(t, "example_com", primary.saved[0].Prefix)
	assert.Equal(t, outcome.Paths, primary.saved[0].Paths)
}

func TestProcessPrefixOverride(t *testing.T) {
	t.Parallel()

	writer := &fakeWriter{}
	p := New(&fakeRetrier{page: okPage("x"), ok: true}, fakeExtractor{}, writer, &fakeClock{}, Config{}, nil)

	outcome := p.Process(context.Background(), "https://example.com", Options{Prefix: "nightly"})
	require.Equal(t, harvest.StatusSuccess, outcome.Status)
	assert.Equal(t, []string{"nightly"}, writer.prefixes)
}

func TestProcessFetchFailure(t *testing.T) {
	t.Parallel()

	writer := &fakeWriter{}
	p := New(&fakeRetrier{}, fakeExtractor{}, writer, &fakeClock{}, Config{Attempts: 2}, nil)

	outcome := p.Process(context.Background(), "https://example.com", Options{Mode: harvest.ModeDirect})
	assert.Equal(t, harvest.StatusFailure, outcome.Status)
	assert.Equal(t, "no result after 2 attempts", outcome.Reason)
	assert.Empty(t, writer.docs)
}

func TestProcessCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := New(&fakeRetrier{}, fakeExtractor{}, &fakeWriter{}, &fakeClock{}, Config{}, nil)

	outcome := p.Process(ctx, "https://example.com", Options{})
	assert.Equal(t, harvest.StatusFailure, outcome.Status)
	assert.Equal(t, "canceled", outcome.Reason)
}

func TestProcessSaveFailure(t *testing.T) {
	t.Parallel()

	archiver := &fakeArchiver{}
	writer := &fakeWriter{err: &harvest.PersistenceError{Path: "/out/x.json", Err: errors.New("disk full")}}
	p := New(&fakeRetrier{page: okPage("x"), ok: true}, fakeExtractor{}, writer, &fakeClock{}, Config{}, nil,
		Sink{Name: "a", Archiver: archiver})

	outcome := p.Process(context.Background(), "https://example.com", Options{})
	assert.Equal(t, harvest.StatusFailure, outcome.Status)
	assert.Contains(t, outcome.Reason, "disk full")
	assert.Empty(t, archiver.saved, "archivers only see saved documents")
}

func TestProcessArchiveFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	failing := &fakeArchiver{err: errors.New("bucket missing")}
	healthy := &fakeArchiver{}
	p := New(&fakeRetrier{page: okPage("x"), ok: true}, fakeExtractor{}, &fakeWriter{}, &fakeClock{}, Config{},
		zap.New(core),
		Sink{Name: "gcs", Archiver: failing},
		Sink{Name: "nil"},
		Sink{Name: "memory", Archiver: healthy},
	)

	outcome := p.Process(context.Background(), "https://example.com", Options{})
	assert.Equal(t, harvest.StatusSuccess, outcome.Status)
	assert.Len(t, failing.saved, 1)
	assert.Len(t, healthy.saved, 1)

	warnings := logs.FilterMessage("archive failed").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, "gcs", warnings[0].ContextMap()["archiver"])
}

func TestProcessContainsPanics(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.ErrorLevel)
	p := New(&fakeRetrier{page: okPage("x"), ok: true}, fakeExtractor{panicWith: "boom"}, &fakeWriter{},
		&fakeClock{}, Config{}, zap.New(core))

	var outcome harvest.Outcome
	require.NotPanics(t, func() {
		outcome = p.Process(context.Background(), "https://example.com", Options{})
	})
	assert.Equal(t, harvest.StatusFailure, outcome.Status)
	assert.Equal(t, "panic: boom", outcome.Reason)
	assert.Positive(t, outcome.Duration)
	assert.Equal(t, 1, logs.FilterMessage("task panicked").Len())
}

type flakyFetcher struct {
	mu       sync.Mutex
	attempts int
	fails    int
}

func (f *flakyFetcher) Fetch(_ context.Context, req harvest.FetchRequest) (harvest.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.attempts <= f.fails {
		return harvest.Page{}, &harvest.TransportError{Kind: harvest.KindNetwork, URL: req.URL, Err: errors.New("reset")}
	}
	return harvest.Page{RequestedURL: req.URL, StatusCode: 200, Body: []byte("ok")}, nil
}

func TestProcessWithRetryController(t *testing.T) {
	t.Parallel()

	fetcher := &flakyFetcher{fails: 2}
	var (
		mu    sync.Mutex
		waits []time.Duration
	)
	controller := retry.New(fetcher, zap.NewNop(), retry.WithSleeper(harvest.SleeperFunc(
		func(_ context.Context, d time.Duration) error {
			mu.Lock()
			defer mu.Unlock()
			waits = append(waits, d)
			return nil
		})))
	p := New(controller, fakeExtractor{}, &fakeWriter{}, &fakeClock{}, Config{Attempts: 3}, nil)

	outcome := p.Process(context.Background(), "https://example.com", Options{Mode: harvest.ModeDirect})
	assert.Equal(t, harvest.StatusSuccess, outcome.Status)
	assert.Equal(t, 3, fetcher.attempts)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, waits)
}
