package app_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/harvester/internal/app"
	"github.com/JakeFAU/harvester/internal/config"
	"github.com/JakeFAU/harvester/internal/dispatcher"
	"github.com/JakeFAU/harvester/internal/harvest"
	"github.com/JakeFAU/harvester/internal/publisher"
	"github.com/JakeFAU/harvester/internal/publisher/memory"
	"github.com/JakeFAU/harvester/internal/worker"
)

const page = `<html><head><title>Shop</title></head><body>
<h1>Prices</h1>
<p>This paragraph is long enough to be kept.</p>
<a href="https://example.com/next">Next</a>
</body></html>`

type stubFetcher struct {
	calls atomic.Int32
	err   error
}

func (f *stubFetcher) Fetch(_ context.Context, req harvest.FetchRequest) (harvest.Page, error) {
	f.calls.Add(1)
	if f.err != nil {
		return harvest.Page{}, f.err
	}
	return harvest.Page{
		RequestedURL: req.URL,
		FinalURL:     req.URL,
		StatusCode:   200,
		ContentType:  "text/html; charset=utf-8",
		Body:         []byte(page),
	}, nil
}

type sequenceIDs struct{ n atomic.Int32 }

func (s *sequenceIDs) NewID() (string, error) {
	return "run-" + string(rune('a'+s.n.Add(1)-1)), nil
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Paths.WorkDir = t.TempDir()
	cfg.Retry.BackoffStep = 0
	return cfg
}

func noSleep() app.Option {
	return app.WithSleeper(harvest.SleeperFunc(func(context.Context, time.Duration) error { return nil }))
}

func TestSingleWritesFilesAndNotifies(t *testing.T) {
	cfg := testConfig(t)
	direct := &stubFetcher{}
	pub := memory.New()

	a, err := app.New(context.Background(), cfg, zap.NewNop(),
		app.WithFetchers(direct, nil),
		app.WithIDs(&sequenceIDs{}),
		app.WithSinks(worker.Sink{Name: "memory", Archiver: publisher.NewArchiver(pub, "harvests", nil)}),
		noSleep(),
	)
	require.NoError(t, err)
	defer a.Close(context.Background())

	outcome := a.Single(context.Background(), "https://www.example.com/shop", harvest.ModeDirect, false)
	require.Equal(t, harvest.StatusSuccess, outcome.Status, outcome.Reason)
	assert.Equal(t, int32(1), direct.calls.Load())
	assert.FileExists(t, outcome.Paths.Record)
	assert.FileExists(t, outcome.Paths.Table)
	assert.Equal(t, filepath.Join(cfg.Paths.WorkDir, "exports"), filepath.Dir(outcome.Paths.Record))
	assert.Contains(t, filepath.Base(outcome.Paths.Record), "example_com_")

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	note, ok := msgs[0].Payload.(publisher.Notification)
	require.True(t, ok)
	assert.Equal(t, "run-a", note.RunID)
	assert.Equal(t, "Shop", note.Title)
	assert.Equal(t, harvest.ModeDirect, note.Mode)
}

func TestBatchUsesPrefixOverrideAndReportsAll(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.Prefix = "nightly"

	a, err := app.New(context.Background(), cfg, nil,
		app.WithFetchers(&stubFetcher{}, &stubFetcher{err: &harvest.AutomationSetupError{Err: errors.New("no chrome")}}),
		app.WithSinks(),
		noSleep(),
	)
	require.NoError(t, err)
	defer a.Close(context.Background())

	urls := []string{"https://a.example", "https://b.example", "https://c.example"}
	var printed []harvest.Outcome
	report := a.Batch(context.Background(), urls, dispatcher.Options{
		Mode:      harvest.ModeDirect,
		OnOutcome: func(o harvest.Outcome) { printed = append(printed, o) },
	})
	assert.Len(t, report.Succeeded, 3)
	assert.Len(t, printed, 3)

	entries, err := os.ReadDir(a.ExportDir())
	require.NoError(t, err)
	assert.Len(t, entries, 6)
	for _, e := range entries {
		assert.Contains(t, e.Name(), "nightly_")
	}

	report = a.Batch(context.Background(), urls[:1], dispatcher.Options{Mode: harvest.ModeAutomated})
	assert.Equal(t, urls[:1], report.Failed)
}

func TestNewFailsOnUnusableExportDir(t *testing.T) {
	cfg := testConfig(t)
	blocker := filepath.Join(cfg.Paths.WorkDir, "exports")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	_, err := app.New(context.Background(), cfg, nil, app.WithSinks())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init writer")
}

func TestNewStartsMetricsServer(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Addr = "127.0.0.1:0"

	a, err := app.New(context.Background(), cfg, nil, app.WithSinks(), app.WithFetchers(&stubFetcher{}, nil))
	require.NoError(t, err)
	assert.Equal(t, cfg.Metrics.Addr, a.Config().Metrics.Addr)
	a.Close(context.Background())
}

func TestNewFailsOnInvalidArchiver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Archive.PostgresDSN = "postgres://localhost/harvester"
	cfg.Archive.PostgresTable = "bad-table;"

	_, err := app.New(context.Background(), cfg, nil, app.WithFetchers(&stubFetcher{}, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init postgres archiver")
}
