package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JakeFAU/harvester/internal/harvest"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
mode: Automated
scroll_to_end: true
retry:
  attempts: 5
  backoff_step: 500ms
concurrency:
  direct: 16
  automated: 2
paths:
  work_dir: /srv/harvest
  input_file: targets.txt
  export_dir: out
output:
  prefix: nightly
direct:
  timeout: 10s
  per_host_rps: 0.5
automated:
  page_load_timeout: 45s
  exec_path: /usr/bin/chromium
identity:
  user_agents: ["agent-a", "agent-b"]
extract:
  min_paragraph_length: 40
  readability: false
archive:
  postgres_dsn: postgres://localhost/harvester
  pubsub_project: proj
  pubsub_topic: harvests
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Mode != harvest.ModeAutomated || !cfg.ScrollToEnd {
		t.Fatalf("expected automated mode with scrolling, got %q scroll=%v", cfg.Mode, cfg.ScrollToEnd)
	}
	if cfg.Retry.Attempts != 5 || cfg.Retry.BackoffStep != 500*time.Millisecond {
		t.Fatalf("expected retry overrides, got %+v", cfg.Retry)
	}
	if cfg.ConcurrencyFor(harvest.ModeAutomated) != 2 || cfg.ConcurrencyFor(harvest.ModeDirect) != 16 {
		t.Fatalf("unexpected concurrency: %+v", cfg.Concurrency)
	}
	if got := cfg.InputPath(); got != filepath.Join("/srv/harvest", "targets.txt") {
		t.Fatalf("unexpected input path %q", got)
	}
	if cfg.Output.Prefix != "nightly" || cfg.Direct.PerHostRPS != 0.5 {
		t.Fatalf("expected output and direct overrides, got %+v %+v", cfg.Output, cfg.Direct)
	}
	if cfg.Direct.JitterMin != time.Second || cfg.Direct.JitterMax != 2*time.Second {
		t.Fatalf("expected default jitter bounds, got %+v", cfg.Direct)
	}
	if cfg.Direct.MaxBodyBytes != 32<<20 {
		t.Fatalf("expected default body cap, got %d", cfg.Direct.MaxBodyBytes)
	}
	if cfg.Automated.PageLoadTimeout != 45*time.Second || cfg.Automated.ExecPath != "/usr/bin/chromium" {
		t.Fatalf("expected automated overrides, got %+v", cfg.Automated)
	}
	if len(cfg.Identity.UserAgents) != 2 || cfg.Extract.MinParagraphLength != 40 || cfg.Extract.Readability {
		t.Fatalf("expected identity/extract overrides, got %+v %+v", cfg.Identity, cfg.Extract)
	}
	if cfg.Archive.PostgresTable != "harvests" {
		t.Fatalf("expected default postgres table, got %q", cfg.Archive.PostgresTable)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.Mode != harvest.ModeDirect {
		t.Fatalf("expected direct mode by default, got %q", cfg.Mode)
	}
	if cfg.Retry.Attempts != 3 || cfg.Retry.BackoffStep != 2*time.Second {
		t.Fatalf("unexpected retry defaults: %+v", cfg.Retry)
	}
	if cfg.Concurrency.Direct != 8 || cfg.Concurrency.Automated != 3 {
		t.Fatalf("unexpected concurrency defaults: %+v", cfg.Concurrency)
	}
	if cfg.Direct.Timeout != 20*time.Second || cfg.Automated.PageLoadTimeout != 30*time.Second {
		t.Fatalf("unexpected timeouts: %v %v", cfg.Direct.Timeout, cfg.Automated.PageLoadTimeout)
	}
	if cfg.Automated.ScrollWaitMin != 2*time.Second || cfg.Automated.ScrollWaitMax != 4*time.Second {
		t.Fatalf("unexpected scroll waits: %+v", cfg.Automated)
	}
	if cfg.InputPath() != "urls.txt" || cfg.ExportPath() != "exports" || cfg.LogPath() != "execution.log" {
		t.Fatalf("unexpected default paths: %s %s %s", cfg.InputPath(), cfg.ExportPath(), cfg.LogPath())
	}
	if cfg.Single.DefaultURL != "https://www.python.org" {
		t.Fatalf("unexpected default single url %q", cfg.Single.DefaultURL)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	if err != nil {
		t.Fatalf("Load defaults: %v", err)
	}

	testCases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad mode", func(c *Config) { c.Mode = "selenium" }, "mode must be"},
		{"no attempts", func(c *Config) { c.Retry.Attempts = 0 }, "retry.attempts"},
		{"no workers", func(c *Config) { c.Concurrency.Automated = 0 }, "concurrency"},
		{"no input", func(c *Config) { c.Paths.InputFile = " " }, "paths.input_file"},
		{"no export", func(c *Config) { c.Paths.ExportDir = "" }, "paths.export_dir"},
		{"no timeout", func(c *Config) { c.Direct.Timeout = 0 }, "direct.timeout"},
		{"inverted jitter", func(c *Config) { c.Direct.JitterMax = 0 }, "direct.jitter_min"},
		{"negative rps", func(c *Config) { c.Direct.PerHostRPS = -1 }, "direct.per_host_rps"},
		{"no body cap", func(c *Config) { c.Direct.MaxBodyBytes = 0 }, "direct.max_body_bytes"},
		{"no page load", func(c *Config) { c.Automated.PageLoadTimeout = 0 }, "page_load_timeout"},
		{"inverted scroll", func(c *Config) { c.Automated.ScrollWaitMin = time.Minute }, "scroll_wait_min"},
		{"negative paragraph", func(c *Config) { c.Extract.MinParagraphLength = -1 }, "min_paragraph_length"},
		{"pubsub half set", func(c *Config) { c.Archive.PubSubTopic = "t" }, "pubsub"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}
