// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/harvester/internal/harvest"
)

// Config captures all harvester configuration knobs loaded via Viper.
type Config struct {
	Mode        harvest.Mode      `mapstructure:"mode"`
	ScrollToEnd bool              `mapstructure:"scroll_to_end"`
	Retry       RetryConfig       `mapstructure:"retry"`
	Concurrency ConcurrencyConfig `mapstructure:"concurrency"`
	Paths       PathsConfig       `mapstructure:"paths"`
	Output      OutputConfig      `mapstructure:"output"`
	Direct      DirectConfig      `mapstructure:"direct"`
	Automated   AutomatedConfig   `mapstructure:"automated"`
	Identity    IdentityConfig    `mapstructure:"identity"`
	Extract     ExtractConfig     `mapstructure:"extract"`
	Single      SingleConfig      `mapstructure:"single"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Tracing     TracingConfig     `mapstructure:"tracing"`
	Archive     ArchiveConfig     `mapstructure:"archive"`
}

// RetryConfig controls the retry controller.
type RetryConfig struct {
	Attempts    int           `mapstructure:"attempts"`
	BackoffStep time.Duration `mapstructure:"backoff_step"`
}

// ConcurrencyConfig sets the batch worker pool size per mode.
type ConcurrencyConfig struct {
	Direct    int `mapstructure:"direct"`
	Automated int `mapstructure:"automated"`
}

// PathsConfig locates the input list, export directory and audit log.
type PathsConfig struct {
	WorkDir   string `mapstructure:"work_dir"`
	InputFile string `mapstructure:"input_file"`
	ExportDir string `mapstructure:"export_dir"`
	LogFile   string `mapstructure:"log_file"`
}

// OutputConfig holds the optional filename prefix override.
type OutputConfig struct {
	Prefix string `mapstructure:"prefix"`
}

// DirectConfig tunes plain HTTP fetching.
type DirectConfig struct {
	Timeout    time.Duration `mapstructure:"timeout"`
	JitterMin  time.Duration `mapstructure:"jitter_min"`
	JitterMax  time.Duration `mapstructure:"jitter_max"`
	PerHostRPS float64       `mapstructure:"per_host_rps"`
	// MaxBodyBytes caps the response body; longer bodies are truncated.
	MaxBodyBytes int `mapstructure:"max_body_bytes"`
}

// AutomatedConfig tunes headless browser fetching.
type AutomatedConfig struct {
	PageLoadTimeout time.Duration `mapstructure:"page_load_timeout"`
	ScrollWaitMin   time.Duration `mapstructure:"scroll_wait_min"`
	ScrollWaitMax   time.Duration `mapstructure:"scroll_wait_max"`
	ExecPath        string        `mapstructure:"exec_path"`
	Headless        bool          `mapstructure:"headless"`
}

// IdentityConfig overrides the built-in user-agent pool.
type IdentityConfig struct {
	UserAgents []string `mapstructure:"user_agents"`
}

// ExtractConfig tunes the extractor.
type ExtractConfig struct {
	MinParagraphLength int  `mapstructure:"min_paragraph_length"`
	Readability        bool `mapstructure:"readability"`
}

// SingleConfig holds defaults for the single-URL run.
type SingleConfig struct {
	DefaultURL string `mapstructure:"default_url"`
}

// LoggingConfig controls the audit log and console mirror.
type LoggingConfig struct {
	ConsoleLevel string `mapstructure:"console_level"`
	FileLevel    string `mapstructure:"file_level"`
	Development  bool   `mapstructure:"development"`
}

// MetricsConfig enables the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// TracingConfig enables OpenTelemetry spans per URL.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// ArchiveConfig enables optional secondary sinks. Empty values disable a sink.
type ArchiveConfig struct {
	GCSBucket       string `mapstructure:"gcs_bucket"`
	GCSPrefix       string `mapstructure:"gcs_prefix"`
	PostgresDSN     string `mapstructure:"postgres_dsn"`
	PostgresTable   string `mapstructure:"postgres_table"`
	MongoURI        string `mapstructure:"mongo_uri"`
	MongoDatabase   string `mapstructure:"mongo_database"`
	MongoCollection string `mapstructure:"mongo_collection"`
	PubSubProject   string `mapstructure:"pubsub_project"`
	PubSubTopic     string `mapstructure:"pubsub_topic"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	}
	return LoadFrom(v, path != "")
}

// LoadFrom decodes a Config from an existing Viper instance, which lets the
// CLI bind flags before decoding.
func LoadFrom(v *viper.Viper, readFile bool) (Config, error) {
	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if readFile {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Mode = harvest.Mode(strings.ToLower(string(cfg.Mode)))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", string(harvest.ModeDirect))
	v.SetDefault("scroll_to_end", false)
	v.SetDefault("retry.attempts", 3)
	v.SetDefault("retry.backoff_step", "2s")
	v.SetDefault("concurrency.direct", 8)
	v.SetDefault("concurrency.automated", 3)
	v.SetDefault("paths.work_dir", ".")
	v.SetDefault("paths.input_file", "urls.txt")
	v.SetDefault("paths.export_dir", "exports")
	v.SetDefault("paths.log_file", "execution.log")
	v.SetDefault("output.prefix", "")
	v.SetDefault("direct.timeout", "20s")
	v.SetDefault("direct.jitter_min", "1s")
	v.SetDefault("direct.jitter_max", "2s")
	v.SetDefault("direct.per_host_rps", 0)
	v.SetDefault("direct.max_body_bytes", 32<<20)
	v.SetDefault("automated.page_load_timeout", "30s")
	v.SetDefault("automated.scroll_wait_min", "2s")
	v.SetDefault("automated.scroll_wait_max", "4s")
	v.SetDefault("automated.exec_path", "")
	v.SetDefault("automated.headless", true)
	v.SetDefault("identity.user_agents", []string{})
	v.SetDefault("extract.min_paragraph_length", 20)
	v.SetDefault("extract.readability", true)
	v.SetDefault("single.default_url", "https://www.python.org")
	v.SetDefault("logging.console_level", "info")
	v.SetDefault("logging.file_level", "info")
	v.SetDefault("logging.development", false)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "harvester")
	v.SetDefault("archive.gcs_prefix", "harvests")
	v.SetDefault("archive.postgres_table", "harvests")
	v.SetDefault("archive.mongo_database", "harvester")
	v.SetDefault("archive.mongo_collection", "documents")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if !c.Mode.Valid() {
		return fmt.Errorf("mode must be %q or %q, got %q", harvest.ModeDirect, harvest.ModeAutomated, c.Mode)
	}
	if c.Retry.Attempts <= 0 {
		return fmt.Errorf("retry.attempts must be > 0")
	}
	if c.Retry.BackoffStep < 0 {
		return fmt.Errorf("retry.backoff_step must be >= 0")
	}
	if c.Concurrency.Direct <= 0 || c.Concurrency.Automated <= 0 {
		return fmt.Errorf("concurrency.direct and concurrency.automated must be > 0")
	}
	if strings.TrimSpace(c.Paths.InputFile) == "" {
		return fmt.Errorf("paths.input_file must be set")
	}
	if strings.TrimSpace(c.Paths.ExportDir) == "" {
		return fmt.Errorf("paths.export_dir must be set")
	}
	if c.Direct.Timeout <= 0 {
		return fmt.Errorf("direct.timeout must be > 0")
	}
	if c.Direct.JitterMin < 0 || c.Direct.JitterMax < c.Direct.JitterMin {
		return fmt.Errorf("direct.jitter_min must be >= 0 and <= direct.jitter_max")
	}
	if c.Direct.PerHostRPS < 0 {
		return fmt.Errorf("direct.per_host_rps must be >= 0")
	}
	if c.Direct.MaxBodyBytes <= 0 {
		return fmt.Errorf("direct.max_body_bytes must be > 0")
	}
	if c.Automated.PageLoadTimeout <= 0 {
		return fmt.Errorf("automated.page_load_timeout must be > 0")
	}
	if c.Automated.ScrollWaitMin < 0 || c.Automated.ScrollWaitMax < c.Automated.ScrollWaitMin {
		return fmt.Errorf("automated.scroll_wait_min must be >= 0 and <= automated.scroll_wait_max")
	}
	if c.Extract.MinParagraphLength < 0 {
		return fmt.Errorf("extract.min_paragraph_length must be >= 0")
	}
	if (c.Archive.PubSubProject == "") != (c.Archive.PubSubTopic == "") {
		return fmt.Errorf("archive.pubsub_project and archive.pubsub_topic must be set together")
	}
	return nil
}

// ConcurrencyFor returns the worker pool size for a transport mode.
func (c Config) ConcurrencyFor(mode harvest.Mode) int {
	if mode == harvest.ModeAutomated {
		return c.Concurrency.Automated
	}
	return c.Concurrency.Direct
}

// InputPath resolves the URL list against the working directory.
func (c Config) InputPath() string {
	return c.resolve(c.Paths.InputFile)
}

// ExportPath resolves the export directory against the working directory.
func (c Config) ExportPath() string {
	return c.resolve(c.Paths.ExportDir)
}

// LogPath resolves the audit log file against the working directory.
func (c Config) LogPath() string {
	return c.resolve(c.Paths.LogFile)
}

func (c Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Paths.WorkDir, p)
}
