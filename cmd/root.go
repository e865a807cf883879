// Package cmd defines the CLI commands for the harvester executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/harvester/internal/app"
	"github.com/JakeFAU/harvester/internal/config"
	"github.com/JakeFAU/harvester/internal/dispatcher"
	"github.com/JakeFAU/harvester/internal/harvest"
	"github.com/JakeFAU/harvester/internal/logging"
)

// sessionKeyType is the key for storing the session in the context.
type sessionKeyType string

const sessionKey sessionKeyType = "session"

// Runner is what commands need from the harvester services. It lets tests
// inject a fake in place of *app.App.
type Runner interface {
	Single(ctx context.Context, url string, mode harvest.Mode, scrollToEnd bool) harvest.Outcome
	Batch(ctx context.Context, urls []string, opts dispatcher.Options) harvest.Report
	Close(ctx context.Context)
}

// newApp is the application factory. It's a variable so tests can replace
// it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (Runner, error) {
	return app.New(ctx, cfg, logger)
}

// session carries what PersistentPreRunE prepared for the subcommands.
type session struct {
	cfg    config.Config
	logger *zap.Logger
	close  func()
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "Harvests structured content from web pages.",
		Long: `harvester fetches web pages either with plain HTTP or an automated
headless browser, extracts their metadata, headings, paragraphs, links and
tables, and writes a JSON record plus a spreadsheet per page.

Run without a subcommand for the interactive menu.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Load configuration and the audit logger before any subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cfgFile != "" {
				v.SetConfigFile(cfgFile)
			}
			cfg, err := config.LoadFrom(v, cfgFile != "")
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, closeLog, err := logging.NewAudit(logging.Options{
				FilePath:     cfg.LogPath(),
				FileLevel:    cfg.Logging.FileLevel,
				ConsoleLevel: cfg.Logging.ConsoleLevel,
				Development:  cfg.Logging.Development,
				Console:      cmd.ErrOrStderr(),
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			ctx := context.WithValue(cmd.Context(), sessionKey, &session{cfg: cfg, logger: logger, close: closeLog})
			cmd.SetContext(ctx)
			return nil
		},

		// Flush the audit log once the command finishes.
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if s, ok := cmd.Context().Value(sessionKey).(*session); ok && s != nil {
				s.close()
			}
		},

		RunE: runMenu,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	flags.String("work-dir", "", "directory that relative paths resolve against")
	flags.String("export-dir", "", "directory for record and spreadsheet files")
	flags.String("prefix", "", "filename prefix override for saved files")
	flags.String("log-level", "", "console log level (debug, info, warning, error, critical)")
	mustBind(v, "paths.work_dir", flags.Lookup("work-dir"))
	mustBind(v, "paths.export_dir", flags.Lookup("export-dir"))
	mustBind(v, "output.prefix", flags.Lookup("prefix"))
	mustBind(v, "logging.console_level", flags.Lookup("log-level"))

	cmd.AddCommand(newSingleCmd(), newBatchCmd(v), newMigrateCmd(v))
	return cmd
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the running
// command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func resolveSession(ctx context.Context) (*session, error) {
	s, ok := ctx.Value(sessionKey).(*session)
	if !ok || s == nil {
		return nil, errors.New("configuration not loaded")
	}
	return s, nil
}

// withRunner builds the harvester services, hands them to fn and closes
// them afterwards.
func withRunner(ctx context.Context, s *session, fn func(Runner) error) error {
	runner, err := newApp(ctx, s.cfg, s.logger)
	if err != nil {
		s.logger.Error("failed to initialize harvester services", zap.Error(err))
		return fmt.Errorf("failed to initialize harvester services: %w", err)
	}
	defer runner.Close(context.WithoutCancel(ctx))
	return fn(runner)
}

// mustBind ties a flag to a config key. It only fails for a nil flag,
// which is a programming error.
func mustBind(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("bind flag for %s: %v", key, err))
	}
}
