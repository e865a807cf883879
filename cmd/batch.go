package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/JakeFAU/harvester/internal/harvest"
)

// newBatchCmd creates the 'batch' subcommand.
func newBatchCmd(v *viper.Viper) *cobra.Command {
	var (
		automated   bool
		scroll      bool
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Harvests every URL in the input list concurrently",
		Long: `Reads one URL per line from the input file and runs each through the
harvest pipeline on a fixed worker pool. Each URL is reported as it
finishes, followed by a summary.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := resolveSession(cmd.Context())
			if err != nil {
				return err
			}
			mode := s.cfg.Mode
			if automated {
				mode = harvest.ModeAutomated
			}
			if concurrency < 1 {
				concurrency = s.cfg.ConcurrencyFor(mode)
			}
			return runBatch(cmd.Context(), s, cmd.OutOrStdout(), batchRequest{
				inputPath:   s.cfg.InputPath(),
				mode:        mode,
				scrollToEnd: s.cfg.ScrollToEnd || scroll,
				concurrency: concurrency,
			})
		},
	}
	flags := cmd.Flags()
	flags.BoolVar(&automated, "automated", false, "render pages in a headless browser")
	flags.IntVar(&concurrency, "concurrency", 0, "worker pool size (default 8 direct, 3 automated)")
	flags.BoolVar(&scroll, "scroll", false, "scroll each page to the end before capturing (automated only)")
	flags.String("input", "", "file with one URL per line")
	mustBind(v, "paths.input_file", flags.Lookup("input"))
	return cmd
}
