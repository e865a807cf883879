package cmd

import (
	"github.com/spf13/cobra"

	"github.com/JakeFAU/harvester/internal/harvest"
)

// newSingleCmd creates the 'single' subcommand.
func newSingleCmd() *cobra.Command {
	var automated, scroll bool
	cmd := &cobra.Command{
		Use:   "single [url]",
		Short: "Harvests one URL",
		Long: `Fetches, extracts and saves a single page. Without an argument the
configured single.default_url is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := resolveSession(cmd.Context())
			if err != nil {
				return err
			}
			url := ""
			if len(args) == 1 {
				url = args[0]
			}
			mode := s.cfg.Mode
			if automated {
				mode = harvest.ModeAutomated
			}
			return runSingle(cmd.Context(), s, cmd.OutOrStdout(), url, mode, s.cfg.ScrollToEnd || scroll)
		},
	}
	cmd.Flags().BoolVar(&automated, "automated", false, "render the page in a headless browser")
	cmd.Flags().BoolVar(&scroll, "scroll", false, "scroll to the end before capturing (automated only)")
	return cmd
}
