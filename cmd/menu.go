package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/harvester/internal/harvest"
)

// runMenu is the interactive entry point used when no subcommand is given.
func runMenu(cmd *cobra.Command, _ []string) error {
	s, err := resolveSession(cmd.Context())
	if err != nil {
		return err
	}
	in := bufio.NewReader(cmd.InOrStdin())
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Select a mode:")
	fmt.Fprintln(out, "  1) Single URL")
	fmt.Fprintln(out, "  2) Batch from", s.cfg.InputPath())
	switch prompt(in, out, "Option: ") {
	case "1":
		url := prompt(in, out, fmt.Sprintf("URL [%s]: ", s.cfg.Single.DefaultURL))
		return runSingle(cmd.Context(), s, out, url, harvest.ModeDirect, false)
	case "2":
		mode := harvest.ModeDirect
		if strings.EqualFold(prompt(in, out, "Use automated browser? (y/n) "), "y") {
			mode = harvest.ModeAutomated
		}
		return runBatch(cmd.Context(), s, out, batchRequest{
			inputPath:   s.cfg.InputPath(),
			mode:        mode,
			scrollToEnd: s.cfg.ScrollToEnd && mode == harvest.ModeAutomated,
			concurrency: s.cfg.ConcurrencyFor(mode),
		})
	default:
		fmt.Fprintln(out, "Invalid option.")
		return nil
	}
}

// prompt writes label and returns the trimmed reply. End of input reads as
// an empty reply.
func prompt(in *bufio.Reader, out io.Writer, label string) string {
	fmt.Fprint(out, label)
	line, _ := in.ReadString('\n') //nolint:errcheck // partial line at EOF is still a reply
	return strings.TrimSpace(line)
}
