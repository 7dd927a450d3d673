package commands

import (
	"fmt"
	"time"

	"github.com/dyluth/cardlink/internal/poll"
	"github.com/dyluth/cardlink/internal/printer"
	"github.com/spf13/cobra"
)

var statusWait time.Duration

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the pairing link and the saved credentials",
	Long: `Show the pairing link state as seen from this device and whether
credentials are saved. Saved credentials are shown redacted.

Examples:
  phone status
  phone status --wait 30s   # wait for the watch to come online first`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().DurationVar(&statusWait, "wait", 0, "Wait up to this long for the watch to come online")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	d, coord, err := openPhone(ctx, false)
	if err != nil {
		return err
	}
	defer d.Close()

	if statusWait > 0 {
		if _, err := poll.PollForPeer(ctx, d.Session, statusWait); err != nil {
			printer.Warning("%v\n", err)
		}
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%-16s%s\n", "Pairing:", d.Config.Pairing)
	printer.Snapshot(w, d.Session.State())

	if pair, ok := coord.Saved(); ok {
		fmt.Fprintf(w, "%-16s%s\n", "Credentials:", pair.Redacted())
	} else {
		fmt.Fprintf(w, "%-16s%s\n", "Credentials:", "none saved")
	}
	return nil
}
