package commands

import (
	"time"

	"github.com/dyluth/cardlink/internal/phone"
	"github.com/dyluth/cardlink/internal/poll"
	"github.com/dyluth/cardlink/internal/printer"
	"github.com/dyluth/cardlink/pkg/credentials"
	"github.com/dyluth/cardlink/pkg/link"
	"github.com/spf13/cobra"
)

var (
	submitKey   string
	submitToken string
	submitWait  time.Duration
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Save a Trello key and token and send them to the watch",
	Long: `Save a Trello API key and token on this device and deliver them to the watch.

Both values are required. They are saved before anything is sent; if the
watch cannot be reached the pair stays saved for 'phone redeliver'.

Examples:
  phone submit --key abc123 --token xyz789
  phone submit --key abc123 --token xyz789 --wait 30s`,
	Args: cobra.NoArgs,
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringVar(&submitKey, "key", "", "Trello API key")
	submitCmd.Flags().StringVar(&submitToken, "token", "", "Trello API token")
	submitCmd.Flags().DurationVar(&submitWait, "wait", 0, "Wait up to this long for the watch to come online before sending")
	rootCmd.AddCommand(submitCmd)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	candidate := credentials.Pair{Key: submitKey, Token: submitToken}
	if err := candidate.Validate(); err != nil {
		return reportDelivery(cmd, phone.Outcome{}, err)
	}

	// The pair is saved even when the link is down.
	d, coord, err := openPhone(ctx, true)
	if err != nil {
		return err
	}
	defer d.Close()

	if submitWait > 0 && d.Session.State().Activation == link.StateActivated {
		printer.Step("Waiting for the watch...\n")
		if _, err := poll.PollForPeer(ctx, d.Session, submitWait); err != nil {
			printer.Warning("%v\n", err)
		}
	}

	out, err := coord.Submit(ctx, candidate)
	return reportDelivery(cmd, out, err)
}
