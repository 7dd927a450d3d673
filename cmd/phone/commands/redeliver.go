package commands

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dyluth/cardlink/internal/phone"
	"github.com/dyluth/cardlink/internal/printer"
	"github.com/spf13/cobra"
)

var redeliverRetry time.Duration

var redeliverCmd = &cobra.Command{
	Use:   "redeliver",
	Short: "Send the saved credentials to the watch again",
	Long: `Send the saved credentials to the watch again without changing them.

With --retry, delivery is retried with exponential backoff while the watch is
unreachable, for up to the given duration.

Examples:
  phone redeliver
  phone redeliver --retry 1m`,
	Args: cobra.NoArgs,
	RunE: runRedeliver,
}

func init() {
	redeliverCmd.Flags().DurationVar(&redeliverRetry, "retry", 0, "Keep retrying an undelivered pair for up to this long")
	rootCmd.AddCommand(redeliverCmd)
}

func runRedeliver(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	d, coord, err := openPhone(ctx, false)
	if err != nil {
		return err
	}
	defer d.Close()

	if redeliverRetry <= 0 {
		out, err := coord.Redeliver(ctx)
		return reportDelivery(cmd, out, err)
	}

	// Only an unreachable watch is worth retrying
	var out phone.Outcome
	op := func() error {
		var err error
		out, err = coord.Redeliver(ctx)
		var pending *phone.DeliveryPendingError
		if err != nil && !errors.As(err, &pending) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = redeliverRetry
	notify := func(err error, next time.Duration) {
		printer.Warning("Watch not reachable, retrying in %v\n", next.Round(time.Millisecond))
	}
	err = backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify)
	return reportDelivery(cmd, out, err)
}
