package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dyluth/cardlink/internal/device"
	"github.com/dyluth/cardlink/internal/phone"
	"github.com/dyluth/cardlink/internal/printer"
	"github.com/dyluth/cardlink/pkg/credentials"
	"github.com/dyluth/cardlink/pkg/link"
	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string

	configPath      string
	activateTimeout time.Duration
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "phone",
	Short: "Phone - enter Trello credentials and hand them to the paired watch",
	Long: `phone is the primary device of a cardlink pairing. It stores the Trello
API key and token locally and delivers them to the watch over the pairing link.

The watch must be running 'watch serve' on the same pairing for deliveries to
succeed. A pair that could not be delivered stays saved and can be sent again
with 'phone redeliver'.`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	// Enable strict flag parsing - unknown flags will cause an error
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	// We print formatted colored errors directly in the printer package
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to cardlink.yml (default ./cardlink.yml)")
	rootCmd.PersistentFlags().DurationVar(&activateTimeout, "activate-timeout", 10*time.Second, "How long to retry activating the pairing link")
}

// openPhone loads the configuration, activates the link and returns a
// coordinator over it. With linkOptional set, a link that cannot be activated
// is only logged and deliveries then fail as pending. The caller must Close
// the device.
func openPhone(ctx context.Context, linkOptional bool) (*device.Device, *phone.Coordinator, error) {
	d, err := device.Open(configPath, link.RolePhone)
	if err != nil {
		return nil, nil, printer.Error(
			"Failed to load configuration",
			err.Error(),
			[]string{"Check cardlink.yml or pass --config with the right path."},
		)
	}

	if err := d.Activate(ctx, activateTimeout); err != nil {
		if linkOptional {
			d.Log.WithError(err).Warn("Pairing link unavailable, continuing without it")
			return d, loadCoordinator(ctx, d), nil
		}
		d.Close()
		return nil, nil, printer.ErrorWithContext(
			"Pairing link unavailable",
			err.Error(),
			map[string]string{
				"Pairing": d.Config.Pairing,
				"Redis":   d.Config.Redis.URL,
			},
			[]string{
				"Check that Redis is running and reachable",
				"Increase --activate-timeout",
			},
		)
	}

	return d, loadCoordinator(ctx, d), nil
}

func loadCoordinator(ctx context.Context, d *device.Device) *phone.Coordinator {
	coord := phone.NewCoordinator(d.Store, d.Session, d.Log)
	if _, _, err := coord.Load(ctx); err != nil {
		d.Log.WithError(err).Warn("Failed to load saved credentials")
	}
	return coord
}

// reportDelivery renders the result of Submit or Redeliver.
func reportDelivery(cmd *cobra.Command, out phone.Outcome, err error) error {
	var validationErr *credentials.ValidationError
	var storageErr *phone.StorageError
	var pendingErr *phone.DeliveryPendingError

	switch {
	case err == nil:
		printer.Outcome(cmd.OutOrStdout(), out)
		if out.Status == phone.StatusRejected {
			return fmt.Errorf("watch rejected credentials: %s", out.Message)
		}
		return nil

	case errors.As(err, &validationErr):
		return printer.Error(
			"Invalid credentials",
			fmt.Sprintf("The %s field is empty. Nothing was saved or sent.", validationErr.Field),
			[]string{"Pass both --key and --token."},
		)

	case errors.As(err, &storageErr):
		return printer.Error(
			"Failed to save credentials",
			storageErr.Err.Error(),
			[]string{"Check the secrets section of cardlink.yml."},
		)

	case errors.As(err, &pendingErr):
		return printer.Error(
			"Credentials saved but not delivered",
			pendingErr.Err.Error(),
			[]string{"Start 'watch serve' on the same pairing, then run 'phone redeliver'."},
		)

	case errors.Is(err, phone.ErrNothingToDeliver):
		return printer.Error(
			"Nothing to deliver",
			"No credentials are saved on this device.",
			[]string{"Run 'phone submit --key KEY --token TOKEN' first."},
		)

	default:
		return printer.Error("Delivery failed", err.Error(), nil)
	}
}
