package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dyluth/cardlink/internal/companion"
	"github.com/dyluth/cardlink/internal/device"
	"github.com/dyluth/cardlink/internal/printer"
	"github.com/dyluth/cardlink/internal/trello"
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
	Use:   "watch",
	Short: "Watch - browse Trello boards and move cards with credentials from the phone",
	Long: `watch is the companion device of a cardlink pairing. 'watch serve' listens
for credentials sent by the phone and keeps them; the other commands use the
held credentials to browse boards and move cards.`,
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

// openWatch loads the configuration and the held credentials and returns a
// Trello client authenticated through the receiver. The link is not activated.
// The caller must Close the receiver and the device.
func openWatch(ctx context.Context) (*device.Device, *companion.Receiver, *trello.Client, error) {
	d, err := device.Open(configPath, link.RoleWatch)
	if err != nil {
		return nil, nil, nil, printer.Error(
			"Failed to load configuration",
			err.Error(),
			[]string{"Check cardlink.yml or pass --config with the right path."},
		)
	}

	receiver := companion.NewReceiver(d.Store, d.Log)
	if err := receiver.Load(ctx); err != nil {
		d.Log.WithError(err).Warn("Failed to load held credentials")
	}

	client := trello.NewClient(receiver, d.Config.TrelloOptions(d.Log))
	return d, receiver, client, nil
}

// trelloError renders a remote failure with a hint matching its category.
func trelloError(title string, err error) error {
	switch trello.KindOf(err) {
	case trello.KindAuthRequired:
		return printer.Error(title, "No Trello credentials are held on this watch.",
			[]string{"Run 'watch serve', then 'phone submit --key KEY --token TOKEN' on the phone."})
	case trello.KindInvalidCredentials:
		return printer.Error(title, "Trello refused the held credentials. They have been discarded.",
			[]string{"Send a new key and token from the phone."})
	case trello.KindNetwork:
		return printer.Error(title, err.Error(),
			[]string{"Check the network connection and trello.base_url."})
	default:
		return printer.Error(title, err.Error(), nil)
	}
}
