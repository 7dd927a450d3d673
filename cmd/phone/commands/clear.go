package commands

import (
	"github.com/dyluth/cardlink/internal/device"
	"github.com/dyluth/cardlink/internal/phone"
	"github.com/dyluth/cardlink/internal/printer"
	"github.com/dyluth/cardlink/pkg/link"
	"github.com/spf13/cobra"
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the credentials saved on this device",
	Long: `Delete the credentials saved on this device.

The watch keeps its own copy; run 'watch clear' on the watch to remove it there.`,
	Args: cobra.NoArgs,
	RunE: runClear,
}

func init() {
	rootCmd.AddCommand(clearCmd)
}

func runClear(cmd *cobra.Command, args []string) error {
	d, err := device.Open(configPath, link.RolePhone)
	if err != nil {
		return printer.Error("Failed to load configuration", err.Error(), nil)
	}
	defer d.Close()

	// Clearing is local only, so the link is never activated
	coord := phone.NewCoordinator(d.Store, d.Session, d.Log)
	if err := coord.Clear(cmd.Context()); err != nil {
		return printer.Error("Failed to clear credentials", err.Error(), nil)
	}

	printer.Success("Credentials cleared\n")
	return nil
}
