package commands

import (
	"github.com/dyluth/cardlink/internal/printer"
	"github.com/spf13/cobra"
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget the credentials held on this watch",
	Args:  cobra.NoArgs,
	RunE:  runClear,
}

func init() {
	rootCmd.AddCommand(clearCmd)
}

func runClear(cmd *cobra.Command, args []string) error {
	d, receiver, _, err := openWatch(cmd.Context())
	if err != nil {
		return err
	}
	defer d.Close()
	defer receiver.Close()

	if err := receiver.Clear(cmd.Context()); err != nil {
		return printer.Error("Failed to clear credentials", err.Error(), nil)
	}
	printer.Success("Credentials cleared\n")
	return nil
}
