package commands

import (
	"github.com/dyluth/cardlink/internal/config"
	"github.com/dyluth/cardlink/internal/printer"
	"github.com/dyluth/cardlink/internal/scaffold"
	"github.com/spf13/cobra"
)

var (
	forceInit    bool
	initPairing  string
	initRedisURL string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter cardlink.yml",
	Long: `Write a starter cardlink.yml in the current directory, or at --config.

Use the same file on both devices. Use --force to overwrite an existing file.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing cardlink.yml")
	initCmd.Flags().StringVar(&initPairing, "pairing", "", "Pairing name shared by both devices (default \"default\")")
	initCmd.Flags().StringVar(&initRedisURL, "redis-url", "", "Redis server both devices connect to")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		path = config.DefaultPath
	}

	opts := scaffold.Options{Pairing: initPairing, RedisURL: initRedisURL}
	if err := scaffold.Initialize(path, opts, forceInit); err != nil {
		return printer.Error("Initialization failed", err.Error(), nil)
	}

	scaffold.PrintSuccess(path)
	return nil
}
