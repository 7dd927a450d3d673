package commands

import (
	"context"
	"time"

	"github.com/dyluth/cardlink/internal/board"
	"github.com/dyluth/cardlink/internal/health"
	"github.com/dyluth/cardlink/internal/printer"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	serveHealthAddr string
	serveNoHealth   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Receive credentials from the phone until interrupted",
	Long: `Join the pairing as the watch and keep the held credentials in sync
with the phone.

serve activates the pairing link, answers every delivery from the phone,
keeps the link alive with heartbeats and reloads the board catalogue whenever
the credentials change. A /healthz endpoint reports Redis connectivity, link
state and whether credentials are held.

Examples:
  watch serve
  watch serve --health-addr 127.0.0.1:9090`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHealthAddr, "health-addr", "", "Health endpoint address (default from watch.health_addr)")
	serveCmd.Flags().BoolVar(&serveNoHealth, "no-health", false, "Do not start the health endpoint")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	d, receiver, client, err := openWatch(ctx)
	if err != nil {
		return err
	}
	defer d.Close()
	defer receiver.Close()

	// Background loops stop before the session closes
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := d.Activate(ctx, activateTimeout); err != nil {
		return printer.ErrorWithContext(
			"Pairing link unavailable",
			err.Error(),
			map[string]string{
				"Pairing": d.Config.Pairing,
				"Redis":   d.Config.Redis.URL,
			},
			[]string{"Check that Redis is running and reachable"},
		)
	}

	listener, err := d.Session.Listen(ctx, receiver)
	if err != nil {
		return printer.Error("Failed to listen for the phone", err.Error(), nil)
	}
	defer listener.Close()

	if !serveNoHealth {
		addr := serveHealthAddr
		if addr == "" {
			addr = d.Config.Watch.HealthAddr
		}
		hs := health.NewServer(d.Session, receiver, d.Log)
		hs.Start(addr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			hs.Shutdown(shutdownCtx)
		}()
	}

	catalog := board.NewCatalog(client, receiver, receiver, d.Log)
	changes := receiver.Subscribe()
	defer changes.Close()
	go catalog.Follow(runCtx, changes.Events())
	if !receiver.NeedsAuthentication() {
		if _, err := catalog.Load(ctx); err != nil {
			d.Log.WithError(err).Warn("Initial board load failed")
		}
	}

	states := d.Session.Subscribe()
	defer states.Close()
	go d.Session.Monitor(runCtx)

	printer.Success("Watch serving pairing '%s'\n", d.Config.Pairing)
	if receiver.NeedsAuthentication() {
		printer.Info("Waiting for credentials from the phone...\n")
	}

	stateEvents := states.Events()
	for {
		select {
		case <-ctx.Done():
			printer.Info("Shutting down...\n")
			return nil

		case <-listener.Done():
			if ctx.Err() != nil {
				return nil
			}
			return printer.Error("Pairing listener stopped", "The subscription to the pairing channel closed unexpectedly.", nil)

		case snap, ok := <-stateEvents:
			if !ok {
				stateEvents = nil
				continue
			}
			d.Log.WithFields(log.Fields{
				"activation":     string(snap.Activation),
				"reachable":      snap.Reachable,
				"peer_installed": snap.PeerInstalled,
			}).Info("Link state changed")
		}
	}
}
