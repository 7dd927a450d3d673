package commands

import (
	"errors"
	"fmt"

	"github.com/dyluth/cardlink/internal/board"
	"github.com/dyluth/cardlink/internal/printer"
	"github.com/spf13/cobra"
)

var moveCmd = &cobra.Command{
	Use:   "move BOARD_ID CARD_ID LIST_ID",
	Short: "Move a card to another list",
	Long: `Move a card to another list of the same board.

The move is shown at once and confirmed with Trello in the background; if
Trello refuses it the card is put back where it was.

Examples:
  watch move b1 c42 l-done`,
	Args: cobra.ExactArgs(3),
	RunE: runMove,
}

func init() {
	rootCmd.AddCommand(moveCmd)
}

func runMove(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	boardID, cardID, listID := args[0], args[1], args[2]

	d, receiver, client, err := openWatch(ctx)
	if err != nil {
		return err
	}
	defer d.Close()
	defer receiver.Close()

	engine := board.NewEngine(client, receiver, board.EngineOptions{
		Position: d.Config.Trello.Position,
		Logger:   d.Log,
	})
	defer engine.Close()

	if err := engine.Load(ctx, boardID); err != nil {
		return trelloError("Failed to load board", err)
	}

	events := engine.Subscribe()
	defer events.Close()

	move, err := engine.RequestMove(ctx, cardID, listID)
	switch {
	case errors.Is(err, board.ErrUnknownCard), errors.Is(err, board.ErrUnknownList), errors.Is(err, board.ErrSameList):
		return printer.ErrorWithContext("Cannot move card", err.Error(), map[string]string{
			"Board": boardID,
			"Card":  cardID,
			"List":  listID,
		}, []string{fmt.Sprintf("Run 'watch board %s' to see lists and cards.", boardID)})
	case err != nil:
		return printer.Error("Cannot move card", err.Error(), nil)
	}

	printer.Step("Moving %s to %s...\n", cardID, listID)
	state, err := move.Wait(ctx)
	if state == board.StateCommitted {
		printer.Success("Card moved\n")
		b, _ := engine.Board()
		printer.Board(cmd.OutOrStdout(), b)
		return nil
	}
	if state != board.StateRolledBack {
		// Interrupted while in flight; the background call still finishes.
		return printer.Error("Move interrupted", err.Error(), nil)
	}

	// The engine publishes the failure before the move finishes
	for ev := range events.Events() {
		if ev.Kind == board.EventMoveFailed && ev.Failure.CardID == cardID {
			return trelloError(ev.Failure.Message, ev.Failure.Err)
		}
	}
	return trelloError("Move rolled back", move.Err())
}
