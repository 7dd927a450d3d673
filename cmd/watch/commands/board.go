package commands

import (
	"github.com/dyluth/cardlink/internal/board"
	"github.com/dyluth/cardlink/internal/printer"
	"github.com/spf13/cobra"
)

var boardOutput string

var boardCmd = &cobra.Command{
	Use:   "board BOARD_ID",
	Short: "Show a board's lists and cards",
	Long: `Show the open lists of a board with their open cards, in board order.

Output Formats:
  default - Lists with their cards, in board order
  json    - The board as pretty-printed JSON

Examples:
  watch board 5f1a2b3c4d5e6f7a8b9c0d1e
  watch board 5f1a2b3c4d5e6f7a8b9c0d1e --output=json`,
	Args: cobra.ExactArgs(1),
	RunE: runBoard,
}

func init() {
	boardCmd.Flags().StringVarP(&boardOutput, "output", "o", printer.FormatDefault, "Output format: default or json")
	rootCmd.AddCommand(boardCmd)
}

func runBoard(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := printer.ValidateFormat(boardOutput, printer.FormatDefault, printer.FormatJSON); err != nil {
		return printer.Error("Invalid output format", err.Error(), nil)
	}

	d, receiver, client, err := openWatch(ctx)
	if err != nil {
		return err
	}
	defer d.Close()
	defer receiver.Close()

	engine := board.NewEngine(client, receiver, board.EngineOptions{Logger: d.Log})
	defer engine.Close()

	if err := engine.Load(ctx, args[0]); err != nil {
		return trelloError("Failed to load board", err)
	}

	b, _ := engine.Board()
	if boardOutput == printer.FormatJSON {
		return printer.JSON(cmd.OutOrStdout(), b)
	}
	printer.Board(cmd.OutOrStdout(), b)
	return nil
}
