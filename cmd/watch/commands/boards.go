package commands

import (
	"github.com/dyluth/cardlink/internal/board"
	"github.com/dyluth/cardlink/internal/printer"
	"github.com/spf13/cobra"
)

var boardsOutput string

var boardsCmd = &cobra.Command{
	Use:   "boards",
	Short: "List the open Trello boards",
	Long: `List the open Trello boards of the member whose credentials are held.

Output Formats:
  default - One board per line: ID and name
  jsonl   - Line-delimited JSON, one board per line

Examples:
  watch boards
  watch boards --output=jsonl | jq -r .id`,
	Args: cobra.NoArgs,
	RunE: runBoards,
}

func init() {
	boardsCmd.Flags().StringVarP(&boardsOutput, "output", "o", printer.FormatDefault, "Output format: default or jsonl")
	rootCmd.AddCommand(boardsCmd)
}

func runBoards(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := printer.ValidateFormat(boardsOutput, printer.FormatDefault, printer.FormatJSONL); err != nil {
		return printer.Error("Invalid output format", err.Error(), nil)
	}

	d, receiver, client, err := openWatch(ctx)
	if err != nil {
		return err
	}
	defer d.Close()
	defer receiver.Close()

	catalog := board.NewCatalog(client, receiver, receiver, d.Log)
	boards, err := catalog.Load(ctx)
	if err != nil {
		return trelloError("Failed to list boards", err)
	}

	if boardsOutput == printer.FormatJSONL {
		return printer.JSONL(cmd.OutOrStdout(), boards)
	}
	printer.Boards(cmd.OutOrStdout(), boards)
	return nil
}
