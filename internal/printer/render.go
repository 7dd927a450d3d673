package printer

import (
	"fmt"
	"io"

	"github.com/dyluth/cardlink/internal/phone"
	"github.com/dyluth/cardlink/internal/trello"
	"github.com/dyluth/cardlink/pkg/link"
)

// Snapshot writes the link state as aligned key/value lines.
func Snapshot(w io.Writer, snap link.Snapshot) {
	state := green
	switch snap.Activation {
	case link.StateActivating:
		state = cyan
	case link.StateInactive, link.StateDeactivated:
		state = yellow
	case link.StateNotActivated:
		state = red
	}

	fmt.Fprintf(w, "%-16s", "Activation:")
	state.Fprintf(w, "%s\n", snap.Activation)
	fmt.Fprintf(w, "%-16s%s\n", "Reachable:", yesNo(snap.Reachable))
	fmt.Fprintf(w, "%-16s%s\n", "Peer installed:", yesNo(snap.PeerInstalled))
}

// Outcome writes the watch's reply to a delivery.
func Outcome(w io.Writer, out phone.Outcome) {
	switch out.Status {
	case phone.StatusSuccess:
		green.Fprintf(w, "✓ %s\n", out.Message)
	case phone.StatusNoChange:
		fmt.Fprintf(w, "• %s\n", out.Message)
	default:
		red.Fprintf(w, "✗ %s\n", out.Message)
	}
}

// Boards writes one line per board.
func Boards(w io.Writer, boards []trello.BoardSummary) {
	if len(boards) == 0 {
		fmt.Fprintln(w, "No open boards.")
		return
	}

	width := 0
	for _, b := range boards {
		if len(b.ID) > width {
			width = len(b.ID)
		}
	}
	for _, b := range boards {
		faint.Fprintf(w, "%-*s", width, b.ID)
		fmt.Fprintf(w, "  %s\n", b.Name)
	}
}

// Board writes a board grouped by list, in list order.
// Cards whose list is not on the board are omitted.
func Board(w io.Writer, board trello.Board) {
	bold.Fprintf(w, "%s\n", board.Name)

	grouped := board.CardsByList()
	for _, l := range board.Lists {
		cards := grouped[l.ID]
		fmt.Fprintf(w, "\n")
		cyan.Fprintf(w, "%s", l.Name)
		faint.Fprintf(w, " (%s, %d)\n", l.ID, len(cards))
		if len(cards) == 0 {
			faint.Fprintf(w, "  (empty)\n")
			continue
		}
		for _, c := range cards {
			fmt.Fprintf(w, "  - %s", c.Name)
			faint.Fprintf(w, " [%s]\n", c.ID)
		}
	}
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
