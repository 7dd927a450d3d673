package printer

import (
	"bytes"
	"testing"

	"github.com/dyluth/cardlink/internal/phone"
	"github.com/dyluth/cardlink/internal/trello"
	"github.com/dyluth/cardlink/pkg/link"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plain(t *testing.T) {
	t.Helper()
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })
}

func TestError(t *testing.T) {
	t.Run("returns error with title", func(t *testing.T) {
		err := Error("Test Error", "This is a test error", []string{})
		require.Error(t, err)
		require.Equal(t, "Test Error", err.Error())
	})

	t.Run("returns error with title for multiple suggestions", func(t *testing.T) {
		err := Error("Test Error", "Explanation", []string{
			"First option",
			"Second option",
		})
		require.Error(t, err)
		require.Equal(t, "Test Error", err.Error())
	})
}

func TestErrorWithContext(t *testing.T) {
	t.Run("returns error with title", func(t *testing.T) {
		context := map[string]string{"Pairing": "default", "Role": "phone"}
		err := ErrorWithContext("Test Error", "Explanation", context, []string{"Fix it"})
		require.Error(t, err)
		require.Equal(t, "Test Error", err.Error())
	})

	t.Run("context keys are sorted", func(t *testing.T) {
		plain(t)
		buf := &bytes.Buffer{}
		writeError(buf, "Title", "Explanation", map[string]string{
			"Zeta":  "z",
			"Alpha": "a",
			"Mid":   "m",
		}, []string{"one", "two"})

		assert.Equal(t, "Title\n\nExplanation\n\n  Alpha: a\n  Mid: m\n  Zeta: z\n\nEither:\n  1. one\n  2. two\n", buf.String())
	})
}

func TestSnapshot(t *testing.T) {
	plain(t)
	buf := &bytes.Buffer{}
	Snapshot(buf, link.Snapshot{Activation: link.StateActivated, Reachable: true})

	assert.Equal(t, "Activation:     activated\nReachable:      yes\nPeer installed: no\n", buf.String())
}

func TestOutcome(t *testing.T) {
	plain(t)
	tests := []struct {
		out  phone.Outcome
		want string
	}{
		{phone.Outcome{Status: phone.StatusSuccess, Message: "Credentials received by watch."}, "✓ Credentials received by watch.\n"},
		{phone.Outcome{Status: phone.StatusNoChange, Message: "Credentials already up-to-date."}, "• Credentials already up-to-date.\n"},
		{phone.Outcome{Status: phone.StatusRejected, Message: "Invalid credentials format received."}, "✗ Invalid credentials format received.\n"},
	}
	for _, tt := range tests {
		t.Run(string(tt.out.Status), func(t *testing.T) {
			buf := &bytes.Buffer{}
			Outcome(buf, tt.out)
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestBoards(t *testing.T) {
	plain(t)

	t.Run("empty", func(t *testing.T) {
		buf := &bytes.Buffer{}
		Boards(buf, nil)
		assert.Equal(t, "No open boards.\n", buf.String())
	})

	t.Run("aligned ids", func(t *testing.T) {
		buf := &bytes.Buffer{}
		Boards(buf, []trello.BoardSummary{{ID: "b1", Name: "Home"}, {ID: "board-22", Name: "Work"}})
		assert.Equal(t, "b1        Home\nboard-22  Work\n", buf.String())
	})
}

func TestBoard(t *testing.T) {
	plain(t)
	board := trello.Board{
		ID:   "b1",
		Name: "Home",
		Lists: []trello.List{
			{ID: "todo", Name: "To Do"},
			{ID: "done", Name: "Done"},
		},
		Cards: []trello.Card{
			{ID: "c1", Name: "Milk", ListID: "todo"},
			{ID: "c2", Name: "Bread", ListID: "todo"},
			{ID: "c3", Name: "Orphan", ListID: "gone"},
		},
	}

	buf := &bytes.Buffer{}
	Board(buf, board)

	want := "Home\n" +
		"\nTo Do (todo, 2)\n  - Milk [c1]\n  - Bread [c2]\n" +
		"\nDone (done, 0)\n  (empty)\n"
	assert.Equal(t, want, buf.String())
}

func TestJSONL(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, JSONL(buf, []trello.BoardSummary{{ID: "b1", Name: "Home"}, {ID: "b2", Name: "Work"}}))
	assert.Equal(t, "{\"id\":\"b1\",\"name\":\"Home\"}\n{\"id\":\"b2\",\"name\":\"Work\"}\n", buf.String())
}

func TestJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, JSON(buf, trello.Card{ID: "c1", Name: "Milk", ListID: "todo"}))
	assert.Equal(t, "{\n  \"id\": \"c1\",\n  \"name\": \"Milk\",\n  \"idList\": \"todo\"\n}\n", buf.String())
}

func TestValidateFormat(t *testing.T) {
	assert.NoError(t, ValidateFormat("jsonl", FormatDefault, FormatJSONL))
	assert.Error(t, ValidateFormat("xml", FormatDefault, FormatJSONL))
}
