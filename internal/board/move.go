package board

import (
	"context"
	"errors"
	"sync"

	"github.com/dyluth/cardlink/internal/trello"
)

// MoveState is the lifecycle of one optimistic move.
type MoveState string

const (
	StateIdle       MoveState = "idle"
	StateInFlight   MoveState = "in_flight"
	StateCommitted  MoveState = "committed"
	StateRolledBack MoveState = "rolled_back"
)

// PendingMove exists while the remote call for a card is in flight.
type PendingMove struct {
	CardID     string
	FromListID string
	ToListID   string
}

// Move tracks one RequestMove call until it commits or rolls back.
type Move struct {
	PendingMove

	done chan struct{}

	mu    sync.Mutex
	state MoveState
	err   error
}

func newMove(p PendingMove) *Move {
	return &Move{PendingMove: p, state: StateInFlight, done: make(chan struct{})}
}

// Done is closed when the move reaches a terminal state.
func (m *Move) Done() <-chan struct{} {
	return m.done
}

// State returns the current state.
func (m *Move) State() MoveState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Err returns the remote failure of a rolled back move.
func (m *Move) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Wait blocks until the move finishes or ctx is done and returns the final state.
func (m *Move) Wait(ctx context.Context) (MoveState, error) {
	select {
	case <-m.done:
		return m.State(), m.Err()
	case <-ctx.Done():
		return m.State(), ctx.Err()
	}
}

func (m *Move) finish(err error) {
	m.mu.Lock()
	if err == nil {
		m.state = StateCommitted
	} else {
		m.state = StateRolledBack
		m.err = err
	}
	m.mu.Unlock()
	close(m.done)
}

// Failure describes a rolled back move for display.
type Failure struct {
	CardID   string
	Category trello.Kind
	Message  string
	Err      error
}

func newFailure(cardID string, err error) Failure {
	kind := trello.KindOf(err)
	if kind == "" {
		kind = trello.KindNetwork
	}
	return Failure{CardID: cardID, Category: kind, Message: failureMessage(kind, err), Err: err}
}

func failureMessage(kind trello.Kind, err error) string {
	switch kind {
	case trello.KindAuthRequired, trello.KindInvalidCredentials:
		return "move card: authentication failed"
	case trello.KindAPIRejected:
		var tErr *trello.Error
		if errors.As(err, &tErr) && tErr.Message != "" {
			return "move card: " + tErr.Message
		}
		return "move card: rejected by Trello"
	case trello.KindNetwork:
		return "move card: network error"
	case trello.KindDecodeFailed:
		return "move card: invalid data from Trello"
	default:
		return "move card: internal error"
	}
}
