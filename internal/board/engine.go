// Package board holds the watch's view of Trello boards: the board catalogue
// and the optimistic card-move engine.
package board

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dyluth/cardlink/internal/bus"
	"github.com/dyluth/cardlink/internal/trello"
	"github.com/dyluth/cardlink/pkg/credentials"
	log "github.com/sirupsen/logrus"
)

// DefaultMoveTimeout bounds the remote call of one move.
const DefaultMoveTimeout = 15 * time.Second

var (
	// ErrNoBoard is returned when a move is requested before Load
	ErrNoBoard = errors.New("no board loaded")

	// ErrMoveInFlight is returned when the card already has a move in flight
	ErrMoveInFlight = errors.New("a move is already in flight for this card")

	// ErrUnknownCard is returned for a card that is not on the loaded board
	ErrUnknownCard = errors.New("card is not on the loaded board")

	// ErrUnknownList is returned for a destination that is not on the loaded board
	ErrUnknownList = errors.New("list is not on the loaded board")

	// ErrSameList is returned when the card is already in the destination list
	ErrSameList = errors.New("card is already in that list")
)

// Remote is the part of the Trello client the engine needs.
type Remote interface {
	FetchBoardDetail(ctx context.Context, boardID string) (trello.Board, error)
	MoveCard(ctx context.Context, cardID, toListID, position string) error
}

// AuthInvalidator is told which pair Trello refused.
// *companion.Receiver implements it.
type AuthInvalidator interface {
	Invalidate(ctx context.Context, refused credentials.Pair, cause error)
}

// EventKind identifies an engine event.
type EventKind string

const (
	// EventBoardChanged carries the new board after a load, a move or a rollback
	EventBoardChanged EventKind = "board_changed"

	// EventMoveFailed carries the failure of a rolled back move
	EventMoveFailed EventKind = "move_failed"
)

// Event is published on the engine bus. Board is set for EventBoardChanged,
// Failure for EventMoveFailed.
type Event struct {
	Kind    EventKind
	Board   trello.Board
	Failure Failure
}

// EngineOptions configures an Engine.
type EngineOptions struct {
	// MoveTimeout defaults to DefaultMoveTimeout
	MoveTimeout time.Duration

	// Position defaults to trello.PositionBottom
	Position string

	Logger log.FieldLogger
}

// Engine owns one loaded board and applies card moves optimistically: the
// local board changes at once, the remote call runs in the background, and a
// failed call restores the card's original list.
type Engine struct {
	remote Remote
	auth   AuthInvalidator
	opts   EngineOptions
	log    log.FieldLogger

	mu      sync.Mutex
	board   trello.Board
	loaded  bool
	pending map[string]PendingMove

	events *bus.Bus[Event]
	wg     sync.WaitGroup
}

// NewEngine creates an engine. auth may be nil.
func NewEngine(remote Remote, auth AuthInvalidator, opts EngineOptions) *Engine {
	if opts.MoveTimeout <= 0 {
		opts.MoveTimeout = DefaultMoveTimeout
	}
	if opts.Position == "" {
		opts.Position = trello.PositionBottom
	}
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	return &Engine{
		remote:  remote,
		auth:    auth,
		opts:    opts,
		log:     opts.Logger.WithField("component", "board"),
		pending: make(map[string]PendingMove),
		events:  bus.New[Event](),
	}
}

// Load fetches a board and makes it the engine's board.
func (e *Engine) Load(ctx context.Context, boardID string) error {
	b, err := e.remote.FetchBoardDetail(ctx, boardID)
	if err != nil {
		e.invalidateOnAuth(ctx, err)
		return fmt.Errorf("failed to load board %s: %w", boardID, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.board = b
	e.loaded = true
	e.events.Publish(Event{Kind: EventBoardChanged, Board: b.Clone()})

	e.log.WithFields(log.Fields{
		"board_id": b.ID,
		"lists":    len(b.Lists),
		"cards":    len(b.Cards),
	}).Info("Board loaded")
	return nil
}

// Board returns a snapshot of the loaded board.
func (e *Engine) Board() (trello.Board, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.board.Clone(), e.loaded
}

// CardsByList groups the loaded board's cards by list id.
func (e *Engine) CardsByList() map[string][]trello.Card {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.board.CardsByList()
}

// Destinations lists where a card can be moved.
func (e *Engine) Destinations(cardID string) []trello.List {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.board.Destinations(cardID)
}

// Pending returns the in-flight move of a card, if any.
func (e *Engine) Pending(cardID string) (PendingMove, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.pending[cardID]
	return p, ok
}

// RequestMove moves a card to toListID. The local board changes before
// RequestMove returns; the returned Move reports the remote outcome.
// The remote call outlives ctx cancellation and is bounded by the move timeout.
func (e *Engine) RequestMove(ctx context.Context, cardID, toListID string) (*Move, error) {
	e.mu.Lock()

	if !e.loaded {
		e.mu.Unlock()
		return nil, ErrNoBoard
	}
	card, ok := e.board.Card(cardID)
	if !ok {
		e.mu.Unlock()
		return nil, ErrUnknownCard
	}
	if !e.board.HasList(toListID) {
		e.mu.Unlock()
		return nil, ErrUnknownList
	}
	if _, busy := e.pending[cardID]; busy {
		e.mu.Unlock()
		return nil, ErrMoveInFlight
	}
	if card.ListID == toListID {
		e.mu.Unlock()
		return nil, ErrSameList
	}

	p := PendingMove{CardID: cardID, FromListID: card.ListID, ToListID: toListID}
	e.pending[cardID] = p
	e.board = e.board.WithCardInList(cardID, toListID)
	e.events.Publish(Event{Kind: EventBoardChanged, Board: e.board.Clone()})
	e.wg.Add(1)
	e.mu.Unlock()

	e.log.WithFields(log.Fields{
		"card_id": cardID,
		"from":    p.FromListID,
		"to":      p.ToListID,
	}).Info("Card moved locally")

	m := newMove(p)
	go e.confirm(context.WithoutCancel(ctx), m)
	return m, nil
}

// confirm performs the remote call and commits or rolls back.
func (e *Engine) confirm(ctx context.Context, m *Move) {
	defer e.wg.Done()

	callCtx, cancel := context.WithTimeout(ctx, e.opts.MoveTimeout)
	err := e.remote.MoveCard(callCtx, m.CardID, m.ToListID, e.opts.Position)
	cancel()

	logger := e.log.WithField("card_id", m.CardID)

	e.mu.Lock()
	delete(e.pending, m.CardID)
	if err != nil {
		// A reload may already show the card elsewhere or drop its old list;
		// only undo our own change, and only onto a list the board still has.
		if card, ok := e.board.Card(m.CardID); ok && card.ListID == m.ToListID && e.board.HasList(m.FromListID) {
			e.board = e.board.WithCardInList(m.CardID, m.FromListID)
			e.events.Publish(Event{Kind: EventBoardChanged, Board: e.board.Clone()})
		}
		e.events.Publish(Event{Kind: EventMoveFailed, Failure: newFailure(m.CardID, err)})
	}
	e.mu.Unlock()

	if err != nil {
		logger.WithError(err).Warn("Remote move failed, rolled back")
		e.invalidateOnAuth(ctx, err)
	} else {
		logger.Info("Remote move committed")
	}
	m.finish(err)
}

func (e *Engine) invalidateOnAuth(ctx context.Context, err error) {
	if e.auth == nil {
		return
	}
	if refused, ok := trello.RefusedCredentials(err); ok {
		e.auth.Invalidate(ctx, refused, err)
	}
}

// Subscribe streams engine events.
// Caller must call Close() on the subscription when done.
func (e *Engine) Subscribe() *bus.Subscription[Event] {
	return e.events.Subscribe()
}

// Wait blocks until every in-flight move has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Close waits for in-flight moves and ends all subscriptions.
func (e *Engine) Close() {
	e.wg.Wait()
	e.events.Close()
}
