package board

import (
	"context"
	"sync"

	"github.com/dyluth/cardlink/internal/companion"
	"github.com/dyluth/cardlink/internal/trello"
	log "github.com/sirupsen/logrus"
)

// Lister lists the member's boards.
type Lister interface {
	ListBoards(ctx context.Context) ([]trello.BoardSummary, error)
}

// Catalog is the list of boards shown on the watch. It tracks whether the
// watch is waiting for credentials and empties itself when it is.
type Catalog struct {
	remote Lister
	creds  trello.CredentialSource
	auth   AuthInvalidator
	log    log.FieldLogger

	mu        sync.Mutex
	boards    []trello.BoardSummary
	needsAuth bool
}

// NewCatalog creates a catalog. auth may be nil.
func NewCatalog(remote Lister, creds trello.CredentialSource, auth AuthInvalidator, logger log.FieldLogger) *Catalog {
	if logger == nil {
		logger = log.StandardLogger()
	}
	_, ok := creds.Current()
	return &Catalog{
		remote:    remote,
		creds:     creds,
		auth:      auth,
		log:       logger.WithField("component", "catalog"),
		needsAuth: !ok,
	}
}

// Load refreshes the board list. Missing or refused credentials empty the
// list and set NeedsAuthentication; other failures keep the previous list.
func (c *Catalog) Load(ctx context.Context) ([]trello.BoardSummary, error) {
	if _, ok := c.creds.Current(); !ok {
		c.reset()
		return nil, &trello.Error{Kind: trello.KindAuthRequired}
	}

	boards, err := c.remote.ListBoards(ctx)
	if trello.IsAuthError(err) {
		refused, wasRefused := trello.RefusedCredentials(err)
		// A pair delivered while the call was in flight gets its own reload.
		if cur, held := c.creds.Current(); wasRefused && held && !cur.Equal(refused) {
			return nil, err
		}
		c.reset()
		if wasRefused && c.auth != nil {
			c.auth.Invalidate(ctx, refused, err)
		}
		return nil, err
	}
	if err != nil {
		c.log.WithError(err).Warn("Failed to list boards")
		return nil, err
	}

	c.mu.Lock()
	c.boards = boards
	c.needsAuth = false
	c.mu.Unlock()

	c.log.WithField("boards", len(boards)).Info("Boards loaded")
	return append([]trello.BoardSummary(nil), boards...), nil
}

// Follow reloads the catalog on every credential change until events closes
// or ctx is done. A change to absent credentials only empties the list.
func (c *Catalog) Follow(ctx context.Context, events <-chan companion.CredentialsChanged) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !ev.Present {
				c.reset()
				continue
			}
			if _, err := c.Load(ctx); err != nil {
				c.log.WithError(err).Warn("Reload after credential change failed")
			}
		}
	}
}

// Boards returns the last loaded list.
func (c *Catalog) Boards() []trello.BoardSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]trello.BoardSummary(nil), c.boards...)
}

// NeedsAuthentication reports whether the catalog is waiting for credentials.
func (c *Catalog) NeedsAuthentication() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.needsAuth
}

func (c *Catalog) reset() {
	c.mu.Lock()
	c.boards = nil
	c.needsAuth = true
	c.mu.Unlock()
}
