// Package phone implements the primary device's side of credential sync:
// validate a pair, save it locally, then push it to the watch.
package phone

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dyluth/cardlink/internal/secretstore"
	"github.com/dyluth/cardlink/pkg/credentials"
	"github.com/dyluth/cardlink/pkg/link"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// ErrNothingToDeliver is returned by Redeliver when no pair has been saved.
var ErrNothingToDeliver = errors.New("no saved credentials to deliver")

// Sender delivers a payload to the paired device. *link.Session implements it.
type Sender interface {
	Send(ctx context.Context, payload map[string]string, mode link.Mode) (map[string]string, error)
}

// Status is the watch's verdict on a delivered pair.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusNoChange Status = "no_change"
	StatusRejected Status = "rejected"
)

// Outcome is the watch's reply, surfaced verbatim.
type Outcome struct {
	Status  Status
	Message string
}

// StorageError reports that the pair could not be saved locally.
// Nothing was sent.
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("failed to save credentials: %v", e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// DeliveryPendingError reports a partial success: the pair is saved locally
// but the watch has not confirmed it. Call Redeliver to retry.
type DeliveryPendingError struct {
	Err error
}

func (e *DeliveryPendingError) Error() string {
	return fmt.Sprintf("credentials saved but not delivered: %v", e.Err)
}

func (e *DeliveryPendingError) Unwrap() error {
	return e.Err
}

// Coordinator owns the phone's credential pair and its delivery to the watch.
type Coordinator struct {
	store  secretstore.Store
	sender Sender
	log    log.FieldLogger

	mu       sync.Mutex
	saved    credentials.Pair
	hasSaved bool

	deliveries singleflight.Group
}

// NewCoordinator creates a coordinator. A nil logger uses the logrus standard logger.
func NewCoordinator(store secretstore.Store, sender Sender, logger log.FieldLogger) *Coordinator {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Coordinator{
		store:  store,
		sender: sender,
		log:    logger.WithField("component", "phone"),
	}
}

// Submit validates candidate, saves it, and delivers it to the watch.
//
// Errors:
//   - *credentials.ValidationError: a field is blank; nothing saved or sent
//   - *StorageError: the save failed; nothing sent
//   - *DeliveryPendingError: saved, but not delivered
func (c *Coordinator) Submit(ctx context.Context, candidate credentials.Pair) (Outcome, error) {
	if err := candidate.Validate(); err != nil {
		return Outcome{}, err
	}

	if err := c.store.Save(ctx, candidate); err != nil {
		c.log.WithError(err).Error("Failed to save credentials")
		return Outcome{}, &StorageError{Err: err}
	}
	c.remember(candidate)
	c.log.WithField("credentials", candidate.Redacted()).Info("Credentials saved")

	return c.deliver(ctx, candidate)
}

// Redeliver sends the last saved pair again without saving it.
// Returns ErrNothingToDeliver when no pair is saved.
func (c *Coordinator) Redeliver(ctx context.Context) (Outcome, error) {
	p, ok := c.Saved()
	if !ok {
		var err error
		p, ok, err = c.Load(ctx)
		if err != nil {
			return Outcome{}, err
		}
		if !ok {
			return Outcome{}, ErrNothingToDeliver
		}
	}
	return c.deliver(ctx, p)
}

// Load reads the saved pair from the store, typically at start-up.
func (c *Coordinator) Load(ctx context.Context) (credentials.Pair, bool, error) {
	p, ok, err := c.store.Load(ctx)
	if err != nil {
		return credentials.Pair{}, false, &StorageError{Err: err}
	}
	if ok {
		c.remember(p)
	}
	return p, ok, nil
}

// Clear deletes the local pair. The watch keeps its copy until it is told otherwise.
func (c *Coordinator) Clear(ctx context.Context) error {
	if err := c.store.Delete(ctx); err != nil {
		return &StorageError{Err: err}
	}

	c.mu.Lock()
	c.saved = credentials.Pair{}
	c.hasSaved = false
	c.mu.Unlock()

	c.log.Info("Credentials cleared")
	return nil
}

// Saved returns the pair most recently saved or loaded.
func (c *Coordinator) Saved() (credentials.Pair, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saved, c.hasSaved
}

func (c *Coordinator) remember(p credentials.Pair) {
	c.mu.Lock()
	c.saved = p
	c.hasSaved = true
	c.mu.Unlock()
}

// deliver sends p correlated. Concurrent deliveries of the same pair share one send.
func (c *Coordinator) deliver(ctx context.Context, p credentials.Pair) (Outcome, error) {
	key := p.Key + "\x00" + p.Token
	v, err, shared := c.deliveries.Do(key, func() (interface{}, error) {
		return c.send(ctx, p)
	})
	if shared {
		c.log.Debug("Joined in-flight delivery")
	}
	if err != nil {
		return Outcome{}, err
	}
	return v.(Outcome), nil
}

func (c *Coordinator) send(ctx context.Context, p credentials.Pair) (Outcome, error) {
	payload, err := c.sender.Send(ctx, credentials.EncodeRequest(p), link.Correlated)
	if err != nil {
		c.log.WithError(err).Warn("Delivery to watch failed")
		return Outcome{}, &DeliveryPendingError{Err: err}
	}

	reply, err := credentials.DecodeReply(payload)
	if err != nil {
		c.log.WithError(err).Warn("Watch sent an unreadable reply")
		return Outcome{}, &DeliveryPendingError{Err: err}
	}

	out := Outcome{Status: statusFromReply(reply.Status), Message: reply.Message}
	c.log.WithFields(log.Fields{
		"status":  string(out.Status),
		"message": out.Message,
	}).Info("Watch replied")
	return out, nil
}

func statusFromReply(s credentials.Status) Status {
	switch s {
	case credentials.StatusSuccess:
		return StatusSuccess
	case credentials.StatusNoChange:
		return StatusNoChange
	default:
		return StatusRejected
	}
}
