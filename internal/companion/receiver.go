// Package companion implements the watch's side of credential sync: it merges
// pairs pushed by the phone, keeps the current pair in memory, and announces
// every change on a typed event bus.
package companion

import (
	"context"
	"fmt"
	"sync"

	"github.com/dyluth/cardlink/internal/bus"
	"github.com/dyluth/cardlink/internal/secretstore"
	"github.com/dyluth/cardlink/pkg/credentials"
	"github.com/dyluth/cardlink/pkg/link"
	log "github.com/sirupsen/logrus"
)

// Reply messages sent back to the phone.
const (
	MessageReceived     = "Credentials received by watch."
	MessageUpToDate     = "Credentials already up-to-date."
	MessageInvalid      = "Invalid credentials format received."
	MessageNotPersisted = "Credentials received but could not be saved on watch."
)

// Cause says why the credentials changed.
type Cause string

const (
	CauseReceived    Cause = "received"
	CauseCleared     Cause = "cleared"
	CauseInvalidated Cause = "invalidated"
)

// CredentialsChanged is published once per change of the held pair.
// Present is false after a clear or an invalidation.
type CredentialsChanged struct {
	Credentials credentials.Pair
	Present     bool
	Cause       Cause
}

// Receiver owns the watch's credential pair. It is the only writer of both
// the in-memory value and the secret store; other components read Current or
// subscribe to changes.
type Receiver struct {
	store  secretstore.Store
	log    log.FieldLogger
	events *bus.Bus[CredentialsChanged]

	// mu serialises merges, clears and invalidations so events are published
	// in processing order.
	mu      sync.Mutex
	current credentials.Pair
	present bool
}

// NewReceiver creates a receiver holding no credentials. Call Load to restore
// the persisted pair.
func NewReceiver(store secretstore.Store, logger log.FieldLogger) *Receiver {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Receiver{
		store:  store,
		log:    logger.WithField("component", "companion"),
		events: bus.New[CredentialsChanged](),
	}
}

// Load restores the persisted pair. A record that cannot be decoded is
// deleted and treated as absent.
func (r *Receiver) Load(ctx context.Context) error {
	p, ok, err := r.store.Load(ctx)
	if secretstore.IsKind(err, secretstore.KindDecodeFailed) || secretstore.IsKind(err, secretstore.KindUnexpectedData) {
		r.log.WithError(err).Warn("Discarding unreadable stored credentials")
		if delErr := r.store.Delete(ctx); delErr != nil {
			r.log.WithError(delErr).Error("Failed to delete unreadable credentials")
		}
		ok, err = false, nil
	}
	if err != nil {
		return fmt.Errorf("failed to load credentials: %w", err)
	}

	r.mu.Lock()
	r.current, r.present = p, ok
	r.mu.Unlock()

	if ok {
		r.log.WithField("credentials", p.Redacted()).Info("Loaded stored credentials")
	} else {
		r.log.Info("No stored credentials")
	}
	return nil
}

// HandleMessage merges one inbound credential message. It serves both
// delivery modes; the returned reply is nil for uncorrelated messages.
func (r *Receiver) HandleMessage(ctx context.Context, msg link.Inbound) map[string]string {
	logger := r.log.WithFields(log.Fields{
		"correlation_id": msg.ID,
		"mode":           string(msg.Mode),
	})

	pair, ok := credentials.DecodeRequest(msg.Payload)
	if !ok {
		logger.Warn("Message does not contain credentials")
		return reply(msg.Mode, credentials.StatusError, MessageInvalid)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.present && r.current.Equal(pair) {
		logger.Info("Received identical credentials")
		return reply(msg.Mode, credentials.StatusNoChange, MessageUpToDate)
	}

	saveErr := r.store.Save(ctx, pair)
	if saveErr != nil {
		logger.WithError(saveErr).Error("Failed to persist received credentials")
	}

	r.current, r.present = pair, true
	r.events.Publish(CredentialsChanged{Credentials: pair, Present: true, Cause: CauseReceived})
	logger.WithField("credentials", pair.Redacted()).Info("Credentials updated")

	if saveErr != nil {
		return reply(msg.Mode, credentials.StatusError, MessageNotPersisted)
	}
	return reply(msg.Mode, credentials.StatusSuccess, MessageReceived)
}

func reply(mode link.Mode, status credentials.Status, message string) map[string]string {
	if mode != link.Correlated {
		return nil
	}
	return credentials.EncodeReply(credentials.Reply{Status: status, Message: message})
}

// Clear forgets the held pair and erases the store. The change is published
// even when the erase fails; the erase error is returned.
func (r *Receiver) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.store.Delete(ctx)
	r.current, r.present = credentials.Pair{}, false
	r.events.Publish(CredentialsChanged{Cause: CauseCleared})
	r.log.Info("Credentials cleared")

	if err != nil {
		return fmt.Errorf("failed to erase stored credentials: %w", err)
	}
	return nil
}

// Invalidate drops credentials the remote API refused so the watch returns to
// needing authentication. It does nothing when no pair is held or when the
// held pair is no longer the refused one.
func (r *Receiver) Invalidate(ctx context.Context, refused credentials.Pair, cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.present {
		return
	}
	if !r.current.Equal(refused) {
		r.log.WithError(cause).Debug("Ignoring refusal of superseded credentials")
		return
	}
	if err := r.store.Delete(ctx); err != nil {
		r.log.WithError(err).Error("Failed to erase invalidated credentials")
	}
	r.current, r.present = credentials.Pair{}, false
	r.events.Publish(CredentialsChanged{Cause: CauseInvalidated})
	r.log.WithError(cause).Warn("Credentials invalidated")
}

// Current returns the held pair.
func (r *Receiver) Current() (credentials.Pair, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current, r.present
}

// NeedsAuthentication reports whether the watch is waiting for credentials.
func (r *Receiver) NeedsAuthentication() bool {
	_, ok := r.Current()
	return !ok
}

// Subscribe streams every subsequent credential change.
// Caller must call Close() on the subscription when done.
func (r *Receiver) Subscribe() *bus.Subscription[CredentialsChanged] {
	return r.events.Subscribe()
}

// Close ends all subscriptions.
func (r *Receiver) Close() {
	r.events.Close()
}
