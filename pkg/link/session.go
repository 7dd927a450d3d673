package link

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dyluth/cardlink/internal/bus"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultDeliveryTimeout bounds how long a correlated sender waits for a reply
	DefaultDeliveryTimeout = 10 * time.Second

	// DefaultPresenceTTL is how long a presence key survives without a heartbeat
	DefaultPresenceTTL = 15 * time.Second

	// DefaultHeartbeatInterval is the Monitor tick
	DefaultHeartbeatInterval = 5 * time.Second

	// DefaultMaxPingFailures is the number of consecutive failed heartbeats before deactivation
	DefaultMaxPingFailures = 3
)

var errSessionClosed = errors.New("session closed")

// Options configures a Session.
type Options struct {
	// Pairing namespaces every key and channel (see ValidatePairingName)
	Pairing string

	// Role is the device this session runs on
	Role Role

	DeliveryTimeout   time.Duration
	PresenceTTL       time.Duration
	HeartbeatInterval time.Duration
	MaxPingFailures   int

	// Logger defaults to the logrus standard logger
	Logger log.FieldLogger
}

func (o *Options) applyDefaults() {
	if o.DeliveryTimeout <= 0 {
		o.DeliveryTimeout = DefaultDeliveryTimeout
	}
	if o.PresenceTTL <= 0 {
		o.PresenceTTL = DefaultPresenceTTL
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if o.MaxPingFailures <= 0 {
		o.MaxPingFailures = DefaultMaxPingFailures
	}
	if o.Logger == nil {
		o.Logger = log.StandardLogger()
	}
}

// Session is one device's end of the pairing channel.
// It is safe for concurrent use; all observable state changes are published
// to subscribers in the order they happen.
type Session struct {
	rdb       *redis.Client
	opts      Options
	supported bool
	log       log.FieldLogger

	mu     sync.Mutex
	state  Snapshot
	closed bool

	activation   singleflight.Group
	states       *bus.Bus[Snapshot]
	reactivating sync.WaitGroup
}

// NewSession creates a session for one role of a pairing. The session starts
// NotActivated; call Activate before sending or listening.
func NewSession(redisOpts *redis.Options, opts Options) (*Session, error) {
	if err := ValidatePairingName(opts.Pairing); err != nil {
		return nil, err
	}
	if err := opts.Role.Validate(); err != nil {
		return nil, err
	}
	opts.applyDefaults()

	return &Session{
		rdb:       redis.NewClient(redisOpts),
		opts:      opts,
		supported: true,
		log: opts.Logger.WithFields(log.Fields{
			"component": "link",
			"pairing":   opts.Pairing,
			"role":      string(opts.Role),
		}),
		state:  Snapshot{Activation: StateNotActivated},
		states: bus.New[Snapshot](),
	}, nil
}

// Unsupported returns a session for a device without channel capability.
// Every operation on it fails with ErrUnsupported.
func Unsupported() *Session {
	return &Session{
		log:    log.WithField("component", "link"),
		state:  Snapshot{Activation: StateNotActivated},
		states: bus.New[Snapshot](),
	}
}

// Supported reports whether the device has a pairing channel.
// Callers must check it before relying on the session.
func (s *Session) Supported() bool {
	return s.supported
}

// Role returns the device role of this session.
func (s *Session) Role() Role {
	return s.opts.Role
}

// State returns a snapshot of the current session state.
func (s *Session) State() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe streams every subsequent state change.
// Caller must call Close() on the subscription when done.
func (s *Session) Subscribe() *bus.Subscription[Snapshot] {
	return s.states.Subscribe()
}

// Ping verifies Redis connectivity.
func (s *Session) Ping(ctx context.Context) error {
	if !s.supported {
		return ErrUnsupported
	}
	return s.rdb.Ping(ctx).Err()
}

// Close withdraws this device's presence and releases the connection.
// After calling Close(), the session should not be used.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.reactivating.Wait()
	s.states.Close()
	if !s.supported {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.rdb.Del(ctx, PresenceKey(s.opts.Pairing, s.opts.Role)).Err(); err != nil {
		s.log.WithError(err).Debug("Failed to withdraw presence on close")
	}
	return s.rdb.Close()
}

// update mutates the snapshot under the lock and publishes it when it changed.
// Publishing under the lock keeps subscribers in transition order.
func (s *Session) update(fn func(*Snapshot)) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.state
	fn(&s.state)
	if s.state != before {
		s.states.Publish(s.state)
	}
	return s.state
}

// Activate brings the session to Activated. It is idempotent: an activated
// session returns nil at once and concurrent callers share a single attempt.
// A failed attempt leaves the session NotActivated and returns an *ActivationError.
func (s *Session) Activate(ctx context.Context) error {
	if !s.supported {
		return ErrUnsupported
	}
	_, err, _ := s.activation.Do("activate", func() (interface{}, error) {
		return nil, s.activate(ctx)
	})
	return err
}

func (s *Session) activate(ctx context.Context) error {
	s.mu.Lock()
	closed := s.closed
	current := s.state.Activation
	s.mu.Unlock()

	if closed {
		return &ActivationError{Reason: errSessionClosed}
	}
	if current == StateActivated {
		return nil
	}

	s.update(func(st *Snapshot) { st.Activation = StateActivating })
	s.log.Info("Activation requested")

	if err := s.register(ctx); err != nil {
		s.update(func(st *Snapshot) {
			st.Activation = StateNotActivated
			st.Reachable = false
		})
		s.log.WithError(err).Warn("Activation failed")
		return &ActivationError{Reason: err}
	}

	reachable, installed, err := s.peerStatus(ctx)
	if err != nil {
		s.log.WithError(err).Warn("Failed to read peer status after activation")
	}
	snap := s.update(func(st *Snapshot) {
		st.Activation = StateActivated
		st.Reachable = reachable
		st.PeerInstalled = installed
	})
	s.log.WithFields(log.Fields{
		"peer_installed": snap.PeerInstalled,
		"reachable":      snap.Reachable,
	}).Info("Activation completed")
	return nil
}

// register announces this device on the pairing: installed and present.
func (s *Session) register(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis not reachable: %w", err)
	}
	if err := s.rdb.SAdd(ctx, InstalledKey(s.opts.Pairing), string(s.opts.Role)).Err(); err != nil {
		return fmt.Errorf("failed to register role: %w", err)
	}
	if err := s.refreshPresence(ctx); err != nil {
		return err
	}
	return nil
}

func (s *Session) refreshPresence(ctx context.Context) error {
	key := PresenceKey(s.opts.Pairing, s.opts.Role)
	if err := s.rdb.Set(ctx, key, time.Now().UnixMilli(), s.opts.PresenceTTL).Err(); err != nil {
		return fmt.Errorf("failed to refresh presence: %w", err)
	}
	return nil
}

// peerStatus reads the peer's presence key and installed marker.
func (s *Session) peerStatus(ctx context.Context) (reachable bool, installed bool, err error) {
	peer := s.opts.Role.Peer()

	present, err := s.rdb.Exists(ctx, PresenceKey(s.opts.Pairing, peer)).Result()
	if err != nil {
		return false, false, fmt.Errorf("failed to read peer presence: %w", err)
	}
	installed, err = s.rdb.SIsMember(ctx, InstalledKey(s.opts.Pairing), string(peer)).Result()
	if err != nil {
		return present > 0, false, fmt.Errorf("failed to read peer registration: %w", err)
	}
	return present > 0, installed, nil
}

// HandleEvent applies a platform-driven transition. It is re-entrant and may
// be called from any goroutine. A deactivation triggers an immediate
// background reactivation so senders regain capability without a restart.
func (s *Session) HandleEvent(ev Event) {
	switch ev.Kind {
	case EventInactive:
		s.update(func(st *Snapshot) {
			if st.Activation == StateActivated {
				st.Activation = StateInactive
			}
		})
		s.log.Info("Session became inactive")

	case EventDeactivated:
		s.update(func(st *Snapshot) {
			st.Activation = StateDeactivated
			st.Reachable = false
		})
		s.log.Info("Session deactivated, reactivating")
		s.reactivate()

	case EventReachability:
		s.update(func(st *Snapshot) { st.Reachable = ev.Value })

	case EventPeerInstalled:
		s.update(func(st *Snapshot) { st.PeerInstalled = ev.Value })

	default:
		s.log.WithField("kind", string(ev.Kind)).Warn("Ignoring unknown platform event")
	}
}

func (s *Session) reactivate() {
	s.mu.Lock()
	if s.closed || !s.supported {
		s.mu.Unlock()
		return
	}
	s.reactivating.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.reactivating.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.DeliveryTimeout)
		defer cancel()
		if err := s.Activate(ctx); err != nil {
			s.log.WithError(err).Warn("Reactivation failed")
		}
	}()
}

// Send delivers payload to the peer.
//
// In Correlated mode Send blocks until the peer replies, the delivery timeout
// elapses or ctx is cancelled, and returns the reply payload. In Uncorrelated
// mode it returns as soon as the message is published and the reply is nil.
//
// Precondition failures return ErrUnsupported, ErrNotActivated or
// ErrPeerNotInstalled. Transient failures return a *DeliveryError.
func (s *Session) Send(ctx context.Context, payload map[string]string, mode Mode) (map[string]string, error) {
	if !s.supported {
		return nil, ErrUnsupported
	}

	st := s.State()
	if st.Activation != StateActivated {
		return nil, ErrNotActivated
	}
	if !st.PeerInstalled {
		return nil, ErrPeerNotInstalled
	}

	switch mode {
	case Uncorrelated:
		return nil, s.publish(ctx, envelope{ID: uuid.NewString(), Mode: Uncorrelated, Payload: payload})
	case Correlated:
		return s.request(ctx, payload)
	default:
		return nil, fmt.Errorf("unknown delivery mode: %q", string(mode))
	}
}

func (s *Session) publish(ctx context.Context, env envelope) error {
	data, err := marshalEnvelope(env)
	if err != nil {
		return &DeliveryError{Cause: err}
	}

	channel := InboxChannel(s.opts.Pairing, s.opts.Role.Peer())
	receivers, err := s.rdb.Publish(ctx, channel, data).Result()
	if err != nil {
		return &DeliveryError{Cause: fmt.Errorf("failed to publish: %w", err)}
	}
	if receivers == 0 {
		return &DeliveryError{Cause: ErrPeerUnreachable}
	}

	s.log.WithFields(log.Fields{
		"correlation_id": env.ID,
		"mode":           string(env.Mode),
	}).Debug("Message published")
	return nil
}

// request performs a correlated delivery. The reply subscription is confirmed
// before the request is published so a fast reply cannot be missed.
func (s *Session) request(ctx context.Context, payload map[string]string) (map[string]string, error) {
	id := uuid.NewString()
	replyTo := ReplyChannel(s.opts.Pairing, id)

	ctx, cancel := context.WithTimeout(ctx, s.opts.DeliveryTimeout)
	defer cancel()

	pubsub := s.rdb.Subscribe(ctx, replyTo)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return nil, &DeliveryError{Cause: fmt.Errorf("failed to subscribe for reply: %w", err)}
	}

	if err := s.publish(ctx, envelope{ID: id, Mode: Correlated, ReplyTo: replyTo, Payload: payload}); err != nil {
		return nil, err
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, &DeliveryError{Cause: ErrReplyTimeout}
			}
			return nil, &DeliveryError{Cause: ctx.Err()}

		case msg, ok := <-ch:
			if !ok {
				return nil, &DeliveryError{Cause: errors.New("reply subscription closed")}
			}
			env, err := unmarshalEnvelope(msg.Payload)
			if err != nil {
				s.log.WithError(err).Warn("Ignoring malformed reply")
				continue
			}
			if env.ID != id {
				continue
			}
			return env.Payload, nil
		}
	}
}
