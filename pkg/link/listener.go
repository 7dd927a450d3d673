package link

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Listener delivers inbound messages to a Handler until closed.
// Messages are handled one at a time in arrival order.
type Listener struct {
	cancel func()
	done   chan struct{}
	once   sync.Once
}

// Done is closed once the listener has stopped.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

// Close stops the listener and waits for the in-flight message, if any.
// Safe to call multiple times.
func (l *Listener) Close() error {
	l.once.Do(l.cancel)
	<-l.done
	return nil
}

// Listen subscribes to this device's inbox and hands every message to h.
// The subscription is confirmed before Listen returns, so a peer that sends
// after Listen returns will find a receiver.
//
// Correlated and uncorrelated messages go through the same handler; the reply
// it returns is published only for correlated deliveries.
func (s *Session) Listen(ctx context.Context, h Handler) (*Listener, error) {
	if !s.supported {
		return nil, ErrUnsupported
	}
	if s.State().Activation != StateActivated {
		return nil, ErrNotActivated
	}

	channel := InboxChannel(s.opts.Pairing, s.opts.Role)
	pubsub := s.rdb.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to inbox: %w", err)
	}

	listenCtx, cancel := context.WithCancel(ctx)
	l := &Listener{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(l.done)
		defer pubsub.Close()

		ch := pubsub.Channel()
		s.log.WithField("channel", channel).Info("Listening for inbound messages")

		for {
			select {
			case <-listenCtx.Done():
				s.log.Debug("Listener received shutdown signal")
				return
			case msg, ok := <-ch:
				if !ok {
					s.log.Warn("Inbox subscription closed")
					return
				}
				s.dispatch(listenCtx, h, msg.Payload)
			}
		}
	}()

	return l, nil
}

func (s *Session) dispatch(ctx context.Context, h Handler, raw string) {
	env, err := unmarshalEnvelope(raw)
	if err != nil {
		s.log.WithError(err).Warn("Dropping malformed envelope")
		return
	}

	mode := env.Mode
	if mode != Correlated || env.ReplyTo == "" {
		mode = Uncorrelated
	}

	logger := s.log.WithFields(log.Fields{
		"correlation_id": env.ID,
		"mode":           string(mode),
	})
	logger.Debug("Message received")

	reply := h.HandleMessage(ctx, Inbound{ID: env.ID, Mode: mode, Payload: env.Payload})
	if mode != Correlated {
		return
	}

	data, err := marshalEnvelope(envelope{ID: env.ID, Payload: reply})
	if err != nil {
		logger.WithError(err).Error("Failed to encode reply")
		return
	}
	if err := s.rdb.Publish(ctx, env.ReplyTo, data).Err(); err != nil {
		logger.WithError(err).Error("Failed to publish reply")
	}
}
