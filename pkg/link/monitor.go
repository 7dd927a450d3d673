package link

import (
	"context"
	"time"
)

// Monitor runs the heartbeat loop until ctx is cancelled.
//
// Every tick it pings Redis, refreshes this device's presence and derives the
// peer's reachability and installed flags. The first failed ping marks an
// activated session Inactive; MaxPingFailures consecutive failures deactivate
// it, which starts a reactivation. A healthy ping on a session that is not
// activated triggers Activate.
func (s *Session) Monitor(ctx context.Context) error {
	if !s.supported {
		return ErrUnsupported
	}

	ticker := time.NewTicker(s.opts.HeartbeatInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			failures = s.heartbeat(ctx, failures)
		}
	}
}

// Refresh runs a single heartbeat outside the Monitor loop. Command-line
// tools that never start Monitor use it to pick up peer changes.
func (s *Session) Refresh(ctx context.Context) {
	if !s.supported {
		return
	}
	s.heartbeat(ctx, 0)
}

// heartbeat performs one monitor tick and returns the updated failure count.
func (s *Session) heartbeat(ctx context.Context, failures int) int {
	pingCtx, cancel := context.WithTimeout(ctx, s.opts.HeartbeatInterval)
	defer cancel()

	if err := s.rdb.Ping(pingCtx).Err(); err != nil {
		failures++
		s.log.WithError(err).WithField("failures", failures).Warn("Heartbeat failed")

		if failures >= s.opts.MaxPingFailures {
			s.HandleEvent(Event{Kind: EventDeactivated})
			return 0
		}
		if failures == 1 {
			s.HandleEvent(Event{Kind: EventInactive})
		}
		return failures
	}

	if s.State().Activation != StateActivated {
		if err := s.Activate(ctx); err != nil {
			s.log.WithError(err).Warn("Activation from heartbeat failed")
		}
		return 0
	}

	if err := s.refreshPresence(pingCtx); err != nil {
		s.log.WithError(err).Warn("Failed to refresh presence")
	}

	reachable, installed, err := s.peerStatus(pingCtx)
	if err != nil {
		s.log.WithError(err).Warn("Failed to read peer status")
		return 0
	}

	before := s.State()
	if before.Reachable != reachable {
		s.HandleEvent(ReachabilityChanged(reachable))
		s.log.WithField("reachable", reachable).Info("Peer reachability changed")
	}
	if before.PeerInstalled != installed {
		s.HandleEvent(PeerInstalledChanged(installed))
		s.log.WithField("peer_installed", installed).Info("Peer installation changed")
	}
	return 0
}
