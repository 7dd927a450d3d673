// Package poll waits for the paired device to come online.
package poll

import (
	"context"
	"fmt"
	"time"

	"github.com/dyluth/cardlink/pkg/link"
)

// Interval is the delay between peer checks.
const Interval = 200 * time.Millisecond

// Source is the session view PollForPeer needs. *link.Session satisfies it.
type Source interface {
	Refresh(ctx context.Context)
	State() link.Snapshot
}

// PollForPeer refreshes src every Interval until the session is activated
// and the peer is reachable. Returns the snapshot that satisfied the wait or
// an error if timeout elapses first.
func PollForPeer(ctx context.Context, src Source, timeout time.Duration) (link.Snapshot, error) {
	if snap := src.State(); ready(snap) {
		return snap, nil
	}

	ticker := time.NewTicker(Interval)
	defer ticker.Stop()

	timeoutCh := time.After(timeout)

	for {
		select {
		case <-ctx.Done():
			return src.State(), ctx.Err()

		case <-timeoutCh:
			snap := src.State()
			return snap, fmt.Errorf("timeout waiting for peer after %v (activation=%s, peer_installed=%t)",
				timeout, snap.Activation, snap.PeerInstalled)

		case <-ticker.C:
			src.Refresh(ctx)
			if snap := src.State(); ready(snap) {
				return snap, nil
			}
		}
	}
}

func ready(snap link.Snapshot) bool {
	return snap.Activation == link.StateActivated && snap.Reachable
}
