package link

import (
	"context"
	"fmt"
)

// Role identifies which device owns a session.
type Role string

const (
	// RolePhone is the primary device that originates credentials
	RolePhone Role = "phone"

	// RoleWatch is the companion device that receives credentials
	RoleWatch Role = "watch"
)

// Validate checks that the role is known.
func (r Role) Validate() error {
	switch r {
	case RolePhone, RoleWatch:
		return nil
	default:
		return fmt.Errorf("invalid role: %q (must be 'phone' or 'watch')", string(r))
	}
}

// Peer returns the role on the other end of the pairing.
func (r Role) Peer() Role {
	if r == RolePhone {
		return RoleWatch
	}
	return RolePhone
}

// ActivationState is the lifecycle state of a session.
type ActivationState string

const (
	// StateNotActivated is the initial state, and the state after a failed activation
	StateNotActivated ActivationState = "not_activated"

	// StateActivating means an activation attempt is in progress
	StateActivating ActivationState = "activating"

	// StateActivated means the session can send and receive
	StateActivated ActivationState = "activated"

	// StateInactive means the platform suspended the session; it must be reactivated
	StateInactive ActivationState = "inactive"

	// StateDeactivated means the platform tore the session down; reactivation starts immediately
	StateDeactivated ActivationState = "deactivated"
)

// Snapshot is a point-in-time copy of a session's observable state.
type Snapshot struct {
	Activation    ActivationState `json:"activation"`
	Reachable     bool            `json:"reachable"`
	PeerInstalled bool            `json:"peer_installed"`
}

// Mode selects whether a delivery expects a reply.
type Mode string

const (
	// Correlated deliveries block the sender until a reply or an error arrives
	Correlated Mode = "correlated"

	// Uncorrelated deliveries are fire-and-forget
	Uncorrelated Mode = "uncorrelated"
)

// Inbound is a message handed to the receiving side.
type Inbound struct {
	ID      string
	Mode    Mode
	Payload map[string]string
}

// Handler processes inbound messages. The returned map is sent back to the
// peer for correlated deliveries and discarded otherwise.
type Handler interface {
	HandleMessage(ctx context.Context, msg Inbound) map[string]string
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, msg Inbound) map[string]string

// HandleMessage calls f(ctx, msg).
func (f HandlerFunc) HandleMessage(ctx context.Context, msg Inbound) map[string]string {
	return f(ctx, msg)
}

// EventKind names a platform-driven change to session state.
type EventKind string

const (
	// EventInactive signals the platform suspended the session
	EventInactive EventKind = "inactive"

	// EventDeactivated signals the platform tore the session down
	EventDeactivated EventKind = "deactivated"

	// EventReachability carries a new reachability value
	EventReachability EventKind = "reachability"

	// EventPeerInstalled carries a new peer-installed value
	EventPeerInstalled EventKind = "peer_installed"
)

// Event is a platform notification fed into HandleEvent.
type Event struct {
	Kind  EventKind
	Value bool
}

// ReachabilityChanged builds an EventReachability event.
func ReachabilityChanged(reachable bool) Event {
	return Event{Kind: EventReachability, Value: reachable}
}

// PeerInstalledChanged builds an EventPeerInstalled event.
func PeerInstalledChanged(installed bool) Event {
	return Event{Kind: EventPeerInstalled, Value: installed}
}
