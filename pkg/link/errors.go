package link

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupported is returned when the device has no pairing channel at all
	ErrUnsupported = errors.New("pairing channel is not supported on this device")

	// ErrNotActivated is returned when the session has not completed activation
	ErrNotActivated = errors.New("pairing session is not activated")

	// ErrPeerNotInstalled is returned when the counterpart app is absent
	ErrPeerNotInstalled = errors.New("counterpart app is not installed")

	// ErrPeerUnreachable is the cause of a delivery failure when nobody is listening
	ErrPeerUnreachable = errors.New("peer is not reachable")

	// ErrReplyTimeout is the cause of a delivery failure when a correlated reply never arrives
	ErrReplyTimeout = errors.New("timed out waiting for reply")
)

// ActivationError reports why an activation attempt failed.
type ActivationError struct {
	Reason error
}

func (e *ActivationError) Error() string {
	return fmt.Sprintf("activation failed: %v", e.Reason)
}

func (e *ActivationError) Unwrap() error {
	return e.Reason
}

// DeliveryError reports a transient failure to deliver a message.
type DeliveryError struct {
	Cause error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery failed: %v", e.Cause)
}

func (e *DeliveryError) Unwrap() error {
	return e.Cause
}

// IsDeliveryFailure reports whether err is a DeliveryError.
func IsDeliveryFailure(err error) bool {
	var dErr *DeliveryError
	return errors.As(err, &dErr)
}
