package trello

import (
	"errors"
	"fmt"

	"github.com/dyluth/cardlink/pkg/credentials"
)

// Kind classifies a remote API failure.
type Kind string

const (
	KindInvalidRequest     Kind = "invalid_request"
	KindNetwork            Kind = "network"
	KindInvalidResponse    Kind = "invalid_response"
	KindAPIRejected        Kind = "api_rejected"
	KindDecodeFailed       Kind = "decode_failed"
	KindAuthRequired       Kind = "auth_required"
	KindInvalidCredentials Kind = "invalid_credentials"
)

// Error is returned by every Client operation.
type Error struct {
	Kind Kind

	// Message is the API's own explanation for KindAPIRejected
	Message string

	// StatusCode is the HTTP status when a response was received
	StatusCode int

	// Credentials is the pair a KindInvalidCredentials request was sent with
	Credentials credentials.Pair

	Err error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "":
		return fmt.Sprintf("trello: %s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("trello: %s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("trello: %s", e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a trello *Error, or "" for any other error.
func KindOf(err error) Kind {
	var tErr *Error
	if errors.As(err, &tErr) {
		return tErr.Kind
	}
	return ""
}

// IsAuthError reports whether err means the held credentials are missing or refused.
func IsAuthError(err error) bool {
	switch KindOf(err) {
	case KindAuthRequired, KindInvalidCredentials:
		return true
	default:
		return false
	}
}

// RefusedCredentials returns the pair the API refused, when err is a
// KindInvalidCredentials failure.
func RefusedCredentials(err error) (credentials.Pair, bool) {
	var tErr *Error
	if errors.As(err, &tErr) && tErr.Kind == KindInvalidCredentials {
		return tErr.Credentials, true
	}
	return credentials.Pair{}, false
}
