// Package credentials defines the API key/token pair shared between the phone
// and the watch, together with the request and reply payloads exchanged over
// the pairing link.
package credentials

import (
	"fmt"
	"strings"
)

// Pair is the Trello API key and token held by a device.
// A Pair is a value: a new pair always replaces the old one as a whole.
type Pair struct {
	Key   string `json:"apiKey"`
	Token string `json:"apiToken"`
}

// Field identifies one half of a Pair in validation errors.
type Field string

const (
	// FieldKey is the API key field
	FieldKey Field = "apiKey"

	// FieldToken is the API token field
	FieldToken Field = "apiToken"
)

// ValidationError reports a blank field in a candidate pair.
type ValidationError struct {
	Field Field
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s cannot be empty", e.Field)
}

// Validate checks that both fields are non-empty once surrounding whitespace is trimmed.
// The key is checked first, matching the order fields are shown to the user.
func (p Pair) Validate() error {
	if strings.TrimSpace(p.Key) == "" {
		return &ValidationError{Field: FieldKey}
	}
	if strings.TrimSpace(p.Token) == "" {
		return &ValidationError{Field: FieldToken}
	}
	return nil
}

// IsZero reports whether the pair holds no data at all.
func (p Pair) IsZero() bool {
	return p.Key == "" && p.Token == ""
}

// Equal compares two pairs field by field.
func (p Pair) Equal(other Pair) bool {
	return p.Key == other.Key && p.Token == other.Token
}

// Redacted returns a log-safe rendering that never includes the token.
func (p Pair) Redacted() string {
	return fmt.Sprintf("key=%s token=%s", mask(p.Key), mask(p.Token))
}

func mask(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-4)
}
