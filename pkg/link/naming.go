package link

import (
	"fmt"
	"regexp"
)

// MaxPairingNameLength is the maximum length for a pairing name
const MaxPairingNameLength = 63

// PairingNamePattern accepts lowercase alphanumerics with inner hyphens.
var PairingNamePattern = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)

// ValidatePairingName checks that a pairing name is safe to embed in Redis keys.
func ValidatePairingName(name string) error {
	if name == "" {
		return fmt.Errorf("pairing name cannot be empty")
	}

	if len(name) > MaxPairingNameLength {
		return fmt.Errorf("pairing name too long: %d characters (max: %d)", len(name), MaxPairingNameLength)
	}

	if !PairingNamePattern.MatchString(name) {
		return fmt.Errorf("invalid pairing name '%s': must be lowercase alphanumeric with hyphens (not at start/end)", name)
	}

	return nil
}
