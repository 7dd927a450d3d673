package link

import "fmt"

// Redis key pattern helpers
//
// Key pattern: cardlink:{pairing}:{entity}[:{id}]

// InboxChannel returns the Pub/Sub channel a device listens on.
// Pattern: cardlink:{pairing}:{role}:inbox
func InboxChannel(pairing string, role Role) string {
	return fmt.Sprintf("cardlink:%s:%s:inbox", pairing, role)
}

// ReplyChannel returns the one-shot channel a correlated sender waits on.
// Pattern: cardlink:{pairing}:reply:{correlation_id}
func ReplyChannel(pairing, correlationID string) string {
	return fmt.Sprintf("cardlink:%s:reply:%s", pairing, correlationID)
}

// PresenceKey returns the expiring key a device refreshes while it is reachable.
// Pattern: cardlink:{pairing}:presence:{role}
func PresenceKey(pairing string, role Role) string {
	return fmt.Sprintf("cardlink:%s:presence:%s", pairing, role)
}

// InstalledKey returns the set of roles that have registered on the pairing.
// Pattern: cardlink:{pairing}:installed
func InstalledKey(pairing string) string {
	return fmt.Sprintf("cardlink:%s:installed", pairing)
}
