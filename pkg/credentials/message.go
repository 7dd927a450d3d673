package credentials

import "fmt"

// Payload field names, shared by request and reply messages.
const (
	fieldAPIKey   = "apiKey"
	fieldAPIToken = "apiToken"
	fieldStatus   = "status"
	fieldMessage  = "message"
)

// Status is the outcome reported by the receiving device.
type Status string

const (
	// StatusSuccess means the receiver stored the new pair
	StatusSuccess Status = "success"

	// StatusNoChange means the receiver already held an identical pair
	StatusNoChange Status = "no_change"

	// StatusError means the receiver rejected the message or failed to persist it
	StatusError Status = "error"
)

// Validate checks that the status is one of the known values.
func (s Status) Validate() error {
	switch s {
	case StatusSuccess, StatusNoChange, StatusError:
		return nil
	default:
		return fmt.Errorf("invalid reply status: %q", string(s))
	}
}

// Reply is the payload sent back for correlated deliveries.
type Reply struct {
	Status  Status
	Message string
}

// EncodeRequest converts a pair into the wire payload.
func EncodeRequest(p Pair) map[string]string {
	return map[string]string{
		fieldAPIKey:   p.Key,
		fieldAPIToken: p.Token,
	}
}

// DecodeRequest extracts a pair from a wire payload.
// Returns false when either field is missing. Present-but-empty values are
// accepted here; validity of the values is the sender's concern.
func DecodeRequest(payload map[string]string) (Pair, bool) {
	key, hasKey := payload[fieldAPIKey]
	token, hasToken := payload[fieldAPIToken]
	if !hasKey || !hasToken {
		return Pair{}, false
	}
	return Pair{Key: key, Token: token}, true
}

// EncodeReply converts a reply into the wire payload.
func EncodeReply(r Reply) map[string]string {
	return map[string]string{
		fieldStatus:  string(r.Status),
		fieldMessage: r.Message,
	}
}

// DecodeReply parses a reply payload, rejecting unknown statuses.
func DecodeReply(payload map[string]string) (Reply, error) {
	status := Status(payload[fieldStatus])
	if err := status.Validate(); err != nil {
		return Reply{}, err
	}
	return Reply{Status: status, Message: payload[fieldMessage]}, nil
}
