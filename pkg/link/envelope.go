package link

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// envelope is the JSON document carried on inbox and reply channels.
type envelope struct {
	ID      string            `json:"id"`
	Mode    Mode              `json:"mode,omitempty"`
	ReplyTo string            `json:"reply_to,omitempty"`
	Payload map[string]string `json:"payload"`
}

func marshalEnvelope(env envelope) (string, error) {
	data, err := sonic.MarshalString(env)
	if err != nil {
		return "", fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return data, nil
}

func unmarshalEnvelope(raw string) (envelope, error) {
	var env envelope
	if err := sonic.UnmarshalString(raw, &env); err != nil {
		return envelope{}, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	if env.ID == "" {
		return envelope{}, fmt.Errorf("envelope missing id")
	}
	if env.Payload == nil {
		env.Payload = map[string]string{}
	}
	return env, nil
}
