// Package secretstore persists the single credential pair held by a device.
//
// A store holds at most one record, addressed by a fixed service/account
// identifier. The record is the JSON document {"apiKey","apiToken"}.
package secretstore

import (
	"context"
	"errors"

	"github.com/bytedance/sonic"
	"github.com/dyluth/cardlink/pkg/credentials"
)

const (
	// DefaultService identifies the application owning the record
	DefaultService = "com.cardlink.trello"

	// DefaultAccount identifies the record within the service
	DefaultAccount = "trelloCredentials"
)

// Store is a single-record credential store.
//
// Load returns ok=false with a nil error when no record exists. Delete of a
// missing record succeeds. All failures are *Error.
type Store interface {
	Load(ctx context.Context) (credentials.Pair, bool, error)
	Save(ctx context.Context, p credentials.Pair) error
	Delete(ctx context.Context) error
}

// record mirrors credentials.Pair with presence tracking so a document missing
// either field is rejected rather than read as empty.
type record struct {
	Key   *string `json:"apiKey"`
	Token *string `json:"apiToken"`
}

func encode(p credentials.Pair) ([]byte, error) {
	data, err := sonic.Marshal(p)
	if err != nil {
		return nil, newError(KindEncodeFailed, err)
	}
	return data, nil
}

func decode(data []byte) (credentials.Pair, error) {
	var r record
	if err := sonic.Unmarshal(data, &r); err != nil {
		return credentials.Pair{}, newError(KindDecodeFailed, err)
	}
	if r.Key == nil || r.Token == nil {
		return credentials.Pair{}, newError(KindDecodeFailed, errors.New("record missing apiKey or apiToken"))
	}
	return credentials.Pair{Key: *r.Key, Token: *r.Token}, nil
}
