package companion

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dyluth/cardlink/internal/bus"
	"github.com/dyluth/cardlink/internal/secretstore"
	"github.com/dyluth/cardlink/pkg/credentials"
	"github.com/dyluth/cardlink/pkg/link"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu        sync.Mutex
	pair      credentials.Pair
	has       bool
	writes    int
	deletes   int
	loadErr   error
	saveErr   error
	deleteErr error
}

func (s *fakeStore) Load(ctx context.Context) (credentials.Pair, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return credentials.Pair{}, false, s.loadErr
	}
	return s.pair, s.has, nil
}

func (s *fakeStore) Save(ctx context.Context, p credentials.Pair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.pair, s.has = p, true
	return nil
}

func (s *fakeStore) Delete(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.pair, s.has = credentials.Pair{}, false
	return nil
}

func correlated(payload map[string]string) link.Inbound {
	return link.Inbound{ID: "id-1", Mode: link.Correlated, Payload: payload}
}

func uncorrelated(payload map[string]string) link.Inbound {
	return link.Inbound{ID: "id-2", Mode: link.Uncorrelated, Payload: payload}
}

// drain collects the events available within a short window.
func drain(sub *bus.Subscription[CredentialsChanged]) []CredentialsChanged {
	var got []CredentialsChanged
	for {
		select {
		case ev := <-sub.Events():
			got = append(got, ev)
		case <-time.After(100 * time.Millisecond):
			return got
		}
	}
}

func TestHandleMessage_IdempotentMerge(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	r := NewReceiver(store, nil)
	defer r.Close()
	sub := r.Subscribe()
	defer sub.Close()

	k1t1 := credentials.EncodeRequest(credentials.Pair{Key: "k1", Token: "t1"})
	k1t2 := credentials.EncodeRequest(credentials.Pair{Key: "k1", Token: "t2"})

	reply := r.HandleMessage(ctx, correlated(k1t1))
	assert.Equal(t, "success", reply["status"])
	assert.Equal(t, MessageReceived, reply["message"])

	reply = r.HandleMessage(ctx, correlated(k1t1))
	assert.Equal(t, "no_change", reply["status"])
	assert.Equal(t, MessageUpToDate, reply["message"])

	reply = r.HandleMessage(ctx, correlated(k1t2))
	assert.Equal(t, "success", reply["status"])

	assert.Equal(t, 2, store.writes)
	events := drain(sub)
	require.Len(t, events, 2)
	assert.Equal(t, "t1", events[0].Credentials.Token)
	assert.Equal(t, "t2", events[1].Credentials.Token)
	for _, ev := range events {
		assert.True(t, ev.Present)
		assert.Equal(t, CauseReceived, ev.Cause)
	}

	current, ok := r.Current()
	require.True(t, ok)
	assert.Equal(t, credentials.Pair{Key: "k1", Token: "t2"}, current)
}

func TestHandleMessage_ModesShareMergeLogic(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	r := NewReceiver(store, nil)
	defer r.Close()
	sub := r.Subscribe()
	defer sub.Close()

	payload := credentials.EncodeRequest(credentials.Pair{Key: "k1", Token: "t1"})

	assert.Nil(t, r.HandleMessage(ctx, uncorrelated(payload)))
	reply := r.HandleMessage(ctx, correlated(payload))
	assert.Equal(t, "no_change", reply["status"], "an uncorrelated delivery counts for idempotence")
	assert.Nil(t, r.HandleMessage(ctx, uncorrelated(payload)))

	assert.Equal(t, 1, store.writes)
	assert.Len(t, drain(sub), 1)
}

func TestHandleMessage_Malformed(t *testing.T) {
	ctx := context.Background()
	malformed := []map[string]string{
		{},
		{"apiKey": "k1"},
		{"apiToken": "t1"},
		{"key": "k1", "token": "t1"},
	}

	for _, payload := range malformed {
		store := &fakeStore{}
		r := NewReceiver(store, nil)
		sub := r.Subscribe()

		reply := r.HandleMessage(ctx, correlated(payload))
		assert.Equal(t, "error", reply["status"])
		assert.Equal(t, MessageInvalid, reply["message"])
		assert.Nil(t, r.HandleMessage(ctx, uncorrelated(payload)))

		assert.Equal(t, 0, store.writes)
		assert.Empty(t, drain(sub))
		assert.True(t, r.NeedsAuthentication())

		sub.Close()
		r.Close()
	}
}

func TestHandleMessage_PersistFailureDowngradesReply(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{saveErr: &secretstore.Error{Kind: secretstore.KindWriteFailed}}
	r := NewReceiver(store, nil)
	defer r.Close()
	sub := r.Subscribe()
	defer sub.Close()

	reply := r.HandleMessage(ctx, correlated(credentials.EncodeRequest(credentials.Pair{Key: "k1", Token: "t1"})))
	assert.Equal(t, "error", reply["status"])
	assert.Equal(t, MessageNotPersisted, reply["message"])

	current, ok := r.Current()
	require.True(t, ok, "memory is updated despite the failed write")
	assert.Equal(t, "k1", current.Key)
	assert.Len(t, drain(sub), 1)
}

func TestClear(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes the same event type", func(t *testing.T) {
		store := &fakeStore{}
		r := NewReceiver(store, nil)
		defer r.Close()
		r.HandleMessage(ctx, correlated(credentials.EncodeRequest(credentials.Pair{Key: "k1", Token: "t1"})))

		sub := r.Subscribe()
		defer sub.Close()
		require.NoError(t, r.Clear(ctx))

		events := drain(sub)
		require.Len(t, events, 1)
		assert.False(t, events[0].Present)
		assert.Equal(t, CauseCleared, events[0].Cause)
		assert.True(t, r.NeedsAuthentication())
		assert.False(t, store.has)
	})

	t.Run("erase failure still clears memory", func(t *testing.T) {
		store := &fakeStore{deleteErr: &secretstore.Error{Kind: secretstore.KindDeleteFailed}}
		r := NewReceiver(store, nil)
		defer r.Close()
		r.HandleMessage(ctx, correlated(credentials.EncodeRequest(credentials.Pair{Key: "k1", Token: "t1"})))

		err := r.Clear(ctx)
		assert.True(t, secretstore.IsKind(err, secretstore.KindDeleteFailed))
		assert.True(t, r.NeedsAuthentication())
	})

	t.Run("same pair is accepted again after clear", func(t *testing.T) {
		r := NewReceiver(&fakeStore{}, nil)
		defer r.Close()
		payload := credentials.EncodeRequest(credentials.Pair{Key: "k1", Token: "t1"})

		r.HandleMessage(ctx, correlated(payload))
		require.NoError(t, r.Clear(ctx))
		reply := r.HandleMessage(ctx, correlated(payload))
		assert.Equal(t, "success", reply["status"])
	})
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("restores stored pair", func(t *testing.T) {
		pair := credentials.Pair{Key: "k1", Token: "t1"}
		r := NewReceiver(&fakeStore{pair: pair, has: true}, nil)
		defer r.Close()

		require.NoError(t, r.Load(ctx))
		current, ok := r.Current()
		require.True(t, ok)
		assert.Equal(t, pair, current)
		assert.False(t, r.NeedsAuthentication())

		reply := r.HandleMessage(ctx, correlated(credentials.EncodeRequest(pair)))
		assert.Equal(t, "no_change", reply["status"])
	})

	t.Run("empty store", func(t *testing.T) {
		r := NewReceiver(&fakeStore{}, nil)
		defer r.Close()
		require.NoError(t, r.Load(ctx))
		assert.True(t, r.NeedsAuthentication())
	})

	t.Run("corrupted record is deleted", func(t *testing.T) {
		store := &fakeStore{loadErr: &secretstore.Error{Kind: secretstore.KindDecodeFailed}}
		r := NewReceiver(store, nil)
		defer r.Close()

		require.NoError(t, r.Load(ctx))
		assert.True(t, r.NeedsAuthentication())
		assert.Equal(t, 1, store.deletes)
	})

	t.Run("read failure is returned", func(t *testing.T) {
		store := &fakeStore{loadErr: &secretstore.Error{Kind: secretstore.KindReadFailed}}
		r := NewReceiver(store, nil)
		defer r.Close()

		err := r.Load(ctx)
		assert.True(t, secretstore.IsKind(err, secretstore.KindReadFailed))
		assert.Equal(t, 0, store.deletes)
	})
}

func TestInvalidate(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	r := NewReceiver(store, nil)
	defer r.Close()
	r.HandleMessage(ctx, correlated(credentials.EncodeRequest(credentials.Pair{Key: "k1", Token: "t1"})))

	sub := r.Subscribe()
	defer sub.Close()

	r.Invalidate(ctx, credentials.Pair{Key: "k1", Token: "t1"}, errors.New("invalid credentials"))
	assert.True(t, r.NeedsAuthentication())
	assert.False(t, store.has)

	// a second invalidation with nothing held is silent
	r.Invalidate(ctx, credentials.Pair{Key: "k1", Token: "t1"}, errors.New("invalid credentials"))

	events := drain(sub)
	require.Len(t, events, 1)
	assert.Equal(t, CauseInvalidated, events[0].Cause)
	assert.False(t, events[0].Present)
}

func TestInvalidate_SupersededPairIsKept(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	r := NewReceiver(store, nil)
	defer r.Close()

	fresh := credentials.Pair{Key: "k1", Token: "t-new"}
	r.HandleMessage(ctx, correlated(credentials.EncodeRequest(fresh)))

	sub := r.Subscribe()
	defer sub.Close()

	r.Invalidate(ctx, credentials.Pair{Key: "k1", Token: "t-old"}, errors.New("invalid credentials"))

	held, ok := r.Current()
	require.True(t, ok)
	assert.Equal(t, fresh, held)
	assert.True(t, store.has)
	assert.Equal(t, 0, store.deletes)
	assert.Empty(t, drain(sub))
}
