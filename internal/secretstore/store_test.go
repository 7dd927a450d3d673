package secretstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dyluth/cardlink/internal/testutil"
	"github.com/dyluth/cardlink/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPair = credentials.Pair{Key: "key-123", Token: "token-456"}

// exerciseStore runs the behaviour every Store must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "fresh store should be empty")

	require.NoError(t, s.Save(ctx, testPair))
	got, ok, err := s.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, testPair, got)

	replacement := credentials.Pair{Key: "key-789", Token: "token-000"}
	require.NoError(t, s.Save(ctx, replacement))
	got, _, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, replacement, got, "save replaces the whole record")

	require.NoError(t, s.Delete(ctx))
	_, ok, err = s.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Delete(ctx), "deleting a missing record is not an error")
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		mr := testutil.StartRedis(t)
		exerciseStore(t, NewRedisStore(testutil.RedisClient(t, mr), "", ""))
	})

	t.Run("uses service and account in key", func(t *testing.T) {
		mr := testutil.StartRedis(t)
		s := NewRedisStore(testutil.RedisClient(t, mr), "svc", "acct")
		require.NoError(t, s.Save(ctx, testPair))

		raw, err := mr.Get("cardlink:secret:svc:acct")
		require.NoError(t, err)
		assert.JSONEq(t, `{"apiKey":"key-123","apiToken":"token-456"}`, raw)
	})

	t.Run("corrupted record", func(t *testing.T) {
		mr := testutil.StartRedis(t)
		require.NoError(t, mr.Set(RedisKey(DefaultService, DefaultAccount), "not json"))

		_, ok, err := NewRedisStore(testutil.RedisClient(t, mr), "", "").Load(ctx)
		assert.False(t, ok)
		assert.True(t, IsKind(err, KindDecodeFailed))
	})

	t.Run("record missing a field", func(t *testing.T) {
		mr := testutil.StartRedis(t)
		require.NoError(t, mr.Set(RedisKey(DefaultService, DefaultAccount), `{"apiKey":"k"}`))

		_, _, err := NewRedisStore(testutil.RedisClient(t, mr), "", "").Load(ctx)
		assert.True(t, IsKind(err, KindDecodeFailed))
	})

	t.Run("server unavailable", func(t *testing.T) {
		mr := testutil.StartRedis(t)
		s := NewRedisStore(testutil.RedisClient(t, mr), "", "")
		mr.Close()

		_, _, err := s.Load(ctx)
		assert.True(t, IsKind(err, KindReadFailed))
		assert.True(t, IsKind(s.Save(ctx, testPair), KindWriteFailed))
		assert.True(t, IsKind(s.Delete(ctx), KindDeleteFailed))

		var sErr *Error
		require.True(t, errors.As(s.Save(ctx, testPair), &sErr))
		assert.Error(t, sErr.Unwrap())
	})
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()

	t.Run("plain round trip", func(t *testing.T) {
		s, err := NewFileStore(filepath.Join(t.TempDir(), "nested", "creds.json"), "")
		require.NoError(t, err)
		assert.False(t, s.Sealed())
		exerciseStore(t, s)
	})

	t.Run("sealed round trip", func(t *testing.T) {
		s, err := NewFileStore(filepath.Join(t.TempDir(), "creds.json"), "hunter2")
		require.NoError(t, err)
		assert.True(t, s.Sealed())
		exerciseStore(t, s)
	})

	t.Run("file is owner only", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "creds.json")
		s, err := NewFileStore(path, "")
		require.NoError(t, err)
		require.NoError(t, s.Save(ctx, testPair))

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	})

	t.Run("sealed file hides the token", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "creds.json")
		s, err := NewFileStore(path, "hunter2")
		require.NoError(t, err)
		require.NoError(t, s.Save(ctx, testPair))

		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.NotContains(t, string(raw), testPair.Token)
	})

	t.Run("wrong passphrase", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "creds.json")
		s, err := NewFileStore(path, "hunter2")
		require.NoError(t, err)
		require.NoError(t, s.Save(ctx, testPair))

		other, err := NewFileStore(path, "letmein")
		require.NoError(t, err)
		_, ok, err := other.Load(ctx)
		assert.False(t, ok)
		assert.True(t, IsKind(err, KindUnexpectedData))
	})

	t.Run("truncated sealed file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "creds.json")
		require.NoError(t, os.WriteFile(path, []byte("short"), 0600))

		s, err := NewFileStore(path, "hunter2")
		require.NoError(t, err)
		_, _, err = s.Load(ctx)
		assert.True(t, IsKind(err, KindUnexpectedData))
	})

	t.Run("garbage plain file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "creds.json")
		require.NoError(t, os.WriteFile(path, []byte("{{{"), 0600))

		s, err := NewFileStore(path, "")
		require.NoError(t, err)
		_, _, err = s.Load(ctx)
		assert.True(t, IsKind(err, KindDecodeFailed))
	})

	t.Run("unreadable path", func(t *testing.T) {
		dir := t.TempDir()
		s, err := NewFileStore(dir, "")
		require.NoError(t, err)

		_, _, err = s.Load(ctx)
		assert.True(t, IsKind(err, KindReadFailed))
	})

	t.Run("empty path", func(t *testing.T) {
		_, err := NewFileStore("", "")
		assert.Error(t, err)
	})
}

func TestError(t *testing.T) {
	err := newError(KindWriteFailed, errors.New("disk full"))
	assert.Equal(t, "secret store: write_failed: disk full", err.Error())

	err.Code = 28
	assert.Equal(t, "secret store: write_failed (code 28): disk full", err.Error())
	assert.False(t, IsKind(errors.New("other"), KindWriteFailed))
}
