package credentials

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPairValidate(t *testing.T) {
	t.Run("accepts both fields", func(t *testing.T) {
		assert.NoError(t, Pair{Key: "k1", Token: "t1"}.Validate())
	})

	t.Run("rejects empty key", func(t *testing.T) {
		err := Pair{Key: "", Token: "x"}.Validate()
		var vErr *ValidationError
		require.True(t, errors.As(err, &vErr))
		assert.Equal(t, FieldKey, vErr.Field)
	})

	t.Run("rejects empty token", func(t *testing.T) {
		err := Pair{Key: "x", Token: ""}.Validate()
		var vErr *ValidationError
		require.True(t, errors.As(err, &vErr))
		assert.Equal(t, FieldToken, vErr.Field)
	})

	t.Run("whitespace counts as empty", func(t *testing.T) {
		err := Pair{Key: "  \t", Token: "x"}.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "apiKey cannot be empty")
	})
}

func TestPairEqual(t *testing.T) {
	a := Pair{Key: "k1", Token: "t1"}
	assert.True(t, a.Equal(Pair{Key: "k1", Token: "t1"}))
	assert.False(t, a.Equal(Pair{Key: "k1", Token: "t2"}))
	assert.False(t, a.Equal(Pair{}))
}

func TestPairRedacted(t *testing.T) {
	p := Pair{Key: "abcdefgh", Token: "secret-token"}
	out := p.Redacted()
	assert.NotContains(t, out, "secret-token")
	assert.Contains(t, out, "abcd****")
}

func TestDecodeRequest(t *testing.T) {
	t.Run("round trips a pair", func(t *testing.T) {
		p, ok := DecodeRequest(EncodeRequest(Pair{Key: "k", Token: "t"}))
		require.True(t, ok)
		assert.Equal(t, Pair{Key: "k", Token: "t"}, p)
	})

	t.Run("missing token is malformed", func(t *testing.T) {
		_, ok := DecodeRequest(map[string]string{"apiKey": "k"})
		assert.False(t, ok)
	})

	t.Run("missing key is malformed", func(t *testing.T) {
		_, ok := DecodeRequest(map[string]string{"apiToken": "t"})
		assert.False(t, ok)
	})
}

func TestDecodeReply(t *testing.T) {
	r, err := DecodeReply(map[string]string{"status": "no_change", "message": "already up-to-date"})
	require.NoError(t, err)
	assert.Equal(t, StatusNoChange, r.Status)
	assert.Equal(t, "already up-to-date", r.Message)

	_, err = DecodeReply(map[string]string{"status": "maybe"})
	assert.Error(t, err)
}
