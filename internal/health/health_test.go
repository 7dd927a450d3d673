package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/dyluth/cardlink/internal/testutil"
	"github.com/dyluth/cardlink/pkg/link"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCreds bool

func (f fakeCreds) NeedsAuthentication() bool { return !bool(f) }

func get(t *testing.T, s *Server, method string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	req := httptest.NewRequest(method, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var resp Response
	if rec.Code == http.StatusOK || rec.Code == http.StatusServiceUnavailable {
		require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestHealthz_MethodNotAllowed(t *testing.T) {
	s := NewServer(link.Unsupported(), fakeCreds(false), nil)

	rec, _ := get(t, s, http.MethodPost)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthz_Healthy(t *testing.T) {
	mr := testutil.StartRedis(t)
	session, err := link.NewSession(testutil.RedisOptions(mr), link.Options{Pairing: "health", Role: link.RoleWatch})
	require.NoError(t, err)
	defer session.Close()
	require.NoError(t, session.Activate(context.Background()))

	s := NewServer(session, fakeCreds(true), nil)
	rec, resp := get(t, s, http.MethodGet)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "connected", resp.Redis)
	assert.Equal(t, link.StateActivated, resp.Link.Activation)
	assert.True(t, resp.Credentials)
	assert.Empty(t, resp.Error)
}

func TestHealthz_RedisDown(t *testing.T) {
	mr := testutil.StartRedis(t)
	session, err := link.NewSession(testutil.RedisOptions(mr), link.Options{Pairing: "health", Role: link.RoleWatch})
	require.NoError(t, err)
	defer session.Close()
	mr.Close()

	s := NewServer(session, fakeCreds(false), nil)
	rec, resp := get(t, s, http.MethodGet)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Equal(t, "disconnected", resp.Redis)
	assert.False(t, resp.Credentials)
	assert.NotEmpty(t, resp.Error)
}

func TestHealthz_UnsupportedDevice(t *testing.T) {
	s := NewServer(link.Unsupported(), fakeCreds(true), nil)
	rec, resp := get(t, s, http.MethodGet)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, link.StateNotActivated, resp.Link.Activation)
}
