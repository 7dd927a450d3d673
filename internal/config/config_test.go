package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dyluth/cardlink/internal/secretstore"
	"github.com/dyluth/cardlink/internal/testutil"
	"github.com/dyluth/cardlink/pkg/credentials"
	"github.com/dyluth/cardlink/pkg/link"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cardlink.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func noEnv(string) (string, bool) { return "", false }

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `version: "1.0"
pairing: kitchen
redis:
  url: redis://redis.local:6380/2
link:
  delivery_timeout: 3s
  heartbeat_interval: 2s
secrets:
  backend: redis
  service: com.example
trello:
  requests_per_second: 10
  position: top
watch:
  health_addr: ":9090"
`)

	config, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "kitchen", config.Pairing)
	assert.Equal(t, 3*time.Second, config.Link.DeliveryTimeout)
	assert.Equal(t, 2*time.Second, config.Link.HeartbeatInterval)
	assert.Equal(t, link.DefaultPresenceTTL, config.Link.PresenceTTL)
	assert.Equal(t, BackendRedis, config.Secrets.Backend)
	assert.Equal(t, "top", config.Trello.Position)
	assert.Equal(t, 10.0, config.Trello.RequestsPerSecond)
	assert.Equal(t, ":9090", config.Watch.HealthAddr)

	opts, err := config.RedisOptions()
	require.NoError(t, err)
	assert.Equal(t, "redis.local:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)
}

func TestLoad_FileNotFound(t *testing.T) {
	config, err := Load("/nonexistent/cardlink.yml")
	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestLoad_DefaultPathMissingUsesDefaults(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	config, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "default", config.Pairing)
	assert.Equal(t, "redis://localhost:6379/0", config.Redis.URL)
	assert.Equal(t, BackendFile, config.Secrets.Backend)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "version: \"1.0\"\npairing: [unclosed\n")

	config, err := Load(path)
	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"wrong version", func(c *Config) { c.Version = "2.0" }, "unsupported version"},
		{"bad pairing", func(c *Config) { c.Pairing = "Not_Valid" }, "invalid pairing name"},
		{"bad redis url", func(c *Config) { c.Redis.URL = "http://nope" }, "invalid redis.url"},
		{"bad backend", func(c *Config) { c.Secrets.Backend = "keychain" }, "invalid secrets.backend"},
		{"bad position", func(c *Config) { c.Trello.Position = "middle" }, "invalid trello.position"},
		{"heartbeat too slow", func(c *Config) {
			c.Link.HeartbeatInterval = 20 * time.Second
			c.Link.PresenceTTL = 10 * time.Second
		}, "must be shorter than"},
		{"negative failures", func(c *Config) { c.Link.MaxPingFailures = -1 }, "max_ping_failures"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("defaults are valid", func(t *testing.T) {
		assert.NoError(t, Default().Validate())
	})
}

func TestApplyEnv(t *testing.T) {
	c := Default()
	require.NoError(t, c.ApplyEnv(envMap(map[string]string{
		"CARDLINK_PAIRING":           "office",
		"REDIS_URL":                  "redis://other:6379/1",
		"CARDLINK_SECRET_PASSPHRASE": "hunter2",
		"CARDLINK_SECRET_BACKEND":    "redis",
		"TRELLO_BASE_URL":            "http://localhost:9999/1",
		"DEBUG":                      "true",
	})))

	assert.Equal(t, "office", c.Pairing)
	assert.Equal(t, "redis://other:6379/1", c.Redis.URL)
	assert.Equal(t, "hunter2", c.Secrets.Passphrase)
	assert.Equal(t, BackendRedis, c.Secrets.Backend)
	assert.Equal(t, "http://localhost:9999/1", c.Trello.BaseURL)
	assert.True(t, c.Debug)

	assert.NoError(t, Default().ApplyEnv(noEnv))
	assert.Error(t, Default().ApplyEnv(envMap(map[string]string{"DEBUG": "sometimes"})))
}

func TestLinkOptions(t *testing.T) {
	c := Default()
	opts := c.LinkOptions(link.RoleWatch, nil)
	assert.Equal(t, "default", opts.Pairing)
	assert.Equal(t, link.RoleWatch, opts.Role)
	assert.Equal(t, link.DefaultDeliveryTimeout, opts.DeliveryTimeout)
}

func TestSecretStore(t *testing.T) {
	ctx := context.Background()
	pair := credentials.Pair{Key: "k", Token: "t"}

	t.Run("file backend keeps roles apart", func(t *testing.T) {
		c := Default()
		c.Secrets.Path = filepath.Join(t.TempDir(), "creds.json")

		phoneStore, err := c.SecretStore(link.RolePhone, nil)
		require.NoError(t, err)
		require.NoError(t, phoneStore.Save(ctx, pair))

		_, err = os.Stat(filepath.Join(filepath.Dir(c.Secrets.Path), "creds-phone.json"))
		assert.NoError(t, err)

		watchStore, err := c.SecretStore(link.RoleWatch, nil)
		require.NoError(t, err)
		_, ok, err := watchStore.Load(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("redis backend", func(t *testing.T) {
		mr := testutil.StartRedis(t)
		c := Default()
		c.Secrets.Backend = BackendRedis

		store, err := c.SecretStore(link.RoleWatch, testutil.RedisClient(t, mr))
		require.NoError(t, err)
		require.NoError(t, store.Save(ctx, pair))
		assert.True(t, mr.Exists(secretstore.RedisKey(secretstore.DefaultService, "trelloCredentials-watch")))
	})

	t.Run("redis backend without client", func(t *testing.T) {
		c := Default()
		c.Secrets.Backend = BackendRedis
		_, err := c.SecretStore(link.RoleWatch, nil)
		assert.Error(t, err)
	})
}

func TestWithRole(t *testing.T) {
	assert.Equal(t, "/a/creds-phone.json", withRole("/a/creds.json", link.RolePhone))
	assert.Equal(t, "/a.d/creds-watch", withRole("/a.d/creds", link.RoleWatch))
}
