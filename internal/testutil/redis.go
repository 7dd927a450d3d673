// Package testutil holds shared helpers for package tests.
package testutil

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// StartRedis starts an in-memory Redis server that is shut down with the test.
func StartRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()

	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)
	return mr
}

// RedisOptions returns client options for mr with short timeouts so tests
// against a stopped server fail fast.
func RedisOptions(mr *miniredis.Miniredis) *redis.Options {
	return &redis.Options{
		Addr:         mr.Addr(),
		DialTimeout:  200 * time.Millisecond,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
		MaxRetries:   -1,
	}
}

// RedisClient returns a client for mr that is closed with the test.
func RedisClient(t *testing.T, mr *miniredis.Miniredis) *redis.Client {
	t.Helper()

	rdb := redis.NewClient(RedisOptions(mr))
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

// Eventually polls cond every 10ms until it returns true or timeout elapses.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, timeout, 10*time.Millisecond, msg)
}
