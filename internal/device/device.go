// Package device assembles the runtime of one paired device from cardlink.yml:
// logger, link session and secret store.
package device

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dyluth/cardlink/internal/config"
	"github.com/dyluth/cardlink/internal/secretstore"
	"github.com/dyluth/cardlink/pkg/link"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Device is the runtime of one role.
type Device struct {
	Config  *config.Config
	Log     *log.Entry
	Session *link.Session
	Store   secretstore.Store

	rdb *redis.Client
}

// NewLogger returns the logger used by the binaries. debug lowers the level to Debug.
func NewLogger(debug bool) *log.Logger {
	logger := log.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if debug {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

// Open loads the configuration at cfgPath and builds the runtime for role.
// Nothing talks to Redis until the session is activated.
func Open(cfgPath string, role link.Role) (*Device, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	return New(cfg, role, NewLogger(cfg.Debug))
}

// New builds the runtime for role from an already loaded configuration.
func New(cfg *config.Config, role link.Role, logger *log.Logger) (*Device, error) {
	redisOpts, err := cfg.RedisOptions()
	if err != nil {
		return nil, err
	}

	entry := logger.WithField("role", string(role))

	session, err := link.NewSession(redisOpts, cfg.LinkOptions(role, entry))
	if err != nil {
		return nil, fmt.Errorf("failed to create link session: %w", err)
	}

	d := &Device{Config: cfg, Log: entry, Session: session}

	if cfg.Secrets.Backend == config.BackendRedis {
		storeOpts := *redisOpts
		d.rdb = redis.NewClient(&storeOpts)
	}

	d.Store, err = cfg.SecretStore(role, d.rdb)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to open secret store: %w", err)
	}
	return d, nil
}

// Activate activates the session, retrying with exponential backoff for up to
// maxElapsed. ErrUnsupported is not retried.
func (d *Device) Activate(ctx context.Context, maxElapsed time.Duration) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = maxElapsed

	op := func() error {
		err := d.Session.Activate(ctx)
		if errors.Is(err, link.ErrUnsupported) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		d.Log.WithError(err).WithField("retry_in", next).Warn("Activation failed, retrying")
	}
	return backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify)
}

// Close releases the session and any store connection.
func (d *Device) Close() error {
	err := d.Session.Close()
	if d.rdb != nil {
		if cerr := d.rdb.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
