// Package health serves the watch daemon's /healthz endpoint.
package health

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dyluth/cardlink/pkg/link"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

// Link is the session view the endpoint reports on. *link.Session satisfies it.
type Link interface {
	Ping(ctx context.Context) error
	State() link.Snapshot
}

// Credentials reports whether the daemon holds a credential pair.
// *companion.Receiver satisfies it.
type Credentials interface {
	NeedsAuthentication() bool
}

// Response is the JSON body of GET /healthz.
type Response struct {
	Status      string        `json:"status"`
	Redis       string        `json:"redis"`
	Link        link.Snapshot `json:"link"`
	Credentials bool          `json:"credentials"`
	Error       string        `json:"error,omitempty"`
}

// Server provides HTTP health check endpoints for the watch daemon.
type Server struct {
	link  Link
	creds Credentials
	echo  *echo.Echo
	log   log.FieldLogger
}

// NewServer creates a health server. It does not listen until Start.
func NewServer(l Link, creds Credentials, logger log.FieldLogger) *Server {
	if logger == nil {
		logger = log.StandardLogger()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = 5 * time.Second
	e.Server.WriteTimeout = 5 * time.Second

	s := &Server{
		link:  l,
		creds: creds,
		echo:  e,
		log:   logger.WithField("component", "health"),
	}
	e.GET("/healthz", s.healthz)
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts listening on addr in the background.
func (s *Server) Start(addr string) {
	go func() {
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("Health server stopped")
		}
	}()
	s.log.WithField("addr", addr).Info("Health server listening")
}

// Shutdown gracefully shuts down the health check server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// healthz returns 200 when Redis answers and 503 otherwise. Link state and
// credential presence are informational and never fail the check.
func (s *Server) healthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	resp := Response{
		Status:      "healthy",
		Redis:       "connected",
		Link:        s.link.State(),
		Credentials: !s.creds.NeedsAuthentication(),
	}

	if err := s.link.Ping(ctx); err != nil {
		resp.Status = "unhealthy"
		resp.Redis = "disconnected"
		resp.Error = err.Error()
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	return c.JSON(http.StatusOK, resp)
}
