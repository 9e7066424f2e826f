package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/grove/internal/adapter/metrics"
	"github.com/pscheid92/grove/internal/broadcast"
	"github.com/pscheid92/grove/internal/platform/config"
)

type Server struct {
	echo   *echo.Echo
	config *config.Config
	clock  clockwork.Clock

	hub            *broadcast.Hub
	sessionStore   *sessions.CookieStore
	streamLimiter  *userStreamLimiter
	healthChecks   []HealthCheck
	httpMetrics    *metrics.HTTPMetrics
	metricsHandler http.Handler
	startTime      time.Time
}

// NewServer wires routes for the stream endpoint, probes and metrics.
// httpMetrics and metricsHandler may be nil.
func NewServer(cfg *config.Config, hub *broadcast.Hub, clock clockwork.Clock, healthChecks []HealthCheck, httpMetrics *metrics.HTTPMetrics, metricsHandler http.Handler) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:           e,
		config:         cfg,
		clock:          clock,
		hub:            hub,
		sessionStore:   setupSessionStore(cfg),
		streamLimiter:  newUserStreamLimiter(cfg.MaxStreamsPerUser),
		healthChecks:   healthChecks,
		httpMetrics:    httpMetrics,
		metricsHandler: metricsHandler,
		startTime:      clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// Session keys
const (
	sessionName      = "grove-session"
	sessionKeyUserID = "user_id"
)

func setupSessionStore(cfg *config.Config) *sessions.CookieStore {
	sessionStore := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	sessionStore.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.SessionMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	}
	return sessionStore
}
