package httpserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/grove/internal/broadcast"
	apperrors "github.com/pscheid92/grove/internal/platform/errors"
)

func (s *Server) registerStreamRoutes() {
	limiter := newRateLimiter(s.config.StreamRateLimit, s.config.StreamRateBurst)
	s.echo.GET("/events/stream", s.handleStream, s.requireIdentity, limiter)
}

// handleStream registers a hub session for the signed-in user and relays its
// frames as server-sent events until the client leaves or the session ends.
func (s *Server) handleStream(c echo.Context) error {
	userID, ok := userIDFrom(c)
	if !ok {
		return apperrors.UnauthorizedError("not signed in")
	}

	if !s.streamLimiter.Acquire(userID) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "too many open streams for this user")
	}
	defer s.streamLimiter.Release(userID)

	session, err := s.hub.Register(userID)
	if errors.Is(err, broadcast.ErrHubFull) {
		return apperrors.UnavailableError("too many open streams", err)
	}
	if err != nil {
		return apperrors.UnavailableError("stream unavailable", err)
	}
	defer s.hub.Unregister(session.ID)

	ctx := c.Request().Context()
	slog.InfoContext(ctx, "Stream opened", "session_id", session.ID, "user_id", userID)

	w := c.Response()
	header := w.Header()
	header.Set(echo.HeaderContentType, "text/event-stream")
	header.Set(echo.HeaderCacheControl, "no-cache")
	header.Set(echo.HeaderConnection, "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	reason := s.relay(ctx, w, session)
	slog.InfoContext(ctx, "Stream closed", "session_id", session.ID, "user_id", userID, "reason", reason)
	return nil
}

// relay copies frames to w. When nothing is written for KeepAliveTimeout a
// ping comment keeps intermediaries from closing the idle connection. It
// returns why the stream ended.
func (s *Server) relay(ctx context.Context, w http.ResponseWriter, session *broadcast.Session) string {
	rc := http.NewResponseController(w)
	keepAlive := s.config.KeepAliveTimeout

	idle := s.clock.NewTimer(keepAlive)
	defer idle.Stop()

	for {
		var frame broadcast.Frame
		select {
		case <-ctx.Done():
			return "client disconnected"
		case f, ok := <-session.Frames():
			if !ok {
				return "session closed"
			}
			frame = f
		case <-idle.Chan():
			frame = broadcast.CommentFrame(broadcast.CommentPing)
		}

		if err := writeFrame(rc, w, frame, keepAlive); err != nil {
			slog.DebugContext(ctx, "Stream write failed", "session_id", session.ID, "error", err)
			return "write failed"
		}
		idle.Reset(keepAlive)
	}
}

func writeFrame(rc *http.ResponseController, w io.Writer, f broadcast.Frame, timeout time.Duration) error {
	if err := rc.SetWriteDeadline(time.Now().Add(timeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	if _, err := f.WriteTo(w); err != nil {
		return err
	}
	return rc.Flush()
}
