package httpserver

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/sessions"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/grove/internal/broadcast"
	"github.com/pscheid92/grove/internal/platform/config"
	"github.com/stretchr/testify/require"
)

const testSessionSecret = "test-secret-key-32-bytes-long!!!"

// --- Test helpers ---

func newTestServer(t *testing.T, opts ...func(*Server)) *Server {
	t.Helper()

	store := sessions.NewCookieStore([]byte(testSessionSecret))
	store.Options = &sessions.Options{
		Path:   "/",
		MaxAge: 3600,
	}

	clock := clockwork.NewFakeClock()
	hub := broadcast.NewHub(broadcast.Options{Clock: clock})
	t.Cleanup(hub.Close)

	srv := &Server{
		echo: echo.New(),
		config: &config.Config{
			Port:              "0",
			SessionSecret:     testSessionSecret,
			KeepAliveTimeout:  time.Minute,
			StreamRateLimit:   100,
			StreamRateBurst:   100,
			MaxStreamsPerUser: 3,
		},
		clock:        clock,
		hub:          hub,
		sessionStore: store,
		startTime:    clock.Now(),
	}

	for _, opt := range opts {
		opt(srv)
	}
	srv.streamLimiter = newUserStreamLimiter(srv.config.MaxStreamsPerUser)

	// Register routes so endpoints are available for testing
	srv.registerRoutes()

	return srv
}

func withHealthChecks(checks ...HealthCheck) func(*Server) {
	return func(s *Server) {
		s.healthChecks = checks
	}
}

func withHub(h *broadcast.Hub) func(*Server) {
	return func(s *Server) {
		s.hub = h
	}
}

func withConfig(mutate func(*config.Config)) func(*Server) {
	return func(s *Server) {
		mutate(s.config)
	}
}

func healthOK(_ context.Context) error { return nil }

func healthErr(msg string) func(context.Context) error {
	return func(_ context.Context) error { return errors.New(msg) }
}

// sessionCookie returns a signed session cookie carrying userID.
func sessionCookie(t *testing.T, srv *Server, userID any) *http.Cookie {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	session, err := srv.sessionStore.Get(req, sessionName)
	require.NoError(t, err)
	session.Values[sessionKeyUserID] = userID
	require.NoError(t, session.Save(req, rec))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

type streamClient struct {
	resp   *http.Response
	reader *bufio.Reader
	cancel context.CancelFunc
}

// openStream connects to /events/stream on a live test server.
func openStream(t *testing.T, ts *httptest.Server, cookie *http.Cookie) *streamClient {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events/stream", nil)
	require.NoError(t, err)
	if cookie != nil {
		req.AddCookie(cookie)
	}

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)

	sc := &streamClient{resp: resp, reader: bufio.NewReader(resp.Body), cancel: cancel}
	t.Cleanup(sc.close)
	return sc
}

// next reads one SSE frame, without its terminating blank line.
func (sc *streamClient) next(t *testing.T) string {
	t.Helper()
	var lines []string
	for {
		line, err := sc.reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSuffix(line, "\n")
		if line == "" {
			return strings.Join(lines, "\n")
		}
		lines = append(lines, line)
	}
}

func (sc *streamClient) close() {
	sc.cancel()
	_ = sc.resp.Body.Close()
}
