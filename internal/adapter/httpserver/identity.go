package httpserver

import (
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/grove/internal/domain"
	apperrors "github.com/pscheid92/grove/internal/platform/errors"
)

const contextKeyUserID = "userID"

// requireIdentity resolves the viewer from the session cookie. Login happens
// elsewhere; this only reads the user id the login flow stored.
func (s *Server) requireIdentity(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		session, err := s.sessionStore.Get(c.Request(), sessionName)
		if err != nil {
			return apperrors.UnauthorizedError("invalid session")
		}

		userID, ok := parseUserID(session.Values[sessionKeyUserID])
		if !ok {
			return apperrors.UnauthorizedError("not signed in")
		}

		c.Set(contextKeyUserID, userID)
		return next(c)
	}
}

func parseUserID(v any) (domain.UserID, bool) {
	switch id := v.(type) {
	case int64:
		return domain.UserID(id), id > 0
	case int:
		return domain.UserID(id), id > 0
	case string:
		n, err := strconv.ParseInt(id, 10, 64)
		return domain.UserID(n), err == nil && n > 0
	default:
		return 0, false
	}
}

func userIDFrom(c echo.Context) (domain.UserID, bool) {
	id, ok := c.Get(contextKeyUserID).(domain.UserID)
	return id, ok
}
