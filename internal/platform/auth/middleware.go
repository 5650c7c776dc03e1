package auth

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// CookieName carries the admin session token.
const CookieName = "admin_session"

// SessionKey is the echo context key holding the validated Session.
const SessionKey = "admin_session"

// RequireSession rejects requests without a live session cookie.
func RequireSession(s *Sessions) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cookie, err := c.Cookie(CookieName)
			if err != nil || cookie.Value == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			sess, err := s.Validate(c.Request().Context(), cookie.Value)
			if errors.Is(err, ErrSessionInvalid) {
				return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
			}
			if err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, "session lookup failed")
			}
			c.Set(SessionKey, sess)
			return next(c)
		}
	}
}

// SessionFromContext returns the session stored by RequireSession.
func SessionFromContext(c echo.Context) (Session, bool) {
	sess, ok := c.Get(SessionKey).(Session)
	return sess, ok
}
