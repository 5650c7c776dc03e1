package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Handler serves staff login and logout.
type Handler struct {
	verifier *PasswordVerifier
	sessions *Sessions
	secure   bool
	logger   zerolog.Logger
}

// NewHandler builds the login routes. secure marks the cookie Secure and
// should be set in production.
func NewHandler(verifier *PasswordVerifier, sessions *Sessions, secure bool, logger zerolog.Logger) *Handler {
	return &Handler{
		verifier: verifier,
		sessions: sessions,
		secure:   secure,
		logger:   logger.With().Str("component", "auth").Logger(),
	}
}

// RegisterRoutes mounts login on public and logout on admin.
func (h *Handler) RegisterRoutes(public, admin *echo.Group) {
	public.POST("/admin/login", h.Login)
	admin.POST("/admin/logout", h.Logout)
}

type loginRequest struct {
	Password string `json:"password"`
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "password is required")
	}

	err := h.verifier.Verify(req.Password)
	switch {
	case errors.Is(err, ErrNotConfigured):
		h.logger.Error().Msg("login attempted without ADMIN_PASSWORD_HASH")
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	case errors.Is(err, ErrInvalidCredentials):
		h.logger.Warn().Str("ip", c.RealIP()).Msg("failed admin login")
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case err != nil:
		h.logger.Error().Err(err).Msg("verify password")
		return echo.NewHTTPError(http.StatusInternalServerError, "login failed")
	}

	token, sess, err := h.sessions.Issue(c.Request().Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("issue session")
		return echo.NewHTTPError(http.StatusInternalServerError, "login failed")
	}
	c.SetCookie(h.cookie(token, int(h.sessions.TTL()/time.Second)))
	h.logger.Info().Str("session_id", sess.ID).Str("ip", c.RealIP()).Msg("admin login")

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":   true,
		"expiresAt": sess.ExpiresAt.UTC(),
	})
}

func (h *Handler) Logout(c echo.Context) error {
	if cookie, err := c.Cookie(CookieName); err == nil && cookie.Value != "" {
		if err := h.sessions.Revoke(c.Request().Context(), cookie.Value); err != nil {
			h.logger.Error().Err(err).Msg("revoke session")
			return echo.NewHTTPError(http.StatusInternalServerError, "logout failed")
		}
	}
	c.SetCookie(h.cookie("", -1))
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true})
}

func (h *Handler) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteStrictMode,
	}
}
