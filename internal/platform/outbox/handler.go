package outbox

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/redmonddental/intake/pkg/pagination"
)

// Handler exposes task inspection and retry to administrators.
type Handler struct {
	d *Dispatcher
}

func NewHandler(d *Dispatcher) *Handler {
	return &Handler{d: d}
}

// RegisterRoutes mounts the routes on a group that already requires an
// admin session.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/outbox", h.List)
	g.GET("/outbox/stats", h.Stats)
	g.POST("/outbox/:id/retry", h.Retry)
}

func (h *Handler) List(c echo.Context) error {
	status := Status(c.QueryParam("status"))
	switch status {
	case "", StatusPending, StatusSent, StatusFailed, StatusSkipped:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "invalid status filter")
	}

	p := pagination.FromContext(c)
	tasks, total, err := h.d.List(c.Request().Context(), status, p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if tasks == nil {
		tasks = []*Task{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(tasks, total, p.Limit, p.Offset))
}

func (h *Handler) Stats(c echo.Context) error {
	stats, err := h.d.Stats(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"stats":   stats,
	})
}

func (h *Handler) Retry(c echo.Context) error {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	t, err := h.d.Retry(c.Request().Context(), id)
	switch {
	case errors.Is(err, ErrTaskNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "task not found")
	case errors.Is(err, ErrNotRetryable):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrClosed):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"success": true,
		"task":    t,
	})
}
