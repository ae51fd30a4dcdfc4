package apicache

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mal33k-eden/pms-agent-api/internal/platform/db"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(admin *echo.Group) {
	admin.POST("/cache/purge", h.PurgeExpired)
	admin.DELETE("/cache/:key", h.DeleteEntry)
}

func (h *Handler) PurgeExpired(c echo.Context) error {
	purged, err := h.svc.PurgeExpired(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]int64{"purged": purged})
}

func (h *Handler) DeleteEntry(c echo.Context) error {
	if err := h.svc.Delete(c.Request().Context(), c.Param("key")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func httpError(err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	switch {
	case errors.Is(err, db.ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, db.ErrUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "datastore unavailable")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
