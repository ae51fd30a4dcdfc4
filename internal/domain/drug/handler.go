package drug

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mal33k-eden/pms-agent-api/internal/platform/db"
	"github.com/mal33k-eden/pms-agent-api/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group, admin *echo.Group) {
	// Catalog endpoints are anonymous.
	api.GET("/drugs", h.ListDrugs)
	api.GET("/drugs/:name", h.GetDrug)
	api.GET("/drugs/:name/history", h.GetSafetyHistory)

	// Management endpoints require an authenticated admin.
	admin.DELETE("/drugs/:name", h.DeleteDrug)
	admin.GET("/searches", h.RecentSearches)
}

// -- Handlers --

func (h *Handler) ListDrugs(c echo.Context) error {
	p := pagination.FromContext(c)
	drugs, total, err := h.svc.ListDrugs(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return httpError(err)
	}
	if drugs == nil {
		drugs = []*Drug{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(drugs, total, p.Limit, p.Offset))
}

func (h *Handler) GetDrug(c echo.Context) error {
	d, err := h.resolve(c.Request().Context(), c.Param("name"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) GetSafetyHistory(c echo.Context) error {
	ctx := c.Request().Context()
	d, err := h.resolve(ctx, c.Param("name"))
	if err != nil {
		return httpError(err)
	}
	p := pagination.FromContext(c)
	history, total, err := h.svc.History(ctx, d.ID, p.Limit, p.Offset)
	if err != nil {
		return httpError(err)
	}
	if history == nil {
		history = []*SafetyData{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(history, total, p.Limit, p.Offset))
}

func (h *Handler) DeleteDrug(c echo.Context) error {
	ctx := c.Request().Context()
	d, err := h.resolve(ctx, c.Param("name"))
	if err != nil {
		return httpError(err)
	}
	if err := h.svc.DeleteDrug(ctx, d.ID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) RecentSearches(c echo.Context) error {
	p := pagination.FromContext(c)
	recs, total, err := h.svc.RecentSearches(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return httpError(err)
	}
	if recs == nil {
		recs = []*SearchRecord{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(recs, total, p.Limit, p.Offset))
}

// resolve accepts either a drug UUID or a drug name in the path segment.
func (h *Handler) resolve(ctx context.Context, param string) (*Drug, error) {
	if id, err := uuid.Parse(param); err == nil {
		return h.svc.GetDrug(ctx, id)
	}
	return h.svc.FindByName(ctx, param)
}

func httpError(err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	switch {
	case errors.Is(err, db.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "drug not found")
	case errors.Is(err, db.ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, db.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, db.ErrUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "datastore unavailable")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
