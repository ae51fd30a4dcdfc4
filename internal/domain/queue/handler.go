package queue

import (
	"errors"
	"net/http"

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

func (h *Handler) RegisterRoutes(admin *echo.Group) {
	admin.POST("/queue", h.Enqueue)
	admin.GET("/queue", h.ListItems)
	admin.GET("/queue/stats", h.Stats)
}

type enqueueRequest struct {
	DrugName string `json:"drug_name"`
	Priority int    `json:"priority"`
}

func (h *Handler) Enqueue(c echo.Context) error {
	var req enqueueRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	item, err := h.svc.Enqueue(c.Request().Context(), req.DrugName, req.Priority)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusAccepted, item)
}

func (h *Handler) ListItems(c echo.Context) error {
	p := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), c.QueryParam("status"), p.Limit, p.Offset)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*Item{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p.Limit, p.Offset))
}

func (h *Handler) Stats(c echo.Context) error {
	counts, err := h.svc.Counts(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, counts)
}

func httpError(err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	switch {
	case errors.Is(err, db.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "queue item not found")
	case errors.Is(err, db.ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, db.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, db.ErrUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "datastore unavailable")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
