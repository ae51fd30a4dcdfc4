package enrich

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/mal33k-eden/pms-agent-api/internal/domain/drug"
	"github.com/mal33k-eden/pms-agent-api/internal/platform/db"
)

// SafetyResponse is the public assessment payload. Confidence is reported
// as a coarse label rather than the stored score.
type SafetyResponse struct {
	DrugName            string    `json:"drug_name"`
	GenericName         *string   `json:"generic_name"`
	PregnancyCategory   *string   `json:"pregnancy_category"`
	PregnancySafety     string    `json:"pregnancy_safety"`
	BreastfeedingSafety string    `json:"breastfeeding_safety"`
	Recommendations     *string   `json:"recommendations"`
	Warnings            []string  `json:"warnings"`
	Confidence          string    `json:"confidence"`
	StudyCount          int       `json:"study_count"`
	DataSource          string    `json:"data_source"`
	FetchedAt           time.Time `json:"fetched_at"`
	ExpiresAt           time.Time `json:"expires_at"`
}

func newSafetyResponse(d *drug.Drug, sd *drug.SafetyData) *SafetyResponse {
	warnings := sd.KeyWarnings
	if warnings == nil {
		warnings = []string{}
	}
	return &SafetyResponse{
		DrugName:            d.Name,
		GenericName:         d.GenericName,
		PregnancyCategory:   sd.PregnancyCategory,
		PregnancySafety:     sd.PregnancySafety,
		BreastfeedingSafety: sd.BreastfeedingSafety,
		Recommendations:     sd.AISummary,
		Warnings:            warnings,
		Confidence:          confidenceLabel(sd.ConfidenceScore),
		StudyCount:          sd.StudyCount,
		DataSource:          sd.DataSource,
		FetchedAt:           sd.FetchedAt,
		ExpiresAt:           sd.ExpiresAt,
	}
}

func confidenceLabel(score float64) string {
	switch {
	case score >= 0.7:
		return "high"
	case score >= 0.3:
		return "moderate"
	}
	return "low"
}

type Handler struct {
	enricher *Enricher
	drugs    DrugStore
	queue    QueueStore
	logger   zerolog.Logger
}

func NewHandler(enricher *Enricher, drugs DrugStore, queue QueueStore, logger zerolog.Logger) *Handler {
	return &Handler{
		enricher: enricher,
		drugs:    drugs,
		queue:    queue,
		logger:   logger.With().Str("component", "safety").Logger(),
	}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/drugs/:name/safety", h.GetSafety)
	api.POST("/drugs/:name/safety/async", h.EnqueueEnrichment)
}

// GetSafety serves the assessment for a drug. Stored data answers the
// request while it is fresh; otherwise the sources are consulted
// synchronously and the new assessment is recorded before responding.
//
//	?enhanced=true  consult DailyMed and PubMed in addition to the FDA label
//	?refresh=true   ignore stored data and fetch anew
func (h *Handler) GetSafety(c echo.Context) error {
	ctx := c.Request().Context()
	name := strings.TrimSpace(c.Param("name"))
	if name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "drug name is required")
	}

	mode := ModeBasic
	if queryBool(c, "enhanced") {
		mode = ModeEnhanced
	}

	if !queryBool(c, "refresh") {
		resp, err := h.fromStore(ctx, name, mode)
		if err != nil {
			return httpError(err)
		}
		if resp != nil {
			return c.JSON(http.StatusOK, resp)
		}
	}

	result, err := h.enricher.Enrich(ctx, name, mode)
	if errors.Is(err, ErrUpstream) {
		h.logSearch(ctx, name, nil, false)
		return echo.NewHTTPError(http.StatusBadGateway, "drug data sources are currently unavailable")
	}
	if err != nil {
		return httpError(err)
	}
	h.logSearch(ctx, name, &result.Drug.ID, len(result.SourcesUsed) > 0)
	return c.JSON(http.StatusOK, newSafetyResponse(result.Drug, result.Safety))
}

// fromStore answers the lookup from recorded data when a servable fresh row
// exists. A nil response with nil error means the caller must enrich.
func (h *Handler) fromStore(ctx context.Context, name string, mode Mode) (*SafetyResponse, error) {
	d, err := h.drugs.FindByName(ctx, name)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sd, err := h.drugs.FreshSafety(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	if sd == nil || !servable(sd, mode) {
		return nil, nil
	}
	h.logSearch(ctx, name, &d.ID, true)
	return newSafetyResponse(d, sd), nil
}

// servable reports whether a stored row satisfies the requested mode. Basic
// lookups accept any fresh row, including manually seeded ones; enhanced
// lookups insist on multi-source data.
func servable(sd *drug.SafetyData, mode Mode) bool {
	if mode == ModeEnhanced {
		return sd.DataSource == drug.SourceEnhanced
	}
	return true
}

type enqueueRequest struct {
	Priority int `json:"priority"`
}

// EnqueueEnrichment schedules a background enhanced enrichment instead of
// blocking the caller on upstream fetches.
func (h *Handler) EnqueueEnrichment(c echo.Context) error {
	var req enqueueRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	item, err := h.queue.Enqueue(c.Request().Context(), c.Param("name"), req.Priority)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusAccepted, item)
}

// logSearch appends to the search log. Logging never fails a lookup.
func (h *Handler) logSearch(ctx context.Context, term string, drugID *uuid.UUID, found bool) {
	if err := h.drugs.LogSearch(ctx, term, drugID, found); err != nil {
		h.logger.Warn().Err(err).Str("term", term).Msg("search log append failed")
	}
}

func queryBool(c echo.Context, name string) bool {
	v, err := strconv.ParseBool(c.QueryParam(name))
	return err == nil && v
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
	case errors.Is(err, ErrUpstream):
		return echo.NewHTTPError(http.StatusBadGateway, "drug data sources are currently unavailable")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
