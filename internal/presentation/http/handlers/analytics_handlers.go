package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sitebeacon/sitebeacon-go/internal/application/services"
	"github.com/sitebeacon/sitebeacon-go/internal/domain/analytics"
	"github.com/sitebeacon/sitebeacon-go/internal/infrastructure/observability/logging"
	"github.com/sitebeacon/sitebeacon-go/internal/infrastructure/observability/performance"
)

// AnalyticsHandlers serves the dashboard aggregate and summary endpoints.
type AnalyticsHandlers struct {
	queryService *services.QueryService
	logger       *logging.ChanneledLogger
	perfTracker  *performance.Tracker
}

// NewAnalyticsHandlers creates analytics handlers with injected dependencies.
func NewAnalyticsHandlers(queryService *services.QueryService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *AnalyticsHandlers {
	return &AnalyticsHandlers{
		queryService: queryService,
		logger:       logger,
		perfTracker:  perfTracker,
	}
}

// GetAggregates handles GET /api/v1/sites/:tenantId/aggregates.
func (h *AnalyticsHandlers) GetAggregates(c *gin.Context) {
	tenantID := c.Param("tenantId")
	marker := h.perfTracker.StartOperation("get_aggregates", tenantID)
	defer marker.Complete()

	filters := parseAggregateFilters(c)
	result, err := h.queryService.AggregateAll(c.Request.Context(), tenantID, filters)
	if err != nil {
		marker.SetError(err)
		h.respondQueryError(c, tenantID, "aggregates", err)
		return
	}

	marker.SetSuccess(true)
	c.JSON(http.StatusOK, result)
}

// GetEventSummary handles GET /api/v1/sites/:tenantId/events/summary.
func (h *AnalyticsHandlers) GetEventSummary(c *gin.Context) {
	tenantID := c.Param("tenantId")
	marker := h.perfTracker.StartOperation("get_event_summary", tenantID)
	defer marker.Complete()

	filters := &analytics.SummaryFilters{
		AggregateFilters: *parseAggregateFilters(c),
		Limit:            queryInt(c, "limit", 0),
		Offset:           queryInt(c, "offset", 0),
		Search:           c.Query("search"),
		Type:             c.Query("type"),
		Action:           c.Query("action"),
		SortBy:           c.Query("sortBy"),
		SortDirection:    c.Query("sortDirection"),
	}

	result, err := h.queryService.EventSummary(c.Request.Context(), tenantID, filters)
	if err != nil {
		marker.SetError(err)
		h.respondQueryError(c, tenantID, "event summary", err)
		return
	}

	marker.SetSuccess(true)
	c.JSON(http.StatusOK, result)
}

// GetCurrentVisitors handles GET /api/v1/sites/:tenantId/visitors.
func (h *AnalyticsHandlers) GetCurrentVisitors(c *gin.Context) {
	tenantID := c.Param("tenantId")
	marker := h.perfTracker.StartOperation("get_current_visitors", tenantID)
	defer marker.Complete()

	result, err := h.queryService.CurrentVisitors(c.Request.Context(), tenantID)
	if err != nil {
		marker.SetError(err)
		h.respondQueryError(c, tenantID, "current visitors", err)
		return
	}

	marker.SetSuccess(true)
	c.JSON(http.StatusOK, result)
}

func (h *AnalyticsHandlers) respondQueryError(c *gin.Context, tenantID, operation string, err error) {
	if errors.Is(err, services.ErrUnknownTenant) {
		respondError(c, http.StatusNotFound, "unknown tenant")
		return
	}
	h.logger.System().Error("Dashboard query failed",
		"tenantId", tenantID, "operation", operation, "error", err.Error())
	respondError(c, http.StatusInternalServerError, "query failed")
}

// parseAggregateFilters reads the shared filter query parameters. Dates
// accept either a bare date or a full RFC3339 instant; a bare end date
// extends to end-of-day in the requested timezone.
func parseAggregateFilters(c *gin.Context) *analytics.AggregateFilters {
	filters := &analytics.AggregateFilters{
		Timezone:   c.Query("timezone"),
		DeviceType: c.Query("deviceType"),
		Country:    c.Query("country"),
		Source:     c.Query("source"),
		PageURL:    c.Query("pageUrl"),
		City:       c.Query("city"),
		Region:     c.Query("region"),
		Event:      c.Query("event"),
	}

	if t, _, ok := parseDateParam(c.Query("startDate")); ok {
		filters.StartDate = &t
	}
	if t, exact, ok := parseDateParam(c.Query("endDate")); ok {
		filters.EndDate = &t
		filters.EndIsExact = exact
	}

	return filters
}

func parseDateParam(value string) (t time.Time, exact bool, ok bool) {
	if value == "" {
		return time.Time{}, false, false
	}
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return parsed, true, true
	}
	if parsed, err := time.Parse("2006-01-02", value); err == nil {
		return parsed, false, true
	}
	return time.Time{}, false, false
}

func queryInt(c *gin.Context, key string, defaultValue int) int {
	raw := c.Query(key)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return value
}
