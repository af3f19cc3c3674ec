package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sitebeacon/sitebeacon-go/internal/application/services"
	"github.com/sitebeacon/sitebeacon-go/internal/infrastructure/observability/logging"
	"github.com/sitebeacon/sitebeacon-go/internal/infrastructure/observability/performance"
)

// QueryHandlers serves the ad-hoc SQL and schema endpoints for the query UI.
type QueryHandlers struct {
	queryService *services.QueryService
	logger       *logging.ChanneledLogger
	perfTracker  *performance.Tracker
}

// NewQueryHandlers creates query handlers with injected dependencies.
func NewQueryHandlers(queryService *services.QueryService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *QueryHandlers {
	return &QueryHandlers{
		queryService: queryService,
		logger:       logger,
		perfTracker:  perfTracker,
	}
}

type sqlQueryRequest struct {
	Query string `json:"query" binding:"required"`
	Limit int    `json:"limit"`
}

// PostQuery handles POST /api/v1/sites/:tenantId/query. Rejected or failed
// queries come back with success=false in the body and HTTP 200; only tenant
// resolution and actor failures map to error statuses.
func (h *QueryHandlers) PostQuery(c *gin.Context) {
	tenantID := c.Param("tenantId")
	marker := h.perfTracker.StartOperation("run_sql_query", tenantID)
	defer marker.Complete()

	var req sqlQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.queryService.RunSQLQuery(c.Request.Context(), tenantID, req.Query, req.Limit)
	if err != nil {
		marker.SetError(err)
		if errors.Is(err, services.ErrUnknownTenant) {
			respondError(c, http.StatusNotFound, "unknown tenant")
			return
		}
		h.logger.System().Error("Ad-hoc query failed",
			"tenantId", tenantID, "error", err.Error())
		respondError(c, http.StatusInternalServerError, "query failed")
		return
	}

	marker.SetSuccess(result.Success)
	c.JSON(http.StatusOK, result)
}

// GetSchema handles GET /api/v1/sites/:tenantId/schema.
func (h *QueryHandlers) GetSchema(c *gin.Context) {
	tenantID := c.Param("tenantId")
	marker := h.perfTracker.StartOperation("get_schema", tenantID)
	defer marker.Complete()

	result, err := h.queryService.GetSchema(c.Request.Context(), tenantID)
	if err != nil {
		marker.SetError(err)
		if errors.Is(err, services.ErrUnknownTenant) {
			respondError(c, http.StatusNotFound, "unknown tenant")
			return
		}
		h.logger.System().Error("Schema reflection failed",
			"tenantId", tenantID, "error", err.Error())
		respondError(c, http.StatusInternalServerError, "schema reflection failed")
		return
	}

	marker.SetSuccess(true)
	c.JSON(http.StatusOK, result)
}
