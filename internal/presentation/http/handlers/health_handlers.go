package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sitebeacon/sitebeacon-go/internal/application/container"
	"github.com/sitebeacon/sitebeacon-go/internal/application/services"
	"github.com/sitebeacon/sitebeacon-go/internal/infrastructure/tenant"
)

// HealthHandlers serves the process and per-tenant health surfaces.
type HealthHandlers struct {
	container *container.Container
}

// NewHealthHandlers creates health handlers over the full container.
func NewHealthHandlers(c *container.Container) *HealthHandlers {
	return &HealthHandlers{container: c}
}

// GetSystemHealth handles GET /health.
func (h *HealthHandlers) GetSystemHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"uptime":        h.container.PerfTracker.Uptime().String(),
		"activeTenants": h.container.TenantManager.GetActiveTenantCount(),
		"actors":        h.container.ActorRegistry.Count(),
		"pools":         tenant.GetPoolStats(),
	})
}

// GetTenantHealth handles GET /api/v1/sites/:tenantId/health.
func (h *HealthHandlers) GetTenantHealth(c *gin.Context) {
	tenantID := c.Param("tenantId")

	result, err := h.container.QueryService.HealthCheck(c.Request.Context(), tenantID)
	if err != nil {
		if errors.Is(err, services.ErrUnknownTenant) {
			respondError(c, http.StatusNotFound, "unknown tenant")
			return
		}
		h.container.Logger.System().Error("Tenant health check failed",
			"tenantId", tenantID, "error", err.Error())
		respondError(c, http.StatusServiceUnavailable, "health check failed")
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetPerformanceStats handles GET /api/v1/ops/performance.
func (h *HealthHandlers) GetPerformanceStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"uptime":     h.container.PerfTracker.Uptime().String(),
		"operations": h.container.PerfTracker.GetStats(),
	})
}
