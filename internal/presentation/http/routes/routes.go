// Package routes provides HTTP route configuration for the presentation layer.
package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/sitebeacon/sitebeacon-go/internal/application/container"
	"github.com/sitebeacon/sitebeacon-go/internal/presentation/http/handlers"
	"github.com/sitebeacon/sitebeacon-go/internal/presentation/http/middleware"
)

// SetupRoutes configures all HTTP routes and middleware with dependency injection.
func SetupRoutes(container *container.Container) *gin.Engine {
	r := gin.Default()

	r.Use(middleware.CORSMiddleware())

	// Initialize handlers
	trackHandlers := handlers.NewTrackHandlers(container.IngestionService, container.Logger, container.PerfTracker)
	analyticsHandlers := handlers.NewAnalyticsHandlers(container.QueryService, container.Logger, container.PerfTracker)
	queryHandlers := handlers.NewQueryHandlers(container.QueryService, container.Logger, container.PerfTracker)
	healthHandlers := handlers.NewHealthHandlers(container)

	// Public tracking surface
	r.POST("/track", trackHandlers.PostTrack)

	// Process health
	r.GET("/health", healthHandlers.GetSystemHealth)

	// Dashboard API
	api := r.Group("/api/v1")
	{
		sites := api.Group("/sites/:tenantId")
		{
			sites.GET("/aggregates", analyticsHandlers.GetAggregates)
			sites.GET("/events/summary", analyticsHandlers.GetEventSummary)
			sites.GET("/visitors", analyticsHandlers.GetCurrentVisitors)
			sites.POST("/query", queryHandlers.PostQuery)
			sites.GET("/schema", queryHandlers.GetSchema)
			sites.GET("/health", healthHandlers.GetTenantHealth)
		}

		api.GET("/ops/performance", healthHandlers.GetPerformanceStats)
	}

	return r
}
