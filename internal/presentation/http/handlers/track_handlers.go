package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sitebeacon/sitebeacon-go/internal/application/services"
	"github.com/sitebeacon/sitebeacon-go/internal/domain/analytics"
	"github.com/sitebeacon/sitebeacon-go/internal/infrastructure/observability/logging"
	"github.com/sitebeacon/sitebeacon-go/internal/infrastructure/observability/performance"
)

// TrackHandlers serves the public tracking endpoint.
type TrackHandlers struct {
	ingestionService *services.IngestionService
	logger           *logging.ChanneledLogger
	perfTracker      *performance.Tracker
}

// NewTrackHandlers creates track handlers with injected dependencies.
func NewTrackHandlers(ingestionService *services.IngestionService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *TrackHandlers {
	return &TrackHandlers{
		ingestionService: ingestionService,
		logger:           logger,
		perfTracker:      perfTracker,
	}
}

// PostTrack handles POST /track?account=<tagId>&platform=<web|tv>.
// The client IP is read here for visitor hashing only; it never reaches a
// log line or the database.
func (h *TrackHandlers) PostTrack(c *gin.Context) {
	tagID := c.Query("account")
	if tagID == "" {
		respondError(c, http.StatusBadRequest, "missing account parameter")
		return
	}

	platform := c.Query("platform")
	if platform == "" {
		platform = analytics.PlatformWeb
	}
	if platform != analytics.PlatformWeb && platform != analytics.PlatformTV {
		respondError(c, http.StatusBadRequest, "unsupported platform")
		return
	}

	var payload analytics.TrackPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.ingestionService.Track(
		c.Request.Context(),
		tagID,
		platform,
		c.Request.UserAgent(),
		c.ClientIP(),
		&payload,
	)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUnknownTag):
			respondError(c, http.StatusNotFound, "unknown account")
		case errors.Is(err, services.ErrTrackingDisabled):
			respondError(c, http.StatusNotFound, "tracking disabled")
		case errors.Is(err, analytics.ErrMissingEvent):
			respondError(c, http.StatusBadRequest, "missing event name")
		default:
			h.logger.Ingest().Error("Track request failed",
				"tagId", tagID, "error", err.Error())
			respondError(c, http.StatusInternalServerError, "failed to process event")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"error":  nil,
		"status": http.StatusOK,
		"rid":    result.RID,
		"queued": result.Queued,
	})
}
