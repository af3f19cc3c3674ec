// Package handlers contains the gin HTTP handlers for the tracking and
// dashboard surfaces.
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/sitebeacon/sitebeacon-go/internal/infrastructure/security"
)

// respondError emits the dashboard error shape with a fresh request id so a
// failure can be found in the logs without exposing internals to the caller.
func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"error":     message,
		"status":    status,
		"requestId": security.GenerateULID(),
	})
}
