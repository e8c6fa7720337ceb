package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/distill/models"
)

// PageCounter reports how many page contexts are currently open.
type PageCounter interface {
	ActivePages() int
}

// Health returns the handler for GET /health.
func Health(pages PageCounter, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, models.HealthResponse{
			Status:      "healthy",
			Uptime:      time.Since(startTime).Round(time.Second).String(),
			ActivePages: pages.ActivePages(),
			Version:     "0.1.0",
		})
	}
}
