package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/distill/api/handler"
	"github.com/use-agent/distill/api/middleware"
	"github.com/use-agent/distill/cleaner"
	"github.com/use-agent/distill/config"
	"github.com/use-agent/distill/extractor"
	"github.com/use-agent/distill/renderer"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	/parse:  Auth (no-op when no keys are configured)
//
// Health is intentionally outside auth so monitoring probes always work.
func NewRouter(rend *renderer.Renderer, cl *cleaner.Cleaner, ex *extractor.Extractor, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	r.GET("/health", handler.Health(rend, startTime))

	protected := r.Group("")
	protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	protected.POST("/parse", handler.Parse(rend, cl, ex))

	return r
}
