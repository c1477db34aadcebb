package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chambridge/capacity-stats/api/handlers"
	"github.com/chambridge/capacity-stats/internal/config"
	"github.com/chambridge/capacity-stats/internal/processor"
)

// SetupRouter wires the stats endpoints. districts may be nil, in which case
// the upload endpoint answers 503.
func SetupRouter(reporter handlers.Reporter, districts processor.DistrictWriter, cfg *config.Config, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	opts := cfg.Options()
	api := r.Group("/api")
	{
		api.POST("/ingress/v1/districts", handlers.DistrictsUploadHandler(districts, logger.Named("import")))
		api.GET("/stats/v1/report", handlers.ReportHandler(reporter, opts))
		api.GET("/stats/v1/profiles", handlers.ProfilesHandler(reporter, opts))
		api.GET("/stats/v1/capacity", handlers.CapacityHandler(reporter, opts, cfg.Threshold, cfg.Profile))
	}

	return r
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.String("peer", c.ClientIP()),
			zap.Duration("duration", time.Since(start)),
		}
		if len(c.Errors) > 0 || c.Writer.Status() >= 500 {
			logger.Warn("request failed", append(fields, zap.String("errors", c.Errors.String()))...)
			return
		}
		logger.Debug("request completed", fields...)
	}
}
