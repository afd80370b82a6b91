package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// NewRouter returns a gin engine with all routes installed.
func NewRouter(config *Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(config))
	SetupRoutes(r, config)
	return r
}

// SetupRoutes installs the health check and the watermark removal endpoint.
func SetupRoutes(r *gin.Engine, config *Config) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "pdfwatermark",
		})
	})

	apiGroup := r.Group("/api")
	{
		apiGroup.POST("/remove-watermark", func(c *gin.Context) { HandleRemoveWatermark(c, config) })
	}
}

// requestLogger logs one line per request.
func requestLogger(config *Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		config.Logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Str("client", c.ClientIP()).
			Msg("request")
	}
}
