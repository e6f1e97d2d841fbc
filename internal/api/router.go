package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"coachsim/internal/api/middleware"
	"coachsim/internal/metrics"
)

// NewRouter builds the Gin engine with the ambient middleware chain and the
// health/metrics endpoints. dbAvailable reports the outcome of the startup
// readiness check; the service serves traffic either way.
func NewRouter(logger *slog.Logger, dbAvailable func() bool) *gin.Engine {
	router := gin.New()
	router.Use(
		middleware.CorrelationIDMiddleware(),
		middleware.SlogLoggerMiddleware(logger),
		metrics.GinMiddleware(),
		gin.Recovery(),
	)

	router.GET("/health", func(c *gin.Context) {
		status := "ok"
		if dbAvailable != nil && !dbAvailable() {
			status = "degraded"
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   status,
			"database": dbAvailable == nil || dbAvailable(),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}
