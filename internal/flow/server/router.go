package server

import (
	"context"
	"net/http"
	"time"

	"github.com/flowvault-go/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const readinessTimeout = 2 * time.Second

// readinessCheck probes one dependency. Only critical failures make the
// service unready.
type readinessCheck struct {
	name     string
	critical bool
	check    func(ctx context.Context) error
}

func setupRouter(checks []readinessCheck, metricsPath string, log logger.Logger) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(loggingMiddleware(log))

	if metricsPath == "" {
		metricsPath = "/metrics"
	}

	router.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/health/ready", readyHandler(checks))
	router.GET(metricsPath, gin.WrapH(promhttp.Handler()))

	return router
}

func readyHandler(checks []readinessCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
		defer cancel()

		status := "ok"
		code := http.StatusOK
		results := gin.H{}
		for _, rc := range checks {
			if err := rc.check(ctx); err != nil {
				results[rc.name] = err.Error()
				if rc.critical {
					status = "unavailable"
					code = http.StatusServiceUnavailable
				} else if code == http.StatusOK {
					status = "degraded"
				}
				continue
			}
			results[rc.name] = "ok"
		}

		c.JSON(code, gin.H{"status": status, "checks": results})
	}
}

func loggingMiddleware(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.Debug("HTTP Request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}
