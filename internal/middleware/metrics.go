package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/convalidation-api/internal/service"
	applog "github.com/noah-isme/convalidation-api/pkg/logger"
)

// unmatchedRoute labels requests that hit no registered route.
const unmatchedRoute = "unmatched"

// Metrics returns middleware that records request metrics and logs slow or failing requests.
func Metrics(metricsSvc *service.MetricsService, logger *zap.Logger, slow time.Duration) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)
		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = unmatchedRoute
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, status, duration)

		if status >= 500 || (slow > 0 && duration > slow) {
			applog.FromContext(c, logger).Warn("request",
				zap.String("method", c.Request.Method),
				zap.String("path", path),
				zap.String("status", strconv.Itoa(status)),
				zap.Duration("duration", duration),
			)
		}
	}
}
