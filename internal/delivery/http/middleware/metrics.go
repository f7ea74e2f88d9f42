package middleware

import (
	"time"

	"shramsaathi-backend/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// Metrics records latency and status per matched route.
func Metrics(collector *metrics.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		collector.ObserveHTTP(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
