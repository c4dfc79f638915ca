package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/valyc0/fraudM/internal/observability"
)

const (
	metricsPath        = "/metrics"
	unmatchedRoute     = "unmatched"
	unmatchedRuleRoute = "/rules/unmatched"
)

// Metrics records request count and latency per rules route template, so a
// rule id never becomes a label value. Scrapes of /metrics are not counted.
func Metrics(m *observability.Metrics) gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		if c.Request.URL.Path == metricsPath {
			c.Next()
			return
		}
		start := time.Now()
		m.ApiInflightInc()
		defer m.ApiInflightDec()

		c.Next()

		m.ObserveAPI(c.Request.Method, routeLabel(c), observability.StatusLabel(c.Writer.Status()), time.Since(start))
	}
}

// routeLabel is the matched template (/rules/:id/deploy). Unmatched paths
// collapse to a fixed value to keep label cardinality bounded.
func routeLabel(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	if p := c.Request.URL.Path; p == "/rules" || strings.HasPrefix(p, "/rules/") {
		return unmatchedRuleRoute
	}
	return unmatchedRoute
}
