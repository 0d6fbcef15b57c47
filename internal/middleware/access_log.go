package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oxedro/erp-client/internal/metrics"
	"github.com/rs/zerolog"
)

// AccessLog logs each request through the request-scoped logger and records
// its latency. Routes are labelled by pattern, never by raw path.
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		latency := time.Since(start)
		metrics.ObserveRequest(route, status, latency)

		log := zerolog.Ctx(c.Request.Context())
		evt := log.Info()
		if status >= 500 {
			evt = log.Error()
		}
		evt.Str("method", c.Request.Method).
			Str("route", route).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Msg("Request handled")
	}
}
