package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/relaygate/relaygate/common/metrics"
)

// Metrics records one RequestsTotal observation per completed request: a
// plain request counter in the usual gin-middleware style, labelled by route
// and response status.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		metrics.RequestsTotal.WithLabelValues(c.FullPath(), strconv.Itoa(c.Writer.Status())).Inc()
	}
}
