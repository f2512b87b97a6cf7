package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/relaygate/relaygate/common/logger"
)

// Recover turns a panic in any handler into a 500 JSON error instead of
// crashing the process — grounded on the teacher's
// middleware/recover.go RelayPanicRecover.
func Recover() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Logger.Error("panic detected",
					zap.Any("panic", r),
					zap.String("stacktrace", string(debug.Stack())),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path))
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": gin.H{"type": "internal_error", "message": "internal server error"},
				})
				c.Abort()
			}
		}()
		c.Next()
	}
}
