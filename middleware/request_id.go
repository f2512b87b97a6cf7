package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/relaygate/relaygate/common/ctxkey"
)

// RequestId stamps every request with a correlation id, set both as a gin
// context value and a response header — grounded on the teacher's
// middleware/request-id.go.
func RequestId() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.NewString()
		c.Set(ctxkey.RequestId, id)
		c.Header("X-Request-Id", id)
		c.Next()
	}
}
