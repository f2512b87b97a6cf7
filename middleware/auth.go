package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/relaygate/relaygate/common/config"
	"github.com/relaygate/relaygate/common/ctxkey"
)

// ClientAuth enforces the optional x-api-key shared secret on the chat
// surface (spec §6 "Headers honoured on chat endpoints"); an empty API_KEY
// leaves the surface open. It also forwards X-Account-ID into the request
// context so the chat handlers can honour a forced account for testing,
// bypassing the Router (spec §9 Open Questions).
func ClientAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if config.APIKey != "" && c.GetHeader("x-api-key") != config.APIKey {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"type": "authentication_error", "message": "invalid or missing x-api-key"},
			})
			c.Abort()
			return
		}
		if forced := c.GetHeader("X-Account-ID"); forced != "" {
			c.Set(ctxkey.ForcedAccountId, forced)
		}
		c.Next()
	}
}

// AdminAuth enforces the optional X-Admin-Key shared secret on the
// /v2/accounts* admin surface; an empty ADMIN_KEY leaves it open for local
// development.
func AdminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if config.AdminKey != "" && c.GetHeader("X-Admin-Key") != config.AdminKey {
			c.JSON(http.StatusForbidden, gin.H{
				"error": gin.H{"type": "forbidden", "message": "invalid or missing X-Admin-Key"},
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
