package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	rmodel "github.com/relaygate/relaygate/relay/model"
)

// writeError renders err as the gateway's standard JSON error envelope,
// unwrapping an ErrorWithStatusCode for its Kind/StatusCode when present and
// falling back to 500 otherwise (spec §7 propagation policy).
func writeError(c *gin.Context, err error) {
	var withStatus *rmodel.ErrorWithStatusCode
	if errors.As(err, &withStatus) {
		c.JSON(withStatus.StatusCode, gin.H{
			"error": gin.H{"type": string(withStatus.Kind), "message": withStatus.Message},
		})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": gin.H{"type": "internal_error", "message": err.Error()},
	})
}
