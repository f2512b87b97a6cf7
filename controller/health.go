package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/relaygate/relaygate/model"
)

// Health serves GET /health: readiness is defined as having at least one
// enabled account on either channel (spec §6).
func (app *AppContext) Health(c *gin.Context) {
	cwCount, cwErr := countEnabledAccounts(model.AccountTypeCodeWhisperer)
	geminiCount, geminiErr := countEnabledAccounts(model.AccountTypeGemini)
	if cwErr != nil || geminiErr != nil {
		c.JSON(http.StatusOK, gin.H{"status": "degraded", "error": "account store unavailable"})
		return
	}

	status := "ok"
	if cwCount == 0 && geminiCount == 0 {
		status = "unavailable"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":              status,
		"codewhispererAccounts": cwCount,
		"geminiAccounts":        geminiCount,
	})
}

func countEnabledAccounts(accountType string) (int, error) {
	accounts, err := model.ListAccounts(model.AccountFilter{Type: accountType})
	if err != nil {
		return 0, err
	}
	return len(accounts), nil
}
