package controller

import (
	"github.com/gin-gonic/gin"

	"github.com/relaygate/relaygate/common/ctxkey"
	"github.com/relaygate/relaygate/model"
	rmodel "github.com/relaygate/relaygate/relay/model"
)

// GeminiMessages serves POST /v1/gemini/messages: the Claude dialect forced
// onto the Gemini channel regardless of the requested model's exclusivity
// mapping, for clients that want Gemini specifically (spec §6).
func (app *AppContext) GeminiMessages(c *gin.Context) {
	var req rmodel.ClaudeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, rmodel.WrapError(rmodel.KindBadRequest, err, "invalid request body"))
		return
	}

	c.Set(ctxkey.RequestModel, req.Model)
	c.Set(ctxkey.Channel, model.AccountTypeGemini)

	account, err := app.resolveGeminiAccount(c, req.Model)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Set(ctxkey.Account, account)

	app.streamClaude(c, model.AccountTypeGemini, account, &req)
}
