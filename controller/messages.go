package controller

import (
	"net/http"

	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/relaygate/relaygate/common/ctxkey"
	"github.com/relaygate/relaygate/common/logger"
	"github.com/relaygate/relaygate/model"
	rmodel "github.com/relaygate/relaygate/relay/model"
	"github.com/relaygate/relaygate/relay/translator"
)

// Messages serves POST /v1/messages: the Claude dialect, always streamed
// over SSE via ClaudeSink regardless of the request's stream flag, since the
// public Claude surface is streaming-only on this gateway (spec §4.8).
func (app *AppContext) Messages(c *gin.Context) {
	var req rmodel.ClaudeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, rmodel.WrapError(rmodel.KindBadRequest, err, "invalid request body"))
		return
	}

	c.Set(ctxkey.RequestModel, req.Model)

	channel, account, err := app.resolveAccount(c, req.Model)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Set(ctxkey.Channel, channel)
	c.Set(ctxkey.Account, account)

	app.streamClaude(c, channel, account, &req)
}

// streamClaude drives one request end to end: pick the wire model id,
// estimate input tokens, open the upstream stream and pump it through the
// Response Translator FSM into a ClaudeSink (spec §4.5 - §4.7).
func (app *AppContext) streamClaude(c *gin.Context, channel string, account *model.Account, req *rmodel.ClaudeRequest) {
	requestId, _ := c.Get(ctxkey.RequestId)
	conversationId := newConversationId()

	inputTokens := estimateInputTokens(wireModelFor(channel, req.Model), req)

	build := buildBody(channel, req, conversationId, requestIdString(requestId), c.Request.UserAgent())
	result, err := app.Upstream.Stream(c.Request.Context(), channel, req.Model, account, build)
	if err != nil {
		writeError(c, err)
		return
	}
	defer result.Body.Close()

	c.Status(http.StatusOK)
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Flush()

	sink := translator.NewClaudeSink(c.Writer, "msg_"+conversationId)
	fsm := translator.NewResponseFSM(sink, req.Model, inputTokens)

	if err := pumpStream(c.Request.Context(), channel, result.Body, fsm); err != nil {
		logger.Logger.Error("stream pump failed",
			zap.String("channel", channel), zap.Error(err))
		_ = fsm.Abort(err.Error())
	}
}

func estimateInputTokens(modelID string, req *rmodel.ClaudeRequest) int {
	texts := make([]string, 0, len(req.Messages)+1)
	for _, m := range req.Messages {
		texts = append(texts, m.TextOnly())
	}
	tools := make([]string, 0, len(req.Tools))
	for _, t := range req.Tools {
		tools = append(tools, t.Name+t.Description+string(t.InputSchema))
	}
	return translator.EstimateInputTokens(modelID, req.System, texts, tools)
}

func requestIdString(v any) string {
	s, _ := v.(string)
	return s
}
