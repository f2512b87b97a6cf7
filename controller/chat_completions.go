package controller

import (
	"net/http"
	"time"

	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/relaygate/relaygate/common/ctxkey"
	"github.com/relaygate/relaygate/common/logger"
	"github.com/relaygate/relaygate/model"
	rmodel "github.com/relaygate/relaygate/relay/model"
	"github.com/relaygate/relaygate/relay/translator"
)

// ChatCompletions serves POST /v1/chat/completions: the OpenAI dialect,
// streamed via OpenAISink when the request's stream flag is set, otherwise
// aggregated into a single JSON body via OpenAINonStreamSink (spec §4.8).
func (app *AppContext) ChatCompletions(c *gin.Context) {
	var req rmodel.OpenAIChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, rmodel.WrapError(rmodel.KindBadRequest, err, "invalid request body"))
		return
	}

	claudeReq := toClaudeRequest(&req)

	c.Set(ctxkey.RequestModel, claudeReq.Model)
	channel, account, err := app.resolveAccount(c, claudeReq.Model)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Set(ctxkey.Channel, channel)
	c.Set(ctxkey.Account, account)

	if req.Stream {
		app.streamOpenAI(c, channel, account, claudeReq)
		return
	}
	app.completeOpenAI(c, channel, account, claudeReq)
}

// toClaudeRequest lifts a leading system-role message out of the OpenAI
// message list into ClaudeRequest.System, since OpenAIChatRequest carries no
// dedicated system field of its own.
func toClaudeRequest(req *rmodel.OpenAIChatRequest) *rmodel.ClaudeRequest {
	system := ""
	messages := req.Messages
	if len(messages) > 0 && messages[0].Role == rmodel.RoleSystem {
		system = messages[0].TextOnly()
		messages = messages[1:]
	}
	return &rmodel.ClaudeRequest{
		Model:     req.Model,
		Messages:  messages,
		System:    system,
		MaxTokens: req.MaxTokens,
		Stream:    req.Stream,
		Tools:     req.Tools,
	}
}

func (app *AppContext) streamOpenAI(c *gin.Context, channel string, account *model.Account, req *rmodel.ClaudeRequest) {
	requestId, _ := c.Get(ctxkey.RequestId)
	conversationId := newConversationId()
	wireModel := wireModelFor(channel, req.Model)
	inputTokens := estimateInputTokens(wireModel, req)

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

	sink := translator.NewOpenAISink(c.Writer, "chatcmpl-"+conversationId, req.Model, time.Now().Unix())
	fsm := translator.NewResponseFSM(sink, req.Model, inputTokens)

	if err := pumpStream(c.Request.Context(), channel, result.Body, fsm); err != nil {
		logger.Logger.Error("stream pump failed",
			zap.String("channel", channel), zap.Error(err))
		_ = fsm.Abort(err.Error())
	}
}

func (app *AppContext) completeOpenAI(c *gin.Context, channel string, account *model.Account, req *rmodel.ClaudeRequest) {
	requestId, _ := c.Get(ctxkey.RequestId)
	conversationId := newConversationId()
	wireModel := wireModelFor(channel, req.Model)
	inputTokens := estimateInputTokens(wireModel, req)

	build := buildBody(channel, req, conversationId, requestIdString(requestId), c.Request.UserAgent())
	result, err := app.Upstream.Stream(c.Request.Context(), channel, req.Model, account, build)
	if err != nil {
		writeError(c, err)
		return
	}
	defer result.Body.Close()

	sink := translator.NewOpenAINonStreamSink("chatcmpl-"+conversationId, req.Model, time.Now().Unix())
	fsm := translator.NewResponseFSM(sink, req.Model, inputTokens)

	if err := pumpStream(c.Request.Context(), channel, result.Body, fsm); err != nil {
		writeError(c, rmodel.WrapError(rmodel.KindUpstreamUnavailable, err, "upstream stream failed"))
		return
	}

	c.JSON(http.StatusOK, sink.Response())
}

func wireModelFor(channel, requestedModel string) string {
	if channel == model.AccountTypeCodeWhisperer {
		return translator.MapModelForCodeWhisperer(requestedModel)
	}
	return translator.MapModelForGemini(requestedModel)
}
