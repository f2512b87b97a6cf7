package controller

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strconv"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/relaygate/relaygate/common/ctxkey"
	"github.com/relaygate/relaygate/model"
	"github.com/relaygate/relaygate/relay/eventstream"
	rmodel "github.com/relaygate/relaygate/relay/model"
	"github.com/relaygate/relaygate/relay/translator"
)

// codeWhispererOrigin identifies this gateway to the upstream CodeWhisperer
// endpoint as an AI-editor integration rather than a bare CLI (spec §6).
const codeWhispererOrigin = "AI_EDITOR"

// resolveAccount honours a forced X-Account-ID header (spec §9 Open
// Questions) by looking the account up directly and taking its channel as
// given, skipping the Router entirely; otherwise it runs the full Router
// channel-then-account policy for requestedModel.
func (app *AppContext) resolveAccount(c *gin.Context, requestedModel string) (channel string, account *model.Account, err error) {
	if forced, ok := c.Get(ctxkey.ForcedAccountId); ok {
		id, aerr := strconv.Atoi(forced.(string))
		if aerr != nil {
			return "", nil, rmodel.NewError(rmodel.KindBadRequest, "X-Account-ID must be numeric")
		}
		account, aerr = model.GetAccount(id)
		if aerr != nil {
			return "", nil, rmodel.WrapError(rmodel.KindNotFound, aerr, "forced account not found")
		}
		return account.Type, account, nil
	}

	channel, err = app.Router.ChooseChannel(requestedModel)
	if err != nil {
		return "", nil, rmodel.WrapError(rmodel.KindNoAccountAvailable, err, "choose channel")
	}
	account, err = app.Router.SelectAccount(channel, requestedModel, nil)
	if err != nil {
		return "", nil, rmodel.WrapError(rmodel.KindNoAccountAvailable, err, "select account")
	}
	return channel, account, nil
}

// resolveGeminiAccount forces the Gemini channel regardless of model
// mapping, used by the Gemini-only surface (spec §6), still honouring a
// forced X-Account-ID header.
func (app *AppContext) resolveGeminiAccount(c *gin.Context, requestedModel string) (*model.Account, error) {
	if forced, ok := c.Get(ctxkey.ForcedAccountId); ok {
		id, err := strconv.Atoi(forced.(string))
		if err != nil {
			return nil, rmodel.NewError(rmodel.KindBadRequest, "X-Account-ID must be numeric")
		}
		account, err := model.GetAccount(id)
		if err != nil {
			return nil, rmodel.WrapError(rmodel.KindNotFound, err, "forced account not found")
		}
		return account, nil
	}
	return app.Router.SelectAccount(model.AccountTypeGemini, requestedModel, nil)
}

// buildBody returns the per-channel BodyBuilder that re-invokes the request
// translator for each account the Upstream Client rotates to, since both
// wire bodies embed account-specific identifiers (spec §4.5 "BodyBuilder").
func buildBody(channel string, claudeReq *rmodel.ClaudeRequest, conversationId, requestId, userAgent string) func(account *model.Account) ([]byte, error) {
	switch channel {
	case model.AccountTypeCodeWhisperer:
		return func(account *model.Account) ([]byte, error) {
			req, err := translator.BuildCodeWhispererRequest(claudeReq, conversationId, account.ProfileArn, codeWhispererOrigin)
			if err != nil {
				return nil, errors.Wrap(err, "build codewhisperer request")
			}
			return marshalJSON(req)
		}
	case model.AccountTypeGemini:
		return func(account *model.Account) ([]byte, error) {
			other, err := account.LoadOther()
			if err != nil {
				return nil, errors.Wrap(err, "load gemini account extras")
			}
			req, err := translator.BuildGeminiRequest(claudeReq, other.ProjectID, requestId, userAgent)
			if err != nil {
				return nil, errors.Wrap(err, "build gemini request")
			}
			return marshalJSON(req)
		}
	default:
		return func(*model.Account) ([]byte, error) {
			return nil, rmodel.NewError(rmodel.KindBadRequest, "unsupported channel "+channel)
		}
	}
}

// newParser returns the channel-appropriate Event-Stream Parser (spec §4.6).
func newParser(channel string) interface {
	Feed([]byte) ([]rmodel.ParserEvent, error)
} {
	switch channel {
	case model.AccountTypeGemini:
		return eventstream.NewGeminiParser()
	default:
		return eventstream.NewCodeWhispererParser()
	}
}

// pumpStream reads the upstream response body in full, feeding every decoded
// frame through the channel parser into the Response Translator FSM, then
// finishes the FSM once the body is exhausted (spec §4.6, §4.7).
func pumpStream(ctx context.Context, channel string, body io.ReadCloser, fsm *translator.ResponseFSM) error {
	defer body.Close()

	parser := newParser(channel)
	reader := bufio.NewReaderSize(body, 32*1024)
	buf := make([]byte, 32*1024)

	for {
		select {
		case <-ctx.Done():
			return errors.WithStack(ctx.Err())
		default:
		}

		n, readErr := reader.Read(buf)
		if n > 0 {
			events, perr := parser.Feed(buf[:n])
			if perr != nil {
				return errors.Wrap(perr, "decode upstream frame")
			}
			for _, ev := range events {
				if err := fsm.Consume(ev); err != nil {
					return errors.Wrap(err, "consume parser event")
				}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return errors.Wrap(readErr, "read upstream body")
		}
	}

	if flusher, ok := parser.(interface{ Flush() []rmodel.ParserEvent }); ok {
		for _, ev := range flusher.Flush() {
			if err := fsm.Consume(ev); err != nil {
				return errors.Wrap(err, "consume flushed parser event")
			}
		}
	}

	return fsm.Finish("end_turn")
}

func newConversationId() string {
	return uuid.NewString()
}

func marshalJSON(v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "marshal request body")
	}
	return body, nil
}
