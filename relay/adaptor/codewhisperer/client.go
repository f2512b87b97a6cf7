// Package codewhisperer implements the CodeWhisperer ProviderClient: wire
// transport for the AWS binary event-stream endpoint (spec §4.5, §6).
package codewhisperer

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"

	"github.com/relaygate/relaygate/common/httpclient"
	"github.com/relaygate/relaygate/common/logger"
	"github.com/relaygate/relaygate/model"
	"github.com/relaygate/relaygate/relay/adaptor"
)

const (
	streamURL  = "https://q.us-east-1.amazonaws.com/"
	amzTarget  = "AmazonCodeWhispererStreamingService.GenerateAssistantResponse"
	maxErrBody = 4096
)

// Client is the CodeWhisperer adaptor.ProviderClient implementation.
type Client struct{}

func New() *Client { return &Client{} }

// Connect opens the CodeWhisperer streaming endpoint (spec §6: POST with
// x-amz-json-1.0 content type and the GenerateAssistantResponse target).
func (c *Client) Connect(ctx context.Context, account *model.Account, authHeader string, body []byte) (int, io.ReadCloser, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, streamURL, bytes.NewReader(body))
	if err != nil {
		return 0, nil, nil, errors.Wrap(err, "build codewhisperer request")
	}
	req.Header.Set("Content-Type", "application/x-amz-json-1.0")
	req.Header.Set("X-Amz-Target", amzTarget)
	req.Header.Set("Authorization", authHeader)

	logger.Logger.Info("sending request to codewhisperer",
		zap.Int("account_id", account.Id), zap.String("url", streamURL))

	resp, err := httpclient.Streaming.Do(req)
	if err != nil {
		return 0, nil, nil, errors.Wrap(err, "call codewhisperer streaming endpoint")
	}

	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
		_ = resp.Body.Close()
		return resp.StatusCode, nil, raw, nil
	}

	return resp.StatusCode, resp.Body, nil, nil
}

// FetchAvailableModels has no CodeWhisperer equivalent; a 429 here is
// treated as an unconditional exhaustion with a one-hour fallback reset
// (spec §4.5 "fallback: now + 1h"), since there is no per-model fraction to
// read back from this provider.
func (c *Client) FetchAvailableModels(ctx context.Context, account *model.Account, authHeader, requestedModel string) (map[string]adaptor.QuotaSnapshot, error) {
	return map[string]adaptor.QuotaSnapshot{
		requestedModel: {RemainingFraction: 0, RemainingPercent: 0, ResetTimeUnix: time.Now().Add(time.Hour).Unix()},
	}, nil
}
