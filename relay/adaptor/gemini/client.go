// Package gemini implements the Gemini Cloud Assist ProviderClient: wire
// transport for the SSE streaming endpoint plus its auxiliary project
// discovery and quota endpoints (spec §4.5, §6).
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"

	"github.com/relaygate/relaygate/common/httpclient"
	"github.com/relaygate/relaygate/common/logger"
	"github.com/relaygate/relaygate/model"
	"github.com/relaygate/relaygate/relay/adaptor"
	rmodel "github.com/relaygate/relaygate/relay/model"
)

const (
	defaultAPIEndpoint  = "https://cloudcode-pa.googleapis.com"
	streamPath          = "/v1internal:streamGenerateContent?alt=sse"
	loadCodeAssistPath  = "/v1internal:loadCodeAssist"
	fetchModelsPath     = "/v1internal:fetchAvailableModels"
	maxErrBody          = 4096
)

// Client is the Gemini adaptor.ProviderClient implementation.
type Client struct{}

func New() *Client { return &Client{} }

func endpointFor(account *model.Account) (string, error) {
	bag, err := account.LoadOther()
	if err != nil {
		return "", errors.Wrap(err, "load account other bag")
	}
	if bag.APIEndpoint != "" {
		return bag.APIEndpoint, nil
	}
	return defaultAPIEndpoint, nil
}

// Connect opens the Gemini streamGenerateContent SSE endpoint (spec §6).
func (c *Client) Connect(ctx context.Context, account *model.Account, authHeader string, body []byte) (int, io.ReadCloser, []byte, error) {
	endpoint, err := endpointFor(account)
	if err != nil {
		return 0, nil, nil, err
	}
	url := endpoint + streamPath

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, nil, errors.Wrap(err, "build gemini stream request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", authHeader)

	logger.Logger.Info("sending request to gemini", zap.Int("account_id", account.Id), zap.String("url", url))

	resp, err := httpclient.Streaming.Do(req)
	if err != nil {
		return 0, nil, nil, errors.Wrap(err, "call gemini streaming endpoint")
	}

	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
		_ = resp.Body.Close()
		return resp.StatusCode, nil, raw, nil
	}

	return resp.StatusCode, resp.Body, nil, nil
}

// LoadCodeAssist performs the project-discovery call Gemini accounts need
// before their first request, returning the discovered project id (spec §6
// "auxiliary POST {apiEndpoint}/v1internal:loadCodeAssist").
func (c *Client) LoadCodeAssist(ctx context.Context, account *model.Account, authHeader string) (string, error) {
	endpoint, err := endpointFor(account)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+loadCodeAssistPath, bytes.NewReader([]byte("{}")))
	if err != nil {
		return "", errors.Wrap(err, "build loadCodeAssist request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", authHeader)

	resp, err := httpclient.Streaming.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "call loadCodeAssist")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("loadCodeAssist failed with status %d", resp.StatusCode)
	}

	var parsed struct {
		CloudaicompanionProject string `json:"cloudaicompanionProject"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", errors.Wrap(err, "decode loadCodeAssist response")
	}
	return parsed.CloudaicompanionProject, nil
}

// FetchAvailableModels fetches a fresh quota snapshot for every modelId the
// provider reports (spec §3 Quota Ledger, §4.5 on-429 handling); it does not
// write the Quota Ledger itself, the Upstream Client persists the entry.
func (c *Client) FetchAvailableModels(ctx context.Context, account *model.Account, authHeader, requestedModel string) (map[string]adaptor.QuotaSnapshot, error) {
	endpoint, err := endpointFor(account)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+fetchModelsPath, bytes.NewReader([]byte("{}")))
	if err != nil {
		return nil, errors.Wrap(err, "build fetchAvailableModels request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", authHeader)

	resp, err := httpclient.Streaming.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "call fetchAvailableModels")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("fetchAvailableModels failed with status %d", resp.StatusCode)
	}

	var snapshot rmodel.GeminiQuotaSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return nil, errors.Wrap(err, "decode fetchAvailableModels response")
	}

	out := make(map[string]adaptor.QuotaSnapshot, len(snapshot.Models))
	for _, m := range snapshot.Models {
		resetUnix := int64(0)
		if t, err := time.Parse(time.RFC3339, m.ResetTime); err == nil {
			resetUnix = t.Unix()
		}
		out[m.ModelId] = adaptor.QuotaSnapshot{
			RemainingFraction: m.RemainingFraction,
			RemainingPercent:  m.RemainingPercent,
			ResetTimeUnix:     resetUnix,
		}
	}
	if _, ok := out[requestedModel]; !ok {
		out[requestedModel] = adaptor.QuotaSnapshot{RemainingFraction: 0, RemainingPercent: 0}
	}
	return out, nil
}
