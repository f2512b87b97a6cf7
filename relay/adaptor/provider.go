// Package adaptor defines the provider-facing contract the Upstream Client
// drives, and collects the CodeWhisperer/Gemini wire clients that implement
// it (spec §4.5, §6 "Upstream wire formats").
package adaptor

import (
	"context"
	"io"

	"github.com/relaygate/relaygate/model"
)

// QuotaSnapshot is one model's fresh reading from a provider's
// fetchAvailableModels-equivalent call, used to refresh the Quota Ledger on
// a 429 (spec §3, §4.5).
type QuotaSnapshot struct {
	RemainingFraction float64
	RemainingPercent  float64
	ResetTimeUnix     int64 // 0 means "use the caller's fallback"
}

// ProviderClient is the thin per-channel wire adaptor the Upstream Client
// state machine drives. Each channel (CodeWhisperer, Gemini) implements its
// own request URL, headers and transport-level framing; the state machine
// itself (retry policy, suspension, quota bookkeeping) is channel-agnostic
// (spec §4.5, grounded on the teacher's Adaptor.DoRequest/DoResponse split).
type ProviderClient interface {
	// Connect opens the streaming upstream request and returns the raw
	// response body for the Event-Stream Parser to consume, along with the
	// HTTP status code. The caller is responsible for closing the returned
	// reader.
	Connect(ctx context.Context, account *model.Account, authHeader string, body []byte) (status int, respBody io.ReadCloser, rawErrorBody []byte, err error)

	// FetchAvailableModels retrieves a fresh per-model quota snapshot after a
	// 429, keyed by model id. Providers without a quota endpoint (today:
	// CodeWhisperer) return a single synthetic exhausted entry for
	// requestedModel so the caller's fallback logic still applies.
	FetchAvailableModels(ctx context.Context, account *model.Account, authHeader string, requestedModel string) (map[string]QuotaSnapshot, error)
}
