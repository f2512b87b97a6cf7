// Package upstream implements the Upstream Client state machine: open the
// provider streaming connection, handle 401/403 refresh, 429 quota
// bookkeeping and transport failures by rotating across eligible accounts
// (spec §4.5).
package upstream

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/relaygate/relaygate/common/config"
	"github.com/relaygate/relaygate/common/metrics"
	"github.com/relaygate/relaygate/model"
	"github.com/relaygate/relaygate/relay/adaptor"
	"github.com/relaygate/relaygate/relay/adaptor/codewhisperer"
	"github.com/relaygate/relaygate/relay/adaptor/gemini"
	"github.com/relaygate/relaygate/relay/dispatch"
	rmodel "github.com/relaygate/relaygate/relay/model"
	"github.com/relaygate/relaygate/relay/token"
)

// BodyBuilder renders the provider wire body for a specific account. It is
// re-invoked on every account rotation because CodeWhisperer's body embeds
// account-specific fields (profileArn) the translator must fill per account.
type BodyBuilder func(account *model.Account) ([]byte, error)

// Result is a successfully opened upstream stream, ready for the
// Event-Stream Parser.
type Result struct {
	Account *model.Account
	Channel string
	Status  int
	Body    io.ReadCloser
}

// Client drives the state machine over an injected Router, Token Manager and
// per-channel ProviderClient set.
type Client struct {
	router    *dispatch.Router
	tokens    *token.Manager
	providers map[string]adaptor.ProviderClient
}

func New(router *dispatch.Router, tokens *token.Manager) *Client {
	return &Client{
		router: router,
		tokens: tokens,
		providers: map[string]adaptor.ProviderClient{
			model.AccountTypeCodeWhisperer: codewhisperer.New(),
			model.AccountTypeGemini:        gemini.New(),
		},
	}
}

// Stream opens the upstream connection for requestedModel, starting with
// initialAccount (the Router's original selection) and rotating across the
// remaining eligible accounts on retryable failures (spec §4.5 "Maximum
// retries = number of accounts eligible for this request").
func (c *Client) Stream(ctx context.Context, channel, requestedModel string, initialAccount *model.Account, buildBody BodyBuilder) (*Result, error) {
	provider, ok := c.providers[channel]
	if !ok {
		return nil, rmodel.NewError(rmodel.KindUpstreamUnavailable, "no provider client for channel "+channel)
	}

	maxRetries, err := c.router.EligibleAccountCount(channel, requestedModel)
	if err != nil {
		return nil, rmodel.WrapError(rmodel.KindNoAccountAvailable, err, "count eligible accounts")
	}

	excluded := make(map[int]bool, maxRetries)
	account := initialAccount

	for attempt := 0; attempt < maxRetries; attempt++ {
		result, advance, err := c.attempt(ctx, provider, channel, requestedModel, account, buildBody)
		if err != nil {
			return nil, err
		}
		if result != nil {
			return result, nil
		}
		if !advance {
			continue
		}

		excluded[account.Id] = true
		next, serr := c.router.SelectAccount(channel, requestedModel, excluded)
		if serr != nil {
			return nil, rmodel.WrapError(rmodel.KindUpstreamUnavailable, serr, "no further eligible accounts")
		}
		account = next
	}

	return nil, rmodel.NewError(rmodel.KindUpstreamUnavailable, "exhausted retries across eligible accounts")
}

// attempt drives one account through connect, and for the 401/403
// non-suspension case a single same-account reconnect with a freshly
// refreshed token, before reporting whether the caller should rotate to the
// next account (spec §4.5 401/403/429/transport rules).
func (c *Client) attempt(ctx context.Context, provider adaptor.ProviderClient, channel, requestedModel string, account *model.Account, buildBody BodyBuilder) (*Result, bool, error) {
	refreshedOnce := false

	for {
		headers, err := c.tokens.GetAuthHeaders(ctx, account)
		if err != nil {
			return nil, true, nil
		}

		body, err := buildBody(account)
		if err != nil {
			return nil, false, rmodel.WrapError(rmodel.KindTranslationError, err, "build upstream request body")
		}

		status, respBody, rawErr, cerr := provider.Connect(ctx, account, headers["Authorization"], body)
		if cerr != nil {
			markTokenError(account)
			return nil, true, nil
		}

		switch {
		case status == http.StatusOK:
			return &Result{Account: account, Channel: channel, Status: status, Body: respBody}, false, nil

		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			if bytes.Contains(rawErr, []byte("TEMPORARILY_SUSPENDED")) {
				_ = model.Suspend(account.Id, "upstream reported TEMPORARILY_SUSPENDED")
				return nil, false, rmodel.NewError(rmodel.KindAccountSuspended, "account suspended by upstream")
			}
			if refreshedOnce {
				markTokenError(account)
				return nil, true, nil
			}
			if _, rerr := c.tokens.ForceRefresh(ctx, account); rerr != nil {
				markTokenError(account)
				return nil, true, nil
			}
			refreshedOnce = true
			continue

		case status == http.StatusTooManyRequests:
			advance, rlErr := handleRateLimit(ctx, provider, account, requestedModel, headers["Authorization"])
			if advance {
				metrics.QuotaExhaustedTotal.WithLabelValues(channel).Inc()
			}
			return nil, advance, rlErr

		default:
			markTokenError(account)
			return nil, true, nil
		}
	}
}

// handleRateLimit implements spec §4.5's 429 branch: refresh the quota
// snapshot, persist it, and classify residual credit as a rate limit
// (terminal) or exhaustion (rotate to the next account).
func handleRateLimit(ctx context.Context, provider adaptor.ProviderClient, account *model.Account, requestedModel, authHeader string) (bool, error) {
	resetTime := time.Now().Add(time.Hour)
	fraction := 0.0
	percent := 0.0

	quotas, qerr := provider.FetchAvailableModels(ctx, account, authHeader, requestedModel)
	if qerr == nil {
		if q, ok := quotas[requestedModel]; ok {
			fraction = q.RemainingFraction
			percent = q.RemainingPercent
			if q.ResetTimeUnix > 0 {
				resetTime = time.Unix(q.ResetTimeUnix, 0)
			}
			_ = model.SetQuotaSnapshot(account.Id, requestedModel, fraction, percent, resetTime)
		}
	}

	if fraction > config.RateLimitThreshold {
		return false, rmodel.NewError(rmodel.KindRateLimited, "rate limited with residual credit")
	}

	_ = model.MarkModelExhausted(account.Id, requestedModel, resetTime)
	return true, nil
}

func markTokenError(account *model.Account) {
	_ = model.UpdateTokens(account.Id, account.AccessToken, account.RefreshToken, model.RefreshStatusFailedNetwork)
}
