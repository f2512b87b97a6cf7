// Package dispatch implements the Router: purely functional channel and
// account selection given a requested model id (spec §4.2).
package dispatch

import (
	"math/rand"

	"github.com/Laisky/errors/v2"

	"github.com/relaygate/relaygate/model"
	"github.com/relaygate/relaygate/relay/translator"
)

// Selection is the Router's output: a channel plus the account chosen to
// serve the request.
type Selection struct {
	Channel string
	Account *model.Account
}

// Router holds no state beyond an injectable RNG source, so selection stays
// reproducible for a given seed and Account Store snapshot (spec §4.2
// Idempotence) — grounded on the teacher's middleware/distributor.go
// exclude-and-retry channel-selection loop, adapted from priority-fallback
// to weighted-random-by-account-count.
type Router struct {
	rng *rand.Rand
}

// NewRouter builds a Router seeded from the process-wide RNG. Use NewSeededRouter
// in tests for reproducible selections.
func NewRouter() *Router {
	return &Router{rng: rand.New(rand.NewSource(rand.Int63()))}
}

func NewSeededRouter(seed int64) *Router {
	return &Router{rng: rand.New(rand.NewSource(seed))}
}

// Select implements the three-step policy from spec §4.2.
func (r *Router) Select(requestedModel string) (*Selection, error) {
	channel, err := r.chooseChannel(requestedModel)
	if err != nil {
		return nil, errors.Wrap(err, "choose channel")
	}

	account, err := r.SelectAccount(channel, requestedModel, nil)
	if err != nil {
		return nil, err
	}
	return &Selection{Channel: channel, Account: account}, nil
}

// SelectAccount performs steps 2-3 of spec §4.2 for a channel already fixed
// by Select, excluding any account id in exclude — used by the Upstream
// Client to rotate to the next eligible account on retry (spec §4.5).
func (r *Router) SelectAccount(channel, requestedModel string, exclude map[int]bool) (*model.Account, error) {
	accounts, err := model.ListAccounts(model.AccountFilter{Type: channel})
	if err != nil {
		return nil, errors.Wrap(err, "list accounts")
	}

	if channel == model.AccountTypeGemini {
		accounts, err = filterAvailable(accounts, requestedModel)
		if err != nil {
			return nil, errors.Wrap(err, "filter available gemini accounts")
		}
	}

	if len(exclude) > 0 {
		filtered := accounts[:0]
		for _, a := range accounts {
			if !exclude[a.Id] {
				filtered = append(filtered, a)
			}
		}
		accounts = filtered
	}

	if len(accounts) == 0 {
		return nil, errors.Errorf("no available %s accounts for model %s", channel, requestedModel)
	}

	return accounts[r.rng.Intn(len(accounts))], nil
}

// EligibleAccountCount returns the number of accounts the Upstream Client may
// retry across for this channel/model, bounded below at 1 (spec §4.5
// "Maximum retries = number of accounts eligible for this request").
func (r *Router) EligibleAccountCount(channel, requestedModel string) (int, error) {
	accounts, err := model.ListAccounts(model.AccountFilter{Type: channel})
	if err != nil {
		return 0, errors.Wrap(err, "list accounts")
	}
	if channel == model.AccountTypeGemini {
		accounts, err = filterAvailable(accounts, requestedModel)
		if err != nil {
			return 0, errors.Wrap(err, "filter available gemini accounts")
		}
	}
	if len(accounts) == 0 {
		return 1, nil
	}
	return len(accounts), nil
}

func filterAvailable(accounts []*model.Account, requestedModel string) ([]*model.Account, error) {
	mapped := translator.MapModelForGemini(requestedModel)
	available := make([]*model.Account, 0, len(accounts))
	for _, a := range accounts {
		ok, err := model.IsModelAvailable(a, mapped)
		if err != nil {
			return nil, err
		}
		if ok {
			available = append(available, a)
		}
	}
	return available, nil
}

// ChooseChannel exposes step 1 of Select on its own, for callers that need
// the channel decision before deciding whether to honour a forced account
// (spec §9 Open Questions).
func (r *Router) ChooseChannel(requestedModel string) (string, error) {
	return r.chooseChannel(requestedModel)
}

// chooseChannel implements spec §4.2 step 1: exclusivity first, then
// weighted-random-by-live-account-count, with a deterministic fallback to
// whichever side is non-empty.
func (r *Router) chooseChannel(requestedModel string) (string, error) {
	if translator.IsGeminiExclusive(requestedModel) {
		return model.AccountTypeGemini, nil
	}
	if translator.IsCodeWhispererExclusive(requestedModel) {
		return model.AccountTypeCodeWhisperer, nil
	}

	cwCount, err := countEnabled(model.AccountTypeCodeWhisperer)
	if err != nil {
		return "", err
	}
	geminiCount, err := countEnabled(model.AccountTypeGemini)
	if err != nil {
		return "", err
	}

	switch {
	case cwCount == 0 && geminiCount == 0:
		return "", errors.New("no enabled accounts on either channel")
	case cwCount == 0:
		return model.AccountTypeGemini, nil
	case geminiCount == 0:
		return model.AccountTypeCodeWhisperer, nil
	}

	if r.rng.Intn(cwCount+geminiCount) < cwCount {
		return model.AccountTypeCodeWhisperer, nil
	}
	return model.AccountTypeGemini, nil
}

func countEnabled(accountType string) (int, error) {
	accounts, err := model.ListAccounts(model.AccountFilter{Type: accountType})
	if err != nil {
		return 0, err
	}
	return len(accounts), nil
}
