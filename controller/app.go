// Package controller is the thin HTTP shell (spec §4.8): it decodes
// requests, calls the Router/Translator/Upstream Client/Response Translator
// collaborators, and writes the public response. No provider logic lives
// here.
package controller

import (
	"github.com/relaygate/relaygate/relay/dispatch"
	"github.com/relaygate/relaygate/relay/token"
	"github.com/relaygate/relaygate/relay/upstream"
)

// AppContext is the explicit dependency bundle every handler closes over,
// replacing the module-level singletons the teacher favours (spec §9 DESIGN
// NOTES "Global process state ... model as an explicit dependency passed to
// constructors; do not rely on module-level singletons").
type AppContext struct {
	Router   *dispatch.Router
	Tokens   *token.Manager
	Upstream *upstream.Client
}

// NewAppContext wires the Router, Token Manager and Upstream Client into one
// bundle ready to be handed to router.SetRouter.
func NewAppContext() *AppContext {
	router := dispatch.NewRouter()
	tokens := token.NewManager()
	return &AppContext{
		Router:   router,
		Tokens:   tokens,
		Upstream: upstream.New(router, tokens),
	}
}
