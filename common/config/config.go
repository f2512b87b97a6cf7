// Package config centralises every environment-driven knob for the gateway.
// Each variable is read exactly once at process start, following the
// teacher's one-var-per-knob, doc-commented convention.
package config

import (
	"strings"

	"github.com/relaygate/relaygate/common/env"
)

var (
	// ServerPort overrides the default listen port.
	ServerPort = env.String("PORT", "3000")
	// GinMode holds GIN_MODE as read at start-up. main.go reads GIN_MODE itself:
	// "debug" keeps gin in debug mode, any other value selects release mode.
	GinMode = strings.TrimSpace(env.String("GIN_MODE", ""))

	// APIKey, when non-empty, is the shared secret chat clients must present via
	// the x-api-key header. Empty means the chat surface is open.
	APIKey = strings.TrimSpace(env.String("API_KEY", ""))
	// AdminKey, when non-empty, is the shared secret required on the /v2/accounts
	// admin surface via X-Admin-Key.
	AdminKey = strings.TrimSpace(env.String("ADMIN_KEY", ""))
	// BaseURL is used to assemble OAuth redirect URIs for the install-time helper.
	BaseURL = strings.TrimSpace(env.String("BASE_URL", ""))

	// SQLDSN provides the primary database DSN; empty indicates that SQLite should be used.
	SQLDSN = strings.TrimSpace(env.String("SQL_DSN", ""))
	// SQLitePath specifies the SQLite database file path when SQL_DSN is absent.
	SQLitePath = env.String("SQLITE_PATH", "gateway.db")
	// SQLiteBusyTimeout configures SQLite busy timeout in milliseconds to mitigate locking errors.
	SQLiteBusyTimeout = env.Int("SQLITE_BUSY_TIMEOUT", 3000)

	// DebugEnabled toggles verbose structured logging when DEBUG=true.
	DebugEnabled = env.Bool("DEBUG", false)

	// AmazonQClientID / AmazonQClientSecret / AmazonQRefreshToken / AmazonQProfileArn
	// seed a single CodeWhisperer account at startup when the Account Store is
	// otherwise empty, so the gateway is usable without the admin API.
	AmazonQClientID     = strings.TrimSpace(env.String("AMAZONQ_CLIENT_ID", ""))
	AmazonQClientSecret = strings.TrimSpace(env.String("AMAZONQ_CLIENT_SECRET", ""))
	AmazonQRefreshToken = strings.TrimSpace(env.String("AMAZONQ_REFRESH_TOKEN", ""))
	AmazonQProfileArn   = strings.TrimSpace(env.String("AMAZONQ_PROFILE_ARN", ""))

	// GeminiClientID / GeminiClientSecret / GeminiRefreshToken / GeminiProjectID
	// seed a single Gemini Cloud Assist account at startup, mirroring the
	// Amazon Q fallback above.
	GeminiClientID     = strings.TrimSpace(env.String("GEMINI_CLIENT_ID", ""))
	GeminiClientSecret = strings.TrimSpace(env.String("GEMINI_CLIENT_SECRET", ""))
	GeminiRefreshToken = strings.TrimSpace(env.String("GEMINI_REFRESH_TOKEN", ""))
	GeminiProjectID    = strings.TrimSpace(env.String("GEMINI_PROJECT_ID", ""))

	// ZeroInputTokenModelsRaw is the raw comma-separated keyword list; matched as
	// whole words (case-insensitive) against the requested model id to force
	// input_tokens to 0 in usage reporting (spec §4.7, §6 configuration).
	ZeroInputTokenModelsRaw = env.String("ZERO_INPUT_TOKEN_MODELS", "haiku")

	// RateLimitThreshold is the remainingFraction above which a Gemini 429 is
	// classified as a transient rate limit rather than quota exhaustion
	// (spec §3 Quota Ledger, §9 Open Questions).
	RateLimitThreshold = 0.03

	// ConnectTimeoutSeconds / WriteTimeoutSeconds bound opening the upstream
	// connection; the read/streaming phase is intentionally unbounded (spec §5).
	ConnectTimeoutSeconds = env.Int("UPSTREAM_CONNECT_TIMEOUT", 30)
	WriteTimeoutSeconds   = env.Int("UPSTREAM_WRITE_TIMEOUT", 30)

	// TokenExpirySkewSeconds is the safety margin subtracted from a cached
	// token's JWT exp before it is considered due for refresh (spec §4.3).
	TokenExpirySkewSeconds = env.Int("TOKEN_EXPIRY_SKEW_SECONDS", 60)
	// TokenFallbackTTLSeconds is used when a token has no parseable exp claim.
	TokenFallbackTTLSeconds = env.Int("TOKEN_FALLBACK_TTL_SECONDS", 3500)
)
