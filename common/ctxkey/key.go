package ctxkey

import "github.com/gin-gonic/gin"

const (
	// RequestId is a per-request unique identifier used for logging and the
	// public X-Request-Id response header.
	// Set in: middleware/request_id.go.
	// Read in: controller chat handlers, passed on as the Gemini requestId.
	RequestId = "request_id"

	// Account holds the *model.Account resolved for this request.
	// Set in: controller chat handlers after account resolution.
	Account = "account"

	// Channel is the provider channel resolved for this request ("codewhisperer" or "gemini").
	// Set in: controller chat handlers after account resolution.
	Channel = "channel"

	// RequestModel is the model id as requested by the client, verbatim.
	// Set in: controller handlers after decoding the body.
	RequestModel = "request_model"

	// ForcedAccountId carries the X-Account-ID header, when present, forcing
	// account selection for testing (spec §9 Open Questions).
	// Set in: middleware/auth.
	// Read in: controller/chat.go's resolveAccount/resolveGeminiAccount.
	ForcedAccountId = "forced_account_id"

	// KeyRequestBody caches the raw request body bytes for reuse across
	// middleware and handlers without a second read of the socket.
	KeyRequestBody = gin.BodyBytesKey
)
