package translator

import "strings"

// geminiNativeModels is the set of model ids Gemini serves without mapping.
var geminiNativeModels = map[string]bool{
	"gemini-2.5-pro":   true,
	"gemini-2.5-flash": true,
}

// geminiClaudeAliasTable maps a Claude-family id to the closest Gemini native
// id when the requested id is not already native (spec §4.4(a)).
var geminiClaudeAliasTable = map[string]string{
	"claude-sonnet-4.5":   "gemini-2.5-pro",
	"claude-sonnet-4-5":   "gemini-2.5-pro",
	"claude-sonnet-4":     "gemini-2.5-pro",
	"claude-haiku-4.5":    "gemini-2.5-flash",
	"claude-haiku-4-5":    "gemini-2.5-flash",
}

const geminiDefaultModel = "claude-sonnet-4-5"

// MapModelForCodeWhisperer implements spec §4.4(a) CodeWhisperer model
// mapping.
func MapModelForCodeWhisperer(requested string) string {
	lower := strings.ToLower(requested)
	switch {
	case strings.HasPrefix(lower, "claude-sonnet-4.5"), strings.HasPrefix(lower, "claude-sonnet-4-5"):
		return "claude-sonnet-4.5"
	case strings.HasPrefix(lower, "claude-haiku"):
		return "claude-haiku-4.5"
	default:
		return "claude-sonnet-4"
	}
}

// MapModelForGemini implements spec §4.4(a) Gemini model mapping.
func MapModelForGemini(requested string) string {
	lower := strings.ToLower(requested)
	if geminiNativeModels[lower] {
		return lower
	}
	if mapped, ok := geminiClaudeAliasTable[lower]; ok {
		return mapped
	}
	return geminiDefaultModel
}

// IsGeminiExclusive reports whether a requested model id must route to the
// Gemini channel regardless of account availability weighting (spec §4.2
// Router policy step 1).
func IsGeminiExclusive(requested string) bool {
	lower := strings.ToLower(requested)
	if strings.HasPrefix(lower, "gemini") {
		return true
	}
	return strings.Contains(lower, "thinking")
}

// IsCodeWhispererExclusive reports whether a requested model id must route
// to the CodeWhisperer channel (spec §4.2 Router policy step 1).
func IsCodeWhispererExclusive(requested string) bool {
	lower := strings.ToLower(requested)
	switch {
	case strings.HasPrefix(lower, "claude-sonnet-4"):
		return true
	case strings.HasPrefix(lower, "claude-haiku-4.5"), strings.HasPrefix(lower, "claude-haiku-4-5"):
		return true
	default:
		return false
	}
}
