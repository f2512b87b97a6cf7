package translator

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/relaygate/relaygate/common/config"
)

var (
	encoderOnce sync.Once
	encoder     *tiktoken.Tiktoken
)

func cl100kEncoder() *tiktoken.Tiktoken {
	encoderOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoder = enc
		}
	})
	return encoder
}

// countTokens estimates BPE token count for text, falling back to a
// length/4 heuristic when the encoder is unavailable (spec §4.7 Token
// accounting).
func countTokens(text string) int {
	if text == "" {
		return 0
	}
	if enc := cl100kEncoder(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	n := len(text) / 4
	if n < 1 {
		n = 1
	}
	return n
}

// zeroInputTokenModels returns the whole-word keyword list from
// ZERO_INPUT_TOKEN_MODELS, lower-cased.
func zeroInputTokenModels() []string {
	raw := strings.Split(config.ZeroInputTokenModelsRaw, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.ToLower(strings.TrimSpace(r))
		if r != "" {
			out = append(out, r)
		}
	}
	return out
}

// isZeroInputTokenModel reports whether modelID matches one of the
// configured keywords as a whole word (spec §4.7, §6 configuration).
func isZeroInputTokenModel(modelID string) bool {
	lower := strings.ToLower(modelID)
	for _, kw := range zeroInputTokenModels() {
		for _, part := range strings.FieldsFunc(lower, func(r rune) bool {
			return r == '-' || r == '_' || r == '.' || r == ' '
		}) {
			if part == kw {
				return true
			}
		}
	}
	return false
}

// EstimateInputTokens tokenises the concatenation of system prompt, all
// message text, and tool names/descriptions/schemas (spec §4.7).
func EstimateInputTokens(modelID string, system string, messageTexts []string, tools []string) int {
	if isZeroInputTokenModel(modelID) {
		return 0
	}
	var b strings.Builder
	b.WriteString(system)
	for _, t := range messageTexts {
		b.WriteString(t)
	}
	for _, t := range tools {
		b.WriteString(t)
	}
	return countTokens(b.String())
}

// EstimateOutputTokens tokenises all emitted text plus completed tool-input
// strings (spec §4.7).
func EstimateOutputTokens(text string, toolInputs []string) int {
	var b strings.Builder
	b.WriteString(text)
	for _, t := range toolInputs {
		b.WriteString(t)
	}
	return countTokens(b.String())
}
