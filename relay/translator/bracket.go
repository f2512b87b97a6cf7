package translator

import (
	"encoding/json"
	"regexp"
	"strings"
)

// bracketCall is one decoded legacy inline tool-use fragment
// `[Called <name> with args: {...}]` (spec §4.7 Legacy/OpenAI path).
type bracketCall struct {
	Name      string
	Arguments json.RawMessage
}

var bracketStart = regexp.MustCompile(`\[Called ([A-Za-z0-9_\-.]+) with args: `)

// bracketParser incrementally scans text deltas for the bracket format,
// buffering partial fragments across Feed calls and de-duplicating repeats
// by (name, arguments).
type bracketParser struct {
	buf  strings.Builder
	seen map[string]bool
}

func newBracketParser() *bracketParser {
	return &bracketParser{seen: make(map[string]bool)}
}

// Feed appends text to the internal buffer and extracts any complete bracket
// fragments it can find. It returns the discovered calls plus the plain text
// that should still be emitted as a content delta.
func (p *bracketParser) Feed(text string) (calls []bracketCall, plain string) {
	p.buf.WriteString(text)
	remaining := p.buf.String()
	p.buf.Reset()

	var out strings.Builder
	for {
		loc := bracketStart.FindStringSubmatchIndex(remaining)
		if loc == nil {
			out.WriteString(remaining)
			remaining = ""
			break
		}

		out.WriteString(remaining[:loc[0]])
		name := remaining[loc[2]:loc[3]]
		rest := remaining[loc[1]:]

		closeIdx := findBracketClose(rest)
		if closeIdx < 0 {
			// Incomplete fragment; keep everything from the bracket start
			// onward buffered for the next Feed call.
			p.buf.WriteString(remaining[loc[0]:])
			remaining = ""
			break
		}

		argsText := rest[:closeIdx]
		key := name + "\x00" + argsText
		if !p.seen[key] {
			p.seen[key] = true
			calls = append(calls, bracketCall{Name: name, Arguments: repairJSON(argsText)})
		}
		remaining = rest[closeIdx+1:]
	}

	return calls, out.String()
}

// findBracketClose returns the index of the "]" that closes a bracket
// fragment, assuming the JSON args themselves contain no unescaped "]"
// followed immediately by end-of-fragment; this mirrors the lenient,
// best-effort nature of the legacy format.
func findBracketClose(s string) int {
	depth := 0
	for i, r := range s {
		switch r {
		case '{':
			depth++
		case '}':
			depth--
		case ']':
			if depth <= 0 {
				return i
			}
		}
	}
	return -1
}

// repairJSON returns argsText as-is if it already parses; otherwise applies
// a minimal repair pass (balancing braces) before falling back to a raw
// string literal so malformed legacy fragments still produce valid JSON.
func repairJSON(argsText string) json.RawMessage {
	trimmed := strings.TrimSpace(argsText)
	var probe any
	if json.Unmarshal([]byte(trimmed), &probe) == nil {
		return json.RawMessage(trimmed)
	}

	repaired := trimmed
	opens := strings.Count(repaired, "{") - strings.Count(repaired, "}")
	for range opens {
		repaired += "}"
	}
	if json.Unmarshal([]byte(repaired), &probe) == nil {
		return json.RawMessage(repaired)
	}

	fallback, _ := json.Marshal(trimmed)
	return fallback
}
