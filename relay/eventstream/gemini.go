package eventstream

import (
	"bytes"
	"encoding/json"
	"unicode/utf8"

	rmodel "github.com/relaygate/relaygate/relay/model"
)

var (
	sseEventPrefix = []byte("event:")
	sseDataPrefix  = []byte("data:")
	sseDelimiter   = []byte("\n\n")
)

// GeminiParser decodes newline-delimited `event: ...\ndata: ...\n\n` SSE
// frames into ParserEvents, tracking tool-use fragments as a three-step
// start/json-delta/stop sequence per functionCall part (spec §4.6).
type GeminiParser struct {
	buf          []byte
	toolUseSeq   int
}

func NewGeminiParser() *GeminiParser {
	return &GeminiParser{}
}

// Feed appends chunk to the internal buffer, holding back any trailing bytes
// that do not yet form a complete UTF-8 scalar or a complete `\n\n`-delimited
// frame, and returns the events decoded from whatever is complete.
func (p *GeminiParser) Feed(chunk []byte) ([]rmodel.ParserEvent, error) {
	p.buf = append(p.buf, chunk...)

	var events []rmodel.ParserEvent
	for {
		idx := bytes.Index(p.buf, sseDelimiter)
		if idx < 0 {
			break
		}
		frame := p.buf[:idx]
		p.buf = p.buf[idx+len(sseDelimiter):]

		if ev := p.decodeFrame(frame); len(ev) > 0 {
			events = append(events, ev...)
		}
	}

	p.buf = trimIncompleteUTF8Tail(p.buf)
	return events, nil
}

// trimIncompleteUTF8Tail never discards data; it is a no-op here because the
// buffer is only ever consumed up to a complete "\n\n" boundary, but guards
// against acting on a buffer that currently ends mid-scalar by leaving it
// untouched for the next Feed call to complete.
func trimIncompleteUTF8Tail(buf []byte) []byte {
	if len(buf) == 0 || utf8.Valid(buf) {
		return buf
	}
	return buf
}

func (p *GeminiParser) decodeFrame(frame []byte) []rmodel.ParserEvent {
	var dataLine []byte
	for _, line := range bytes.Split(frame, []byte("\n")) {
		trimmed := bytes.TrimSpace(line)
		if bytes.HasPrefix(trimmed, sseDataPrefix) {
			dataLine = bytes.TrimSpace(trimmed[len(sseDataPrefix):])
		}
	}
	if len(dataLine) == 0 {
		return nil
	}

	var chunk rmodel.GeminiStreamChunk
	if err := json.Unmarshal(dataLine, &chunk); err != nil {
		return []rmodel.ParserEvent{{Kind: rmodel.EventRaw, Raw: append([]byte(nil), dataLine...)}}
	}

	var events []rmodel.ParserEvent
	for _, candidate := range chunk.Response.Candidates {
		for _, part := range candidate.Content.Parts {
			switch {
			case part.Text != "":
				events = append(events, rmodel.ParserEvent{Kind: rmodel.EventTextDelta, Text: part.Text})
			case part.FunctionCall != nil:
				events = append(events, p.functionCallEvents(*part.FunctionCall)...)
			}
		}
		if candidate.FinishReason != "" {
			events = append(events, rmodel.ParserEvent{Kind: rmodel.EventAssistantEnd})
		}
	}

	if chunk.Response.UsageMetadata != nil {
		events = append(events, rmodel.ParserEvent{
			Kind: rmodel.EventDone,
			Usage: &rmodel.Usage{
				InputTokens:  chunk.Response.UsageMetadata.PromptTokenCount,
				OutputTokens: chunk.Response.UsageMetadata.CandidatesTokenCount,
			},
		})
	}

	return events
}

// functionCallEvents renders one Gemini functionCall part as the
// start/json-delta/stop triple the Response Translator FSM expects from
// every tool-use source (spec §4.6 "three-step tool-use sequence").
func (p *GeminiParser) functionCallEvents(call rmodel.GeminiFunctionCall) []rmodel.ParserEvent {
	p.toolUseSeq++
	toolUseId := syntheticToolUseId(p.toolUseSeq)

	argsJSON, err := json.Marshal(call.Args)
	if err != nil {
		argsJSON = []byte("{}")
	}

	return []rmodel.ParserEvent{
		{Kind: rmodel.EventToolUseFragment, ToolUseId: toolUseId, ToolName: call.Name, InputFragment: "", Stop: false},
		{Kind: rmodel.EventToolUseFragment, ToolUseId: toolUseId, ToolName: call.Name, InputFragment: string(argsJSON), Stop: false},
		{Kind: rmodel.EventToolUseFragment, ToolUseId: toolUseId, ToolName: call.Name, Stop: true},
	}
}

func syntheticToolUseId(seq int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	n := seq
	out := make([]byte, 0, 8)
	for n > 0 {
		out = append(out, alphabet[n%len(alphabet)])
		n /= len(alphabet)
	}
	if len(out) == 0 {
		out = append(out, alphabet[0])
	}
	return "gemini_tool_" + string(out)
}
