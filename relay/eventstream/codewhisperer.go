// Package eventstream parses the two provider streaming dialects
// (AWS binary frames and Google SSE) into the shared ParserEvent sequence
// (spec §4.6).
package eventstream

import (
	"encoding/binary"
	"encoding/json"
	"regexp"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"

	"github.com/relaygate/relaygate/common/logger"
	rmodel "github.com/relaygate/relaygate/relay/model"
)

const (
	maxFrameLength = 2 * 1024 * 1024 // ~2 MiB sanity bound (spec §4.6)
	maxParseErrors = 5
	preludeLength  = 12
)

// CodeWhispererParser incrementally decodes the AWS event-stream binary
// frame format CodeWhisperer responses are delivered in. Grounded on
// kiro2api's CodeWhispererStreamParser (buffer/error-count/flush shape).
type CodeWhispererParser struct {
	buf        []byte
	errorCount int
}

func NewCodeWhispererParser() *CodeWhispererParser {
	return &CodeWhispererParser{}
}

// Feed appends chunk to the internal buffer and decodes as many complete
// frames as are available, returning the events they produced.
func (p *CodeWhispererParser) Feed(chunk []byte) ([]rmodel.ParserEvent, error) {
	p.buf = append(p.buf, chunk...)

	var events []rmodel.ParserEvent
	for len(p.buf) >= preludeLength {
		totalLength := binary.BigEndian.Uint32(p.buf[0:4])
		headersLength := binary.BigEndian.Uint32(p.buf[4:8])

		if totalLength > maxFrameLength || headersLength > maxFrameLength {
			logger.Logger.Warn("eventstream frame exceeds sanity bound",
				zap.Uint32("total_length", totalLength), zap.Uint32("headers_length", headersLength))
			p.buf = p.buf[1:]
			p.errorCount++
			if p.errorCount > maxParseErrors {
				logger.Logger.Warn("too many eventstream parse errors, discarding buffer")
				p.buf = nil
			}
			continue
		}

		if uint32(len(p.buf)) < totalLength {
			break // incomplete frame; wait for more chunks
		}

		frame := p.buf[:totalLength]
		p.buf = p.buf[totalLength:]

		ev, err := p.decodeFrame(frame, headersLength, totalLength)
		if err != nil {
			logger.Logger.Warn("dropping undecodable eventstream frame", zap.Error(err))
			p.errorCount++
			continue
		}
		if ev != nil {
			events = append(events, *ev)
			p.errorCount = 0
		}
	}

	return events, nil
}

func (p *CodeWhispererParser) decodeFrame(frame []byte, headersLength, totalLength uint32) (*rmodel.ParserEvent, error) {
	if preludeLength+headersLength+4 > totalLength {
		return nil, errors.New("header length leaves no room for trailing CRC")
	}

	headers := parseHeaders(frame[preludeLength : preludeLength+headersLength])

	payloadStart := preludeLength + headersLength
	payloadEnd := totalLength - 4
	if payloadEnd < payloadStart || int(payloadEnd) > len(frame) {
		return nil, errors.New("invalid payload bounds")
	}
	payload := frame[payloadStart:payloadEnd]

	var body map[string]any
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &body); err != nil {
			return &rmodel.ParserEvent{Kind: rmodel.EventRaw, Raw: append([]byte(nil), payload...)}, nil
		}
	}

	return eventFromHeaders(headers, body), nil
}

// parseHeaders decodes the repeating {name-len,name,value-type,value-len,value}
// header records (spec §4.6).
func parseHeaders(data []byte) map[string]string {
	headers := make(map[string]string)
	offset := 0
	for offset < len(data) {
		if offset+1 > len(data) {
			break
		}
		nameLen := int(data[offset])
		offset++
		if offset+nameLen > len(data) {
			break
		}
		name := string(data[offset : offset+nameLen])
		offset += nameLen

		if offset+1 > len(data) {
			break
		}
		valueType := data[offset]
		offset++
		if offset+2 > len(data) {
			break
		}
		valueLen := int(binary.BigEndian.Uint16(data[offset : offset+2]))
		offset += 2
		if offset+valueLen > len(data) {
			break
		}
		if valueType == 7 {
			headers[name] = string(data[offset : offset+valueLen])
		}
		offset += valueLen
	}
	return headers
}

func eventFromHeaders(headers map[string]string, body map[string]any) *rmodel.ParserEvent {
	eventType := headers[":event-type"]
	if eventType == "" {
		eventType = headers["event-type"]
	}

	switch eventType {
	case "initial-response":
		conversationId, _ := body["conversationId"].(string)
		return &rmodel.ParserEvent{Kind: rmodel.EventMessageStart, ConversationId: conversationId}
	case "assistantResponseEvent":
		if content, ok := body["content"].(string); ok && content != "" {
			return &rmodel.ParserEvent{Kind: rmodel.EventTextDelta, Text: content}
		}
		if rawUses, ok := body["toolUses"].([]any); ok {
			return &rmodel.ParserEvent{Kind: rmodel.EventAssistantEnd, ToolUses: decodeToolUses(rawUses)}
		}
		return nil
	case "toolUseEvent":
		toolUseId, _ := body["toolUseId"].(string)
		name, _ := body["name"].(string)
		input, _ := body["input"].(string)
		stop, _ := body["stop"].(bool)
		return &rmodel.ParserEvent{
			Kind: rmodel.EventToolUseFragment, ToolUseId: toolUseId, ToolName: name,
			InputFragment: input, Stop: stop,
		}
	default:
		return nil
	}
}

func decodeToolUses(raw []any) []rmodel.ToolUse {
	out := make([]rmodel.ToolUse, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, _ := m["toolUseId"].(string)
		name, _ := m["name"].(string)
		out = append(out, rmodel.ToolUse{ToolUseId: id, Name: name, Input: m["input"]})
	}
	return out
}

var flushJSONObject = regexp.MustCompile(`\{[^{}]*(?:\{[^{}]*\}[^{}]*)*\}`)

// Flush rescues any trailing JSON objects left in the buffer at stream end,
// for non-streaming callers that feed an entire body in one shot (spec §4.6).
func (p *CodeWhispererParser) Flush() []rmodel.ParserEvent {
	if len(p.buf) == 0 {
		return nil
	}
	remaining := string(p.buf)
	p.buf = nil

	var events []rmodel.ParserEvent
	for _, match := range flushJSONObject.FindAllString(remaining, -1) {
		var body map[string]any
		if err := json.Unmarshal([]byte(match), &body); err != nil {
			continue
		}
		if content, ok := body["content"].(string); ok && content != "" {
			events = append(events, rmodel.ParserEvent{Kind: rmodel.EventTextDelta, Text: content})
		}
	}
	return events
}
