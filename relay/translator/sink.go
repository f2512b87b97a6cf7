package translator

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Laisky/errors/v2"

	rmodel "github.com/relaygate/relaygate/relay/model"
)

// EventSink is the capability the Response Translator FSM is parameterised
// over, so one state machine serves both public dialects without a
// near-duplicate translator (spec §9 DESIGN NOTES).
type EventSink interface {
	EmitMessageStart(modelID string) error
	EmitBlockStart(index int, block rmodel.ContentBlock) error
	EmitTextDelta(index int, text string) error
	EmitToolInputDelta(index int, partialJSON string) error
	EmitBlockStop(index int) error
	EmitMessageStop(usage rmodel.Usage, stopReason string) error
	EmitError(message string) error
}

// sseWriter is the shared low-level frame writer both sinks use.
type sseWriter struct {
	w http.ResponseWriter
}

func (s sseWriter) writeFrame(event string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal sse payload")
	}
	if event != "" {
		if _, err := fmt.Fprintf(s.w, "event: %s\n", event); err != nil {
			return errors.Wrap(err, "write sse event line")
		}
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", body); err != nil {
		return errors.Wrap(err, "write sse data line")
	}
	if f, ok := s.w.(interface{ Flush() }); ok {
		f.Flush()
	}
	return nil
}

// ClaudeSink emits the Claude-dialect public SSE vocabulary (spec §6).
type ClaudeSink struct {
	sseWriter
	messageId  string
	textOpen   map[int]bool
	toolOpen   map[int]bool
	openToolId map[string]int
}

func NewClaudeSink(w http.ResponseWriter, messageId string) *ClaudeSink {
	return &ClaudeSink{
		sseWriter:  sseWriter{w: w},
		messageId:  messageId,
		textOpen:   make(map[int]bool),
		toolOpen:   make(map[int]bool),
		openToolId: make(map[string]int),
	}
}

func (s *ClaudeSink) EmitMessageStart(modelID string) error {
	if err := s.writeFrame(rmodel.SSEMessageStart, rmodel.ClaudeMessageStart{
		Type: "message_start",
		Message: rmodel.ClaudeMsgMeta{
			Id:      s.messageId,
			Type:    "message",
			Role:    "assistant",
			Content: []rmodel.ContentBlock{},
			Model:   modelID,
		},
	}); err != nil {
		return err
	}
	return s.writeFrame(rmodel.SSEPing, map[string]string{"type": "ping"})
}

func (s *ClaudeSink) EmitBlockStart(index int, block rmodel.ContentBlock) error {
	if block.Type == rmodel.BlockToolUse {
		s.toolOpen[index] = true
		s.openToolId[block.ToolUseId] = index
	} else {
		s.textOpen[index] = true
	}
	return s.writeFrame(rmodel.SSEContentBlockStart, rmodel.ClaudeContentBlockStart{
		Type:         "content_block_start",
		Index:        index,
		ContentBlock: block,
	})
}

func (s *ClaudeSink) EmitTextDelta(index int, text string) error {
	return s.writeFrame(rmodel.SSEContentBlockDelta, rmodel.ClaudeContentBlockDelta{
		Type:  "content_block_delta",
		Index: index,
		Delta: rmodel.ClaudeDelta{Type: "text_delta", Text: text},
	})
}

func (s *ClaudeSink) EmitToolInputDelta(index int, partialJSON string) error {
	return s.writeFrame(rmodel.SSEContentBlockDelta, rmodel.ClaudeContentBlockDelta{
		Type:  "content_block_delta",
		Index: index,
		Delta: rmodel.ClaudeDelta{Type: "input_json_delta", PartialJson: partialJSON},
	})
}

func (s *ClaudeSink) EmitBlockStop(index int) error {
	delete(s.textOpen, index)
	delete(s.toolOpen, index)
	return s.writeFrame(rmodel.SSEContentBlockStop, rmodel.ClaudeContentBlockStop{
		Type: "content_block_stop", Index: index,
	})
}

func (s *ClaudeSink) EmitMessageStop(usage rmodel.Usage, stopReason string) error {
	if err := s.writeFrame(rmodel.SSEMessageDelta, rmodel.ClaudeMessageDelta{
		Type:  "message_delta",
		Delta: rmodel.ClaudeMessageDeltaBody{StopReason: &stopReason},
		Usage: rmodel.ClaudeUsage{InputTokens: usage.InputTokens, OutputTokens: usage.OutputTokens},
	}); err != nil {
		return err
	}
	return s.writeFrame(rmodel.SSEMessageStop, rmodel.ClaudeMessageStop{Type: "message_stop"})
}

func (s *ClaudeSink) EmitError(message string) error {
	return s.writeFrame(rmodel.SSEError, rmodel.ClaudeErrorFrame{
		Type:  "error",
		Error: rmodel.ClaudeErrorBody{Type: "api_error", Message: message},
	})
}

// OpenAISink emits OpenAI-compatible chat-completion chunks, rebuilding
// bracket-format tool calls via the legacy parser (spec §4.7 Legacy/OpenAI
// path).
type OpenAISink struct {
	sseWriter
	chunkId      string
	modelID      string
	createdAt    int64
	roleSent     bool
	openToolCall map[int]string // index -> tool call id, for assembling Arguments
	bracket      *bracketParser
}

func NewOpenAISink(w http.ResponseWriter, chunkId, modelID string, createdAt int64) *OpenAISink {
	return &OpenAISink{
		sseWriter:    sseWriter{w: w},
		chunkId:      chunkId,
		modelID:      modelID,
		createdAt:    createdAt,
		openToolCall: make(map[int]string),
		bracket:      newBracketParser(),
	}
}

func (s *OpenAISink) writeChunk(choice rmodel.OpenAIChatChoice, usage *rmodel.OpenAIChatUsage) error {
	return s.writeFrame("", rmodel.OpenAIChatChunk{
		Id:      s.chunkId,
		Object:  "chat.completion.chunk",
		Created: s.createdAt,
		Model:   s.modelID,
		Choices: []rmodel.OpenAIChatChoice{choice},
		Usage:   usage,
	})
}

func (s *OpenAISink) EmitMessageStart(modelID string) error {
	s.modelID = modelID
	s.roleSent = true
	return s.writeChunk(rmodel.OpenAIChatChoice{
		Index: 0,
		Delta: rmodel.OpenAIChatDelta{Role: "assistant"},
	}, nil)
}

func (s *OpenAISink) EmitBlockStart(index int, block rmodel.ContentBlock) error {
	if block.Type == rmodel.BlockToolUse {
		s.openToolCall[index] = block.ToolUseId
		return s.writeChunk(rmodel.OpenAIChatChoice{
			Index: 0,
			Delta: rmodel.OpenAIChatDelta{ToolCalls: []rmodel.OpenAIToolCallDelta{{
				Index:    index,
				Id:       block.ToolUseId,
				Type:     "function",
				Function: rmodel.OpenAIFunctionDelta{Name: block.ToolName},
			}}},
		}, nil)
	}
	return nil
}

func (s *OpenAISink) EmitTextDelta(index int, text string) error {
	calls, plain := s.bracket.Feed(text)
	for _, call := range calls {
		if err := s.writeChunk(rmodel.OpenAIChatChoice{
			Index: 0,
			Delta: rmodel.OpenAIChatDelta{ToolCalls: []rmodel.OpenAIToolCallDelta{{
				Index:    index,
				Id:       call.Name,
				Type:     "function",
				Function: rmodel.OpenAIFunctionDelta{Name: call.Name, Arguments: string(call.Arguments)},
			}}},
		}, nil); err != nil {
			return err
		}
	}
	if plain == "" {
		return nil
	}
	return s.writeChunk(rmodel.OpenAIChatChoice{
		Index: 0,
		Delta: rmodel.OpenAIChatDelta{Content: plain},
	}, nil)
}

func (s *OpenAISink) EmitToolInputDelta(index int, partialJSON string) error {
	return s.writeChunk(rmodel.OpenAIChatChoice{
		Index: 0,
		Delta: rmodel.OpenAIChatDelta{ToolCalls: []rmodel.OpenAIToolCallDelta{{
			Index:    index,
			Function: rmodel.OpenAIFunctionDelta{Arguments: partialJSON},
		}}},
	}, nil)
}

func (s *OpenAISink) EmitBlockStop(int) error {
	return nil
}

func (s *OpenAISink) EmitMessageStop(usage rmodel.Usage, stopReason string) error {
	reason := "stop"
	if stopReason == "tool_use" {
		reason = "tool_calls"
	}
	if err := s.writeChunk(rmodel.OpenAIChatChoice{
		Index:        0,
		Delta:        rmodel.OpenAIChatDelta{},
		FinishReason: &reason,
	}, &rmodel.OpenAIChatUsage{
		PromptTokens:     usage.InputTokens,
		CompletionTokens: usage.OutputTokens,
		TotalTokens:      usage.InputTokens + usage.OutputTokens,
	}); err != nil {
		return err
	}
	_, err := fmt.Fprint(s.w, "data: [DONE]\n\n")
	if f, ok := s.w.(interface{ Flush() }); ok {
		f.Flush()
	}
	return errors.WithStack(err)
}

func (s *OpenAISink) EmitError(message string) error {
	return s.writeChunk(rmodel.OpenAIChatChoice{
		Index: 0,
		Delta: rmodel.OpenAIChatDelta{Content: "[error] " + message},
	}, nil)
}
