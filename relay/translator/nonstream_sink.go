package translator

import (
	rmodel "github.com/relaygate/relaygate/relay/model"
)

// OpenAINonStreamSink accumulates Response Translator FSM events into a
// single OpenAIChatResponse instead of writing SSE frames, for
// /v1/chat/completions requests with stream=false (spec §4.8).
type OpenAINonStreamSink struct {
	id        string
	modelID   string
	createdAt int64

	content      string
	toolCalls    []rmodel.OpenAIToolCallDelta
	toolArgs     map[string]*[]byte
	openToolCall map[int]string
	bracket      *bracketParser

	finishReason string
	usage        rmodel.OpenAIChatUsage
}

func NewOpenAINonStreamSink(id, modelID string, createdAt int64) *OpenAINonStreamSink {
	return &OpenAINonStreamSink{
		id:           id,
		modelID:      modelID,
		createdAt:    createdAt,
		toolArgs:     make(map[string]*[]byte),
		openToolCall: make(map[int]string),
		bracket:      newBracketParser(),
	}
}

func (s *OpenAINonStreamSink) EmitMessageStart(modelID string) error {
	s.modelID = modelID
	return nil
}

func (s *OpenAINonStreamSink) EmitBlockStart(index int, block rmodel.ContentBlock) error {
	if block.Type != rmodel.BlockToolUse {
		return nil
	}
	s.openToolCall[index] = block.ToolUseId
	buf := make([]byte, 0)
	s.toolArgs[block.ToolUseId] = &buf
	s.toolCalls = append(s.toolCalls, rmodel.OpenAIToolCallDelta{
		Index:    index,
		Id:       block.ToolUseId,
		Type:     "function",
		Function: rmodel.OpenAIFunctionDelta{Name: block.ToolName},
	})
	return nil
}

func (s *OpenAINonStreamSink) EmitTextDelta(index int, text string) error {
	calls, plain := s.bracket.Feed(text)
	for _, call := range calls {
		s.toolCalls = append(s.toolCalls, rmodel.OpenAIToolCallDelta{
			Index:    index,
			Id:       call.Name,
			Type:     "function",
			Function: rmodel.OpenAIFunctionDelta{Name: call.Name, Arguments: string(call.Arguments)},
		})
	}
	s.content += plain
	return nil
}

func (s *OpenAINonStreamSink) EmitToolInputDelta(index int, partialJSON string) error {
	toolId, ok := s.openToolCall[index]
	if !ok {
		return nil
	}
	buf := s.toolArgs[toolId]
	*buf = append(*buf, partialJSON...)
	return nil
}

func (s *OpenAINonStreamSink) EmitBlockStop(index int) error {
	toolId, ok := s.openToolCall[index]
	if !ok {
		return nil
	}
	args := s.toolArgs[toolId]
	for i := range s.toolCalls {
		if s.toolCalls[i].Id == toolId {
			s.toolCalls[i].Function.Arguments = string(*args)
		}
	}
	return nil
}

func (s *OpenAINonStreamSink) EmitMessageStop(usage rmodel.Usage, stopReason string) error {
	reason := "stop"
	if stopReason == "tool_use" {
		reason = "tool_calls"
	}
	s.finishReason = reason
	s.usage = rmodel.OpenAIChatUsage{
		PromptTokens:     usage.InputTokens,
		CompletionTokens: usage.OutputTokens,
		TotalTokens:      usage.InputTokens + usage.OutputTokens,
	}
	return nil
}

func (s *OpenAINonStreamSink) EmitError(message string) error {
	s.finishReason = "stop"
	s.content = "[error] " + message
	return nil
}

// Response builds the final non-streaming body once the FSM has finished.
func (s *OpenAINonStreamSink) Response() rmodel.OpenAIChatResponse {
	msg := rmodel.OpenAIChatRespMsg{Role: "assistant"}
	if s.content != "" {
		msg.Content = s.content
	}
	if len(s.toolCalls) > 0 {
		msg.ToolCalls = s.toolCalls
	}
	return rmodel.OpenAIChatResponse{
		Id:      s.id,
		Object:  "chat.completion",
		Created: s.createdAt,
		Model:   s.modelID,
		Choices: []rmodel.OpenAIChatMessageChoice{{
			Index:        0,
			Message:      msg,
			FinishReason: s.finishReason,
		}},
		Usage: s.usage,
	}
}
