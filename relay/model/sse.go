package model

// ParserEventKind enumerates the Event-Stream Parser's typed output
// (spec §4.6).
type ParserEventKind string

const (
	EventMessageStart   ParserEventKind = "message_start"
	EventTextDelta      ParserEventKind = "text_delta"
	EventAssistantEnd   ParserEventKind = "assistant_end"
	EventToolUseFragment ParserEventKind = "tool_use_fragment"
	EventRaw            ParserEventKind = "raw"
	EventDone           ParserEventKind = "done"
)

// ParserEvent is the lazy-sequence unit yielded by both event-stream
// dialects. Only the fields relevant to Kind are populated.
type ParserEvent struct {
	Kind ParserEventKind

	ConversationId string
	Text           string
	ToolUses       []ToolUse

	ToolUseId     string
	ToolName      string
	InputFragment string
	Stop          bool

	Raw []byte

	Usage *Usage
}

// Usage is the trailing token accounting optionally attached to a parser
// event stream (spec §4.6, §4.7 Token accounting).
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ClaudeSSEEvent names are the public Claude dialect vocabulary (spec §6).
const (
	SSEMessageStart       = "message_start"
	SSEPing               = "ping"
	SSEContentBlockStart  = "content_block_start"
	SSEContentBlockDelta  = "content_block_delta"
	SSEContentBlockStop   = "content_block_stop"
	SSEMessageDelta       = "message_delta"
	SSEMessageStop        = "message_stop"
	SSEError              = "error"
)

// ClaudeMessageStart is the message_start event payload.
type ClaudeMessageStart struct {
	Type    string       `json:"type"`
	Message ClaudeMsgMeta `json:"message"`
}

type ClaudeMsgMeta struct {
	Id           string        `json:"id"`
	Type         string        `json:"type"`
	Role         string        `json:"role"`
	Content      []ContentBlock `json:"content"`
	Model        string        `json:"model"`
	StopReason   *string       `json:"stop_reason"`
	StopSequence *string       `json:"stop_sequence"`
	Usage        ClaudeUsage   `json:"usage"`
}

type ClaudeUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type ClaudeContentBlockStart struct {
	Type         string       `json:"type"`
	Index        int          `json:"index"`
	ContentBlock ContentBlock `json:"content_block"`
}

type ClaudeContentBlockDelta struct {
	Type  string     `json:"type"`
	Index int        `json:"index"`
	Delta ClaudeDelta `json:"delta"`
}

type ClaudeDelta struct {
	Type        string `json:"type"` // text_delta | input_json_delta
	Text        string `json:"text,omitempty"`
	PartialJson string `json:"partial_json,omitempty"`
}

type ClaudeContentBlockStop struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
}

type ClaudeMessageDelta struct {
	Type  string            `json:"type"`
	Delta ClaudeMessageDeltaBody `json:"delta"`
	Usage ClaudeUsage       `json:"usage"`
}

type ClaudeMessageDeltaBody struct {
	StopReason   *string `json:"stop_reason"`
	StopSequence *string `json:"stop_sequence"`
}

type ClaudeMessageStop struct {
	Type string `json:"type"`
}

type ClaudeErrorFrame struct {
	Type  string          `json:"type"`
	Error ClaudeErrorBody `json:"error"`
}

type ClaudeErrorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// OpenAIChatChunk is one streamed chunk for /v1/chat/completions.
type OpenAIChatChunk struct {
	Id      string               `json:"id"`
	Object  string               `json:"object"`
	Created int64                `json:"created"`
	Model   string               `json:"model"`
	Choices []OpenAIChatChoice   `json:"choices"`
	Usage   *OpenAIChatUsage     `json:"usage,omitempty"`
}

type OpenAIChatChoice struct {
	Index        int               `json:"index"`
	Delta        OpenAIChatDelta   `json:"delta"`
	FinishReason *string           `json:"finish_reason"`
}

type OpenAIChatDelta struct {
	Role      string               `json:"role,omitempty"`
	Content   string               `json:"content,omitempty"`
	ToolCalls []OpenAIToolCallDelta `json:"tool_calls,omitempty"`
}

type OpenAIToolCallDelta struct {
	Index    int                  `json:"index"`
	Id       string               `json:"id,omitempty"`
	Type     string               `json:"type,omitempty"`
	Function OpenAIFunctionDelta  `json:"function"`
}

type OpenAIFunctionDelta struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type OpenAIChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// OpenAIChatResponse is the non-streaming /v1/chat/completions body, used
// when the request's stream flag is false (spec §4.8).
type OpenAIChatResponse struct {
	Id      string                   `json:"id"`
	Object  string                   `json:"object"`
	Created int64                    `json:"created"`
	Model   string                   `json:"model"`
	Choices []OpenAIChatMessageChoice `json:"choices"`
	Usage   OpenAIChatUsage          `json:"usage"`
}

type OpenAIChatMessageChoice struct {
	Index        int                `json:"index"`
	Message      OpenAIChatRespMsg  `json:"message"`
	FinishReason string             `json:"finish_reason"`
}

type OpenAIChatRespMsg struct {
	Role      string                 `json:"role"`
	Content   string                 `json:"content,omitempty"`
	ToolCalls []OpenAIToolCallDelta  `json:"tool_calls,omitempty"`
}
