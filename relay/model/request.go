package model

import "encoding/json"

// ToolDefinition is the public (Claude/OpenAI) tool schema a client supplies.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// ClaudeRequest is the public request body for /v1/messages and
// /v1/gemini/messages (spec §4.8).
type ClaudeRequest struct {
	Model     string           `json:"model"`
	Messages  []Message        `json:"messages"`
	System    string           `json:"system,omitempty"`
	MaxTokens int              `json:"max_tokens,omitempty"`
	Stream    bool             `json:"stream,omitempty"`
	Tools     []ToolDefinition `json:"tools,omitempty"`
}

// OpenAIChatMessage mirrors Message for the /v1/chat/completions surface;
// OpenAI clients send role/content objects without the Claude block schema,
// so plain strings are the common case and are normalised the same way.
type OpenAIChatMessage = Message

// OpenAIChatRequest is the public request body for /v1/chat/completions.
type OpenAIChatRequest struct {
	Model     string             `json:"model"`
	Messages  []OpenAIChatMessage `json:"messages"`
	Stream    bool               `json:"stream,omitempty"`
	MaxTokens int                `json:"max_tokens,omitempty"`
	Tools     []ToolDefinition   `json:"tools,omitempty"`
}

// RequestContext groups the per-in-flight-request state (spec §3 "Request
// context"). No package references it: the Router, Translator, Upstream
// Client and Response Translator take these values as plain arguments.
type RequestContext struct {
	ConversationId string
	RequestedModel string
	Channel        string // "codewhisperer" | "gemini"

	InputTokens  int
	OutputTokens int
}
