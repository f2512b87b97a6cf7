package model

// CodeWhispererRequest is the CodeWhisperer wire request body (spec §3
// "Provider-native request (CodeWhisperer)").
type CodeWhispererRequest struct {
	ConversationState ConversationState `json:"conversationState"`
	ProfileArn        string            `json:"profileArn,omitempty"`
}

type ConversationState struct {
	ConversationId string          `json:"conversationId"`
	History        []HistoryEntry  `json:"history"`
	CurrentMessage CurrentMessage  `json:"currentMessage"`
}

// HistoryEntry holds exactly one of UserInputMessage or AssistantResponseMessage,
// alternating strictly (spec §4.4(b)).
type HistoryEntry struct {
	UserInputMessage        *UserInputMessage        `json:"userInputMessage,omitempty"`
	AssistantResponseMessage *AssistantResponseMessage `json:"assistantResponseMessage,omitempty"`
}

type CurrentMessage struct {
	UserInputMessage UserInputMessage `json:"userInputMessage"`
}

type UserInputMessage struct {
	Content             string                  `json:"content"`
	ModelId             string                  `json:"modelId"`
	Origin              string                  `json:"origin"`
	UserInputMessageContext UserInputMessageContext `json:"userInputMessageContext"`
	Images              []CodeWhispererImage    `json:"images,omitempty"`
}

type UserInputMessageContext struct {
	EnvState    EnvState          `json:"envState"`
	Tools       []CodeWhispererTool `json:"tools,omitempty"`
	ToolResults []ToolResultEntry `json:"toolResults,omitempty"`
}

type EnvState struct {
	OperatingSystem         string `json:"operatingSystem"`
	CurrentWorkingDirectory string `json:"currentWorkingDirectory"`
}

type CodeWhispererTool struct {
	ToolSpecification ToolSpecification `json:"toolSpecification"`
}

type ToolSpecification struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"inputSchema"`
}

type InputSchema struct {
	Json any `json:"json"`
}

type ToolResultEntry struct {
	ToolUseId string              `json:"toolUseId"`
	Content   []ToolResultContent `json:"content"`
	Status    string              `json:"status,omitempty"`
}

type ToolResultContent struct {
	Text string `json:"text,omitempty"`
}

type AssistantResponseMessage struct {
	Content  string     `json:"content"`
	ToolUses []ToolUse  `json:"toolUses,omitempty"`
}

type ToolUse struct {
	ToolUseId string `json:"toolUseId"`
	Name      string `json:"name"`
	Input     any    `json:"input"`
}

// CodeWhispererImage is the re-encoded image block placed on
// userInputMessage.images (spec §4.4(c)).
type CodeWhispererImage struct {
	Format string                   `json:"format"`
	Source CodeWhispererImageSource `json:"source"`
}

type CodeWhispererImageSource struct {
	Bytes string `json:"bytes"`
}
