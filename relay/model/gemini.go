package model

// GeminiRequest is the Gemini Cloud Assist wire request body (spec §3
// "Provider-native request (Gemini)").
type GeminiRequest struct {
	Project     string      `json:"project"`
	RequestId   string      `json:"requestId"`
	Request     GeminiInner `json:"request"`
	Model       string      `json:"model"`
	UserAgent   string      `json:"userAgent"`
	RequestType string      `json:"requestType"`
}

type GeminiInner struct {
	Contents          []GeminiContent    `json:"contents"`
	GenerationConfig  *GeminiGenConfig   `json:"generationConfig,omitempty"`
	SystemInstruction *GeminiContent     `json:"systemInstruction,omitempty"`
	Tools             []GeminiTool       `json:"tools,omitempty"`
	ToolConfig        *GeminiToolConfig  `json:"toolConfig,omitempty"`
}

type GeminiGenConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type GeminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []GeminiPart `json:"parts"`
}

// GeminiPart is a tagged union: exactly one of Text, InlineData, FunctionCall
// or FunctionResponse is populated.
type GeminiPart struct {
	Text             string                `json:"text,omitempty"`
	InlineData       *GeminiInlineData     `json:"inlineData,omitempty"`
	FunctionCall     *GeminiFunctionCall   `json:"functionCall,omitempty"`
	FunctionResponse *GeminiFunctionResult `json:"functionResponse,omitempty"`
}

type GeminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type GeminiFunctionCall struct {
	Name string `json:"name"`
	Args any    `json:"args"`
}

type GeminiFunctionResult struct {
	Name     string `json:"name"`
	Response any    `json:"response"`
}

type GeminiTool struct {
	FunctionDeclarations []GeminiFunctionDecl `json:"functionDeclarations"`
}

type GeminiFunctionDecl struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
}

type GeminiToolConfig struct {
	FunctionCallingConfig *GeminiFunctionCallingConfig `json:"functionCallingConfig,omitempty"`
}

type GeminiFunctionCallingConfig struct {
	Mode string `json:"mode,omitempty"`
}

// GeminiStreamChunk is one `data:` payload from the streamGenerateContent SSE
// response (spec §4.6 Google SSE).
type GeminiStreamChunk struct {
	Response GeminiResponse `json:"response"`
}

type GeminiResponse struct {
	Candidates    []GeminiCandidate   `json:"candidates"`
	UsageMetadata *GeminiUsageMetadata `json:"usageMetadata,omitempty"`
}

type GeminiCandidate struct {
	Content      GeminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type GeminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
}

// GeminiQuotaSnapshot is the fetchAvailableModels response shape used to
// refresh the Quota Ledger (spec §3 Quota Ledger, §4.5 Upstream Client).
type GeminiQuotaSnapshot struct {
	Models []GeminiModelQuota `json:"models"`
}

type GeminiModelQuota struct {
	ModelId           string  `json:"modelId"`
	RemainingFraction float64 `json:"remainingFraction"`
	RemainingPercent  float64 `json:"remainingPercent"`
	ResetTime         string  `json:"resetTime"`
}
