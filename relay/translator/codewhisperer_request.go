package translator

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"

	"github.com/relaygate/relaygate/common/logger"
	rmodel "github.com/relaygate/relaygate/relay/model"
)

const (
	toolDescriptionLimit    = 10240
	toolDescriptionTruncate = 10100
	placeholderAssistant    = "I understand."
	placeholderUser         = "Continuing."
)

// BuildCodeWhispererRequest implements the Request Translator's CodeWhisperer
// path: model mapping, history normalisation and current-message assembly
// (spec §4.4).
func BuildCodeWhispererRequest(req *rmodel.ClaudeRequest, conversationId, profileArn, origin string) (*rmodel.CodeWhispererRequest, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("no messages to translate")
	}

	modelId := MapModelForCodeWhisperer(req.Model)
	history := req.Messages[:len(req.Messages)-1]
	current := req.Messages[len(req.Messages)-1]

	entries, err := normalizeHistory(history)
	if err != nil {
		return nil, errors.Wrap(err, "normalize history")
	}

	content, images, toolResults, err := assembleCurrentMessage(req.System, current, req.Tools)
	if err != nil {
		return nil, errors.Wrap(err, "assemble current message")
	}

	tools, err := buildCodeWhispererTools(req.Tools)
	if err != nil {
		return nil, errors.Wrap(err, "build tool specs")
	}

	if err := validateAlternation(entries); err != nil {
		return nil, errors.Wrap(err, "history failed alternation invariant")
	}

	return &rmodel.CodeWhispererRequest{
		ConversationState: rmodel.ConversationState{
			ConversationId: conversationId,
			History:        entries,
			CurrentMessage: rmodel.CurrentMessage{
				UserInputMessage: rmodel.UserInputMessage{
					Content: content,
					ModelId: modelId,
					Origin:  origin,
					UserInputMessageContext: rmodel.UserInputMessageContext{
						EnvState: rmodel.EnvState{
							OperatingSystem:         "macos",
							CurrentWorkingDirectory: "/",
						},
						Tools:       tools,
						ToolResults: toolResults,
					},
					Images: images,
				},
			},
		},
		ProfileArn: profileArn,
	}, nil
}

// normalizeHistory collapses consecutive user turns, renders assistant
// tool-use as structured toolUses, and inserts alternation placeholders
// (spec §4.4(b) steps 2-4).
func normalizeHistory(messages []rmodel.Message) ([]rmodel.HistoryEntry, error) {
	var entries []rmodel.HistoryEntry

	i := 0
	for i < len(messages) {
		msg := messages[i]
		switch msg.Role {
		case rmodel.RoleUser, rmodel.RoleTool:
			text := flattenUserContent(msg)
			j := i + 1
			for j < len(messages) && (messages[j].Role == rmodel.RoleUser || messages[j].Role == rmodel.RoleTool) {
				next := flattenUserContent(messages[j])
				if next != "" {
					if text != "" {
						text += "\n\n"
					}
					text += next
				}
				j++
			}
			entries = append(entries, rmodel.HistoryEntry{UserInputMessage: &rmodel.UserInputMessage{
				Content: text,
				UserInputMessageContext: rmodel.UserInputMessageContext{
					EnvState: rmodel.EnvState{OperatingSystem: "macos", CurrentWorkingDirectory: "/"},
				},
			}})
			i = j
		case rmodel.RoleAssistant:
			entries = append(entries, rmodel.HistoryEntry{AssistantResponseMessage: &rmodel.AssistantResponseMessage{
				Content:  msg.TextOnly(),
				ToolUses: extractToolUses(msg),
			}})
			i++
		default:
			i++
		}
	}

	return insertAlternationPlaceholders(entries), nil
}

func flattenUserContent(msg rmodel.Message) string {
	var parts []string
	for _, b := range msg.Content {
		switch b.Type {
		case rmodel.BlockText:
			if b.Text != "" {
				parts = append(parts, b.Text)
			}
		case rmodel.BlockToolResult:
			parts = append(parts, fmt.Sprintf("[Tool result for %s]: %s", b.ToolUseRefId, toolResultText(b)))
		}
	}
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "\n\n"
		}
		out += p
	}
	return out
}

func toolResultText(b rmodel.ContentBlock) string {
	if len(b.ToolResultContent) == 0 {
		return ""
	}
	var asString string
	if json.Unmarshal(b.ToolResultContent, &asString) == nil {
		return asString
	}
	var blocks []rmodel.ContentBlock
	if json.Unmarshal(b.ToolResultContent, &blocks) == nil {
		out := ""
		for _, inner := range blocks {
			if inner.Type == rmodel.BlockText {
				out += inner.Text
			}
		}
		return out
	}
	return string(b.ToolResultContent)
}

func extractToolUses(msg rmodel.Message) []rmodel.ToolUse {
	var out []rmodel.ToolUse
	for _, b := range msg.Content {
		if b.Type == rmodel.BlockToolUse {
			var input any
			_ = json.Unmarshal(b.ToolInput, &input)
			out = append(out, rmodel.ToolUse{ToolUseId: b.ToolUseId, Name: b.ToolName, Input: input})
		}
	}
	return out
}

func entryRole(e rmodel.HistoryEntry) rmodel.Role {
	if e.UserInputMessage != nil {
		return rmodel.RoleUser
	}
	return rmodel.RoleAssistant
}

// insertAlternationPlaceholders fills a gap with a synthetic turn whenever
// two neighbouring entries share a role (spec §4.4(b) step 4).
func insertAlternationPlaceholders(entries []rmodel.HistoryEntry) []rmodel.HistoryEntry {
	if len(entries) < 2 {
		return entries
	}
	out := []rmodel.HistoryEntry{entries[0]}
	for i := 1; i < len(entries); i++ {
		if entryRole(out[len(out)-1]) == entryRole(entries[i]) {
			if entryRole(entries[i]) == rmodel.RoleUser {
				out = append(out, rmodel.HistoryEntry{AssistantResponseMessage: &rmodel.AssistantResponseMessage{
					Content: placeholderAssistant,
				}})
			} else {
				out = append(out, rmodel.HistoryEntry{UserInputMessage: &rmodel.UserInputMessage{
					Content: placeholderUser,
					UserInputMessageContext: rmodel.UserInputMessageContext{
						EnvState: rmodel.EnvState{OperatingSystem: "macos", CurrentWorkingDirectory: "/"},
					},
				}})
			}
		}
		out = append(out, entries[i])
	}
	return out
}

// validateAlternation is the fatal check from spec §4.4(b) step 6.
func validateAlternation(entries []rmodel.HistoryEntry) error {
	for i := 1; i < len(entries); i++ {
		if entryRole(entries[i-1]) == entryRole(entries[i]) {
			return errors.Errorf("two consecutive %s entries at index %d", entryRole(entries[i]), i)
		}
	}
	return nil
}

// assembleCurrentMessage implements spec §4.4(c): sentinel framing, image
// re-encoding, and tool-result merging by toolUseId.
func assembleCurrentMessage(system string, current rmodel.Message, tools []rmodel.ToolDefinition) (string, []rmodel.CodeWhispererImage, []rmodel.ToolResultEntry, error) {
	userText := ""
	var toolResultBlocks []rmodel.ContentBlock
	var images []rmodel.CodeWhispererImage

	for _, b := range current.Content {
		switch b.Type {
		case rmodel.BlockText:
			if userText != "" {
				userText += "\n\n"
			}
			userText += b.Text
		case rmodel.BlockToolResult:
			toolResultBlocks = append(toolResultBlocks, b)
		case rmodel.BlockImage:
			if img, ok := encodeImage(b); ok {
				images = append(images, img)
			}
		}
	}

	toolResults := mergeToolResults(toolResultBlocks)

	isPureToolResult := userText == "" && len(toolResultBlocks) > 0
	if isPureToolResult {
		return "", images, toolResults, nil
	}

	var body string
	if system != "" {
		body += fmt.Sprintf("--- SYSTEM PROMPT BEGIN ---\n%s\n--- SYSTEM PROMPT END ---\n\n", system)
	}

	body += contextSentinel()

	for _, t := range tools {
		if len(t.Description) > toolDescriptionLimit {
			body += fmt.Sprintf("--- TOOL DOCUMENTATION BEGIN ---\n%s: %s\n--- TOOL DOCUMENTATION END ---\n\n", t.Name, t.Description)
		}
	}

	body += fmt.Sprintf("--- USER MESSAGE BEGIN ---\n%s\n--- USER MESSAGE END ---", userText)

	return body, images, toolResults, nil
}

func contextSentinel() string {
	now := time.Now()
	return fmt.Sprintf("--- CONTEXT ENTRY BEGIN ---\n%s %s\n--- CONTEXT ENTRY END ---\n\n",
		now.Weekday().String(), now.Format(time.RFC3339))
}

// mergeToolResults concatenates content for repeated toolUseId values so
// duplicates never reach the provider (spec §4.4(c) step 5, §8 uniqueness
// invariant).
func mergeToolResults(blocks []rmodel.ContentBlock) []rmodel.ToolResultEntry {
	order := []string{}
	byId := map[string]*rmodel.ToolResultEntry{}
	for _, b := range blocks {
		entry, ok := byId[b.ToolUseRefId]
		if !ok {
			entry = &rmodel.ToolResultEntry{ToolUseId: b.ToolUseRefId}
			if b.ToolResultIsError {
				entry.Status = "error"
			} else {
				entry.Status = "success"
			}
			byId[b.ToolUseRefId] = entry
			order = append(order, b.ToolUseRefId)
		}
		if text := toolResultText(b); text != "" {
			entry.Content = append(entry.Content, rmodel.ToolResultContent{Text: text})
		}
	}
	out := make([]rmodel.ToolResultEntry, 0, len(order))
	for _, id := range order {
		out = append(out, *byId[id])
	}
	return out
}

// encodeImage base64-validates and re-frames an image block (spec §4.4(c)
// image handling, §8 round-trip property). Invalid blocks are dropped with
// a log line rather than failing the whole translation.
func encodeImage(b rmodel.ContentBlock) (rmodel.CodeWhispererImage, bool) {
	if b.Source == nil {
		return rmodel.CodeWhispererImage{}, false
	}
	if _, err := base64.StdEncoding.DecodeString(b.Source.Data); err != nil {
		logger.Logger.Warn("dropping image block with invalid base64", zap.Error(err))
		return rmodel.CodeWhispererImage{}, false
	}
	format := imageFormatFromMediaType(b.Source.MediaType)
	return rmodel.CodeWhispererImage{
		Format: format,
		Source: rmodel.CodeWhispererImageSource{Bytes: b.Source.Data},
	}, true
}

func imageFormatFromMediaType(mediaType string) string {
	switch mediaType {
	case "image/png":
		return "png"
	case "image/jpeg", "image/jpg":
		return "jpeg"
	case "image/gif":
		return "gif"
	case "image/webp":
		return "webp"
	default:
		return "png"
	}
}

// buildCodeWhispererTools converts public tool definitions into
// CodeWhisperer tool specs, truncating oversized descriptions in-band (the
// full text is surfaced via the TOOL DOCUMENTATION sentinel instead;
// spec §4.4(c)).
func buildCodeWhispererTools(tools []rmodel.ToolDefinition) ([]rmodel.CodeWhispererTool, error) {
	if len(tools) == 0 {
		return nil, nil
	}
	out := make([]rmodel.CodeWhispererTool, 0, len(tools))
	for _, t := range tools {
		desc := t.Description
		if len(desc) > toolDescriptionLimit {
			desc = desc[:toolDescriptionTruncate]
		}
		var schema any
		if len(t.InputSchema) > 0 {
			if err := json.Unmarshal(t.InputSchema, &schema); err != nil {
				return nil, errors.Wrapf(err, "unmarshal schema for tool %s", t.Name)
			}
		}
		out = append(out, rmodel.CodeWhispererTool{ToolSpecification: rmodel.ToolSpecification{
			Name:        t.Name,
			Description: desc,
			InputSchema: rmodel.InputSchema{Json: schema},
		}})
	}
	return out, nil
}
