package translator

import (
	"encoding/json"

	"github.com/Laisky/errors/v2"

	rmodel "github.com/relaygate/relaygate/relay/model"
)

// schemaConstraintKeys are JSON Schema keywords Gemini's function-calling
// parser rejects outright. They are stripped from the schema and folded into
// the tool's description as prose instead of being dropped silently.
var schemaConstraintKeys = []string{
	"$schema", "additionalProperties", "minLength", "maxLength",
	"minItems", "maxItems", "minimum", "maximum", "pattern", "format",
}

// BuildGeminiRequest implements the Request Translator's Gemini path: model
// mapping, content assembly and tool-schema adaptation (spec §4.4(a), (d)).
func BuildGeminiRequest(req *rmodel.ClaudeRequest, project, requestId, userAgent string) (*rmodel.GeminiRequest, error) {
	modelId := MapModelForGemini(req.Model)

	contents, err := buildGeminiContents(req.Messages)
	if err != nil {
		return nil, errors.Wrap(err, "build gemini contents")
	}

	tools, err := buildGeminiTools(req.Tools)
	if err != nil {
		return nil, errors.Wrap(err, "build gemini tools")
	}

	inner := rmodel.GeminiInner{
		Contents: contents,
		Tools:    tools,
	}
	if req.System != "" {
		inner.SystemInstruction = &rmodel.GeminiContent{
			Parts: []rmodel.GeminiPart{{Text: req.System}},
		}
	}
	if req.MaxTokens > 0 {
		inner.GenerationConfig = &rmodel.GeminiGenConfig{MaxOutputTokens: req.MaxTokens}
	}

	return &rmodel.GeminiRequest{
		Project:     project,
		RequestId:   requestId,
		Request:     inner,
		Model:       modelId,
		UserAgent:   userAgent,
		RequestType: "GenerateContent",
	}, nil
}

// buildGeminiContents walks the public message list, tracking tool-use names
// by id so a later tool_result block can be rendered as a named
// functionResponse part (Gemini, unlike CodeWhisperer, needs the name on
// the response side too).
func buildGeminiContents(messages []rmodel.Message) ([]rmodel.GeminiContent, error) {
	toolNameById := map[string]string{}
	contents := make([]rmodel.GeminiContent, 0, len(messages))

	for _, msg := range messages {
		role := geminiRole(msg.Role)
		parts := make([]rmodel.GeminiPart, 0, len(msg.Content))

		for _, b := range msg.Content {
			switch b.Type {
			case rmodel.BlockText:
				if b.Text != "" {
					parts = append(parts, rmodel.GeminiPart{Text: b.Text})
				}
			case rmodel.BlockImage:
				if b.Source != nil {
					parts = append(parts, rmodel.GeminiPart{InlineData: &rmodel.GeminiInlineData{
						MimeType: b.Source.MediaType, Data: b.Source.Data,
					}})
				}
			case rmodel.BlockToolUse:
				toolNameById[b.ToolUseId] = b.ToolName
				var args any
				_ = json.Unmarshal(b.ToolInput, &args)
				parts = append(parts, rmodel.GeminiPart{FunctionCall: &rmodel.GeminiFunctionCall{
					Name: b.ToolName, Args: args,
				}})
			case rmodel.BlockToolResult:
				name := toolNameById[b.ToolUseRefId]
				parts = append(parts, rmodel.GeminiPart{FunctionResponse: &rmodel.GeminiFunctionResult{
					Name:     name,
					Response: map[string]any{"content": toolResultText(b)},
				}})
			}
		}

		if len(parts) == 0 {
			continue
		}
		contents = append(contents, rmodel.GeminiContent{Role: role, Parts: parts})
	}

	return contents, nil
}

func geminiRole(role rmodel.Role) string {
	switch role {
	case rmodel.RoleAssistant:
		return "model"
	default:
		return "user"
	}
}

// buildGeminiTools adapts public tool schemas for Gemini, stripping
// constraint keywords the upstream parser rejects and folding them into the
// description as prose instead of discarding them (spec §4.4(d)).
func buildGeminiTools(tools []rmodel.ToolDefinition) ([]rmodel.GeminiTool, error) {
	if len(tools) == 0 {
		return nil, nil
	}

	decls := make([]rmodel.GeminiFunctionDecl, 0, len(tools))
	for _, t := range tools {
		var schema any
		if len(t.InputSchema) > 0 {
			if err := json.Unmarshal(t.InputSchema, &schema); err != nil {
				return nil, errors.Wrapf(err, "unmarshal schema for tool %s", t.Name)
			}
		}

		cleaned, notes := stripSchemaConstraints(schema)
		desc := t.Description
		for _, n := range notes {
			desc += "\n" + n
		}

		decls = append(decls, rmodel.GeminiFunctionDecl{
			Name:        t.Name,
			Description: desc,
			Parameters:  cleaned,
		})
	}

	return []rmodel.GeminiTool{{FunctionDeclarations: decls}}, nil
}

// stripSchemaConstraints recursively removes keys Gemini rejects, returning
// the cleaned schema plus human-readable notes describing what was removed
// so the constraint isn't silently lost (spec §4.4(d) design note).
func stripSchemaConstraints(schema any) (any, []string) {
	var notes []string
	cleaned := stripSchemaConstraintsRec(schema, "", &notes)
	return cleaned, notes
}

func stripSchemaConstraintsRec(node any, path string, notes *[]string) any {
	switch v := node.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			if isConstraintKey(key) {
				*notes = append(*notes, formatConstraintNote(path, key, val))
				continue
			}
			childPath := key
			if path != "" {
				childPath = path + "." + key
			}
			out[key] = stripSchemaConstraintsRec(val, childPath, notes)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			out[i] = stripSchemaConstraintsRec(elem, path, notes)
		}
		return out
	default:
		return v
	}
}

func isConstraintKey(key string) bool {
	for _, k := range schemaConstraintKeys {
		if k == key {
			return true
		}
	}
	return false
}

func formatConstraintNote(path, key string, val any) string {
	raw, err := json.Marshal(val)
	label := path
	if label == "" {
		label = "(root)"
	}
	if err != nil {
		return "Constraint " + label + "." + key + " removed for Gemini compatibility."
	}
	return "Constraint " + label + "." + key + "=" + string(raw) + " removed for Gemini compatibility."
}
