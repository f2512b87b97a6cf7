// Package model defines the provider-agnostic request/response shapes shared
// by every translator, adaptor and controller in the gateway.
package model

import (
	"encoding/json"

	"github.com/Laisky/errors/v2"
)

// Role is one of the four public message roles (spec §3).
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// BlockType discriminates the tagged union a message's content is built from.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockImage      BlockType = "image"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// ImageSource carries an inline base64-encoded image (spec §3 image blocks).
type ImageSource struct {
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// ContentBlock is one tagged-union element of a message's content list.
// Exactly the fields relevant to Type are populated; the rest are zero.
type ContentBlock struct {
	Type BlockType `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// image
	Source *ImageSource `json:"source,omitempty"`

	// tool_use
	ToolUseId string          `json:"id,omitempty"`
	ToolName  string          `json:"name,omitempty"`
	ToolInput json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseRefId string `json:"tool_use_id,omitempty"`
	// ToolResultContent may itself be plain text or a list of ContentBlock;
	// callers that need the structured form should type-switch on the
	// decoded json.RawMessage rather than assuming a string.
	ToolResultContent json.RawMessage `json:"content,omitempty"`
	ToolResultIsError bool            `json:"is_error,omitempty"`
}

// Message is one turn in the public conversation. Content is either a plain
// string (UnmarshalJSON below normalizes it into a single text block) or a
// list of ContentBlock (spec §3, §9 "dynamically typed message content").
type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"-"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	type wire struct {
		Role    Role           `json:"role"`
		Content []ContentBlock `json:"content"`
	}
	return json.Marshal(wire{Role: m.Role, Content: m.Content})
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var probe struct {
		Role    Role            `json:"role"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return errors.Wrap(err, "unmarshal message envelope")
	}
	m.Role = probe.Role

	if len(probe.Content) == 0 {
		return nil
	}

	switch probe.Content[0] {
	case '"':
		var text string
		if err := json.Unmarshal(probe.Content, &text); err != nil {
			return errors.Wrap(err, "unmarshal string content")
		}
		m.Content = []ContentBlock{{Type: BlockText, Text: text}}
	case '[':
		var blocks []ContentBlock
		if err := json.Unmarshal(probe.Content, &blocks); err != nil {
			return errors.Wrap(err, "unmarshal block-list content")
		}
		m.Content = blocks
	default:
		return errors.Errorf("message content must be string or array, role=%s", m.Role)
	}
	return nil
}

// TextOnly concatenates every text block's content with blank-line
// separators, used by history normalisation and token estimation.
func (m Message) TextOnly() string {
	var out string
	for _, b := range m.Content {
		if b.Type == BlockText && b.Text != "" {
			if out != "" {
				out += "\n\n"
			}
			out += b.Text
		}
	}
	return out
}
