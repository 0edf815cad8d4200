// Package llm defines the provider-agnostic chat message model and the
// streaming client contract every concrete LLM backend implements.
package llm

import (
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Message is a single turn in a conversation. Role is one of "system",
// "user", "assistant", "tool".
type Message struct {
	ID        string         `json:"id,omitempty"`
	Role      string         `json:"role"`
	Content   []ContentBlock `json:"content"`
	Timestamp int64          `json:"timestamp,omitempty"`

	// ToolCalls carries tool-invocation requests produced by the LLM; only
	// meaningful on an "assistant" message.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// ToolCallID links a "tool" role message back to the call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
	// ToolName carries the name of the tool a "tool" role message answers,
	// needed by providers (Gemini) that address tool results by name rather
	// than by id.
	ToolName string `json:"tool_name,omitempty"`
}

// ToolCall is a single tool invocation request produced by the LLM.
type ToolCall struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Function FunctionCall `json:"function"`

	// ProviderMetadata carries provider-specific bookkeeping that must
	// survive a checkpoint round-trip (e.g. Gemini's thought signature).
	ProviderMetadata map[string]any `json:"provider_metadata,omitempty"`
	// Meta carries provider-specific live objects that must NOT be
	// serialized (e.g. the original SDK struct, for exact reconstruction
	// within the same process).
	Meta map[string]any `json:"-"`
}

// FunctionCall names the tool and carries its arguments as a JSON string.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ContentBlock is one atomic unit of message content.
type ContentBlock struct {
	Type   string       `json:"type"` // "text", "thinking", "image", "error"
	Text   string       `json:"text,omitempty"`
	Source *ImageSource `json:"source,omitempty"`
}

// ImageSource describes the origin of an image content block.
type ImageSource struct {
	Type      string `json:"type"` // "base64" | "url" | "file"
	MediaType string `json:"media_type"`
	Data      []byte `json:"-"`
	URL       string `json:"url,omitempty"`
	Path      string `json:"path,omitempty"`
}

// StreamChunk is one increment of a streamed LLM response.
type StreamChunk struct {
	ContentBlocks []ContentBlock `json:"content_blocks,omitempty"`
	ToolCalls     []ToolCall     `json:"tool_calls,omitempty"`
	IsFinal       bool           `json:"is_final"`
	FinishReason  string         `json:"finish_reason,omitempty"`
	Usage         *Usage         `json:"usage,omitempty"`
	// Err, when non-nil, marks a mid-stream failure the caller should
	// surface to the user without tearing down the whole session.
	Err error `json:"-"`
}

// Usage carries token accounting for a single completion.
type Usage struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	StopReason       string `json:"stop_reason,omitempty"`
}

func NewTextMessage(role, text string) Message {
	return Message{
		Role:      role,
		Content:   []ContentBlock{{Type: BlockTypeText, Text: text}},
		Timestamp: time.Now().Unix(),
	}
}

func NewSystemMessage(text string) Message    { return NewTextMessage("system", text) }
func NewUserMessage(text string) Message      { return NewTextMessage("user", text) }
func NewAssistantMessage(text string) Message { return NewTextMessage("assistant", text) }

func NewTextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockTypeText, Text: text}
}

// GetTextContent concatenates every text block in the message, skipping
// thinking and error blocks.
func (m *Message) GetTextContent() string {
	var out string
	for _, b := range m.Content {
		if b.Type == BlockTypeText {
			out += b.Text
		}
	}
	return out
}

// HasPendingToolCalls reports whether this message requests tool execution.
func (m *Message) HasPendingToolCalls() bool {
	return len(m.ToolCalls) > 0
}
