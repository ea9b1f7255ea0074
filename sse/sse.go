// Package sse decodes OpenAI-compatible chat-completion streams.
//
// A [Decoder] is fed raw body chunks as they arrive. It buffers the
// incomplete trailing line between chunks, parses every complete
// `data: ` line, and turns the first choice's delta into
// [letsim.EventTextDelta] and [letsim.EventToolCallDelta] events while
// accumulating the final text and tool calls.
//
// Provider payloads are decoded field by field: a field with an unexpected
// shape is dropped on its own, and only a line that is not JSON at all is
// counted as skipped.
package sse

import "encoding/json"

const (
	dataPrefix = "data: "
	doneLine   = "data: [DONE]"
)

// wireChunk is one parsed `data:` payload. Every level is kept raw so that a
// malformed field does not discard its siblings.
type wireChunk struct {
	Choices []json.RawMessage `json:"choices"`
	Usage   json.RawMessage   `json:"usage"`
	Error   json.RawMessage   `json:"error"`
}

type wireChoice struct {
	Delta        json.RawMessage `json:"delta"`
	FinishReason json.RawMessage `json:"finish_reason"`
}

type wireDelta struct {
	Content   json.RawMessage   `json:"content"`
	ToolCalls []json.RawMessage `json:"tool_calls"`
}

type wireToolCall struct {
	Index    *int          `json:"index"`
	ID       *string       `json:"id"`
	Function *wireFunction `json:"function"`
}

type wireFunction struct {
	Name      *string `json:"name"`
	Arguments *string `json:"arguments"`
}

type wireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type wireError struct {
	Message string `json:"message"`
	Code    any    `json:"code"`
}
