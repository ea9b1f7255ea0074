package letsim

import (
	"fmt"
	"strings"
)

// Request carries model selection and the message log for one model call.
// The provider uses its own defaults when fields are zero/nil.
type Request struct {
	Model       string // model ID; "/" routes to OpenRouter at the relay
	Messages    []Message
	Tools       []Tool
	ToolChoice  string   // "auto" when Tools is non-empty
	MaxTokens   int      // 0 = provider default
	Temperature *float64 // nil = provider default
}

// Validate checks universal constraints on Request.
// Provider implementations may apply additional provider-specific validation.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Model) == "" {
		return fmt.Errorf("model is required: %w", ErrValidation)
	}
	if len(r.Messages) == 0 {
		return fmt.Errorf("at least one message is required: %w", ErrValidation)
	}
	if r.Temperature != nil {
		if *r.Temperature < 0 || *r.Temperature > 2 {
			return fmt.Errorf("temperature must be in [0, 2], got %g: %w", *r.Temperature, ErrValidation)
		}
	}
	if r.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be non-negative, got %d: %w", r.MaxTokens, ErrValidation)
	}
	for i, msg := range r.Messages {
		if err := ValidateMessage(msg); err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
	}
	return nil
}

// ValidateMessage checks role-specific constraints of a message.
func ValidateMessage(msg Message) error {
	switch m := msg.(type) {
	case SystemMessage, UserMessage:
		return nil
	case AssistantMessage:
		for i, tc := range m.ToolCalls {
			if tc.Name == "" {
				return fmt.Errorf("tool call %d has no name: %w", i, ErrValidation)
			}
		}
		return nil
	case ToolMessage:
		if m.ToolCallID == "" && m.Name == "" {
			return fmt.Errorf("tool message needs a tool_call_id or name: %w", ErrValidation)
		}
		return nil
	default:
		return fmt.Errorf("unknown message type %T: %w", msg, ErrValidation)
	}
}
