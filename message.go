package letsim

import "time"

// Message is a sealed interface representing a conversation message.
// The unexported marker method prevents external implementations.
// Role() returns the message's role without requiring a type switch.
type Message interface {
	isMessage()
	Role() Role
}

// SystemMessage carries the system prompt. It is normally the first entry of
// a session's log.
type SystemMessage struct {
	Content string
}

func (SystemMessage) isMessage() {}

// Role returns RoleSystem.
func (SystemMessage) Role() Role { return RoleSystem }

// UserMessage represents a message from the user.
type UserMessage struct {
	Content   string
	Timestamp time.Time
}

func (UserMessage) isMessage() {}

// Role returns RoleUser.
func (UserMessage) Role() Role { return RoleUser }

// AssistantMessage represents a message from the assistant. Content may be
// empty when the model only requested tool calls.
type AssistantMessage struct {
	Content    string
	ToolCalls  []ToolCall
	StopReason StopReason
	// RawStopReason is the provider's finish_reason verbatim.
	RawStopReason string
	Usage         Usage
	Timestamp     time.Time
}

func (AssistantMessage) isMessage() {}

// Role returns RoleAssistant.
func (AssistantMessage) Role() Role { return RoleAssistant }

// ToolMessage carries the result of one tool call back to the model.
type ToolMessage struct {
	ToolCallID string
	Name       string
	Content    string
	IsError    bool
	Timestamp  time.Time
}

func (ToolMessage) isMessage() {}

// Role returns RoleTool.
func (ToolMessage) Role() Role { return RoleTool }

// ToolCall is one slot of the tool-call accumulator. Arguments is built by
// appending fragments in arrival order and is only guaranteed to be valid
// JSON once the stream has ended.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Interface compliance checks.
var (
	_ Message = SystemMessage{}
	_ Message = UserMessage{}
	_ Message = AssistantMessage{}
	_ Message = ToolMessage{}
)
