package letsim

// Event is a sealed interface representing a streaming event.
// Events are purely semantic. Transport/protocol errors come from
// Next()'s error return, not from events.
// The unexported marker method prevents external implementations.
type Event interface {
	event()
}

// EventTextDelta represents a text content delta.
type EventTextDelta struct {
	Delta string
}

func (EventTextDelta) event() {}

// EventToolCallDelta represents one tool_calls entry of a streamed chunk.
// ID and Name are empty when the chunk did not carry them; ArgsFragment is
// the raw arguments fragment to append to slot Index.
type EventToolCallDelta struct {
	Index        int
	ID           string
	Name         string
	ArgsFragment string
}

func (EventToolCallDelta) event() {}

// EventDone signals the end of the stream.
type EventDone struct{}

func (EventDone) event() {}

// EventToolResult is emitted by the agent loop after a tool call completes.
type EventToolResult struct {
	ID      string
	Name    string
	Content string
	IsError bool
}

func (EventToolResult) event() {}

// EventCommandOutput carries incremental output of a running command.
type EventCommandOutput struct {
	ID    string
	Chunk string
}

func (EventCommandOutput) event() {}

// EventFilesApplied is emitted after file blocks extracted from an
// assistant response were written to the project store.
type EventFilesApplied struct {
	Paths []string
}

func (EventFilesApplied) event() {}

// Interface compliance checks.
var (
	_ Event = EventTextDelta{}
	_ Event = EventToolCallDelta{}
	_ Event = EventDone{}
	_ Event = EventToolResult{}
	_ Event = EventCommandOutput{}
	_ Event = EventFilesApplied{}
)
