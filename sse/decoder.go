package sse

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/bunnhack/letsim"
)

// Decoder incrementally decodes a chat-completion SSE body. It is owned by a
// single turn and is not safe for concurrent use.
type Decoder struct {
	logger *slog.Logger

	buf     []byte
	text    strings.Builder
	calls   []letsim.ToolCall
	slots   map[int]int // wire key -> index into calls
	usage   letsim.Usage
	finish  string
	skipped int
	done    bool
	flushed bool
}

// Option configures a [Decoder].
type Option func(*Decoder)

// WithLogger sets the logger used for skipped lines.
func WithLogger(l *slog.Logger) Option {
	return func(d *Decoder) { d.logger = l }
}

// NewDecoder creates a Decoder.
func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{logger: slog.New(slog.DiscardHandler)}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Feed consumes the next chunk of the body and returns the events produced
// by every line the chunk completed. Bytes after the last newline are kept
// until a later chunk completes them. Splitting on '\n' at the byte level
// keeps multi-byte UTF-8 sequences intact because 0x0A never occurs inside
// one.
func (d *Decoder) Feed(chunk []byte) []letsim.Event {
	if d.flushed {
		return nil
	}
	d.buf = append(d.buf, chunk...)
	var events []letsim.Event
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		line := string(d.buf[:i])
		d.buf = d.buf[i+1:]
		events = append(events, d.processLine(line)...)
	}
	if len(d.buf) == 0 {
		d.buf = nil
	}
	return events
}

// Flush ends the stream. A trailing line without a newline is treated as
// complete, since connection close terminates it. Flush always ends with
// [letsim.EventDone]; further Feed calls are ignored.
func (d *Decoder) Flush() []letsim.Event {
	if d.flushed {
		return nil
	}
	var events []letsim.Event
	if len(d.buf) > 0 {
		line := string(d.buf)
		d.buf = nil
		events = d.processLine(line)
	}
	d.flushed = true
	return append(events, letsim.EventDone{})
}

// Result classifies the accumulated stream under policy.
func (d *Decoder) Result(policy letsim.ToolPolicy) letsim.Result {
	return letsim.NewResult(d.text.String(), d.ToolCalls(), policy)
}

// Text returns the text accumulated so far.
func (d *Decoder) Text() string { return d.text.String() }

// ToolCalls returns a copy of the tool-call slots accumulated so far.
func (d *Decoder) ToolCalls() []letsim.ToolCall {
	if len(d.calls) == 0 {
		return nil
	}
	out := make([]letsim.ToolCall, len(d.calls))
	copy(out, d.calls)
	return out
}

// Usage returns the token usage reported by the stream, if any.
func (d *Decoder) Usage() letsim.Usage { return d.usage }

// FinishReason returns the last finish_reason seen.
func (d *Decoder) FinishReason() string { return d.finish }

// Skipped returns the number of data lines that could not be parsed.
func (d *Decoder) Skipped() int { return d.skipped }

// SawDone reports whether the [DONE] sentinel was received.
func (d *Decoder) SawDone() bool { return d.done }

func (d *Decoder) processLine(raw string) []letsim.Event {
	line := strings.TrimSpace(raw)
	if line == "" {
		return nil
	}
	if line == doneLine {
		d.done = true
		return nil
	}
	if !strings.HasPrefix(line, dataPrefix) {
		return nil
	}
	payload := line[len(dataPrefix):]

	var chunk wireChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		d.skip("stream parse error", err, payload)
		return nil
	}
	if isPresent(chunk.Error) {
		var we wireError
		_ = json.Unmarshal(chunk.Error, &we)
		d.skipped++
		d.logger.Warn("stream carried provider error", "message", we.Message, "code", we.Code)
		return nil
	}
	d.readUsage(chunk.Usage)

	if len(chunk.Choices) == 0 {
		return nil
	}
	var choice wireChoice
	if err := json.Unmarshal(chunk.Choices[0], &choice); err != nil {
		d.logger.Warn("ignoring malformed choice", "error", err)
		return nil
	}
	var reason string
	if json.Unmarshal(choice.FinishReason, &reason) == nil && reason != "" {
		d.finish = reason
	}
	if len(choice.Delta) == 0 {
		return nil
	}
	var delta wireDelta
	if err := json.Unmarshal(choice.Delta, &delta); err != nil {
		d.logger.Warn("ignoring malformed delta", "error", err)
		return nil
	}

	var events []letsim.Event
	var content string
	if isPresent(delta.Content) && json.Unmarshal(delta.Content, &content) == nil {
		d.text.WriteString(content)
		events = append(events, letsim.EventTextDelta{Delta: content})
	}
	for i, raw := range delta.ToolCalls {
		if evt, ok := d.applyToolCall(i, raw); ok {
			events = append(events, evt)
		}
	}
	return events
}

// applyToolCall merges one tool_calls entry into its slot. Entries are keyed
// by their wire index when present, otherwise by their position in the
// array; each new key takes the next slot, so calls stays dense from 0 in
// order of first appearance whatever the provider numbers its calls.
func (d *Decoder) applyToolCall(pos int, raw json.RawMessage) (letsim.Event, bool) {
	var tc wireToolCall
	if err := json.Unmarshal(raw, &tc); err != nil {
		d.logger.Warn("ignoring malformed tool call delta", "position", pos, "error", err)
		return nil, false
	}
	idx := pos
	if tc.Index != nil {
		idx = *tc.Index
	}
	if idx < 0 {
		d.logger.Warn("ignoring tool call delta with negative index", "index", idx)
		return nil, false
	}
	n, ok := d.slots[idx]
	if !ok {
		if d.slots == nil {
			d.slots = make(map[int]int)
		}
		n = len(d.calls)
		d.slots[idx] = n
		d.calls = append(d.calls, letsim.ToolCall{})
	}
	slot := &d.calls[n]
	evt := letsim.EventToolCallDelta{Index: n}
	if tc.ID != nil && *tc.ID != "" {
		slot.ID = *tc.ID
		evt.ID = *tc.ID
	}
	if tc.Function != nil {
		if tc.Function.Name != nil && *tc.Function.Name != "" {
			slot.Name = *tc.Function.Name
			evt.Name = *tc.Function.Name
		}
		if tc.Function.Arguments != nil {
			slot.Arguments += *tc.Function.Arguments
			evt.ArgsFragment = *tc.Function.Arguments
		}
	}
	return evt, true
}

func (d *Decoder) readUsage(raw json.RawMessage) {
	if !isPresent(raw) {
		return
	}
	var u wireUsage
	if err := json.Unmarshal(raw, &u); err != nil {
		d.logger.Debug("ignoring malformed usage", "error", err)
		return
	}
	d.usage = letsim.Usage{PromptTokens: u.PromptTokens, CompletionTokens: u.CompletionTokens}
}

func (d *Decoder) skip(msg string, err error, payload string) {
	d.skipped++
	if len(payload) > 120 {
		payload = payload[:120]
	}
	d.logger.Warn(msg, "error", err, "payload", payload)
}

func isPresent(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}
