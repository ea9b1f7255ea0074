package mock

import (
	"io"

	"github.com/bunnhack/letsim"
)

// Interface compliance check.
var _ letsim.Stream = (*Stream)(nil)

// Stream is a test double for letsim.Stream.
// Set the function fields for the methods you need. NextFn and MessageFn
// panic when nil to catch missing setup. CloseFn and StateFn are nil-safe
// (no-op and zero value) because test code commonly calls defer stream.Close().
// ResultFn defaults to classifying Message() with letsim.NewResult.
type Stream struct {
	NextFn    func() (letsim.Event, error)
	StateFn   func() letsim.StreamState
	MessageFn func() (letsim.AssistantMessage, error)
	ResultFn  func(policy letsim.ToolPolicy) letsim.Result
	CloseFn   func() error
}

// Next delegates to NextFn.
func (s *Stream) Next() (letsim.Event, error) {
	return s.NextFn()
}

// State delegates to StateFn. Returns StreamStateNew when StateFn is nil.
func (s *Stream) State() letsim.StreamState {
	if s.StateFn == nil {
		return letsim.StreamStateNew
	}
	return s.StateFn()
}

// Message delegates to MessageFn.
func (s *Stream) Message() (letsim.AssistantMessage, error) {
	return s.MessageFn()
}

// Result delegates to ResultFn, or derives the result from Message() when
// ResultFn is nil.
func (s *Stream) Result(policy letsim.ToolPolicy) letsim.Result {
	if s.ResultFn != nil {
		return s.ResultFn(policy)
	}
	msg, _ := s.MessageFn()
	return letsim.NewResult(msg.Content, msg.ToolCalls, policy)
}

// Close delegates to CloseFn. Returns nil when CloseFn is not set.
func (s *Stream) Close() error {
	if s.CloseFn == nil {
		return nil
	}
	return s.CloseFn()
}

// Replay returns a Stream that yields events in order, then io.EOF, and
// reports msg as the assembled message.
func Replay(msg letsim.AssistantMessage, events ...letsim.Event) *Stream {
	i := 0
	done := false
	return &Stream{
		NextFn: func() (letsim.Event, error) {
			if i >= len(events) {
				done = true
				return nil, io.EOF
			}
			evt := events[i]
			i++
			return evt, nil
		},
		StateFn: func() letsim.StreamState {
			switch {
			case done:
				return letsim.StreamStateComplete
			case i > 0:
				return letsim.StreamStateStreaming
			default:
				return letsim.StreamStateNew
			}
		},
		MessageFn: func() (letsim.AssistantMessage, error) {
			return msg, nil
		},
	}
}
