package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/bunnhack/letsim"
	"github.com/bunnhack/letsim/sse"
)

// stream implements [letsim.Stream] by feeding the response body to an
// [sse.Decoder] one read at a time.
type stream struct {
	body    io.ReadCloser
	ctx     context.Context
	dec     *sse.Decoder
	buf     []byte
	pending []letsim.Event
	state   letsim.StreamState
	stop    letsim.StopReason
	raw     string
	err     error // terminal error, if any
}

// Interface compliance check.
var _ letsim.Stream = (*stream)(nil)

func newStream(ctx context.Context, body io.ReadCloser, logger *slog.Logger) *stream {
	return &stream{
		body:  body,
		ctx:   ctx,
		dec:   sse.NewDecoder(sse.WithLogger(logger)),
		buf:   make([]byte, readBufferSize),
		state: letsim.StreamStateNew,
	}
}

// Next returns the next event. After [letsim.EventDone] it returns io.EOF.
func (s *stream) Next() (letsim.Event, error) {
	for {
		switch s.state {
		case letsim.StreamStateComplete:
			return nil, io.EOF
		case letsim.StreamStateError:
			return nil, s.err
		case letsim.StreamStateClosed:
			return nil, fmt.Errorf("openai: %w", letsim.ErrStreamClosed)
		}

		if len(s.pending) > 0 {
			evt := s.pending[0]
			s.pending = s.pending[1:]
			s.state = letsim.StreamStateStreaming
			if _, ok := evt.(letsim.EventDone); ok {
				s.complete()
			}
			return evt, nil
		}

		if err := s.ctx.Err(); err != nil {
			s.terminate(err)
			continue
		}
		if err := s.fill(); err != nil {
			s.terminate(err)
		}
	}
}

// fill reads once from the body and queues the decoded events. The stream
// ends at [DONE] or at EOF, whichever comes first.
func (s *stream) fill() error {
	n, err := s.body.Read(s.buf)
	if n > 0 {
		s.state = letsim.StreamStateStreaming
		s.pending = append(s.pending, s.dec.Feed(s.buf[:n])...)
		if s.dec.SawDone() {
			s.pending = append(s.pending, s.dec.Flush()...)
			return nil
		}
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF):
		s.pending = append(s.pending, s.dec.Flush()...)
		return nil
	default:
		return err
	}
}

// State returns the current stream state.
func (s *stream) State() letsim.StreamState {
	return s.state
}

// Message returns the assistant message assembled so far.
func (s *stream) Message() (letsim.AssistantMessage, error) {
	if s.state == letsim.StreamStateNew {
		return letsim.AssistantMessage{}, fmt.Errorf("openai: %w", letsim.ErrStreamNotReady)
	}
	msg := letsim.AssistantMessage{
		Content:       s.dec.Text(),
		ToolCalls:     s.dec.ToolCalls(),
		Usage:         s.dec.Usage(),
		RawStopReason: s.dec.FinishReason(),
		StopReason:    s.stop,
	}
	if msg.StopReason == "" {
		msg.StopReason = mapStopReason(msg.RawStopReason, len(msg.ToolCalls) > 0)
	}
	if s.raw != "" {
		msg.RawStopReason = s.raw
	}
	return msg, nil
}

// Result classifies the decoded turn.
func (s *stream) Result(policy letsim.ToolPolicy) letsim.Result {
	return s.dec.Result(policy)
}

// Skipped returns the number of malformed lines the decoder dropped.
func (s *stream) Skipped() int { return s.dec.Skipped() }

// Close closes the underlying HTTP response body.
func (s *stream) Close() error {
	if s.state != letsim.StreamStateComplete && s.state != letsim.StreamStateError {
		s.state = letsim.StreamStateClosed
		s.stop = letsim.StopAborted
		s.raw = "aborted"
	}
	return s.body.Close()
}

func (s *stream) complete() {
	s.state = letsim.StreamStateComplete
}

// terminate records a terminal error and sets the appropriate state and stop reason.
func (s *stream) terminate(err error) {
	s.state = letsim.StreamStateError
	s.pending = nil
	if s.ctx.Err() != nil {
		s.err = fmt.Errorf("openai: %w", s.ctx.Err())
		s.stop = letsim.StopAborted
		s.raw = "aborted"
		return
	}
	s.err = fmt.Errorf("openai: %w", &letsim.NetworkError{Err: err})
	s.stop = letsim.StopError
	s.raw = "error"
}

func mapStopReason(raw string, hasToolCalls bool) letsim.StopReason {
	switch raw {
	case "stop":
		return letsim.StopEndTurn
	case "length":
		return letsim.StopLength
	case "tool_calls", "function_call":
		return letsim.StopToolUse
	case "":
		if hasToolCalls {
			return letsim.StopToolUse
		}
		return letsim.StopEndTurn
	default:
		return letsim.StopUnknown
	}
}
