package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/bunnhack/letsim"
	"google.golang.org/genai"
)

// stream implements [letsim.Stream] by wrapping the genai SDK's streaming iterator.
type stream struct {
	ctx     context.Context
	pull    func() (*genai.GenerateContentResponse, error, bool)
	stop    func()
	state   letsim.StreamState
	text    strings.Builder
	calls   []letsim.ToolCall
	msg     letsim.AssistantMessage
	pending []letsim.Event
	err     error
}

// Interface compliance check.
var _ letsim.Stream = (*stream)(nil)

// NewStreamFromIter wraps a genai response iterator. Exported for testing.
func NewStreamFromIter(ctx context.Context, iterFn iter.Seq2[*genai.GenerateContentResponse, error]) letsim.Stream {
	next, stop := iter.Pull2(iterFn)
	return &stream{
		ctx:   ctx,
		pull:  next,
		stop:  stop,
		state: letsim.StreamStateNew,
	}
}

func (s *stream) Next() (letsim.Event, error) {
	for {
		switch s.state {
		case letsim.StreamStateComplete:
			return nil, io.EOF
		case letsim.StreamStateError:
			return nil, s.err
		case letsim.StreamStateClosed:
			return nil, fmt.Errorf("gemini: %w", letsim.ErrStreamClosed)
		}

		if len(s.pending) > 0 {
			evt := s.pending[0]
			s.pending = s.pending[1:]
			s.state = letsim.StreamStateStreaming
			if _, ok := evt.(letsim.EventDone); ok {
				s.finish()
			}
			return evt, nil
		}

		if err := s.ctx.Err(); err != nil {
			s.fail(err)
			continue
		}
		resp, err, ok := s.pull()
		switch {
		case !ok:
			s.pending = append(s.pending, letsim.EventDone{})
		case err != nil:
			s.fail(err)
		default:
			s.state = letsim.StreamStateStreaming
			s.process(resp)
		}
	}
}

func (s *stream) process(resp *genai.GenerateContentResponse) {
	if resp == nil {
		return
	}
	if u := resp.UsageMetadata; u != nil {
		s.msg.Usage = letsim.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
		}
	}
	if len(resp.Candidates) == 0 {
		return
	}
	cand := resp.Candidates[0]
	if cand.FinishReason != "" {
		s.msg.RawStopReason = string(cand.FinishReason)
	}
	if cand.Content == nil {
		return
	}
	for _, part := range cand.Content.Parts {
		switch {
		case part == nil, part.Thought:
			continue
		case part.FunctionCall != nil:
			s.pending = append(s.pending, s.addCall(part.FunctionCall))
		case part.Text != "":
			s.text.WriteString(part.Text)
			s.pending = append(s.pending, letsim.EventTextDelta{Delta: part.Text})
		}
	}
}

func (s *stream) addCall(fc *genai.FunctionCall) letsim.Event {
	args := "{}"
	if len(fc.Args) > 0 {
		if b, err := json.Marshal(fc.Args); err == nil {
			args = string(b)
		}
	}
	idx := len(s.calls)
	id := fc.ID
	if id == "" {
		id = fmt.Sprintf("call_%d", idx)
	}
	s.calls = append(s.calls, letsim.ToolCall{ID: id, Name: fc.Name, Arguments: args})
	return letsim.EventToolCallDelta{Index: idx, ID: id, Name: fc.Name, ArgsFragment: args}
}

func (s *stream) finish() {
	s.state = letsim.StreamStateComplete
	s.msg.StopReason = mapFinishReason(s.msg.RawStopReason, len(s.calls) > 0)
}

func (s *stream) fail(err error) {
	s.state = letsim.StreamStateError
	s.pending = nil
	if s.ctx.Err() != nil {
		s.err = fmt.Errorf("gemini: %w", s.ctx.Err())
		s.msg.StopReason = letsim.StopAborted
		s.msg.RawStopReason = "aborted"
		return
	}
	s.err = fmt.Errorf("gemini: %w", err)
	s.msg.StopReason = letsim.StopError
	s.msg.RawStopReason = "error"
}

func (s *stream) State() letsim.StreamState {
	return s.state
}

func (s *stream) Message() (letsim.AssistantMessage, error) {
	if s.state == letsim.StreamStateNew {
		return letsim.AssistantMessage{}, fmt.Errorf("gemini: %w", letsim.ErrStreamNotReady)
	}
	msg := s.msg
	msg.Content = s.text.String()
	if len(s.calls) > 0 {
		msg.ToolCalls = append([]letsim.ToolCall(nil), s.calls...)
	}
	return msg, nil
}

func (s *stream) Result(policy letsim.ToolPolicy) letsim.Result {
	var calls []letsim.ToolCall
	if len(s.calls) > 0 {
		calls = append(calls, s.calls...)
	}
	return letsim.NewResult(s.text.String(), calls, policy)
}

func (s *stream) Close() error {
	if s.state != letsim.StreamStateComplete && s.state != letsim.StreamStateError {
		s.state = letsim.StreamStateClosed
		s.msg.StopReason = letsim.StopAborted
		s.msg.RawStopReason = "aborted"
	}
	s.stop()
	return nil
}

func mapFinishReason(raw string, hasToolCalls bool) letsim.StopReason {
	if hasToolCalls {
		return letsim.StopToolUse
	}
	switch genai.FinishReason(raw) {
	case genai.FinishReasonStop, "":
		return letsim.StopEndTurn
	case genai.FinishReasonMaxTokens:
		return letsim.StopLength
	default:
		return letsim.StopUnknown
	}
}
