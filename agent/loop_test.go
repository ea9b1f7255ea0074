package agent_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/bunnhack/letsim"
	"github.com/bunnhack/letsim/agent"
	"github.com/bunnhack/letsim/memory"
	"github.com/bunnhack/letsim/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toolCallMsg(calls ...letsim.ToolCall) letsim.AssistantMessage {
	return letsim.AssistantMessage{ToolCalls: calls, StopReason: letsim.StopToolUse}
}

func textMsg(text string) letsim.AssistantMessage {
	return letsim.AssistantMessage{Content: text, StopReason: letsim.StopEndTurn}
}

// scripted returns a provider that replays msgs, one per Stream call, and
// records each request.
func scripted(t *testing.T, msgs ...letsim.AssistantMessage) (*mock.Provider, *[]letsim.Request) {
	t.Helper()
	var reqs []letsim.Request
	return &mock.Provider{
		StreamFn: func(_ context.Context, req letsim.Request) (letsim.Stream, error) {
			reqs = append(reqs, req)
			if len(reqs) > len(msgs) {
				t.Fatalf("unexpected model call %d", len(reqs))
			}
			return mock.Replay(msgs[len(reqs)-1]), nil
		},
	}, &reqs
}

func okExecutor(calls *[]letsim.ToolCall) *mock.ToolExecutor {
	return &mock.ToolExecutor{
		ExecuteFn: func(_ context.Context, call letsim.ToolCall, _ json.RawMessage, _ func(letsim.Event)) (*letsim.ToolResult, error) {
			*calls = append(*calls, call)
			return &letsim.ToolResult{Content: "ok\nexit code: 0"}, nil
		},
	}
}

func noExecutor(t *testing.T) *mock.ToolExecutor {
	return &mock.ToolExecutor{
		ExecuteFn: func(context.Context, letsim.ToolCall, json.RawMessage, func(letsim.Event)) (*letsim.ToolResult, error) {
			t.Fatal("executor should not be called")
			return nil, nil
		},
	}
}

func TestLoop_Run(t *testing.T) {
	t.Parallel()

	t.Run("text response ends turn", func(t *testing.T) {
		t.Parallel()
		provider, reqs := scripted(t, textMsg("hello"))
		session := letsim.NewSession("be brief", nil)

		err := agent.New(provider, noExecutor(t), nil).Run(context.Background(), session)
		require.NoError(t, err)

		msgs := session.Messages()
		require.Len(t, msgs, 2)
		am, ok := msgs[1].(letsim.AssistantMessage)
		require.True(t, ok)
		assert.Equal(t, "hello", am.Content)

		require.Len(t, *reqs, 1)
		req := (*reqs)[0]
		assert.Equal(t, letsim.DefaultModels[0].ID, req.Model)
		assert.Equal(t, letsim.SystemMessage{Content: "be brief"}, req.Messages[0])
		assert.Empty(t, req.ToolChoice)
	})

	t.Run("request carries tools and auto tool choice", func(t *testing.T) {
		t.Parallel()
		provider, reqs := scripted(t, textMsg("hi"))
		tool := letsim.Tool{Name: "run_command"}
		session := letsim.NewSession("", nil)
		session.SetModel("GPT-4o")

		err := agent.New(provider, noExecutor(t), nil, agent.WithTools(tool)).Run(context.Background(), session)
		require.NoError(t, err)
		assert.Equal(t, []letsim.Tool{tool}, (*reqs)[0].Tools)
		assert.Equal(t, "auto", (*reqs)[0].ToolChoice)
		assert.Equal(t, "GPT-4o", (*reqs)[0].Model)
	})

	t.Run("file blocks are applied to the store", func(t *testing.T) {
		t.Parallel()
		text := "Here you go:\n```file:index.html\n<h1>Hi</h1>\n```\n```file:./src/app.js\nconsole.log(1)\n```\n"
		provider, _ := scripted(t, textMsg(text))
		store := memory.New()
		var events []letsim.Event

		err := agent.New(provider, nil, store).Run(context.Background(), letsim.NewSession("", nil),
			agent.WithEventHandler(func(e letsim.Event) { events = append(events, e) }))
		require.NoError(t, err)

		got, ok := store.Get("index.html")
		require.True(t, ok)
		assert.Equal(t, "<h1>Hi</h1>", got)
		got, ok = store.Get("src/app.js")
		require.True(t, ok)
		assert.Equal(t, "console.log(1)", got)
		assert.Equal(t, []letsim.Event{letsim.EventFilesApplied{Paths: []string{"index.html", "src/app.js"}}}, events)
	})

	t.Run("html fallback writes index.html", func(t *testing.T) {
		t.Parallel()
		provider, _ := scripted(t, textMsg("```html\n<!DOCTYPE html><html></html>\n```"))
		store := memory.New()

		err := agent.New(provider, nil, store).Run(context.Background(), letsim.NewSession("", nil))
		require.NoError(t, err)
		got, _ := store.Get("index.html")
		assert.Equal(t, "<!DOCTYPE html><html></html>", got)
	})

	t.Run("tool call then follow-up", func(t *testing.T) {
		t.Parallel()
		call := letsim.ToolCall{ID: "call_1", Name: "run_command", Arguments: `{"command":"npm install"}`}
		provider, reqs := scripted(t, toolCallMsg(call), textMsg("installed"))
		var executed []letsim.ToolCall
		session := letsim.NewSession("", nil)

		err := agent.New(provider, okExecutor(&executed), nil).Run(context.Background(), session)
		require.NoError(t, err)

		assert.Equal(t, []letsim.ToolCall{call}, executed)
		msgs := session.Messages()
		require.Len(t, msgs, 3)
		tm, ok := msgs[1].(letsim.ToolMessage)
		require.True(t, ok)
		assert.Equal(t, "call_1", tm.ToolCallID)
		assert.Equal(t, "run_command", tm.Name)
		assert.Equal(t, "ok\nexit code: 0", tm.Content)
		assert.False(t, tm.IsError)

		// The follow-up request includes the tool result.
		require.Len(t, *reqs, 2)
		assert.Equal(t, tm, (*reqs)[1].Messages[1])
	})

	t.Run("multiple tool calls run serially in order", func(t *testing.T) {
		t.Parallel()
		a := letsim.ToolCall{ID: "a", Name: "run_command", Arguments: `{"command":"ls"}`}
		b := letsim.ToolCall{ID: "b", Name: "run_command", Arguments: `{"command":"pwd"}`}
		provider, _ := scripted(t, toolCallMsg(a, b), textMsg("done"))
		var executed []letsim.ToolCall
		session := letsim.NewSession("", nil)

		require.NoError(t, agent.New(provider, okExecutor(&executed), nil).Run(context.Background(), session))
		assert.Equal(t, []letsim.ToolCall{a, b}, executed)

		msgs := session.Messages()
		require.Len(t, msgs, 4)
		assert.Equal(t, "a", msgs[1].(letsim.ToolMessage).ToolCallID)
		assert.Equal(t, "b", msgs[2].(letsim.ToolMessage).ToolCallID)
	})

	t.Run("invalid arguments are replaced with empty object", func(t *testing.T) {
		t.Parallel()
		call := letsim.ToolCall{ID: "c", Name: "run_command", Arguments: `{"command":"ls"`}
		provider, _ := scripted(t, toolCallMsg(call), textMsg("ok"))
		var gotArgs json.RawMessage
		executor := &mock.ToolExecutor{
			ExecuteFn: func(_ context.Context, _ letsim.ToolCall, args json.RawMessage, _ func(letsim.Event)) (*letsim.ToolResult, error) {
				gotArgs = args
				return &letsim.ToolResult{Content: "command is required", IsError: true}, nil
			},
		}
		session := letsim.NewSession("", nil)

		require.NoError(t, agent.New(provider, executor, nil).Run(context.Background(), session))
		assert.JSONEq(t, `{}`, string(gotArgs))
		am := session.Messages()[0].(letsim.AssistantMessage)
		assert.Equal(t, "{}", am.ToolCalls[0].Arguments)
		assert.True(t, session.Messages()[1].(letsim.ToolMessage).IsError)
	})

	t.Run("executor error becomes error result", func(t *testing.T) {
		t.Parallel()
		call := letsim.ToolCall{ID: "c", Name: "run_command", Arguments: `{}`}
		provider, _ := scripted(t, toolCallMsg(call), textMsg("I see"))
		executor := &mock.ToolExecutor{
			ExecuteFn: func(context.Context, letsim.ToolCall, json.RawMessage, func(letsim.Event)) (*letsim.ToolResult, error) {
				return nil, errors.New("container crashed")
			},
		}
		session := letsim.NewSession("", nil)

		require.NoError(t, agent.New(provider, executor, nil).Run(context.Background(), session))
		tm := session.Messages()[1].(letsim.ToolMessage)
		assert.True(t, tm.IsError)
		assert.Equal(t, "container crashed", tm.Content)
	})

	t.Run("nil executor reports tool not found", func(t *testing.T) {
		t.Parallel()
		call := letsim.ToolCall{ID: "c", Name: "run_command", Arguments: `{}`}
		provider, _ := scripted(t, toolCallMsg(call), textMsg("ok"))
		session := letsim.NewSession("", nil)

		require.NoError(t, agent.New(provider, nil, nil).Run(context.Background(), session))
		tm := session.Messages()[1].(letsim.ToolMessage)
		assert.True(t, tm.IsError)
		assert.Contains(t, tm.Content, letsim.ErrToolNotFound.Error())
	})

	t.Run("follow-up calls are bounded", func(t *testing.T) {
		t.Parallel()
		call := letsim.ToolCall{ID: "c", Name: "run_command", Arguments: `{"command":"ls"}`}
		provider, reqs := scripted(t, toolCallMsg(call), toolCallMsg(call), toolCallMsg(call))
		var executed []letsim.ToolCall

		err := agent.New(provider, okExecutor(&executed), nil, agent.WithMaxToolRounds(2)).
			Run(context.Background(), letsim.NewSession("", nil))
		require.NoError(t, err)
		assert.Len(t, *reqs, 3)
		assert.Len(t, executed, 3)
	})

	t.Run("zero rounds executes once and stops", func(t *testing.T) {
		t.Parallel()
		call := letsim.ToolCall{ID: "c", Name: "run_command", Arguments: `{"command":"ls"}`}
		provider, reqs := scripted(t, toolCallMsg(call))
		var executed []letsim.ToolCall
		session := letsim.NewSession("", nil)

		err := agent.New(provider, okExecutor(&executed), nil, agent.WithMaxToolRounds(0)).Run(context.Background(), session)
		require.NoError(t, err)
		assert.Len(t, *reqs, 1)
		assert.Len(t, executed, 1)
		assert.Equal(t, 2, session.Len())
	})

	t.Run("exclusive policy ignores tool calls alongside text", func(t *testing.T) {
		t.Parallel()
		msg := letsim.AssistantMessage{
			Content:   "Let me install that.",
			ToolCalls: []letsim.ToolCall{{ID: "c", Name: "run_command", Arguments: `{}`}},
		}
		provider, _ := scripted(t, msg)
		session := letsim.NewSession("", nil)

		err := agent.New(provider, noExecutor(t), nil, agent.WithToolPolicy(letsim.ToolPolicyExclusive)).
			Run(context.Background(), session)
		require.NoError(t, err)
		require.Equal(t, 1, session.Len())
		am := session.Messages()[0].(letsim.AssistantMessage)
		assert.Equal(t, "Let me install that.", am.Content)
		assert.Empty(t, am.ToolCalls)
	})

	t.Run("any policy executes tool calls alongside text", func(t *testing.T) {
		t.Parallel()
		msg := letsim.AssistantMessage{
			Content:   "Installing.",
			ToolCalls: []letsim.ToolCall{{ID: "c", Name: "run_command", Arguments: `{"command":"npm i"}`}},
		}
		provider, _ := scripted(t, msg, textMsg("done"))
		var executed []letsim.ToolCall

		err := agent.New(provider, okExecutor(&executed), nil).Run(context.Background(), letsim.NewSession("", nil))
		require.NoError(t, err)
		assert.Len(t, executed, 1)
	})

	t.Run("events are forwarded in order", func(t *testing.T) {
		t.Parallel()
		call := letsim.ToolCall{ID: "c", Name: "run_command", Arguments: `{"command":"ls"}`}
		turn := 0
		provider := &mock.Provider{
			StreamFn: func(context.Context, letsim.Request) (letsim.Stream, error) {
				turn++
				if turn == 1 {
					return mock.Replay(toolCallMsg(call),
						letsim.EventToolCallDelta{Index: 0, ID: "c", Name: "run_command", ArgsFragment: call.Arguments},
						letsim.EventDone{}), nil
				}
				return mock.Replay(textMsg("ok"), letsim.EventTextDelta{Delta: "ok"}, letsim.EventDone{}), nil
			},
		}
		executor := &mock.ToolExecutor{
			ExecuteFn: func(_ context.Context, call letsim.ToolCall, _ json.RawMessage, onEvent func(letsim.Event)) (*letsim.ToolResult, error) {
				onEvent(letsim.EventCommandOutput{ID: call.ID, Chunk: "file.txt\n"})
				return &letsim.ToolResult{Content: "file.txt\nexit code: 0"}, nil
			},
		}
		var events []letsim.Event

		err := agent.New(provider, executor, nil).Run(context.Background(), letsim.NewSession("", nil),
			agent.WithEventHandler(func(e letsim.Event) { events = append(events, e) }))
		require.NoError(t, err)
		assert.Equal(t, []letsim.Event{
			letsim.EventToolCallDelta{Index: 0, ID: "c", Name: "run_command", ArgsFragment: call.Arguments},
			letsim.EventDone{},
			letsim.EventCommandOutput{ID: "c", Chunk: "file.txt\n"},
			letsim.EventToolResult{ID: "c", Name: "run_command", Content: "file.txt\nexit code: 0"},
			letsim.EventTextDelta{Delta: "ok"},
			letsim.EventDone{},
		}, events)
	})

	t.Run("stream error preserves partial message", func(t *testing.T) {
		t.Parallel()
		streamErr := &letsim.NetworkError{Err: errors.New("connection reset by peer")}
		partial := letsim.AssistantMessage{
			Content:    "partial",
			ToolCalls:  []letsim.ToolCall{{ID: "c", Name: "run_command"}},
			StopReason: letsim.StopError,
		}
		calls := 0
		provider := &mock.Provider{
			StreamFn: func(context.Context, letsim.Request) (letsim.Stream, error) {
				return &mock.Stream{
					NextFn: func() (letsim.Event, error) {
						calls++
						if calls == 1 {
							return letsim.EventTextDelta{Delta: "partial"}, nil
						}
						return nil, streamErr
					},
					MessageFn: func() (letsim.AssistantMessage, error) { return partial, nil },
				}, nil
			},
		}
		session := letsim.NewSession("", nil)

		err := agent.New(provider, noExecutor(t), memory.New()).Run(context.Background(), session)
		require.ErrorIs(t, err, streamErr)
		require.Equal(t, 1, session.Len())
		am := session.Messages()[0].(letsim.AssistantMessage)
		assert.Equal(t, "partial", am.Content)
		assert.Empty(t, am.ToolCalls)
	})

	t.Run("provider error", func(t *testing.T) {
		t.Parallel()
		httpErr := &letsim.UpstreamHTTPError{StatusCode: 401, Body: "bad key"}
		provider := &mock.Provider{
			StreamFn: func(context.Context, letsim.Request) (letsim.Stream, error) {
				return nil, httpErr
			},
		}
		session := letsim.NewSession("sys", nil)

		err := agent.New(provider, nil, nil).Run(context.Background(), session)
		var got *letsim.UpstreamHTTPError
		require.ErrorAs(t, err, &got)
		assert.Equal(t, 401, got.StatusCode)
		assert.Equal(t, 1, session.Len())
	})

	t.Run("cancelled context stops before calling provider", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		provider := &mock.Provider{
			StreamFn: func(context.Context, letsim.Request) (letsim.Stream, error) {
				t.Fatal("provider should not be called")
				return nil, nil
			},
		}
		err := agent.New(provider, nil, nil).Run(ctx, letsim.NewSession("", nil))
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("cancellation during tool aborts run", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		call := letsim.ToolCall{ID: "c", Name: "run_command", Arguments: `{"command":"sleep 9"}`}
		provider, reqs := scripted(t, toolCallMsg(call), textMsg("unused"))
		executor := &mock.ToolExecutor{
			ExecuteFn: func(ctx context.Context, _ letsim.ToolCall, _ json.RawMessage, _ func(letsim.Event)) (*letsim.ToolResult, error) {
				cancel()
				return nil, ctx.Err()
			},
		}
		err := agent.New(provider, executor, nil).Run(ctx, letsim.NewSession("", nil))
		assert.ErrorIs(t, err, context.Canceled)
		assert.Len(t, *reqs, 1)
	})

	t.Run("message error without stream error", func(t *testing.T) {
		t.Parallel()
		provider := &mock.Provider{
			StreamFn: func(context.Context, letsim.Request) (letsim.Stream, error) {
				return &mock.Stream{
					NextFn:    func() (letsim.Event, error) { return nil, io.EOF },
					MessageFn: func() (letsim.AssistantMessage, error) { return letsim.AssistantMessage{}, letsim.ErrStreamNotReady },
				}, nil
			},
		}
		err := agent.New(provider, nil, nil).Run(context.Background(), letsim.NewSession("", nil))
		assert.ErrorIs(t, err, letsim.ErrStreamNotReady)
	})
}
