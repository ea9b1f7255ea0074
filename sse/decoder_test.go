package sse_test

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/bunnhack/letsim"
	"github.com/bunnhack/letsim/sse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dataLine(s string) string { return "data: " + s + "\n" }

// fixture mixes multi-byte text, a tool call split over frames, a comment,
// blank keep-alives and the [DONE] sentinel.
var fixture = strings.Join([]string{
	": keep-alive\n",
	dataLine(`{"choices":[{"delta":{"role":"assistant","content":""}}]}`),
	dataLine(`{"choices":[{"delta":{"content":"Héllo, 世界 "}}]}`),
	"\n",
	dataLine(`{"choices":[{"delta":{"content":"🚀 done"}}]}`),
	dataLine(`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"run_command","arguments":""}}]}}]}`),
	dataLine(`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"command\":"}}]}}]}`),
	dataLine(`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"npm i ✓\"}"}}]}}]}`),
	dataLine(`{"choices":[{"delta":{},"finish_reason":"tool_calls"}],"usage":{"prompt_tokens":12,"completion_tokens":7}}`),
	"data: [DONE]\n",
}, "")

func decodeChunks(t *testing.T, chunks [][]byte) (*sse.Decoder, []letsim.Event) {
	t.Helper()
	d := sse.NewDecoder()
	var events []letsim.Event
	for _, c := range chunks {
		events = append(events, d.Feed(c)...)
	}
	events = append(events, d.Flush()...)
	return d, events
}

func TestDecoder_FullPayload(t *testing.T) {
	t.Parallel()

	d, events := decodeChunks(t, [][]byte{[]byte(fixture)})
	r := d.Result(letsim.ToolPolicyAny)

	assert.Equal(t, "Héllo, 世界 🚀 done", r.FinalText)
	assert.Equal(t, []letsim.ToolCall{{ID: "call_1", Name: "run_command", Arguments: `{"command":"npm i ✓"}`}}, r.ToolCalls)
	assert.True(t, r.HadToolCalls)
	assert.Equal(t, letsim.ResultToolCall, r.Kind)
	assert.Equal(t, letsim.Usage{PromptTokens: 12, CompletionTokens: 7}, d.Usage())
	assert.Equal(t, "tool_calls", d.FinishReason())
	assert.True(t, d.SawDone())
	assert.Zero(t, d.Skipped())
	assert.Equal(t, letsim.EventDone{}, events[len(events)-1])
}

func TestDecoder_ChunkBoundaryInvariance(t *testing.T) {
	t.Parallel()

	want, _ := decodeChunks(t, [][]byte{[]byte(fixture)})
	wantResult := want.Result(letsim.ToolPolicyAny)
	payload := []byte(fixture)

	for i := 0; i <= len(payload); i++ {
		d, _ := decodeChunks(t, [][]byte{payload[:i], payload[i:]})
		got := d.Result(letsim.ToolPolicyAny)
		require.Equal(t, wantResult, got, "split at byte %d", i)
	}
}

func TestDecoder_ByteAtATime(t *testing.T) {
	t.Parallel()

	payload := []byte(fixture)
	chunks := make([][]byte, len(payload))
	for i := range payload {
		chunks[i] = payload[i : i+1]
	}
	d, events := decodeChunks(t, chunks)
	assert.Equal(t, "Héllo, 世界 🚀 done", d.Text())
	assert.NotContains(t, d.Text(), "�")

	var text strings.Builder
	for _, e := range events {
		if td, ok := e.(letsim.EventTextDelta); ok {
			text.WriteString(td.Delta)
		}
	}
	assert.Equal(t, d.Text(), text.String())
}

func TestDecoder_ToolCallReassembly(t *testing.T) {
	t.Parallel()

	d := sse.NewDecoder()
	var events []letsim.Event
	for _, line := range []string{
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"a"}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"name":"run_command"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"comm"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"and\":\"ls\"}"}}]}}]}`,
	} {
		events = append(events, d.Feed([]byte(dataLine(line)))...)
	}
	d.Flush()

	calls := d.ToolCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, letsim.ToolCall{ID: "a", Name: "run_command", Arguments: `{"command":"ls"}`}, calls[0])
	assert.Equal(t, []letsim.Event{
		letsim.EventToolCallDelta{Index: 0, ID: "a"},
		letsim.EventToolCallDelta{Index: 0, Name: "run_command"},
		letsim.EventToolCallDelta{Index: 0, ArgsFragment: `{"comm`},
		letsim.EventToolCallDelta{Index: 0, ArgsFragment: `and":"ls"}`},
	}, events)

	r := d.Result(letsim.ToolPolicyAny)
	assert.Equal(t, letsim.ResultToolCall, r.Kind)
	assert.Empty(t, r.FinalText)
}

func TestDecoder_ToolCallSlotByPositionWhenIndexMissing(t *testing.T) {
	t.Parallel()

	d := sse.NewDecoder()
	d.Feed([]byte(dataLine(`{"choices":[{"delta":{"tool_calls":[{"id":"a","function":{"name":"x","arguments":"{}"}},{"id":"b","function":{"name":"y","arguments":"{"}}]}}]}`)))
	d.Feed([]byte(dataLine(`{"choices":[{"delta":{"tool_calls":[{"index":1,"function":{"arguments":"}"}}]}}]}`)))

	assert.Equal(t, []letsim.ToolCall{
		{ID: "a", Name: "x", Arguments: "{}"},
		{ID: "b", Name: "y", Arguments: "{}"},
	}, d.ToolCalls())
}

func TestDecoder_InterleavedParallelCalls(t *testing.T) {
	t.Parallel()

	d := sse.NewDecoder()
	for _, line := range []string{
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"a","function":{"name":"run_command","arguments":"{\"command\":"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":1,"id":"b","function":{"name":"run_command","arguments":"{\"command\":"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"ls\"}"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":1,"function":{"arguments":"\"pwd\"}"}}]}}]}`,
	} {
		d.Feed([]byte(dataLine(line)))
	}
	assert.Equal(t, []letsim.ToolCall{
		{ID: "a", Name: "run_command", Arguments: `{"command":"ls"}`},
		{ID: "b", Name: "run_command", Arguments: `{"command":"pwd"}`},
	}, d.ToolCalls())
}

func TestDecoder_SparseIndexTakesNextSlot(t *testing.T) {
	t.Parallel()

	d := sse.NewDecoder()
	events := d.Feed([]byte(dataLine(`{"choices":[{"delta":{"tool_calls":[{"index":3,"id":"b","function":{"name":"run_command","arguments":"{}"}}]}}]}`)))

	assert.Equal(t, []letsim.Event{
		letsim.EventToolCallDelta{Index: 0, ID: "b", Name: "run_command", ArgsFragment: "{}"},
	}, events)
	assert.Equal(t, []letsim.ToolCall{{ID: "b", Name: "run_command", Arguments: "{}"}}, d.ToolCalls())

	d.Feed([]byte(dataLine(`{"choices":[{"delta":{"tool_calls":[{"index":7,"id":"c","function":{"name":"run_command","arguments":"{"}}]}}]}`)))
	d.Feed([]byte(dataLine(`{"choices":[{"delta":{"tool_calls":[{"index":7,"function":{"arguments":"}"}}]}}]}`)))
	assert.Equal(t, []letsim.ToolCall{
		{ID: "b", Name: "run_command", Arguments: "{}"},
		{ID: "c", Name: "run_command", Arguments: "{}"},
	}, d.ToolCalls())
}

func TestDecoder_HugeIndexAllocatesOneSlot(t *testing.T) {
	t.Parallel()

	d := sse.NewDecoder()
	d.Feed([]byte(dataLine(`{"choices":[{"delta":{"tool_calls":[{"index":20000000,"id":"a","function":{"name":"run_command","arguments":"{}"}}]}}]}`)))

	calls := d.ToolCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "a", calls[0].ID)
	res := d.Result(letsim.ToolPolicyAny)
	assert.Len(t, res.ToolCalls, 1)
}

func TestDecoder_NegativeIndexIgnored(t *testing.T) {
	t.Parallel()

	d := sse.NewDecoder()
	events := d.Feed([]byte(dataLine(`{"choices":[{"delta":{"tool_calls":[{"index":-1,"id":"a"}]}}]}`)))
	assert.Empty(t, events)
	assert.Empty(t, d.ToolCalls())
}

func TestDecoder_DoneProducesNothing(t *testing.T) {
	t.Parallel()

	d := sse.NewDecoder()
	assert.Empty(t, d.Feed([]byte("data: [DONE]\n")))
	assert.True(t, d.SawDone())
	assert.Zero(t, d.Skipped())
	assert.Equal(t, []letsim.Event{letsim.EventDone{}}, d.Flush())
}

func TestDecoder_MalformedLineIsSkipped(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	d := sse.NewDecoder(sse.WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	payload := dataLine(`{"choices":[{"delta":{"content":"a"}}]}`) +
		"data: {not json\n" +
		dataLine(`{"choices":[{"delta":{"content":"b"}}]}`)

	var events []letsim.Event
	assert.NotPanics(t, func() {
		events = d.Feed([]byte(payload))
	})
	assert.Equal(t, []letsim.Event{
		letsim.EventTextDelta{Delta: "a"},
		letsim.EventTextDelta{Delta: "b"},
	}, events)
	assert.Equal(t, "ab", d.Text())
	assert.Equal(t, 1, d.Skipped())
	assert.Contains(t, logs.String(), "stream parse error")
}

func TestDecoder_DefensiveFields(t *testing.T) {
	t.Parallel()

	d := sse.NewDecoder()
	for _, line := range []string{
		`{"choices":[]}`,
		`{"choices":[{"delta":null}]}`,
		`{"choices":[{"delta":{"content":null}}]}`,
		`{"choices":[{"delta":{"content":42}}]}`,
		`{"choices":[{"delta":{"content":"ok","tool_calls":["oops"]}}]}`,
		`{"usage":{"prompt_tokens":"many"}}`,
		`{"id":"x"}`,
	} {
		d.Feed([]byte(dataLine(line)))
	}
	assert.Equal(t, "ok", d.Text())
	assert.Empty(t, d.ToolCalls())
	assert.Zero(t, d.Skipped())
}

func TestDecoder_ProviderErrorObject(t *testing.T) {
	t.Parallel()

	d := sse.NewDecoder()
	events := d.Feed([]byte(dataLine(`{"error":{"message":"rate limited","code":429}}`)))
	assert.Empty(t, events)
	assert.Equal(t, 1, d.Skipped())
}

func TestDecoder_IgnoresNonDataLines(t *testing.T) {
	t.Parallel()

	d := sse.NewDecoder()
	events := d.Feed([]byte("event: message\nid: 3\nretry: 100\ndata:{\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n"))
	assert.Empty(t, events)
	assert.Empty(t, d.Text())
}

func TestDecoder_EmptyContentIsTextDelta(t *testing.T) {
	t.Parallel()

	d := sse.NewDecoder()
	events := d.Feed([]byte(dataLine(`{"choices":[{"delta":{"content":""}}]}`)))
	assert.Equal(t, []letsim.Event{letsim.EventTextDelta{Delta: ""}}, events)
}

func TestDecoder_IncompleteLineWaitsForNewline(t *testing.T) {
	t.Parallel()

	d := sse.NewDecoder()
	assert.Empty(t, d.Feed([]byte(`data: {"choices":[{"delta":{"content":"hi"}}]}`)))
	assert.Empty(t, d.Text())
	assert.Equal(t, []letsim.Event{letsim.EventTextDelta{Delta: "hi"}}, d.Feed([]byte("\r\n")))
}

func TestDecoder_FlushProcessesTrailingLine(t *testing.T) {
	t.Parallel()

	d := sse.NewDecoder()
	d.Feed([]byte(`data: {"choices":[{"delta":{"content":"tail"}}]}`))
	events := d.Flush()
	assert.Equal(t, []letsim.Event{letsim.EventTextDelta{Delta: "tail"}, letsim.EventDone{}}, events)
	assert.Nil(t, d.Feed([]byte(dataLine(`{"choices":[{"delta":{"content":"late"}}]}`))))
	assert.Nil(t, d.Flush())
	assert.Equal(t, "tail", d.Text())
}

func TestDecoder_ResultPolicies(t *testing.T) {
	t.Parallel()

	d := sse.NewDecoder()
	d.Feed([]byte(dataLine(`{"choices":[{"delta":{"content":"I'll list files."}}]}`)))
	d.Feed([]byte(dataLine(`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"a","function":{"name":"run_command","arguments":"{}"}}]}}]}`)))
	d.Flush()

	assert.Equal(t, letsim.ResultToolCall, d.Result(letsim.ToolPolicyAny).Kind)
	excl := d.Result(letsim.ToolPolicyExclusive)
	assert.Equal(t, letsim.ResultAssistant, excl.Kind)
	assert.True(t, excl.HadToolCalls)
	assert.Equal(t, "I'll list files.", excl.FinalText)
}
