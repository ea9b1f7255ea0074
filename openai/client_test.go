package openai_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bunnhack/letsim"
	"github.com/bunnhack/letsim/openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalSSE = "data: {\"choices\":[{\"delta\":{\"content\":\"ok\"},\"finish_reason\":\"stop\"}]}\n\ndata: [DONE]\n\n"

func TestClient_RequestFormat(t *testing.T) {
	t.Parallel()

	var captured []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = io.ReadAll(r.Body)

		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "letsim", r.Header.Get("X-Title"))

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, minimalSSE)
	}))
	defer srv.Close()

	client := openai.New(
		openai.WithBaseURL(srv.URL),
		openai.WithAPIKey("sk-test"),
		openai.WithHeader("X-Title", "letsim"),
	)
	temp := 0.2
	s, err := client.Stream(context.Background(), letsim.Request{
		Model: "xiaomi/mimo-v2-flash:free",
		Messages: []letsim.Message{
			letsim.SystemMessage{Content: "sys"},
			letsim.UserMessage{Content: "list files"},
			letsim.AssistantMessage{ToolCalls: []letsim.ToolCall{{ID: "call_1", Name: "run_command"}}},
			letsim.ToolMessage{ToolCallID: "call_1", Name: "run_command", Content: "a.js"},
		},
		Tools: []letsim.Tool{{
			Name:        "run_command",
			Description: "Run a shell command",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"command":{"type":"string"}},"required":["command"]}`),
		}},
		Temperature: &temp,
	})
	require.NoError(t, err)
	defer s.Close()

	var body map[string]any
	require.NoError(t, json.Unmarshal(captured, &body))
	assert.Equal(t, "xiaomi/mimo-v2-flash:free", body["model"])
	assert.Equal(t, true, body["stream"])
	assert.Equal(t, "auto", body["tool_choice"])
	assert.Equal(t, 0.2, body["temperature"])
	assert.NotContains(t, body, "max_tokens")

	msgs := body["messages"].([]any)
	require.Len(t, msgs, 4)
	assert.Equal(t, map[string]any{"role": "system", "content": "sys"}, msgs[0])
	assert.Equal(t, map[string]any{"role": "user", "content": "list files"}, msgs[1])
	assert.Equal(t, map[string]any{
		"role": "assistant",
		"tool_calls": []any{map[string]any{
			"id":       "call_1",
			"type":     "function",
			"function": map[string]any{"name": "run_command", "arguments": "{}"},
		}},
	}, msgs[2])
	assert.Equal(t, map[string]any{
		"role": "tool", "tool_call_id": "call_1", "name": "run_command", "content": "a.js",
	}, msgs[3])

	tools := body["tools"].([]any)
	require.Len(t, tools, 1)
	tool := tools[0].(map[string]any)
	assert.Equal(t, "function", tool["type"])
	fn := tool["function"].(map[string]any)
	assert.Equal(t, "run_command", fn["name"])
	assert.Equal(t, []any{"command"}, fn["parameters"].(map[string]any)["required"])
}

func TestClient_NoToolsOmitsToolChoice(t *testing.T) {
	t.Parallel()

	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, minimalSSE)
	}))
	defer srv.Close()

	s, err := openai.New(openai.WithBaseURL(srv.URL)).Stream(context.Background(), letsim.Request{
		Model:    "GPT-4o",
		Messages: []letsim.Message{letsim.UserMessage{Content: "hi"}},
	})
	require.NoError(t, err)
	defer s.Close()
	assert.NotContains(t, body, "tools")
	assert.NotContains(t, body, "tool_choice")
}

func TestClient_CustomPath(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		_, _ = io.WriteString(w, minimalSSE)
	}))
	defer srv.Close()

	s, err := openai.New(openai.WithBaseURL(srv.URL), openai.WithPath("/v1/chat/completions")).
		Stream(context.Background(), letsim.Request{Model: "m", Messages: []letsim.Message{letsim.UserMessage{Content: "x"}}})
	require.NoError(t, err)
	s.Close()
}

func TestClient_HTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, "Missing POE_API_KEY")
	}))
	defer srv.Close()

	_, err := openai.New(openai.WithBaseURL(srv.URL)).Stream(context.Background(), letsim.Request{
		Model:    "GPT-4o",
		Messages: []letsim.Message{letsim.UserMessage{Content: "hi"}},
	})
	var httpErr *letsim.UpstreamHTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusInternalServerError, httpErr.StatusCode)
	assert.Equal(t, "Missing POE_API_KEY", httpErr.Body)
}

func TestClient_ConnectionRefused(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := openai.New(openai.WithBaseURL(url)).Stream(context.Background(), letsim.Request{
		Model:    "GPT-4o",
		Messages: []letsim.Message{letsim.UserMessage{Content: "hi"}},
	})
	var netErr *letsim.NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.NotEmpty(t, netErr.Hint())
}

func TestClient_InvalidRequest(t *testing.T) {
	t.Parallel()

	_, err := openai.New().Stream(context.Background(), letsim.Request{})
	assert.ErrorIs(t, err, letsim.ErrValidation)
}
