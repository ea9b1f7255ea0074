package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/bunnhack/letsim"
)

// Interface compliance check.
var _ letsim.Provider = (*Client)(nil)

// Client implements [letsim.Provider] for an OpenAI-compatible endpoint.
type Client struct {
	apiKey     string
	baseURL    string
	path       string
	headers    http.Header
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a [Client].
type Option func(*Client)

// WithBaseURL sets the endpoint base URL. Useful for testing with httptest.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithPath sets the request path appended to the base URL.
func WithPath(path string) Option {
	return func(c *Client) { c.path = path }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithAPIKey sends the key as a bearer token. The relay holds upstream keys
// itself, so this is only needed when talking to a provider directly.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.headers.Add(key, value) }
}

// WithLogger sets the logger. The stream decoder logs skipped lines to it.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a [Client]. Without options it talks to a relay on
// localhost:8000.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		path:       defaultPath,
		headers:    make(http.Header),
		httpClient: http.DefaultClient,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Stream posts a streaming chat request and returns a [letsim.Stream] over
// the response. A non-2xx answer is returned as *letsim.UpstreamHTTPError
// before any decoding; transport failures as *letsim.NetworkError.
func (c *Client) Stream(ctx context.Context, req letsim.Request) (letsim.Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	body, err := json.Marshal(buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	for k, vs := range c.headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("openai: %w", ctx.Err())
		}
		return nil, fmt.Errorf("openai: %w", &letsim.NetworkError{Err: err})
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, parseHTTPError(resp)
	}

	c.logger.Debug("chat stream opened", "model", req.Model, "messages", len(req.Messages), "status", resp.StatusCode)
	return newStream(ctx, resp.Body, c.logger), nil
}

func buildRequest(req letsim.Request) apiRequest {
	r := apiRequest{
		Model:       req.Model,
		Messages:    convertMessages(req.Messages),
		Stream:      true,
		Tools:       convertTools(req.Tools),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if len(r.Tools) > 0 {
		r.ToolChoice = req.ToolChoice
		if r.ToolChoice == "" {
			r.ToolChoice = "auto"
		}
	}
	return r
}

func convertMessages(msgs []letsim.Message) []apiMessage {
	result := make([]apiMessage, 0, len(msgs))
	for _, msg := range msgs {
		switch m := msg.(type) {
		case letsim.SystemMessage:
			result = append(result, apiMessage{Role: "system", Content: strPtr(m.Content)})
		case letsim.UserMessage:
			result = append(result, apiMessage{Role: "user", Content: strPtr(m.Content)})
		case letsim.AssistantMessage:
			am := apiMessage{Role: "assistant"}
			if m.Content != "" || len(m.ToolCalls) == 0 {
				am.Content = strPtr(m.Content)
			}
			for _, tc := range m.ToolCalls {
				args := tc.Arguments
				if args == "" {
					args = "{}"
				}
				am.ToolCalls = append(am.ToolCalls, apiToolCall{
					ID:       tc.ID,
					Type:     "function",
					Function: apiFunctionCall{Name: tc.Name, Arguments: args},
				})
			}
			result = append(result, am)
		case letsim.ToolMessage:
			result = append(result, apiMessage{
				Role:       "tool",
				ToolCallID: m.ToolCallID,
				Name:       m.Name,
				Content:    strPtr(m.Content),
			})
		}
	}
	return result
}

func convertTools(tools []letsim.Tool) []apiTool {
	if len(tools) == 0 {
		return nil
	}
	result := make([]apiTool, len(tools))
	for i, t := range tools {
		params := t.Parameters
		if len(params) == 0 {
			params = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		result[i] = apiTool{
			Type:     "function",
			Function: apiFunction{Name: t.Name, Description: t.Description, Parameters: params},
		}
	}
	return result
}

func parseHTTPError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("openai: HTTP %d (failed to read body: %w)", resp.StatusCode, err)
	}
	return fmt.Errorf("openai: %w", &letsim.UpstreamHTTPError{StatusCode: resp.StatusCode, Body: string(body)})
}

func strPtr(s string) *string { return &s }
