package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bunnhack/letsim"
	"google.golang.org/genai"
)

// Interface compliance check.
var _ letsim.Provider = (*Client)(nil)

// Client implements [letsim.Provider] for the Google Gemini API.
type Client struct {
	client *genai.Client
	model  string
}

// Option configures a [Client].
type Option func(*Client)

// WithModel sets the model used when a request names a model Gemini does not
// serve. Default is gemini-2.5-flash.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// New creates a new Gemini [Client] with the given API key and options.
func New(ctx context.Context, apiKey string, opts ...Option) (*Client, error) {
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	c := &Client{
		client: gc,
		model:  defaultModel,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Stream sends a streaming request to the Gemini API and returns a
// [letsim.Stream] that emits semantic events.
func (c *Client) Stream(ctx context.Context, req letsim.Request) (letsim.Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	model := req.Model
	if !strings.HasPrefix(model, "gemini") {
		model = c.model
	}

	contents, system := ConvertMessages(req.Messages)
	config := buildConfig(req, system)

	iter := c.client.Models.GenerateContentStream(ctx, model, contents, config)
	return NewStreamFromIter(ctx, iter), nil
}

func buildConfig(req letsim.Request, system string) *genai.GenerateContentConfig {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokens),
		Tools:           ConvertTools(req.Tools),
	}

	if system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}

	if req.Temperature != nil {
		temp := float32(*req.Temperature)
		config.Temperature = &temp
	}

	return config
}

// ConvertMessages converts letsim Messages to genai Contents. System
// messages are joined into the returned system instruction.
// Exported for testing.
func ConvertMessages(msgs []letsim.Message) ([]*genai.Content, string) {
	var (
		result []*genai.Content
		system []string
	)
	for _, msg := range msgs {
		switch m := msg.(type) {
		case letsim.SystemMessage:
			system = append(system, m.Content)
		case letsim.UserMessage:
			result = append(result, &genai.Content{
				Role:  "user",
				Parts: []*genai.Part{{Text: m.Content}},
			})
		case letsim.AssistantMessage:
			var parts []*genai.Part
			if m.Content != "" {
				parts = append(parts, &genai.Part{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				// Arguments that fail to parse are sent as an empty object.
				var args map[string]any
				_ = json.Unmarshal([]byte(tc.Arguments), &args)
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Name, Args: args},
				})
			}
			result = append(result, &genai.Content{Role: "model", Parts: parts})
		case letsim.ToolMessage:
			responseMap := map[string]any{"output": m.Content}
			if m.IsError {
				responseMap = map[string]any{"error": m.Content}
			}
			part := &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       m.ToolCallID,
				Name:     m.Name,
				Response: responseMap,
			}}
			// Consecutive tool results share one user turn.
			if n := len(result); n > 0 && isFunctionResponse(result[n-1]) {
				result[n-1].Parts = append(result[n-1].Parts, part)
				continue
			}
			result = append(result, &genai.Content{Role: "user", Parts: []*genai.Part{part}})
		}
	}
	return result, strings.Join(system, "\n\n")
}

func isFunctionResponse(c *genai.Content) bool {
	return c.Role == "user" && len(c.Parts) > 0 && c.Parts[0].FunctionResponse != nil
}

// ConvertTools converts letsim Tools to genai Tools.
// Exported for testing.
func ConvertTools(tools []letsim.Tool) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, len(tools))
	for i, t := range tools {
		var schema map[string]any
		_ = json.Unmarshal(t.Parameters, &schema)
		decls[i] = &genai.FunctionDeclaration{
			Name:                 t.Name,
			Description:          t.Description,
			ParametersJsonSchema: schema,
		}
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}
