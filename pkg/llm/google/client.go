// Package google provides the Gemini transport for the llm.Client interface.
package google

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"momentum/pkg/llm"
	"momentum/pkg/llmerrors"
)

// Client wraps the Google GenAI client to implement llm.Client.
type Client struct {
	client *genai.Client
	apiKey string
	model  string
}

// NewClient creates a Gemini client for the given model. The underlying
// genai client is created lazily on first use because its constructor
// requires a context.
func NewClient(apiKey, model string) *Client {
	return &Client{
		client: nil,
		apiKey: apiKey,
		model:  model,
	}
}

// Generate implements llm.Client.
func (c *Client) Generate(ctx context.Context, req llm.GenerateRequest) (llm.GenerateResponse, error) {
	if err := req.Validate(); err != nil {
		return llm.GenerateResponse{}, llmerrors.NewWithCause(llmerrors.ErrorTypeValidation, err, "invalid generate request")
	}

	if c.client == nil {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  c.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return llm.GenerateResponse{}, llmerrors.NewWithCause(llmerrors.ErrorTypeAuth, err, "failed to create Gemini client")
		}
		c.client = client
	}

	maxTokens := req.MaxOutputTokens
	if maxTokens == 0 {
		maxTokens = llm.DefaultMaxOutputTokens
	}

	//nolint:gosec // MaxOutputTokens is bounded by config validation
	config := &genai.GenerateContentConfig{
		Temperature:     &req.Temperature,
		MaxOutputTokens: int32(maxTokens),
	}

	if req.SystemInstruction != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemInstruction}},
		}
	}

	// Structured output: Gemini enforces the schema server-side when the
	// response MIME type is JSON.
	if req.ResponseSchema != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = convertSchema(req.ResponseSchema)
	}

	contents := genai.Text(req.Prompt)

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return llm.GenerateResponse{}, classifyAPIError(err)
	}
	if result == nil {
		return llm.GenerateResponse{}, llmerrors.New(llmerrors.ErrorTypeMalformed, "empty response from Gemini API")
	}

	text := result.Text()
	if text == "" {
		return llm.GenerateResponse{}, llmerrors.New(llmerrors.ErrorTypeMalformed, "Gemini API returned no text")
	}

	return llm.GenerateResponse{Text: text}, nil
}

// ModelName returns the model this client targets.
func (c *Client) ModelName() string {
	return c.model
}

// classifyAPIError converts a genai failure into a classified error. Gemini
// error strings carry the HTTP status and gRPC status markers
// (RESOURCE_EXHAUSTED, UNAVAILABLE), which Classify recognizes.
func classifyAPIError(err error) *llmerrors.Error {
	return llmerrors.NewWithCause(llmerrors.Classify(err), err, fmt.Sprintf("Gemini API call failed: %v", err))
}

// convertSchema maps the provider-neutral schema onto genai's native form.
func convertSchema(s *llm.Schema) *genai.Schema {
	if s == nil {
		return nil
	}

	out := &genai.Schema{
		Description: s.Description,
		Required:    s.Required,
	}

	switch s.Type {
	case llm.TypeObject:
		out.Type = genai.TypeObject
	case llm.TypeArray:
		out.Type = genai.TypeArray
	case llm.TypeString:
		out.Type = genai.TypeString
	case llm.TypeNumber:
		out.Type = genai.TypeNumber
	case llm.TypeBoolean:
		out.Type = genai.TypeBoolean
	default:
		out.Type = genai.TypeString
	}

	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, child := range s.Properties {
			out.Properties[name] = convertSchema(child)
		}
	}
	if s.Items != nil {
		out.Items = convertSchema(s.Items)
	}

	return out
}
