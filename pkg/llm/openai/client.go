// Package openai provides an OpenAI-compatible transport for the llm.Client
// interface, using the official OpenAI Go package.
package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"momentum/pkg/llm"
	"momentum/pkg/llmerrors"
)

// Client wraps the official OpenAI client to implement llm.Client.
type Client struct {
	client openai.Client
	model  string
}

// NewClient creates an OpenAI client for the given model.
func NewClient(apiKey, model string) *Client {
	return &Client{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Generate implements llm.Client using the Chat Completions API.
func (c *Client) Generate(ctx context.Context, req llm.GenerateRequest) (llm.GenerateResponse, error) {
	if err := req.Validate(); err != nil {
		return llm.GenerateResponse{}, llmerrors.NewWithCause(llmerrors.ErrorTypeValidation, err, "invalid generate request")
	}

	maxTokens := req.MaxOutputTokens
	if maxTokens == 0 {
		maxTokens = llm.DefaultMaxOutputTokens
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.SystemInstruction != "" {
		messages = append(messages, openai.SystemMessage(req.SystemInstruction))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(c.model),
		Messages:            messages,
		Temperature:         openai.Float(float64(req.Temperature)),
		MaxCompletionTokens: openai.Int(int64(maxTokens)),
	}

	// Structured output via strict JSON schema when the caller requires a
	// fixed response shape.
	if req.ResponseSchema != nil {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "structured_response",
					Schema: llm.SchemaToMap(req.ResponseSchema),
					Strict: openai.Bool(true),
				},
			},
		}
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return llm.GenerateResponse{}, classifyAPIError(err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return llm.GenerateResponse{}, llmerrors.New(llmerrors.ErrorTypeMalformed, "empty response from OpenAI API")
	}

	text := resp.Choices[0].Message.Content
	if text == "" {
		return llm.GenerateResponse{}, llmerrors.New(llmerrors.ErrorTypeMalformed, "OpenAI API returned no text")
	}

	return llm.GenerateResponse{Text: text}, nil
}

// ModelName returns the model this client targets.
func (c *Client) ModelName() string {
	return c.model
}

// classifyAPIError converts an OpenAI SDK failure into a classified error.
// The SDK exposes HTTP failures as *openai.Error with a status code.
func classifyAPIError(err error) *llmerrors.Error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		msg := fmt.Sprintf("OpenAI API call failed: %v", err)
		switch apiErr.StatusCode {
		case 429:
			return llmerrors.NewWithStatus(llmerrors.ErrorTypeQuota, apiErr.StatusCode, msg)
		case 500, 502, 503, 504:
			return llmerrors.NewWithStatus(llmerrors.ErrorTypeUnavailable, apiErr.StatusCode, msg)
		case 401, 403:
			return llmerrors.NewWithStatus(llmerrors.ErrorTypeAuth, apiErr.StatusCode, msg)
		default:
			return llmerrors.NewWithStatus(llmerrors.Classify(err), apiErr.StatusCode, msg)
		}
	}

	return llmerrors.NewWithCause(llmerrors.Classify(err), err, fmt.Sprintf("OpenAI API call failed: %v", err))
}
