// Package llm defines the provider-neutral boundary to the generation API:
// a request is a prompt plus optional system instruction and JSON response
// schema, a response is text. Transports live in subpackages.
package llm

import (
	"context"
	"fmt"
)

const (
	// TemperatureCreative is used for plan and reflection generation, where
	// some variety between days is desirable.
	TemperatureCreative = 0.7

	// DefaultMaxOutputTokens bounds a single generation reply.
	DefaultMaxOutputTokens = 2048
)

// SchemaType enumerates the JSON schema types the generation APIs accept.
type SchemaType string

const (
	TypeObject  SchemaType = "object"
	TypeArray   SchemaType = "array"
	TypeString  SchemaType = "string"
	TypeNumber  SchemaType = "number"
	TypeBoolean SchemaType = "boolean"
)

// Schema describes the required shape of a structured JSON response.
// Transports convert it to their provider's native schema representation.
type Schema struct {
	Type        SchemaType         `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

// GenerateRequest is a single call to the generation API.
type GenerateRequest struct {
	Model             string  // Model identifier, e.g. "gemini-2.5-flash"
	Prompt            string  // User prompt text
	SystemInstruction string  // Persona / behavior instruction
	ResponseSchema    *Schema // When set, the reply must be JSON of this shape
	Temperature       float32
	MaxOutputTokens   int // Zero means DefaultMaxOutputTokens
}

// GenerateResponse is the successful outcome of a generation call.
type GenerateResponse struct {
	Text string
}

// Client is a transport to one generation API provider.
type Client interface {
	// Generate performs one completion. Failures are returned as
	// *llmerrors.Error with a classified type.
	Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error)

	// ModelName returns the model this client targets.
	ModelName() string
}

// Validate checks request fields common to all transports.
func (r *GenerateRequest) Validate() error {
	if r.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}
	if r.Prompt == "" {
		return fmt.Errorf("prompt cannot be empty")
	}
	if r.Temperature < 0.0 || r.Temperature > 2.0 {
		return fmt.Errorf("temperature must be between 0.0 and 2.0")
	}
	return nil
}

// SchemaToMap renders a Schema as the generic map form used by
// OpenAI-compatible providers.
func SchemaToMap(s *Schema) map[string]any {
	if s == nil {
		return nil
	}

	m := map[string]any{"type": string(s.Type)}
	if s.Description != "" {
		m["description"] = s.Description
	}
	if len(s.Properties) > 0 {
		props := make(map[string]any, len(s.Properties))
		for name, child := range s.Properties {
			props[name] = SchemaToMap(child)
		}
		m["properties"] = props
		// Strict structured output rejects objects that allow extra keys.
		m["additionalProperties"] = false
	}
	if s.Items != nil {
		m["items"] = SchemaToMap(s.Items)
	}
	if len(s.Required) > 0 {
		m["required"] = s.Required
	}
	return m
}
