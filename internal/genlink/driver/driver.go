package driver

import (
	"context"

	"github.com/slidesmith/slidesmith/internal/genlink/content"
)

// Driver defines the interface for text-generation providers.
type Driver interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req *Request) (*Response, error)
	// Name returns the driver identifier (e.g., "openai").
	Name() string
	// Capabilities returns what this driver supports.
	Capabilities() Capabilities
}

// ImageDriver is implemented by providers that can generate images.
type ImageDriver interface {
	GenerateImage(ctx context.Context, req *ImageRequest) (*ImageResponse, error)
}

// Capabilities describes driver features.
type Capabilities struct {
	SupportsImages     bool
	SupportsJSONSchema bool
	SupportedModels    []string
}

// ResponseFormat specifies the expected response format.
type ResponseFormat struct {
	Type       string      `json:"type"` // "text", "json_object", "json_schema"
	JSONSchema *JSONSchema `json:"json_schema,omitempty"`
}

// JSONSchema carries a strict structured-output schema for providers that
// support it.
type JSONSchema struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

// Usage contains token usage statistics.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Request is a provider-agnostic completion request.
type Request struct {
	Model          string
	Messages       []content.Message
	ResponseFormat *ResponseFormat
	Temperature    *float64
	MaxTokens      *int
	PromptSlug     string
	Metadata       map[string]string
}

// Response is a provider-agnostic completion response.
type Response struct {
	Content      []content.ContentBlock
	FinishReason string
	Usage        *Usage
}

// ImageRequest is a provider-agnostic image generation request.
type ImageRequest struct {
	Model        string
	Prompt       string
	Count        int
	Size         string // pixel size, e.g. "1792x1024"
	Quality      string
	OutputFormat string // png, jpeg, webp; GPT image models only
	Background   string // transparent or opaque; GPT image models only
}

// ImageResponse carries generated images as content blocks: raw bytes for
// base64 payloads, plain-text blocks holding the URL for hosted results.
type ImageResponse struct {
	Created      int64
	OutputFormat string
	Size         string
	Quality      string
	Images       []content.ContentBlock
}
