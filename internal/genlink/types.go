package genlink

import "encoding/json"

// FieldsRequest asks a text model to fill a set of named fields for one
// slide element.
type FieldsRequest struct {
	Role       string
	PromptSlug string
	Variables  map[string]string

	// Schema overrides the prompt's response schema. The orchestration layer
	// builds one per element so provider-side structured output can pin the
	// exact field set.
	Schema map[string]any

	// ModelKey selects from the provider's models map ("standard",
	// "premium"). Model, when set, bypasses the map entirely.
	ModelKey   string
	Model      string
	TimeoutSec int
	IncludeRaw bool
}

// FieldsResponse carries the parsed field map plus provenance.
type FieldsResponse struct {
	Fields   map[string]string `json:"fields"`
	Provider string            `json:"provider"`
	Model    string            `json:"model"`
	Raw      json.RawMessage   `json:"raw,omitempty"`
}

// ImageRequest asks an image model for a slide background.
type ImageRequest struct {
	Role       string
	PromptSlug string
	Variables  map[string]string
	ModelKey   string
	Model      string
	Size       string
	TimeoutSec int
}

// ImageResult is a generated background image. Exactly one of Data or URL is
// set depending on how the provider returns images.
type ImageResult struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	MIMEType string `json:"mime_type,omitempty"`
	Data     []byte `json:"-"`
	URL      string `json:"url,omitempty"`
}

// GenError captures a generation failure without breaking the pipeline.
type GenError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}
