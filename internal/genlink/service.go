// Package genlink coordinates prompt loading, provider selection, and driver
// execution for slide content generation. Text models fill element fields,
// image models render slide backgrounds.
package genlink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/schema"

	"github.com/slidesmith/slidesmith/internal/genlink/content"
	"github.com/slidesmith/slidesmith/internal/genlink/driver"
	"github.com/slidesmith/slidesmith/internal/genlink/prompt"
)

const (
	defaultTimeout = 60 * time.Second
	maxTimeout     = 2 * time.Minute

	defaultImageSize = "1792x1024"
)

// Service coordinates prompt loading, provider selection, and driver execution.
type Service struct {
	Providers *Registry
	Registry  prompt.Registry
}

// NewService wires a service from config, using the embedded prompt set
// unless cfg.PromptsDir overrides it.
func NewService(cfg Config) (*Service, error) {
	var (
		reg prompt.Registry
		err error
	)
	if dir := strings.TrimSpace(cfg.PromptsDir); dir != "" {
		prompts, loadErr := prompt.LoadFromDir(dir)
		if loadErr != nil {
			return nil, loadErr
		}
		reg, err = prompt.NewRegistry(prompts)
	} else {
		reg, err = prompt.DefaultRegistry()
	}
	if err != nil {
		return nil, err
	}

	return &Service{
		Providers: NewRegistry(cfg),
		Registry:  reg,
	}, nil
}

// GenerateFields runs a field-filling prompt and parses the flat JSON object
// the model returns.
func (s *Service) GenerateFields(ctx context.Context, req FieldsRequest) (*FieldsResponse, error) {
	if s == nil || s.Providers == nil {
		return nil, errors.New("genlink provider registry not configured")
	}
	if s.Registry == nil {
		return nil, errors.New("genlink prompt registry not configured")
	}

	slug := strings.TrimSpace(req.PromptSlug)
	if slug == "" {
		slug = prompt.SlugElementFields
	}

	promptDef, err := s.Registry.Get(slug)
	if err != nil {
		return nil, err
	}

	systemPrompt, userPrompt, err := prompt.Render(promptDef, req.Variables)
	if err != nil {
		return nil, err
	}

	messages := []content.Message{
		{Role: "system", Content: []content.ContentBlock{content.Text(systemPrompt)}},
		{Role: "user", Content: []content.ContentBlock{content.Text(userPrompt)}},
	}

	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = slug
	}

	modelKey := strings.TrimSpace(req.ModelKey)
	if modelKey == "" {
		modelKey = "standard"
	}

	resolved, err := s.Providers.Resolve(role, modelKey, req.Model)
	if err != nil {
		return nil, err
	}

	responseSchema := req.Schema
	if len(responseSchema) == 0 {
		responseSchema = promptDef.Config.ResponseSchema
	}

	driverReq := &driver.Request{
		Model:          resolved.Model,
		Messages:       messages,
		ResponseFormat: responseFormatFor(resolved.Driver, responseSchema, slug),
		PromptSlug:     slug,
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeoutFor(req.TimeoutSec))
	defer cancel()

	resp, err := resolved.Driver.Complete(ctx, driverReq)
	if err != nil && isUnsupportedSchemaError(err) {
		// Some models reject json_schema; downgrade to json_object and retry once.
		fallbackToJSONObject(driverReq)
		resp, err = resolved.Driver.Complete(ctx, driverReq)
	}
	if err != nil {
		return nil, err
	}

	raw := extractContent(resp)
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("empty response content")
	}

	result := &FieldsResponse{
		Provider: resolved.ProviderID,
		Model:    resolved.Model,
	}

	fields, err := decodeFields([]byte(raw))
	if err != nil {
		return nil, &RawResponseError{Err: err, Raw: json.RawMessage(raw)}
	}
	result.Fields = fields

	if err := validateResponse(responseSchema, []byte(raw)); err != nil {
		// Preserve parsed fields so callers can salvage usable copy, but
		// still signal the schema failure.
		result.Raw = truncateJSONRaw(json.RawMessage(raw), rawLimit(s.Providers.cfg))
		return result, &RawResponseError{Err: err, Raw: json.RawMessage(raw)}
	}

	if isRawCaptureEnabled(s.Providers.cfg, req.IncludeRaw) {
		result.Raw = truncateJSONRaw(json.RawMessage(raw), rawLimit(s.Providers.cfg))
	}

	return result, nil
}

// GenerateImage renders the background-image prompt and calls an
// image-capable provider.
func (s *Service) GenerateImage(ctx context.Context, req ImageRequest) (*ImageResult, error) {
	if s == nil || s.Providers == nil {
		return nil, errors.New("genlink provider registry not configured")
	}
	if s.Registry == nil {
		return nil, errors.New("genlink prompt registry not configured")
	}

	slug := strings.TrimSpace(req.PromptSlug)
	if slug == "" {
		slug = prompt.SlugBackgroundImage
	}

	promptDef, err := s.Registry.Get(slug)
	if err != nil {
		return nil, err
	}

	// Image prompts have no user turn; the rendered system template is the
	// whole prompt.
	promptText, _, err := prompt.Render(promptDef, req.Variables)
	if err != nil {
		return nil, err
	}

	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = slug
	}

	modelKey := strings.TrimSpace(req.ModelKey)
	if modelKey == "" {
		modelKey = "image"
	}

	resolved, err := s.Providers.Resolve(role, modelKey, req.Model)
	if err != nil {
		return nil, err
	}

	imageDriver, ok := resolved.Driver.(driver.ImageDriver)
	if !ok || !resolved.Driver.Capabilities().SupportsImages {
		return nil, fmt.Errorf("provider %q does not support image generation", resolved.ProviderID)
	}

	size := strings.TrimSpace(req.Size)
	if size == "" {
		size = defaultImageSize
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeoutFor(req.TimeoutSec))
	defer cancel()

	resp, err := imageDriver.GenerateImage(ctx, &driver.ImageRequest{
		Model:  resolved.Model,
		Prompt: promptText,
		Count:  1,
		Size:   size,
	})
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.Images) == 0 {
		return nil, errors.New("provider returned no images")
	}

	result := &ImageResult{
		Provider: resolved.ProviderID,
		Model:    resolved.Model,
	}
	block := resp.Images[0]
	switch {
	case block.IsImage():
		result.MIMEType = string(block.Type)
		result.Data = block.Data
	case strings.TrimSpace(block.Text) != "":
		result.URL = strings.TrimSpace(block.Text)
	default:
		return nil, errors.New("provider returned an empty image block")
	}

	return result, nil
}

func (s *Service) timeoutFor(timeoutSec int) time.Duration {
	duration := s.Providers.cfg.DefaultTimeout
	if duration <= 0 {
		duration = defaultTimeout
	}
	if timeoutSec > 0 {
		duration = time.Duration(timeoutSec) * time.Second
	}
	if duration > maxTimeout {
		duration = maxTimeout
	}
	return duration
}

// decodeFields parses a flat JSON object into field strings. Scalar values
// are coerced since models occasionally emit bare numbers for metric fields;
// nested structures are rejected.
func decodeFields(raw []byte) (map[string]string, error) {
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}

	fields := make(map[string]string, len(decoded))
	for key, value := range decoded {
		switch typed := value.(type) {
		case string:
			fields[key] = typed
		case float64:
			fields[key] = strconv.FormatFloat(typed, 'f', -1, 64)
		case bool:
			fields[key] = strconv.FormatBool(typed)
		case nil:
			fields[key] = ""
		default:
			return nil, fmt.Errorf("field %q is not a scalar", key)
		}
	}
	return fields, nil
}

func validateResponse(schemaDef map[string]any, payload []byte) error {
	if len(schemaDef) == 0 {
		return nil
	}

	schemaBytes, err := json.Marshal(schemaDef)
	if err != nil {
		return fmt.Errorf("encode response schema: %w", err)
	}
	validator, err := schema.NewValidator(schemaBytes)
	if err != nil {
		return fmt.Errorf("compile response schema: %w", err)
	}
	diagnostics, err := validator.ValidateJSON(payload)
	if err != nil {
		return err
	}
	if len(diagnostics) > 0 {
		return fmt.Errorf("response schema validation failed: %s", diagnostics[0].Message)
	}
	return nil
}

func extractContent(resp *driver.Response) string {
	if resp == nil {
		return ""
	}
	if len(resp.Content) == 0 {
		return ""
	}
	parts := make([]string, 0, len(resp.Content))
	for _, block := range resp.Content {
		parts = append(parts, block.Text)
	}
	return strings.Join(parts, "\n")
}
