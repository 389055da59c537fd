package genlink

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/slidesmith/slidesmith/internal/genlink/content"
	"github.com/slidesmith/slidesmith/internal/genlink/driver"
	"github.com/slidesmith/slidesmith/internal/genlink/prompt"
)

type recordingDriver struct {
	name     string
	caps     driver.Capabilities
	respText string
	firstErr error
	reqs     []*driver.Request
}

func (d *recordingDriver) Complete(ctx context.Context, req *driver.Request) (*driver.Response, error) {
	d.reqs = append(d.reqs, req)
	if d.firstErr != nil && len(d.reqs) == 1 {
		return nil, d.firstErr
	}
	return &driver.Response{Content: []content.ContentBlock{content.Text(d.respText)}}, nil
}

func (d *recordingDriver) Name() string { return d.name }

func (d *recordingDriver) Capabilities() driver.Capabilities { return d.caps }

type stubPromptRegistry struct {
	prompt *prompt.Prompt
}

func (s stubPromptRegistry) Get(slug string) (*prompt.Prompt, error) { return s.prompt, nil }
func (s stubPromptRegistry) List() []*prompt.Prompt                  { return []*prompt.Prompt{s.prompt} }

func registryWithDriver(drv driver.Driver) *Registry {
	providers := &Registry{cfg: Config{}}
	providers.cfg.DefaultProvider = "p"
	providers.cfg.Providers = map[string]ProviderInstanceConfig{
		"p": {
			Enabled:     true,
			AIProvider:  "openai",
			Models:      map[string]string{"default": "m", "standard": "m-standard", "premium": "m-premium", "image": "m-image"},
			Credentials: []CredentialConfig{{APIKey: "k"}},
		},
	}
	// Registry caches drivers by providerID:credKey. With no credential label
	// and default priority, selectCredential() uses "p0".
	providers.drivers = map[string]driver.Driver{"p:p0": drv}
	return providers
}

func fieldsPromptDef() *prompt.Prompt {
	return &prompt.Prompt{Config: prompt.Config{
		Slug:           "element-fields",
		SystemTemplate: "Fill {{element_id}}.",
		UserTemplate:   "{{field_specs}}",
	}}
}

func TestGenerateFieldsParsesFlatObject(t *testing.T) {
	drv := &recordingDriver{
		name:     "openai",
		caps:     driver.Capabilities{SupportsJSONSchema: true},
		respText: `{"title": "Ship it faster", "body": "Cut review cycles in half."}`,
	}
	svc := &Service{Providers: registryWithDriver(drv), Registry: stubPromptRegistry{prompt: fieldsPromptDef()}}

	resp, err := svc.GenerateFields(context.Background(), FieldsRequest{
		Variables: map[string]string{"element_id": "box_1", "field_specs": "- title\n- body"},
		Schema:    map[string]any{"type": "object"},
	})
	require.NoError(t, err)
	require.Equal(t, "Ship it faster", resp.Fields["title"])
	require.Equal(t, "Cut review cycles in half.", resp.Fields["body"])
	require.Equal(t, "p", resp.Provider)
	require.Equal(t, "m-standard", resp.Model)

	require.Len(t, drv.reqs, 1)
	require.NotNil(t, drv.reqs[0].ResponseFormat)
	require.Equal(t, "json_schema", drv.reqs[0].ResponseFormat.Type)
}

func TestGenerateFieldsUsesModelKey(t *testing.T) {
	drv := &recordingDriver{name: "openai", respText: `{"a": "b"}`}
	svc := &Service{Providers: registryWithDriver(drv), Registry: stubPromptRegistry{prompt: fieldsPromptDef()}}

	resp, err := svc.GenerateFields(context.Background(), FieldsRequest{
		Variables: map[string]string{"element_id": "x", "field_specs": "- a"},
		ModelKey:  "premium",
	})
	require.NoError(t, err)
	require.Equal(t, "m-premium", resp.Model)
	require.Equal(t, "m-premium", drv.reqs[0].Model)
}

func TestGenerateFieldsCoercesScalars(t *testing.T) {
	drv := &recordingDriver{name: "openai", respText: `{"value": 42, "grew": true, "note": null}`}
	svc := &Service{Providers: registryWithDriver(drv), Registry: stubPromptRegistry{prompt: fieldsPromptDef()}}

	resp, err := svc.GenerateFields(context.Background(), FieldsRequest{
		Variables: map[string]string{"element_id": "x", "field_specs": "- value"},
	})
	require.NoError(t, err)
	require.Equal(t, "42", resp.Fields["value"])
	require.Equal(t, "true", resp.Fields["grew"])
	require.Equal(t, "", resp.Fields["note"])
}

func TestGenerateFieldsRejectsNestedValues(t *testing.T) {
	drv := &recordingDriver{name: "openai", respText: `{"fields": {"title": "nested"}}`}
	svc := &Service{Providers: registryWithDriver(drv), Registry: stubPromptRegistry{prompt: fieldsPromptDef()}}

	_, err := svc.GenerateFields(context.Background(), FieldsRequest{
		Variables: map[string]string{"element_id": "x", "field_specs": "- title"},
	})
	require.Error(t, err)

	var rawErr *RawResponseError
	require.ErrorAs(t, err, &rawErr)
	require.Contains(t, string(rawErr.Raw), "nested")
}

func TestGenerateFieldsReturnsFieldsAlongsideSchemaFailure(t *testing.T) {
	drv := &recordingDriver{name: "openai", respText: `{"body": "present"}`}
	svc := &Service{Providers: registryWithDriver(drv), Registry: stubPromptRegistry{prompt: fieldsPromptDef()}}

	resp, err := svc.GenerateFields(context.Background(), FieldsRequest{
		Variables: map[string]string{"element_id": "x", "field_specs": "- title"},
		Schema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"title": map[string]any{"type": "string"}},
			"required":   []any{"title"},
		},
	})
	require.Error(t, err)

	var rawErr *RawResponseError
	require.ErrorAs(t, err, &rawErr)
	require.NotNil(t, resp)
	require.Equal(t, "present", resp.Fields["body"])
}

func TestGenerateFieldsDowngradesUnsupportedSchema(t *testing.T) {
	drv := &recordingDriver{
		name:     "openai",
		caps:     driver.Capabilities{SupportsJSONSchema: true},
		respText: `{"title": "ok"}`,
		firstErr: &driver.ProviderError{Provider: "openai", StatusCode: 400, Message: "response_format json_schema is not supported"},
	}
	svc := &Service{Providers: registryWithDriver(drv), Registry: stubPromptRegistry{prompt: fieldsPromptDef()}}

	resp, err := svc.GenerateFields(context.Background(), FieldsRequest{
		Variables: map[string]string{"element_id": "x", "field_specs": "- title"},
		Schema:    map[string]any{"type": "object"},
	})
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Fields["title"])

	require.Len(t, drv.reqs, 2)
	require.Equal(t, "json_schema", drv.reqs[0].ResponseFormat.Type)
	require.Equal(t, "json_object", drv.reqs[1].ResponseFormat.Type)
}

type imageStubDriver struct {
	recordingDriver
	imageReq *driver.ImageRequest
	resp     *driver.ImageResponse
}

func (d *imageStubDriver) GenerateImage(ctx context.Context, req *driver.ImageRequest) (*driver.ImageResponse, error) {
	d.imageReq = req
	return d.resp, nil
}

func imagePromptDef() *prompt.Prompt {
	return &prompt.Prompt{Config: prompt.Config{
		Slug:           "background-image",
		SystemTemplate: "Slide background, {{style}} style.",
	}}
}

func TestGenerateImageReturnsDecodedBytes(t *testing.T) {
	pixel := []byte{0x89, 0x50, 0x4e, 0x47}
	drv := &imageStubDriver{
		recordingDriver: recordingDriver{name: "openai", caps: driver.Capabilities{SupportsImages: true}},
		resp: &driver.ImageResponse{
			Images: []content.ContentBlock{content.Image(string(content.ContentTypePNG), pixel)},
		},
	}
	svc := &Service{Providers: registryWithDriver(drv), Registry: stubPromptRegistry{prompt: imagePromptDef()}}

	result, err := svc.GenerateImage(context.Background(), ImageRequest{
		Variables: map[string]string{"style": "abstract_waves"},
	})
	require.NoError(t, err)
	require.Equal(t, pixel, result.Data)
	require.Equal(t, string(content.ContentTypePNG), result.MIMEType)
	require.Equal(t, "m-image", result.Model)

	require.NotNil(t, drv.imageReq)
	require.Contains(t, drv.imageReq.Prompt, "abstract_waves")
	require.Equal(t, 1, drv.imageReq.Count)
	require.Equal(t, defaultImageSize, drv.imageReq.Size)

	// Round-trip sanity on the block helper used above.
	require.Equal(t, pixel, mustDecode(t, base64.StdEncoding.EncodeToString(pixel)))
}

func mustDecode(t *testing.T, s string) []byte {
	t.Helper()
	out, err := base64.StdEncoding.DecodeString(s)
	require.NoError(t, err)
	return out
}

func TestGenerateImageRejectsTextOnlyProvider(t *testing.T) {
	drv := &recordingDriver{name: "anthropic"}
	svc := &Service{Providers: registryWithDriver(drv), Registry: stubPromptRegistry{prompt: imagePromptDef()}}

	_, err := svc.GenerateImage(context.Background(), ImageRequest{
		Variables: map[string]string{"style": "soft_texture"},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "does not support image generation")
}
