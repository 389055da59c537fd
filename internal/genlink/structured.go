package genlink

import (
	"errors"
	"strings"

	"github.com/slidesmith/slidesmith/internal/genlink/driver"
)

// responseFormatFor picks the strongest structured-output mode the driver
// supports: a strict json_schema when available, json_object otherwise.
func responseFormatFor(drv driver.Driver, schema map[string]any, slug string) *driver.ResponseFormat {
	if drv != nil && drv.Capabilities().SupportsJSONSchema && len(schema) > 0 {
		name := strings.TrimSpace(slug)
		if name == "" {
			name = "slidesmith_schema"
		}
		// OpenAI requires name to be alphanumeric/underscore.
		name = strings.NewReplacer("-", "_", ".", "_").Replace(name)
		return &driver.ResponseFormat{
			Type: "json_schema",
			JSONSchema: &driver.JSONSchema{
				Name:   name,
				Strict: true,
				Schema: schema,
			},
		}
	}

	return &driver.ResponseFormat{Type: "json_object"}
}

func isUnsupportedSchemaError(err error) bool {
	if err == nil {
		return false
	}
	var perr *driver.ProviderError
	if errors.As(err, &perr) && perr != nil && perr.StatusCode == 400 {
		msg := strings.ToLower(perr.Message)
		return strings.Contains(msg, "json_schema") || strings.Contains(msg, "response_format")
	}
	return false
}

func fallbackToJSONObject(req *driver.Request) {
	if req == nil {
		return
	}
	if req.ResponseFormat == nil {
		return
	}
	req.ResponseFormat = &driver.ResponseFormat{Type: "json_object"}
}
