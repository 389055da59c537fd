// Package promptbuild turns variant elements into generation inputs: the
// prompt variables, the per-element response schema, and a previewable
// instruction string.
package promptbuild

import (
	"fmt"
	"strings"

	"github.com/slidesmith/slidesmith/internal/genlink/prompt"
	"github.com/slidesmith/slidesmith/internal/variant"
)

// Inputs carries the request-level context that shapes generated copy. All
// fields are optional; empty values are omitted from the variable map.
type Inputs struct {
	SlideTitle string
	KeyMessage string
	Narrative  string
	Audience   string
	Tone       string
	Position   string

	// Extra carries additional brief fields offered to templates verbatim.
	Extra map[string]string
}

// Slug selects the prompt definition for a spec. Hero slides write all of
// their fields in one combined pass, so they use a dedicated prompt.
func Slug(spec *variant.Spec) string {
	if spec != nil && spec.Hero {
		return prompt.SlugHeroSlide
	}
	return prompt.SlugElementFields
}

// FieldSpecs renders the per-field character budget block, one line per
// required field in declaration order.
func FieldSpecs(el *variant.ElementDef) string {
	if el == nil {
		return ""
	}
	var b strings.Builder
	for _, field := range el.RequiredFields {
		c, ok := el.Constraint(field)
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "- %s: %d to %d characters (aim for %d)\n", field, c.Min, c.Max, c.Baseline)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Variables builds the substitution map for the element's prompt template.
// Extra brief fields are offered as variables too, but never shadow the
// structural ones the templates rely on.
func Variables(spec *variant.Spec, el *variant.ElementDef, in Inputs) map[string]string {
	vars := map[string]string{
		"variant_title": spec.Title,
		"element_id":    el.ElementID,
		"element_type":  string(el.ElementType),
		"field_specs":   FieldSpecs(el),
	}
	for key, value := range in.Extra {
		if key == "" || strings.TrimSpace(value) == "" {
			continue
		}
		if _, taken := vars[key]; !taken {
			vars[key] = value
		}
	}
	setIfPresent(vars, "slide_title", in.SlideTitle)
	setIfPresent(vars, "key_message", in.KeyMessage)
	setIfPresent(vars, "narrative", in.Narrative)
	setIfPresent(vars, "audience", in.Audience)
	setIfPresent(vars, "tone", in.Tone)
	setIfPresent(vars, "position", in.Position)
	return vars
}

func setIfPresent(vars map[string]string, key, value string) {
	if strings.TrimSpace(value) != "" {
		vars[key] = value
	}
}

// ResponseSchema builds a strict JSON schema for the element's output: a
// flat object whose keys are exactly the required fields. Character budgets
// ride along as descriptions since rune counts are enforced after the fact
// by the validator, not by the schema.
func ResponseSchema(el *variant.ElementDef) map[string]any {
	properties := make(map[string]any, len(el.RequiredFields))
	required := make([]any, 0, len(el.RequiredFields))
	for _, field := range el.RequiredFields {
		prop := map[string]any{"type": "string"}
		if c, ok := el.Constraint(field); ok {
			prop["description"] = fmt.Sprintf("%d to %d characters", c.Min, c.Max)
		}
		properties[field] = prop
		required = append(required, field)
	}
	return map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}
}

// Instruction renders the complete instruction text an element call will
// send, system and user parts joined. Used by the render command's prompt
// preview and by tests; the generation path renders through the same
// prompt.Render.
func Instruction(reg prompt.Registry, spec *variant.Spec, el *variant.ElementDef, in Inputs) (string, error) {
	if reg == nil {
		return "", fmt.Errorf("prompt registry is required")
	}
	def, err := reg.Get(Slug(spec))
	if err != nil {
		return "", err
	}
	system, user, err := prompt.Render(def, Variables(spec, el, in))
	if err != nil {
		return "", err
	}
	return system + "\n\n" + user, nil
}
