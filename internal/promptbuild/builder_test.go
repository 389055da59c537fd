package promptbuild

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/slidesmith/slidesmith/internal/genlink/prompt"
	"github.com/slidesmith/slidesmith/internal/variant"
)

func loadSpec(t *testing.T, id string) *variant.Spec {
	t.Helper()
	spec, err := variant.NewDefaultLoader().Load(id)
	require.NoError(t, err)
	return spec
}

func TestFieldSpecsListsEveryFieldWithBounds(t *testing.T) {
	spec := loadSpec(t, "metrics_3col")
	el := spec.Elements[0]

	block := FieldSpecs(&el)
	require.Contains(t, block, "- value: 2 to 12 characters (aim for 8)")
	require.Contains(t, block, "- label: 17 to 19 characters (aim for 18)")
	require.Contains(t, block, "- context: 39 to 45 characters (aim for 42)")

	lines := len(el.RequiredFields)
	require.Len(t, splitLines(block), lines)
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

func TestSlugSelectsHeroPrompt(t *testing.T) {
	require.Equal(t, prompt.SlugElementFields, Slug(loadSpec(t, "matrix_2x2")))
	require.Equal(t, prompt.SlugHeroSlide, Slug(loadSpec(t, "title_hero")))
}

func TestVariablesOmitEmptyOptionalInputs(t *testing.T) {
	spec := loadSpec(t, "matrix_2x2")
	el := spec.Elements[0]

	vars := Variables(spec, &el, Inputs{})
	require.Equal(t, "box_1", vars["element_id"])
	require.Equal(t, "text_box", vars["element_type"])
	require.NotContains(t, vars, "narrative")
	require.NotContains(t, vars, "slide_title")

	vars = Variables(spec, &el, Inputs{SlideTitle: "Growth", Narrative: "Q3 story"})
	require.Equal(t, "Growth", vars["slide_title"])
	require.Equal(t, "Q3 story", vars["narrative"])
}

func TestResponseSchemaRequiresEveryField(t *testing.T) {
	spec := loadSpec(t, "metrics_3col")
	el := spec.Elements[0]

	schema := ResponseSchema(&el)
	require.Equal(t, "object", schema["type"])
	require.Equal(t, false, schema["additionalProperties"])

	properties := schema["properties"].(map[string]any)
	require.Len(t, properties, len(el.RequiredFields))
	for _, field := range el.RequiredFields {
		require.Contains(t, properties, field)
	}

	required := schema["required"].([]any)
	require.Len(t, required, len(el.RequiredFields))
}

func TestInstructionCarriesBoundsAndNarrative(t *testing.T) {
	reg, err := prompt.DefaultRegistry()
	require.NoError(t, err)

	spec := loadSpec(t, "matrix_2x2")
	el := spec.Elements[0]

	text, err := Instruction(reg, spec, &el, Inputs{Narrative: "Four pillars of the rollout plan"})
	require.NoError(t, err)
	require.Contains(t, text, "19 to 21 characters")
	require.Contains(t, text, "Four pillars of the rollout plan")
	require.Contains(t, text, "box_1")
	require.Contains(t, text, "JSON")
	require.NotContains(t, text, "{{")
}

func TestInstructionHeroUsesHeroPrompt(t *testing.T) {
	reg, err := prompt.DefaultRegistry()
	require.NoError(t, err)

	spec := loadSpec(t, "title_hero")
	el := spec.Elements[0]

	text, err := Instruction(reg, spec, &el, Inputs{})
	require.NoError(t, err)
	require.Contains(t, text, "hero slide")
	require.Contains(t, text, "single pass")
}
