package variant

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsAllValid(t *testing.T) {
	loader := NewDefaultLoader()

	ids, err := loader.List()
	require.NoError(t, err)
	require.NotEmpty(t, ids)
	require.Contains(t, ids, "matrix_2x2")

	for _, id := range ids {
		spec, err := loader.Load(id)
		require.NoError(t, err, "variant %s", id)
		require.Equal(t, id, spec.VariantID)
		require.NotEmpty(t, spec.TemplatePath)
		require.NotEmpty(t, spec.Elements)

		for _, el := range spec.Elements {
			require.True(t, el.ElementType.Valid(), "variant %s element %s", id, el.ElementID)
			for _, field := range el.RequiredFields {
				c, ok := el.Constraint(field)
				require.True(t, ok, "variant %s field %s", id, field)
				require.LessOrEqual(t, c.Min, c.Baseline, "variant %s field %s", id, field)
				require.LessOrEqual(t, c.Baseline, c.Max, "variant %s field %s", id, field)
			}
		}
	}
}

func TestLoadMatrixSpec(t *testing.T) {
	loader := NewDefaultLoader()

	spec, err := loader.Load("matrix_2x2")
	require.NoError(t, err)
	require.Len(t, spec.Elements, 4)
	require.False(t, spec.Hero)
	require.False(t, spec.HasBackground())

	// Cached instance is returned on the second load.
	again, err := loader.Load("matrix_2x2")
	require.NoError(t, err)
	require.Same(t, spec, again)
}

func TestLoadUnknownVariant(t *testing.T) {
	loader := NewDefaultLoader()

	_, err := loader.Load("grid_3x3")
	require.Error(t, err)

	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	require.Equal(t, "grid_3x3", notFound.VariantID)
	require.Equal(t, "unknown variant_id: grid_3x3", err.Error())
}

func TestConstraintDefaults(t *testing.T) {
	c := CharacterConstraint{Baseline: 120}.withDefaults()
	require.Equal(t, 114, c.Min)
	require.Equal(t, 126, c.Max)

	c = CharacterConstraint{Baseline: 20}.withDefaults()
	require.Equal(t, 19, c.Min)
	require.Equal(t, 21, c.Max)

	// Explicit bounds are kept.
	c = CharacterConstraint{Baseline: 10, Min: 2, Max: 40}.withDefaults()
	require.Equal(t, 2, c.Min)
	require.Equal(t, 40, c.Max)
}

func TestParseRejectsMalformedSpecs(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing template", `{"variant_id":"x","elements":[{"element_id":"a","element_type":"text_box","required_fields":["title"],"constraints":{"title":{"baseline":10}}}]}`},
		{"missing elements", `{"variant_id":"x","template_path":"x.html","elements":[]}`},
		{"unknown element type", `{"variant_id":"x","template_path":"x.html","elements":[{"element_id":"a","element_type":"spiral","required_fields":["title"],"constraints":{"title":{"baseline":10}}}]}`},
		{"missing constraint", `{"variant_id":"x","template_path":"x.html","elements":[{"element_id":"a","element_type":"text_box","required_fields":["title"],"constraints":{}}]}`},
		{"inverted bounds", `{"variant_id":"x","template_path":"x.html","elements":[{"element_id":"a","element_type":"text_box","required_fields":["title"],"constraints":{"title":{"baseline":10,"min":12,"max":14}}}]}`},
		{"duplicate element ids", `{"variant_id":"x","template_path":"x.html","elements":[{"element_id":"a","element_type":"text_box","required_fields":["title"],"constraints":{"title":{"baseline":10}}},{"element_id":"a","element_type":"text_box","required_fields":["title"],"constraints":{"title":{"baseline":10}}}]}`},
		{"hero with two elements", `{"variant_id":"x","hero":true,"template_path":"x.html","elements":[{"element_id":"a","element_type":"text_box","required_fields":["title"],"constraints":{"title":{"baseline":10}}},{"element_id":"b","element_type":"text_box","required_fields":["title"],"constraints":{"title":{"baseline":10}}}]}`},
		{"id mismatch", `{"variant_id":"y","template_path":"x.html","elements":[{"element_id":"a","element_type":"text_box","required_fields":["title"],"constraints":{"title":{"baseline":10}}}]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse("x", []byte(tc.body))
			require.Error(t, err)
			var malformed *MalformedSpecError
			require.ErrorAs(t, err, &malformed)
		})
	}
}

func TestLoaderOverrideShadowsDefaults(t *testing.T) {
	override := fstest.MapFS{
		"matrix_2x2.json": &fstest.MapFile{Data: []byte(`{
			"variant_id": "matrix_2x2",
			"template_path": "matrix_2x2.html",
			"elements": [
				{"element_id": "box_1", "element_type": "text_box",
				 "required_fields": ["title"],
				 "constraints": {"title": {"baseline": 30}}}
			]
		}`)},
	}

	loader := NewLoader(override, DefaultSpecs())

	spec, err := loader.Load("matrix_2x2")
	require.NoError(t, err)
	require.Len(t, spec.Elements, 1)
	require.Equal(t, 30, spec.Elements[0].Constraints["title"].Baseline)

	// Defaults remain reachable for ids the override does not carry.
	other, err := loader.Load("title_hero")
	require.NoError(t, err)
	require.True(t, other.Hero)
	require.True(t, other.HasBackground())
}

func TestPlaceholders(t *testing.T) {
	loader := NewDefaultLoader()

	spec, err := loader.Load("matrix_2x2")
	require.NoError(t, err)

	keys := spec.Placeholders()
	require.Len(t, keys, 8)
	require.Contains(t, keys, "box_1_title")
	require.Contains(t, keys, "box_4_body")
}
