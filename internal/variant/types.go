package variant

import (
	"fmt"
	"math"
	"sort"
)

// ElementType tags the kind of content slot an element fills.
type ElementType string

const (
	TypeTextBox          ElementType = "text_box"
	TypeMetricCard       ElementType = "metric_card"
	TypeTableRow         ElementType = "table_row"
	TypeComparisonColumn ElementType = "comparison_column"
	TypeSequentialStep   ElementType = "sequential_step"
	TypeColoredSection   ElementType = "colored_section"
	TypeQuote            ElementType = "quote"
)

// KnownElementTypes returns every element type a spec may declare.
func KnownElementTypes() []ElementType {
	return []ElementType{
		TypeTextBox,
		TypeMetricCard,
		TypeTableRow,
		TypeComparisonColumn,
		TypeSequentialStep,
		TypeColoredSection,
		TypeQuote,
	}
}

// Valid reports whether the element type is one of the known tags.
func (t ElementType) Valid() bool {
	switch t {
	case TypeTextBox, TypeMetricCard, TypeTableRow, TypeComparisonColumn,
		TypeSequentialStep, TypeColoredSection, TypeQuote:
		return true
	default:
		return false
	}
}

// CharacterConstraint bounds the rune length of one generated field.
//
// Baseline is the pre-calibrated target; Min and Max default to
// floor(baseline*0.95) and ceil(baseline*1.05) when the spec omits them.
type CharacterConstraint struct {
	Baseline int `json:"baseline"`
	Min      int `json:"min,omitempty"`
	Max      int `json:"max,omitempty"`
}

func (c CharacterConstraint) withDefaults() CharacterConstraint {
	out := c
	if out.Min == 0 {
		out.Min = int(math.Floor(float64(out.Baseline) * 0.95))
	}
	if out.Max == 0 {
		out.Max = int(math.Ceil(float64(out.Baseline) * 1.05))
	}
	return out
}

func (c CharacterConstraint) validate() error {
	if c.Baseline <= 0 {
		return fmt.Errorf("baseline must be positive, got %d", c.Baseline)
	}
	if c.Min < 0 {
		return fmt.Errorf("min must not be negative, got %d", c.Min)
	}
	if c.Min > c.Baseline || c.Baseline > c.Max {
		return fmt.Errorf("bounds must satisfy min <= baseline <= max, got %d/%d/%d", c.Min, c.Baseline, c.Max)
	}
	return nil
}

// ElementDef declares one addressable content slot within a variant.
type ElementDef struct {
	ElementID      string                         `json:"element_id"`
	ElementType    ElementType                    `json:"element_type"`
	RequiredFields []string                       `json:"required_fields"`
	Constraints    map[string]CharacterConstraint `json:"constraints"`
}

// Constraint returns the bounds for a field.
func (e *ElementDef) Constraint(field string) (CharacterConstraint, bool) {
	c, ok := e.Constraints[field]
	return c, ok
}

// Background configures the optional generated background image of a variant.
type Background struct {
	Enabled     bool   `json:"enabled"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
	Style       string `json:"style,omitempty"`
}

// Spec is the immutable declarative descriptor of a slide layout.
//
// Specs load once per variant_id and are cached for the process lifetime;
// callers must treat them as read-only.
type Spec struct {
	VariantID    string       `json:"variant_id"`
	Title        string       `json:"title,omitempty"`
	Hero         bool         `json:"hero,omitempty"`
	TemplatePath string       `json:"template_path"`
	Elements     []ElementDef `json:"elements"`
	Background   *Background  `json:"background,omitempty"`
}

// Element returns the element with the given id.
func (s *Spec) Element(id string) (*ElementDef, bool) {
	for i := range s.Elements {
		if s.Elements[i].ElementID == id {
			return &s.Elements[i], true
		}
	}
	return nil, false
}

// HasBackground reports whether the variant requests a generated background.
func (s *Spec) HasBackground() bool {
	return s.Background != nil && s.Background.Enabled
}

// Placeholders returns the sorted content keys the variant's elements feed,
// one per element field, in element_id_field form.
func (s *Spec) Placeholders() []string {
	keys := make([]string, 0, len(s.Elements)*2)
	for _, el := range s.Elements {
		for _, field := range el.RequiredFields {
			keys = append(keys, FieldKey(el.ElementID, field))
		}
	}
	sort.Strings(keys)
	return keys
}

// FieldKey builds the flat content-map key for an element field. Template
// placeholders address values by this key, never by position.
func FieldKey(elementID, field string) string {
	return elementID + "_" + field
}
