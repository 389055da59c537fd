package validate

import (
	"unicode/utf8"

	"github.com/slidesmith/slidesmith/internal/variant"
)

// Violation records one generated field whose length left its bounds.
type Violation struct {
	ElementID string `json:"element_id"`
	Field     string `json:"field"`
	Length    int    `json:"length"`
	Min       int    `json:"min"`
	Max       int    `json:"max"`
}

// Result is the validation summary attached to response metadata.
type Result struct {
	Valid      bool        `json:"valid"`
	Violations []Violation `json:"violations"`
}

// Check measures every generated field against its declared constraint.
// Lengths count runes, not bytes. Out-of-bound values are recorded and never
// block the response; a missing field is recorded as a zero-length violation
// rather than silently dropped. Order follows the spec's element and field
// declarations, so results are deterministic.
func Check(spec *variant.Spec, values map[string]map[string]string) Result {
	violations := make([]Violation, 0)
	for _, el := range spec.Elements {
		fields := values[el.ElementID]
		for _, field := range el.RequiredFields {
			constraint, ok := el.Constraint(field)
			if !ok {
				continue
			}
			length := utf8.RuneCountInString(fields[field])
			if length < constraint.Min || length > constraint.Max {
				violations = append(violations, Violation{
					ElementID: el.ElementID,
					Field:     field,
					Length:    length,
					Min:       constraint.Min,
					Max:       constraint.Max,
				})
			}
		}
	}
	return Result{Valid: len(violations) == 0, Violations: violations}
}
