package variant

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// NotFoundError reports a variant_id with no backing spec resource.
type NotFoundError struct {
	VariantID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("unknown variant_id: %s", e.VariantID)
}

// MalformedSpecError reports a spec resource that was found but failed to
// parse or violated a structural invariant.
type MalformedSpecError struct {
	VariantID string
	Reason    string
}

func (e *MalformedSpecError) Error() string {
	return fmt.Sprintf("malformed variant spec %s: %s", e.VariantID, e.Reason)
}

var identPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Loader resolves variant specs from one or more JSON sources with
// populate-on-first-use caching. Sources are consulted in order; the first
// one holding <variant_id>.json wins, so an override directory can shadow
// the embedded defaults. The cache never invalidates.
type Loader struct {
	sources []fs.FS

	mu    sync.RWMutex
	cache map[string]*Spec
}

// NewLoader builds a loader over the given sources.
func NewLoader(sources ...fs.FS) *Loader {
	return &Loader{
		sources: sources,
		cache:   make(map[string]*Spec),
	}
}

// Load returns the spec for variant_id, reading it on first access and
// serving it from the cache thereafter.
func (l *Loader) Load(variantID string) (*Spec, error) {
	variantID = strings.TrimSpace(variantID)
	if variantID == "" {
		return nil, &NotFoundError{VariantID: variantID}
	}

	l.mu.RLock()
	if spec, ok := l.cache[variantID]; ok {
		l.mu.RUnlock()
		return spec, nil
	}
	l.mu.RUnlock()

	data, err := l.read(variantID + ".json")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &NotFoundError{VariantID: variantID}
		}
		return nil, fmt.Errorf("read variant spec %s: %w", variantID, err)
	}

	spec, err := Parse(variantID, data)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if cached, ok := l.cache[variantID]; ok {
		return cached, nil
	}
	l.cache[variantID] = spec
	return spec, nil
}

// List enumerates the variant ids available across all sources, sorted.
func (l *Loader) List() ([]string, error) {
	seen := make(map[string]struct{})
	for _, source := range l.sources {
		matches, err := fs.Glob(source, "*.json")
		if err != nil {
			return nil, fmt.Errorf("scan variant specs: %w", err)
		}
		for _, name := range matches {
			seen[strings.TrimSuffix(name, ".json")] = struct{}{}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Preload loads every available variant, surfacing the first failure. Serve
// startup uses it so malformed specs fail fast instead of at request time.
func (l *Loader) Preload() error {
	ids, err := l.List()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := l.Load(id); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) read(name string) ([]byte, error) {
	var firstErr error
	for _, source := range l.sources {
		data, err := fs.ReadFile(source, name)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return nil, fs.ErrNotExist
}

// Parse decodes and validates a variant spec document.
func Parse(variantID string, data []byte) (*Spec, error) {
	var spec Spec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, &MalformedSpecError{VariantID: variantID, Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}

	if spec.VariantID == "" {
		spec.VariantID = variantID
	} else if spec.VariantID != variantID {
		return nil, &MalformedSpecError{
			VariantID: variantID,
			Reason:    fmt.Sprintf("variant_id %q does not match resource name", spec.VariantID),
		}
	}

	if err := validateSpec(&spec); err != nil {
		return nil, &MalformedSpecError{VariantID: variantID, Reason: err.Error()}
	}
	return &spec, nil
}

func validateSpec(spec *Spec) error {
	if strings.TrimSpace(spec.TemplatePath) == "" {
		return errors.New("missing required key template_path")
	}
	if len(spec.Elements) == 0 {
		return errors.New("missing required key elements")
	}
	if spec.Hero && len(spec.Elements) != 1 {
		return fmt.Errorf("hero variants declare exactly one element, got %d", len(spec.Elements))
	}

	seen := make(map[string]struct{}, len(spec.Elements))
	for i := range spec.Elements {
		el := &spec.Elements[i]
		if err := validateElement(el); err != nil {
			return err
		}
		if _, dup := seen[el.ElementID]; dup {
			return fmt.Errorf("duplicate element_id %q", el.ElementID)
		}
		seen[el.ElementID] = struct{}{}
	}

	if spec.Background != nil && spec.Background.Enabled {
		if spec.Background.AspectRatio == "" {
			spec.Background.AspectRatio = "16:9"
		}
	}
	return nil
}

func validateElement(el *ElementDef) error {
	if !identPattern.MatchString(el.ElementID) {
		return fmt.Errorf("element_id %q is not a valid identifier", el.ElementID)
	}
	if !el.ElementType.Valid() {
		return fmt.Errorf("element %s: unknown element_type %q", el.ElementID, el.ElementType)
	}
	if len(el.RequiredFields) == 0 {
		return fmt.Errorf("element %s: required_fields is empty", el.ElementID)
	}

	fields := make(map[string]struct{}, len(el.RequiredFields))
	for _, field := range el.RequiredFields {
		if !identPattern.MatchString(field) {
			return fmt.Errorf("element %s: field %q is not a valid identifier", el.ElementID, field)
		}
		if _, dup := fields[field]; dup {
			return fmt.Errorf("element %s: duplicate field %q", el.ElementID, field)
		}
		fields[field] = struct{}{}

		constraint, ok := el.Constraints[field]
		if !ok {
			return fmt.Errorf("element %s: field %q has no character constraint", el.ElementID, field)
		}
		normalized := constraint.withDefaults()
		if err := normalized.validate(); err != nil {
			return fmt.Errorf("element %s field %s: %v", el.ElementID, field, err)
		}
		el.Constraints[field] = normalized
	}

	for field := range el.Constraints {
		if _, ok := fields[field]; !ok {
			return fmt.Errorf("element %s: constraint for undeclared field %q", el.ElementID, field)
		}
	}
	return nil
}
