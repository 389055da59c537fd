package assemble

import (
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// MissingPolicy controls what Assemble does when a template placeholder has
// no entry in the content map.
type MissingPolicy string

const (
	// PolicyError fails the assembly on the first uncovered placeholder.
	PolicyError MissingPolicy = "error"
	// PolicyEmpty substitutes an empty string and records a warning.
	PolicyEmpty MissingPolicy = "empty"
)

// MissingPlaceholderError reports template placeholders with no content
// entry under PolicyError.
type MissingPlaceholderError struct {
	TemplatePath string
	Placeholders []string
}

func (e *MissingPlaceholderError) Error() string {
	return fmt.Sprintf("template %s: no content for placeholders %s",
		e.TemplatePath, strings.Join(e.Placeholders, ", "))
}

// WarningKind tags a non-fatal assembly diagnostic.
type WarningKind string

const (
	WarnUnusedContent      WarningKind = "unused_content"
	WarnMissingPlaceholder WarningKind = "missing_placeholder"
)

// Warning is a non-fatal assembly diagnostic. Unused content keys and, under
// PolicyEmpty, uncovered placeholders are reported here and never fail the
// request.
type Warning struct {
	Kind WarningKind `json:"kind"`
	Key  string      `json:"key"`
}

// Placeholder tokens are {identifier} with no whitespace, so CSS blocks in
// the template text never match.
var placeholderPattern = regexp.MustCompile(`\{([a-z][a-z0-9_]*)\}`)

// Config configures an Assembler.
type Config struct {
	// Sources are consulted in order for template files; the first hit wins.
	Sources []fs.FS
	// Policy defaults to PolicyError.
	Policy MissingPolicy
	// ReservedKeys are pipeline-supplied content keys (slide_title,
	// background_style) that do not count as unused when a template ignores
	// them.
	ReservedKeys []string
}

// Assembler substitutes named placeholders in HTML templates. Template text
// is cached by path after the first read and never invalidated; assembling
// the same path and content map twice yields byte-identical output.
type Assembler struct {
	sources  []fs.FS
	policy   MissingPolicy
	reserved map[string]struct{}

	mu    sync.RWMutex
	cache map[string]string
}

// New builds an Assembler.
func New(cfg Config) *Assembler {
	policy := cfg.Policy
	if policy == "" {
		policy = PolicyError
	}
	reserved := make(map[string]struct{}, len(cfg.ReservedKeys))
	for _, key := range cfg.ReservedKeys {
		reserved[key] = struct{}{}
	}
	return &Assembler{
		sources:  cfg.Sources,
		policy:   policy,
		reserved: reserved,
		cache:    make(map[string]string),
	}
}

// Assemble loads the template at path and substitutes every placeholder from
// the content map.
func (a *Assembler) Assemble(path string, content map[string]string) (string, []Warning, error) {
	template, err := a.template(path)
	if err != nil {
		return "", nil, err
	}

	used := make(map[string]struct{}, len(content))
	var missing []string

	html := placeholderPattern.ReplaceAllStringFunc(template, func(token string) string {
		name := token[1 : len(token)-1]
		if value, ok := content[name]; ok {
			used[name] = struct{}{}
			return value
		}
		missing = append(missing, name)
		return ""
	})

	warnings := make([]Warning, 0)
	if len(missing) > 0 {
		sort.Strings(missing)
		missing = dedupe(missing)
		if a.policy == PolicyError {
			return "", nil, &MissingPlaceholderError{TemplatePath: path, Placeholders: missing}
		}
		for _, name := range missing {
			warnings = append(warnings, Warning{Kind: WarnMissingPlaceholder, Key: name})
		}
	}

	unused := make([]string, 0)
	for key := range content {
		if _, ok := used[key]; ok {
			continue
		}
		if _, ok := a.reserved[key]; ok {
			continue
		}
		unused = append(unused, key)
	}
	sort.Strings(unused)
	for _, key := range unused {
		warnings = append(warnings, Warning{Kind: WarnUnusedContent, Key: key})
	}

	return html, warnings, nil
}

// Placeholders returns the distinct placeholder names in the template at
// path, sorted.
func (a *Assembler) Placeholders(path string) ([]string, error) {
	template, err := a.template(path)
	if err != nil {
		return nil, err
	}
	matches := placeholderPattern.FindAllStringSubmatch(template, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	sort.Strings(names)
	return dedupe(names), nil
}

func (a *Assembler) template(path string) (string, error) {
	a.mu.RLock()
	if text, ok := a.cache[path]; ok {
		a.mu.RUnlock()
		return text, nil
	}
	a.mu.RUnlock()

	data, err := a.read(path)
	if err != nil {
		return "", fmt.Errorf("read template %s: %w", path, err)
	}
	text := string(data)

	a.mu.Lock()
	defer a.mu.Unlock()
	if cached, ok := a.cache[path]; ok {
		return cached, nil
	}
	a.cache[path] = text
	return text, nil
}

func (a *Assembler) read(path string) ([]byte, error) {
	var firstErr error
	for _, source := range a.sources {
		data, err := fs.ReadFile(source, path)
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

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, v := range sorted {
		if i == 0 || sorted[i-1] != v {
			out = append(out, v)
		}
	}
	return out
}
