package variant

import (
	"embed"
	"io/fs"
)

//go:embed specs/*.json
var defaultSpecsFS embed.FS

//go:embed templates/*.html
var defaultTemplatesFS embed.FS

// DefaultSpecs returns the embedded variant spec set.
func DefaultSpecs() fs.FS {
	sub, err := fs.Sub(defaultSpecsFS, "specs")
	if err != nil {
		panic("variant: embedded specs missing: " + err.Error())
	}
	return sub
}

// DefaultTemplates returns the embedded slide template set.
func DefaultTemplates() fs.FS {
	sub, err := fs.Sub(defaultTemplatesFS, "templates")
	if err != nil {
		panic("variant: embedded templates missing: " + err.Error())
	}
	return sub
}

// NewDefaultLoader builds a loader over the embedded spec set.
func NewDefaultLoader() *Loader {
	return NewLoader(DefaultSpecs())
}
