// Package output renders generation summaries and render-log history for the
// CLI in table, JSON, or markdown form. The slide HTML itself always goes to
// its own sink; formatters only deal in provenance.
package output

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/slidesmith/slidesmith/internal/core"
	"github.com/slidesmith/slidesmith/internal/validate"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// RenderView is the CLI-facing summary of one finished generation.
type RenderView struct {
	Metadata   core.Metadata   `json:"metadata"`
	Validation validate.Result `json:"validation"`
	HTMLPath   string          `json:"html_path,omitempty"`
	HTMLBytes  int             `json:"html_bytes"`
}

// Formatter renders a generation summary.
type Formatter interface {
	FormatRender(view *RenderView) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown):
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}

// FormatHistory renders render-log records using the requested format.
func FormatHistory(format Format, records []core.RenderRecord) (string, error) {
	if format == FormatJSON {
		data, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	if format == FormatMarkdown {
		return historyMarkdown(records), nil
	}
	return historyTable(records), nil
}

// FormatBatchList renders batch render outcomes using the requested format.
func FormatBatchList(format Format, results []core.BatchResult) (string, error) {
	if format == FormatJSON {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	if format == FormatMarkdown {
		return batchMarkdown(results), nil
	}
	return batchTable(results), nil
}
