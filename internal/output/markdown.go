package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/slidesmith/slidesmith/internal/core"
)

// MarkdownFormatter renders results as a markdown table.
type MarkdownFormatter struct{}

// FormatRender renders a generation summary as Markdown.
func (f *MarkdownFormatter) FormatRender(view *RenderView) (string, error) {
	if view == nil {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## %s render\n\n", escapeMarkdownCell(view.Metadata.VariantID)))
	sb.WriteString("| Element | Tier | Status | Notes |\n")
	sb.WriteString("|---------|------|--------|-------|\n")

	for _, id := range elementIDs(view.Metadata) {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
			escapeMarkdownCell(id),
			escapeMarkdownCell(view.Metadata.ModelTiers[id]),
			escapeMarkdownCell(elementStatus(view, id)),
			escapeMarkdownCell(elementNotes(view, id)),
		))
	}
	if id, tier, status, notes, ok := backgroundRow(view.Metadata); ok {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
			escapeMarkdownCell(id),
			escapeMarkdownCell(tier),
			escapeMarkdownCell(status),
			escapeMarkdownCell(notes),
		))
	}

	sb.WriteString(fmt.Sprintf("\n**Summary**: %s\n", summaryLabel(view)))

	sb.WriteString(renderDetailSections(detailSections(view), true))
	return sb.String(), nil
}

func historyMarkdown(records []core.RenderRecord) string {
	var sb strings.Builder
	sb.WriteString("## Render history\n\n")
	sb.WriteString("| Created | Variant | Generation | Mode | Status | Elements | Fallbacks | Violations | Duration |\n")
	sb.WriteString("|---------|---------|------------|------|--------|----------|-----------|------------|----------|\n")

	for _, rec := range records {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %d | %d | %d | %s |\n",
			rec.CreatedAt.UTC().Format(time.RFC3339),
			escapeMarkdownCell(rec.VariantID),
			shortID(rec.GenerationID),
			string(rec.Mode),
			string(rec.Status),
			rec.ElementCount,
			rec.FallbackCount,
			rec.ViolationCount,
			formatDuration(rec.DurationMs),
		))
	}

	return sb.String()
}

func batchMarkdown(results []core.BatchResult) string {
	var sb strings.Builder
	sb.WriteString("## Batch render\n\n")
	sb.WriteString("| Variant | Title | Status | Fallbacks | Violations | Duration | Output |\n")
	sb.WriteString("|---------|-------|--------|-----------|------------|----------|--------|\n")

	for _, res := range results {
		note := res.OutputPath
		if res.Error != "" {
			note = res.Error
		}
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %d | %d | %s | %s |\n",
			escapeMarkdownCell(res.VariantID),
			escapeMarkdownCell(elide(res.SlideTitle, 32)),
			string(res.Status),
			res.Fallbacks,
			res.Violations,
			formatDuration(res.DurationMs),
			escapeMarkdownCell(note),
		))
	}

	return sb.String()
}

func escapeMarkdownCell(value string) string {
	return strings.ReplaceAll(value, "|", "\\|")
}
