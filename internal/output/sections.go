package output

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/slidesmith/slidesmith/internal/core"
	"github.com/slidesmith/slidesmith/internal/validate"
)

type detailSection struct {
	Title string
	Lines []string
}

func elementIDs(meta core.Metadata) []string {
	ids := make([]string, 0, len(meta.ModelTiers))
	for id := range meta.ModelTiers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func elementStatus(view *RenderView, id string) string {
	if view == nil {
		return ""
	}
	for _, fallback := range view.Metadata.FallbackElements {
		if fallback == id {
			return "fallback"
		}
	}
	return "ok"
}

func elementNotes(view *RenderView, id string) string {
	if view == nil {
		return ""
	}

	parts := make([]string, 0, 4)
	for _, fc := range fieldCounts(view.Metadata, id) {
		parts = append(parts, fmt.Sprintf("%s=%d", fc.field, fc.count))
	}

	note := ""
	if len(parts) > 0 {
		note = strings.Join(parts, " ") + " chars"
	}
	if n := violationCount(view.Validation, id); n > 0 {
		if note != "" {
			note += ", "
		}
		note += fmt.Sprintf("%d violation(s)", n)
	}
	return note
}

type fieldCount struct {
	field string
	count int
}

func fieldCounts(meta core.Metadata, id string) []fieldCount {
	prefix := id + "_"
	counts := make([]fieldCount, 0, 4)
	for key, count := range meta.CharacterCounts {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		counts = append(counts, fieldCount{field: strings.TrimPrefix(key, prefix), count: count})
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].field < counts[j].field })
	return counts
}

func violationCount(result validate.Result, id string) int {
	n := 0
	for _, v := range result.Violations {
		if v.ElementID == id {
			n++
		}
	}
	return n
}

// backgroundRow reports the background outcome as a table row. Plain slides
// have no background row.
func backgroundRow(meta core.Metadata) (string, string, string, string, bool) {
	switch meta.VisualStyle {
	case core.VisualImage:
		notes := elide(meta.BackgroundImage, 40)
		if notes == "" {
			notes = "generated image"
		}
		return "background", "-", "image", notes, true
	case core.VisualGradient:
		notes := "gradient"
		if meta.FallbackToGradient != nil && *meta.FallbackToGradient {
			notes = "fallback gradient"
		}
		return "background", "-", "gradient", notes, true
	default:
		return "", "", "", "", false
	}
}

func summaryLabel(view *RenderView) string {
	if view == nil {
		return ""
	}
	meta := view.Metadata

	okCount := meta.ElementCount - len(meta.FallbackElements)
	summary := fmt.Sprintf("%d/%d elements ok", okCount, meta.ElementCount)
	if len(meta.FallbackElements) > 0 {
		summary += fmt.Sprintf(", %d fallback", len(meta.FallbackElements))
	}
	if view.Validation.Valid {
		summary += ", valid"
	} else {
		summary += fmt.Sprintf(", %d violation(s)", len(view.Validation.Violations))
	}
	return summary
}

func detailSections(view *RenderView) []detailSection {
	if view == nil {
		return nil
	}

	sections := make([]detailSection, 0, 2)
	if section, ok := violationSection(view.Validation); ok {
		sections = append(sections, section)
	}
	sections = append(sections, generationSection(view))
	return sections
}

func violationSection(result validate.Result) (detailSection, bool) {
	if len(result.Violations) == 0 {
		return detailSection{}, false
	}

	lines := make([]string, 0, len(result.Violations))
	for _, v := range result.Violations {
		lines = append(lines, fmt.Sprintf("%s.%s: %d chars (want %d-%d)", v.ElementID, v.Field, v.Length, v.Min, v.Max))
	}
	return detailSection{Title: "Character Violations", Lines: lines}, true
}

func generationSection(view *RenderView) detailSection {
	meta := view.Metadata
	lines := []string{
		fmt.Sprintf("Generation: %s", meta.GenerationID),
		fmt.Sprintf("Mode: %s", meta.Mode),
		fmt.Sprintf("Duration: %s", formatDuration(meta.DurationMs)),
		fmt.Sprintf("Completed: %s", meta.CompletedAt.UTC().Format(time.RFC3339)),
	}
	if view.HTMLBytes > 0 {
		line := fmt.Sprintf("HTML: %d bytes", view.HTMLBytes)
		if view.HTMLPath != "" && view.HTMLPath != "-" {
			line += fmt.Sprintf(" (%s)", view.HTMLPath)
		}
		lines = append(lines, line)
	}
	return detailSection{Title: "Generation", Lines: lines}
}

func renderDetailSections(sections []detailSection, markdown bool) string {
	if len(sections) == 0 {
		return ""
	}

	var sb strings.Builder
	for i, section := range sections {
		if i > 0 {
			sb.WriteString("\n")
		}
		if markdown {
			sb.WriteString(fmt.Sprintf("\n\n### %s\n", section.Title))
			for _, line := range section.Lines {
				sb.WriteString(fmt.Sprintf("- %s\n", line))
			}
		} else {
			sb.WriteString(fmt.Sprintf("\n\n%s:\n", section.Title))
			for _, line := range section.Lines {
				sb.WriteString(fmt.Sprintf("  %s\n", line))
			}
		}
	}
	return sb.String()
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func formatDuration(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	return fmt.Sprintf("%.1fs", float64(ms)/1000)
}

func elide(value string, max int) string {
	runes := []rune(value)
	if max <= 3 || len(runes) <= max {
		return value
	}
	return string(runes[:max-3]) + "..."
}
