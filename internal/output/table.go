package output

import (
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/slidesmith/slidesmith/internal/core"
)

// TableFormatter renders results as an ASCII table.
type TableFormatter struct{}

// FormatRender renders a generation summary as a table: one row per element
// plus a background row when the variant styles one.
func (f *TableFormatter) FormatRender(view *RenderView) (string, error) {
	if view == nil {
		return "", nil
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Element", "Tier", "Status", "Notes"})

	for _, id := range elementIDs(view.Metadata) {
		t.AppendRow(table.Row{
			id,
			view.Metadata.ModelTiers[id],
			elementStatus(view, id),
			elementNotes(view, id),
		})
	}
	if id, tier, status, notes, ok := backgroundRow(view.Metadata); ok {
		t.AppendRow(table.Row{id, tier, status, notes})
	}

	t.AppendFooter(table.Row{
		"",
		"",
		summaryLabel(view),
		"",
	})

	rendered := t.Render()
	rendered += renderDetailSections(detailSections(view), false)
	return rendered, nil
}

func batchTable(results []core.BatchResult) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Variant", "Title", "Status", "Fallbacks", "Violations", "Duration", "Output"})

	for _, res := range results {
		note := res.OutputPath
		if res.Error != "" {
			note = res.Error
		}
		t.AppendRow(table.Row{
			res.VariantID,
			elide(res.SlideTitle, 32),
			string(res.Status),
			res.Fallbacks,
			res.Violations,
			formatDuration(res.DurationMs),
			note,
		})
	}

	return t.Render()
}

func historyTable(records []core.RenderRecord) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Created", "Variant", "Generation", "Mode", "Status", "Elements", "Fallbacks", "Violations", "Duration"})

	for _, rec := range records {
		t.AppendRow(table.Row{
			rec.CreatedAt.UTC().Format(time.RFC3339),
			rec.VariantID,
			shortID(rec.GenerationID),
			string(rec.Mode),
			string(rec.Status),
			rec.ElementCount,
			rec.FallbackCount,
			rec.ViolationCount,
			formatDuration(rec.DurationMs),
		})
	}

	return t.Render()
}
