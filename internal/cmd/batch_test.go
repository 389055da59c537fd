package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/slidesmith/slidesmith/internal/core"
)

func TestReadBatchBriefs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "briefs.yaml")
	content := `- variant: title_hero
  slide_title: Welcome
  key_message: Ship it
- variant: matrix_2x2
  slide_title: Options
  team_name: Platform
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	items, err := readBatchBriefs(path)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "title_hero", items[0].VariantID)
	require.Equal(t, "Welcome", items[0].Spec.SlideTitle)
	require.Equal(t, "Ship it", items[0].Spec.KeyMessage)
	require.Equal(t, "matrix_2x2", items[1].VariantID)
	require.Equal(t, map[string]string{"team_name": "Platform"}, items[1].Spec.Extra)
}

func TestReadBatchBriefsRejectsIncompleteEntries(t *testing.T) {
	dir := t.TempDir()

	noVariant := filepath.Join(dir, "no-variant.yaml")
	require.NoError(t, os.WriteFile(noVariant, []byte("- slide_title: Orphan\n"), 0644))
	_, err := readBatchBriefs(noVariant)
	require.ErrorContains(t, err, "variant is required")

	noTitle := filepath.Join(dir, "no-title.yaml")
	require.NoError(t, os.WriteFile(noTitle, []byte("- variant: title_hero\n"), 0644))
	_, err = readBatchBriefs(noTitle)
	require.ErrorContains(t, err, "slide_title is required")
}

func TestFilterBatchResults(t *testing.T) {
	results := []core.BatchResult{
		{VariantID: "title_hero", Status: core.RenderOk},
		{VariantID: "matrix_2x2", Status: core.RenderFailed, Error: "no element call succeeded"},
		{VariantID: "quote_spotlight", Status: core.RenderDegraded},
	}

	require.Len(t, filterBatchResults(results, false), 3)

	failed := filterBatchResults(results, true)
	require.Len(t, failed, 1)
	require.Equal(t, "matrix_2x2", failed[0].VariantID)

	require.Equal(t, 1, countFailed(results))
}
