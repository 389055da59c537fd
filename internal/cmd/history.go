package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/slidesmith/slidesmith/internal/core"
	"github.com/slidesmith/slidesmith/internal/core/store"
	"github.com/slidesmith/slidesmith/internal/output"
)

var (
	historyOutput  string
	historyOut     string
	historyOutDir  string
	historyVariant string
	historyStatus  string
	historyLimit   int
	historyCount   bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List the render log",
	Long: `List recorded slide generations, newest first.

Each row shows the variant, generation id, dispatch mode, status
(ok/degraded/failed), element and fallback counts, character violations,
and duration. Filter by variant or status, or get a bare count with
--count.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(historyOutput)
		if err != nil {
			return err
		}

		status := core.RenderStatus(strings.TrimSpace(historyStatus))
		switch status {
		case "", core.RenderOk, core.RenderDegraded, core.RenderFailed:
		default:
			return fmt.Errorf("unsupported status filter: %s", historyStatus)
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		query := store.RenderQuery{
			VariantID: strings.TrimSpace(historyVariant),
			Status:    status,
			Limit:     historyLimit,
		}

		outPath := strings.TrimSpace(historyOut)
		outDir := strings.TrimSpace(historyOutDir)
		if outPath != "" && outDir != "" {
			return fmt.Errorf("--out and --out-dir are mutually exclusive")
		}
		ext := outputExtension(format)
		if outDir != "" {
			var err error
			outDir, err = ensureOutDir(outDir)
			if err != nil {
				return err
			}
			outPath = filepath.Join(outDir, fmt.Sprintf("history.%s", ext))
		}
		sink, err := openSink(outPath)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		if historyCount {
			total, err := db.CountRenders(cmd.Context(), query)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(sink.writer, total)
			return err
		}

		records, err := db.ListRenders(cmd.Context(), query)
		if err != nil {
			return err
		}

		rendered, err := output.FormatHistory(format, records)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(sink.writer, rendered)
		return err
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyOutput, "output-format", string(output.FormatTable), "Output format: table|json|markdown")
	historyCmd.Flags().StringVar(&historyOut, "out", "", "Write output to a file (default stdout)")
	historyCmd.Flags().StringVar(&historyOutDir, "out-dir", "", "Write output to a directory")
	historyCmd.Flags().StringVar(&historyVariant, "variant", "", "Filter by variant id")
	historyCmd.Flags().StringVar(&historyStatus, "status", "", "Filter by status: ok|degraded|failed")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 0, "Maximum rows to return (default 20)")
	historyCmd.Flags().BoolVar(&historyCount, "count", false, "Print only the matching row count")

	rootCmd.AddCommand(historyCmd)
}
