package cmd

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/spf13/cobra"

	"github.com/slidesmith/slidesmith/internal/core/store"
	"github.com/slidesmith/slidesmith/internal/output"
)

var (
	limitsListOutput  string
	limitsListOut     string
	limitsListOutDir  string
	limitsListAll     bool
	limitsListBackend string
	limitsListPrefix  string
)

var limitsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored rate-limit state per backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(limitsListOutput)
		if err != nil {
			return err
		}
		if format != output.FormatJSON && format != output.FormatTable {
			return fmt.Errorf("unsupported output format: %s", format)
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		query := store.RateLimitQuery{
			All:     limitsListAll,
			Backend: strings.TrimSpace(limitsListBackend),
			Prefix:  strings.TrimSpace(limitsListPrefix),
		}
		if !query.All && query.Backend == "" && query.Prefix == "" {
			query.All = true
		}

		entries, err := db.ListRateLimits(cmd.Context(), query)
		if err != nil {
			return err
		}

		outPath := strings.TrimSpace(limitsListOut)
		outDir := strings.TrimSpace(limitsListOutDir)
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
			outPath = filepath.Join(outDir, fmt.Sprintf("limits.list.%s", ext))
		}

		sink, err := openSink(outPath)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		if format == output.FormatJSON {
			payload, err := json.MarshalIndent(entries, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(sink.writer, string(payload))
			return err
		}

		lines := []string{"Backend Rate Limits", ""}
		if len(entries) == 0 {
			lines = append(lines, "(no stored rate-limit state)")
			_, _ = fmt.Fprint(sink.writer, ascii.DrawBox(strings.Join(lines, "\n"), 0))
			return nil
		}

		for _, entry := range entries {
			backoff := "-"
			if entry.State.BackoffUntil != nil {
				backoff = entry.State.BackoffUntil.UTC().Format(time.RFC3339)
			}
			lines = append(lines, fmt.Sprintf("%s: count=%d window_start=%s backoff_until=%s",
				entry.Backend,
				entry.State.RequestCount,
				entry.State.WindowStart.UTC().Format(time.RFC3339),
				backoff))
		}

		_, _ = fmt.Fprint(sink.writer, ascii.DrawBox(strings.Join(lines, "\n"), 0))
		return nil
	},
}

func init() {
	limitsListCmd.Flags().StringVar(&limitsListOutput, "output-format", string(output.FormatTable), "Output format: table|json")
	limitsListCmd.Flags().StringVar(&limitsListOut, "out", "", "Write output to a file (default stdout)")
	limitsListCmd.Flags().StringVar(&limitsListOutDir, "out-dir", "", "Write output to a directory")
	limitsListCmd.Flags().BoolVar(&limitsListAll, "all", false, "List all backends")
	limitsListCmd.Flags().StringVar(&limitsListBackend, "backend", "", "List a single backend (exact match)")
	limitsListCmd.Flags().StringVar(&limitsListPrefix, "prefix", "", "List backends with matching prefix")
}
