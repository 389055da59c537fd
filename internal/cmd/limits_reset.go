package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/slidesmith/slidesmith/internal/core/store"
	"github.com/slidesmith/slidesmith/internal/output"
)

var (
	limitsResetAll     bool
	limitsResetBackend string
	limitsResetPrefix  string
	limitsResetYes     bool
	limitsResetDryRun  bool
	limitsResetOutput  string
	limitsResetOut     string
	limitsResetOutDir  string
)

var limitsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset stored rate-limit state",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(limitsResetOutput)
		if err != nil {
			return err
		}
		if format != output.FormatJSON && format != output.FormatTable {
			return fmt.Errorf("unsupported output format: %s", format)
		}

		query := store.RateLimitQuery{
			All:     limitsResetAll,
			Backend: strings.TrimSpace(limitsResetBackend),
			Prefix:  strings.TrimSpace(limitsResetPrefix),
		}
		if err := query.Validate(); err != nil {
			return err
		}

		if query.All && !limitsResetYes && !limitsResetDryRun {
			return errors.New("--all requires --yes (or use --dry-run)")
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		matched, err := db.CountRateLimits(cmd.Context(), query)
		if err != nil {
			return err
		}

		outPath := strings.TrimSpace(limitsResetOut)
		outDir := strings.TrimSpace(limitsResetOutDir)
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
			outPath = filepath.Join(outDir, fmt.Sprintf("limits.reset.%s", ext))
		}
		sink, err := openSink(outPath)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		if limitsResetDryRun {
			return writeLimitsResetResult(format, sink.writer, matched, 0, true)
		}

		deleted, err := db.ResetRateLimits(cmd.Context(), query)
		if err != nil {
			return err
		}

		return writeLimitsResetResult(format, sink.writer, matched, deleted, false)
	},
}

func writeLimitsResetResult(format output.Format, w io.Writer, matched int, deleted int64, dryRun bool) error {
	result := map[string]any{
		"matched": matched,
		"deleted": deleted,
		"dry_run": dryRun,
	}

	if format == output.FormatJSON {
		payload, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(payload))
		return err
	}

	if dryRun {
		_, err := fmt.Fprintf(w, "Would delete %d rate-limit entr(ies)\n", matched)
		return err
	}
	_, err := fmt.Fprintf(w, "Deleted %d/%d rate-limit entr(ies)\n", deleted, matched)
	return err
}

func init() {
	limitsResetCmd.Flags().BoolVar(&limitsResetAll, "all", false, "Reset all backends")
	limitsResetCmd.Flags().StringVar(&limitsResetBackend, "backend", "", "Reset a single backend (exact match)")
	limitsResetCmd.Flags().StringVar(&limitsResetPrefix, "prefix", "", "Reset backends with matching prefix")
	limitsResetCmd.Flags().BoolVar(&limitsResetYes, "yes", false, "Confirm destructive reset")
	limitsResetCmd.Flags().BoolVar(&limitsResetDryRun, "dry-run", false, "Show what would be deleted")
	limitsResetCmd.Flags().StringVar(&limitsResetOutput, "output-format", string(output.FormatTable), "Output format: table|json")
	limitsResetCmd.Flags().StringVar(&limitsResetOut, "out", "", "Write output to a file (default stdout)")
	limitsResetCmd.Flags().StringVar(&limitsResetOutDir, "out-dir", "", "Write output to a directory")
}
