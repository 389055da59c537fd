package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/slidesmith/slidesmith/internal/config"
	"github.com/slidesmith/slidesmith/internal/core"
	"github.com/slidesmith/slidesmith/internal/observability"
	"github.com/slidesmith/slidesmith/internal/output"
	"github.com/slidesmith/slidesmith/internal/slides"
)

var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Render multiple slides from a briefs file",
	Long:  "Read slide briefs from a YAML file (a list of maps, each with a variant key plus brief fields) and render each into --out-dir",
	Args:  cobra.ExactArgs(1),
	RunE:  runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().String("mode", "", "Dispatch mode: sequential or parallel")
	batchCmd.Flags().String("out-dir", "slides", "Directory for the rendered HTML files")
	batchCmd.Flags().String("output", "table", "Output format: table, json, markdown")
	batchCmd.Flags().Bool("failed-only", false, "Only show renders that produced no slide")
	batchCmd.Flags().Int("concurrency", 2, "Concurrent renders")
}

func runBatch(cmd *cobra.Command, args []string) error {
	mode, err := cmd.Flags().GetString("mode")
	if err != nil {
		return err
	}
	if mode != "" && !core.Mode(mode).Valid() {
		return fmt.Errorf("unsupported mode: %s (want sequential or parallel)", mode)
	}

	formatValue, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	format, err := output.ParseFormat(formatValue)
	if err != nil {
		return err
	}

	failedOnly, err := cmd.Flags().GetBool("failed-only")
	if err != nil {
		return err
	}

	concurrency, err := cmd.Flags().GetInt("concurrency")
	if err != nil {
		return err
	}
	if concurrency < 1 {
		return errors.New("concurrency must be at least 1")
	}

	items, err := readBatchBriefs(args[0])
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return errors.New("no briefs found in batch file")
	}

	outDirFlag, err := cmd.Flags().GetString("out-dir")
	if err != nil {
		return err
	}
	outDir, err := ensureOutDir(outDirFlag)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	startedAt := time.Now()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	pipe, err := buildPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	if pipe.store != nil {
		defer pipe.store.Close() // nolint:errcheck // best-effort cleanup
	}

	results := runBatchRenders(ctx, pipe.service, items, core.Mode(mode), concurrency, outDir)

	rendered, err := output.FormatBatchList(format, filterBatchResults(results, failedOnly))
	if err != nil {
		return err
	}
	if strings.TrimSpace(rendered) != "" {
		fmt.Println(rendered)
	}

	if format != output.FormatJSON {
		logThroughput(len(results), startedAt)
	}

	if failed := countFailed(results); failed > 0 {
		return fmt.Errorf("%d of %d renders failed", failed, len(results))
	}
	return nil
}

type batchItem struct {
	VariantID string
	Spec      core.SlideSpec
}

type batchJob struct {
	index int
	item  batchItem
}

func runBatchRenders(ctx context.Context, svc *slides.Service, items []batchItem, mode core.Mode, concurrency int, outDir string) []core.BatchResult {
	results := make([]core.BatchResult, len(items))
	jobs := make(chan batchJob)

	var wg sync.WaitGroup

	worker := func() {
		defer wg.Done()
		for job := range jobs {
			if ctx.Err() != nil {
				return
			}
			results[job.index] = renderBatchItem(ctx, svc, job, mode, outDir)
		}
	}

	if concurrency > len(items) {
		concurrency = len(items)
	}
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go worker()
	}

sendLoop:
	for i, item := range items {
		select {
		case <-ctx.Done():
			break sendLoop
		case jobs <- batchJob{index: i, item: item}:
		}
	}
	close(jobs)
	wg.Wait()

	// Entries the pool never reached (cancellation) still get a row.
	for i := range results {
		if results[i].VariantID == "" {
			results[i] = core.BatchResult{
				VariantID:   items[i].VariantID,
				SlideTitle:  items[i].Spec.SlideTitle,
				Status:      core.RenderFailed,
				Error:       "canceled before render",
				CompletedAt: time.Now().UTC(),
			}
		}
	}
	return results
}

// renderBatchItem generates one slide and writes its HTML next to its batch
// siblings. Generation errors land in the result row; the batch keeps going.
func renderBatchItem(ctx context.Context, svc *slides.Service, job batchJob, mode core.Mode, outDir string) core.BatchResult {
	res := core.BatchResult{
		VariantID:  job.item.VariantID,
		SlideTitle: job.item.Spec.SlideTitle,
	}

	result, err := svc.Generate(ctx, core.SlideRequest{
		VariantID: job.item.VariantID,
		Spec:      job.item.Spec,
		Mode:      mode,
	})
	res.CompletedAt = time.Now().UTC()
	if err != nil {
		res.Status = core.RenderFailed
		res.Error = err.Error()
		return res
	}

	meta := result.Metadata
	res.DurationMs = meta.DurationMs
	res.VisualStyle = meta.VisualStyle
	res.Fallbacks = len(meta.FallbackElements)
	res.Violations = len(result.Validation.Violations)
	res.Status = core.RenderOk
	if res.Fallbacks > 0 || (meta.FallbackToGradient != nil && *meta.FallbackToGradient) {
		res.Status = core.RenderDegraded
	}

	name := fmt.Sprintf("%03d-%s.html", job.index+1, sanitizeFilename(job.item.VariantID))
	path := filepath.Join(outDir, name)
	if err := os.WriteFile(path, []byte(result.HTML), 0644); err != nil {
		res.Status = core.RenderFailed
		res.Error = fmt.Sprintf("write slide HTML: %v", err)
		return res
	}
	res.OutputPath = path
	return res
}

// readBatchBriefs parses a YAML list of briefs. Every entry is a flat string
// map: a "variant" key naming the layout plus the brief fields the render
// command also accepts.
func readBatchBriefs(path string) ([]batchItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading batch file: %w", err)
	}
	var raw []map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing batch file: %w", err)
	}

	items := make([]batchItem, 0, len(raw))
	for i, brief := range raw {
		variantID := strings.TrimSpace(brief["variant"])
		if variantID == "" {
			return nil, fmt.Errorf("entry %d: variant is required", i+1)
		}
		delete(brief, "variant")

		var spec core.SlideSpec
		applyBrief(&spec, brief)
		if strings.TrimSpace(spec.SlideTitle) == "" {
			return nil, fmt.Errorf("entry %d (%s): slide_title is required", i+1, variantID)
		}
		items = append(items, batchItem{VariantID: variantID, Spec: spec})
	}
	return items, nil
}

func filterBatchResults(results []core.BatchResult, failedOnly bool) []core.BatchResult {
	if !failedOnly {
		return results
	}

	filtered := make([]core.BatchResult, 0, len(results))
	for _, result := range results {
		if result.Failed() {
			filtered = append(filtered, result)
		}
	}
	return filtered
}

func countFailed(results []core.BatchResult) int {
	failed := 0
	for _, result := range results {
		if result.Failed() {
			failed++
		}
	}
	return failed
}

func logThroughput(count int, startedAt time.Time) {
	if count <= 0 {
		return
	}
	elapsed := time.Since(startedAt)
	if elapsed <= 0 {
		return
	}
	rate := float64(count) / elapsed.Seconds()
	observability.CLILogger.Info(
		"Render throughput",
		zap.Int("slides", count),
		zap.Duration("elapsed", elapsed),
		zap.Float64("rate_per_sec", rate),
	)
}
