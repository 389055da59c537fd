package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/slidesmith/slidesmith/internal/assemble"
	"github.com/slidesmith/slidesmith/internal/config"
	"github.com/slidesmith/slidesmith/internal/core"
	"github.com/slidesmith/slidesmith/internal/genlink/encode"
	"github.com/slidesmith/slidesmith/internal/output"
)

var renderCmd = &cobra.Command{
	Use:   "render <variant_id>",
	Short: "Generate one slide from the command line",
	Long: `Generate a single slide without running the server.

The brief flags fill the same slide_spec object the HTTP API accepts;
--field adds arbitrary extra fields and --brief-file reads fields from a
YAML map (flags win over the file). The assembled HTML is written to --out
(default <variant_id>.html); pass '-' to stream the HTML to stdout and skip
the summary. The provenance summary honors --output-format.`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

func init() {
	rootCmd.AddCommand(renderCmd)

	renderCmd.Flags().StringP("title", "t", "", "Slide title (or slide_title in --brief-file)")
	renderCmd.Flags().StringP("message", "m", "", "Key message the slide should land")
	renderCmd.Flags().String("narrative", "", "Narrative context for the deck")
	renderCmd.Flags().String("audience", "", "Audience the deck addresses")
	renderCmd.Flags().String("tone", "", "Requested tone of voice")
	renderCmd.Flags().String("position", "", "Slide position in the deck")
	renderCmd.Flags().StringArrayP("field", "F", nil, "Extra brief field as key=value (repeatable)")
	renderCmd.Flags().StringP("brief-file", "f", "", "Read brief fields from a YAML map")
	renderCmd.Flags().String("mode", "", "Dispatch mode: sequential or parallel")
	renderCmd.Flags().Int("timeout", 0, "Generation timeout in seconds")
	renderCmd.Flags().StringP("out", "o", "", "HTML output path ('-' for stdout)")
	renderCmd.Flags().String("out-dir", "", "Directory for the HTML output")
	renderCmd.Flags().String("output-format", string(output.FormatTable), "Summary format: table, json, markdown")
	renderCmd.Flags().String("background-out", "", "Write the generated background image to this path")
}

func runRender(cmd *cobra.Command, args []string) error {
	variantID := strings.TrimSpace(args[0])
	if variantID == "" {
		return errors.New("variant id is required")
	}

	spec, err := briefFromFlags(cmd)
	if err != nil {
		return err
	}
	if strings.TrimSpace(spec.SlideTitle) == "" {
		return errors.New("slide title is required (--title or slide_title in --brief-file)")
	}

	mode, _ := cmd.Flags().GetString("mode")
	if mode != "" && !core.Mode(mode).Valid() {
		return fmt.Errorf("unsupported mode: %s (want sequential or parallel)", mode)
	}
	timeout, _ := cmd.Flags().GetInt("timeout")
	if timeout < 0 {
		return errors.New("--timeout cannot be negative")
	}
	backgroundOut, _ := cmd.Flags().GetString("background-out")

	format, err := resolveOutputFormat(cmd)
	if err != nil {
		return err
	}
	outPath, outDir, err := resolveOutputTargets(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
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

	result, err := pipe.service.Generate(ctx, core.SlideRequest{
		VariantID:  variantID,
		Spec:       spec,
		Mode:       core.Mode(mode),
		TimeoutSec: timeout,
	})
	if err != nil {
		return fmt.Errorf("generation failed: %w", err)
	}

	htmlPath := outPath
	if htmlPath == "" {
		name := sanitizeFilename(variantID) + ".html"
		if outDir != "" {
			dir, err := ensureOutDir(outDir)
			if err != nil {
				return err
			}
			htmlPath = filepath.Join(dir, name)
		} else {
			htmlPath = name
		}
	}

	sink, err := openSink(htmlPath)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(sink.writer, result.HTML); err != nil {
		_ = sink.close()
		return fmt.Errorf("write slide HTML: %w", err)
	}
	if err := sink.close(); err != nil {
		return fmt.Errorf("write slide HTML: %w", err)
	}

	// With '-' the HTML itself owns stdout; no summary on top of it.
	if sink.path == "-" {
		return nil
	}

	if strings.TrimSpace(backgroundOut) != "" {
		note, err := saveBackground(result.Metadata, backgroundOut)
		if err != nil {
			return err
		}
		fmt.Println(note)
	}

	formatter := output.NewFormatter(format)
	rendered, err := formatter.FormatRender(&output.RenderView{
		Metadata:   result.Metadata,
		Validation: result.Validation,
		HTMLPath:   sink.path,
		HTMLBytes:  len(result.HTML),
	})
	if err != nil {
		return fmt.Errorf("format result: %w", err)
	}
	fmt.Println(rendered)

	// Assembly warnings are advisory; keep them off JSON output so it stays
	// pipeable.
	if format != output.FormatJSON {
		for _, w := range result.Warnings {
			switch w.Kind {
			case assemble.WarnMissingPlaceholder:
				fmt.Printf("Warning: template placeholder {%s} had no content\n", w.Key)
			case assemble.WarnUnusedContent:
				fmt.Printf("Warning: content key %q matched no placeholder\n", w.Key)
			}
		}
	}
	return nil
}

// briefFromFlags assembles the slide spec from the brief flags, --field
// pairs, and --brief-file, with flags taking precedence over the file.
func briefFromFlags(cmd *cobra.Command) (core.SlideSpec, error) {
	title, _ := cmd.Flags().GetString("title")
	message, _ := cmd.Flags().GetString("message")
	narrative, _ := cmd.Flags().GetString("narrative")
	audience, _ := cmd.Flags().GetString("audience")
	tone, _ := cmd.Flags().GetString("tone")
	position, _ := cmd.Flags().GetString("position")
	fields, _ := cmd.Flags().GetStringArray("field")
	briefFile, _ := cmd.Flags().GetString("brief-file")

	spec := core.SlideSpec{
		SlideTitle: strings.TrimSpace(title),
		KeyMessage: strings.TrimSpace(message),
		Narrative:  strings.TrimSpace(narrative),
		Audience:   strings.TrimSpace(audience),
		Tone:       strings.TrimSpace(tone),
		Position:   strings.TrimSpace(position),
	}

	if strings.TrimSpace(briefFile) != "" {
		brief, err := readBriefFile(briefFile)
		if err != nil {
			return core.SlideSpec{}, err
		}
		applyBrief(&spec, brief)
	}

	for _, pair := range fields {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return core.SlideSpec{}, fmt.Errorf("invalid --field %q (want key=value)", pair)
		}
		if spec.Extra == nil {
			spec.Extra = make(map[string]string)
		}
		spec.Extra[key] = value
	}

	return spec, nil
}

// readBriefFile loads a flat YAML map of brief fields. Values must be
// strings; the generation prompts only take text.
func readBriefFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading brief file: %w", err)
	}
	var brief map[string]string
	if err := yaml.Unmarshal(data, &brief); err != nil {
		return nil, fmt.Errorf("parsing brief file: %w", err)
	}
	return brief, nil
}

func applyBrief(spec *core.SlideSpec, brief map[string]string) {
	for key, value := range brief {
		value = strings.TrimSpace(value)
		switch key {
		case "slide_title":
			if spec.SlideTitle == "" {
				spec.SlideTitle = value
			}
		case "key_message":
			if spec.KeyMessage == "" {
				spec.KeyMessage = value
			}
		case "narrative":
			if spec.Narrative == "" {
				spec.Narrative = value
			}
		case "audience":
			if spec.Audience == "" {
				spec.Audience = value
			}
		case "tone":
			if spec.Tone == "" {
				spec.Tone = value
			}
		case "position":
			if spec.Position == "" {
				spec.Position = value
			}
		default:
			if spec.Extra == nil {
				spec.Extra = make(map[string]string)
			}
			spec.Extra[key] = value
		}
	}
}

// saveBackground writes the generated background image, which arrives as a
// base64 data URL, to disk, plus a downscaled thumbnail next to it. Hosted
// URLs and gradient fallbacks have no local bytes and are reported instead.
func saveBackground(meta core.Metadata, path string) (string, error) {
	ref := meta.BackgroundImage
	if ref == "" {
		return fmt.Sprintf("No background image to save (visual style: %s)", meta.VisualStyle), nil
	}
	if !strings.HasPrefix(ref, "data:") {
		return "Background is hosted, not saved: " + ref, nil
	}
	_, data, err := encode.ParseDataURL(ref)
	if err != nil {
		return "", fmt.Errorf("decode background image: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write background image: %w", err)
	}

	thumbPath := thumbnailPath(filepath.Dir(path), filepath.Base(path), "thumbnail", "jpeg")
	if _, err := writeThumbnail(path, thumbPath, 256, "jpeg", 80); err != nil {
		// The full image is already on disk; a failed downscale is not fatal.
		return fmt.Sprintf("Background image written to %s (thumbnail skipped: %v)", path, err), nil
	}
	return fmt.Sprintf("Background image written to %s (thumbnail %s)", path, thumbPath), nil
}
