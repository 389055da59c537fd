// Package slides ties variant loading, content generation, template
// assembly, and validation into the single Generate operation served by both
// the HTTP API and the render command.
package slides

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/slidesmith/slidesmith/internal/assemble"
	"github.com/slidesmith/slidesmith/internal/core"
	"github.com/slidesmith/slidesmith/internal/core/engine"
	"github.com/slidesmith/slidesmith/internal/metrics"
	"github.com/slidesmith/slidesmith/internal/validate"
	"github.com/slidesmith/slidesmith/internal/variant"
)

const (
	// DefaultTimeout bounds a generation when the request does not ask for one.
	DefaultTimeout = 120 * time.Second
	// MaxTimeout caps the per-request timeout regardless of what was asked.
	MaxTimeout = 300 * time.Second
)

// Runner produces element and background content for a loaded variant.
type Runner interface {
	Run(ctx context.Context, spec *variant.Spec, req core.SlideRequest) (*engine.Outcome, error)
	Preflight(ctx context.Context, spec *variant.Spec) error
}

// RenderLog persists one row per finished generation.
type RenderLog interface {
	RecordRender(ctx context.Context, rec core.RenderRecord) error
}

// Result is a finished slide: assembled HTML plus provenance and the
// character-count validation verdict.
type Result struct {
	HTML       string
	Metadata   core.Metadata
	Validation validate.Result
	Warnings   []assemble.Warning
}

// Service runs the full slide pipeline. Renders is optional; when set, every
// generation outcome is written to the render log best-effort.
type Service struct {
	Loader    *variant.Loader
	Assembler *assemble.Assembler
	Engine    Runner
	Renders   RenderLog

	DefaultMode    core.Mode
	DefaultTimeout time.Duration
	MaxTimeout     time.Duration
	Clock          func() time.Time
}

// Generate produces one slide. Unknown variants surface
// *variant.NotFoundError, parked backends *engine.CapacityError, and total
// generation failure *core.TotalFailureError; callers map those to transport
// errors. Partial failures degrade to placeholder or gradient content and
// still return a Result.
func (s *Service) Generate(ctx context.Context, req core.SlideRequest) (*Result, error) {
	start := s.now()

	spec, err := s.Loader.Load(req.VariantID)
	if err != nil {
		return nil, err
	}

	if !req.Mode.Valid() {
		req.Mode = s.defaultMode()
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeoutFor(req.TimeoutSec))
	defer cancel()

	if err := s.Engine.Preflight(ctx, spec); err != nil {
		metrics.RecordCapacityRejection("preflight")
		return nil, err
	}

	generationID := uuid.New().String()

	outcome, err := s.Engine.Run(ctx, spec, req)
	if err != nil {
		duration := s.since(start)
		s.logRender(core.RenderRecord{
			GenerationID: generationID,
			VariantID:    spec.VariantID,
			Mode:         req.Mode,
			Status:       core.RenderFailed,
			DurationMs:   duration.Milliseconds(),
			ElementCount: len(spec.Elements),
			VisualStyle:  core.VisualPlain,
			CreatedAt:    s.now().UTC(),
		})
		metrics.RecordGeneration(spec.VariantID, string(req.Mode), string(core.RenderFailed), duration)
		return nil, err
	}

	content := make(map[string]string, len(outcome.Elements)*2+2)
	byElement := make(map[string]map[string]string, len(outcome.Elements))
	for _, el := range outcome.Elements {
		byElement[el.ElementID] = el.Fields
		for field, value := range el.Fields {
			content[variant.FieldKey(el.ElementID, field)] = value
		}
	}
	content["slide_title"] = s.slideTitle(spec, req)
	content["background_style"] = backgroundStyle(outcome.Background)

	html, warnings, err := s.Assembler.Assemble(spec.TemplatePath, content)
	if err != nil {
		duration := s.since(start)
		s.logRender(core.RenderRecord{
			GenerationID: generationID,
			VariantID:    spec.VariantID,
			Mode:         outcome.Mode,
			Status:       core.RenderFailed,
			DurationMs:   duration.Milliseconds(),
			ElementCount: len(outcome.Elements),
			VisualStyle:  visualStyle(outcome.Background),
			CreatedAt:    s.now().UTC(),
		})
		metrics.RecordGeneration(spec.VariantID, string(outcome.Mode), string(core.RenderFailed), duration)
		return nil, fmt.Errorf("assemble %s: %w", spec.VariantID, err)
	}

	validation := validate.Check(spec, byElement)
	duration := s.since(start)
	meta := s.buildMetadata(spec, outcome, generationID, duration)

	status := core.RenderOk
	if len(meta.FallbackElements) > 0 || (meta.FallbackToGradient != nil && *meta.FallbackToGradient) {
		status = core.RenderDegraded
	}

	s.logRender(core.RenderRecord{
		GenerationID:   generationID,
		VariantID:      spec.VariantID,
		Mode:           outcome.Mode,
		Status:         status,
		DurationMs:     meta.DurationMs,
		ElementCount:   meta.ElementCount,
		FallbackCount:  len(meta.FallbackElements),
		ViolationCount: len(validation.Violations),
		VisualStyle:    meta.VisualStyle,
		CreatedAt:      meta.CompletedAt,
	})

	metrics.RecordGeneration(spec.VariantID, string(outcome.Mode), string(status), duration)
	for _, el := range outcome.Elements {
		metrics.RecordElementResult(el.Provider, string(el.Tier), string(el.Kind), string(el.Reason))
	}
	if bg := outcome.Background; bg != nil && bg.Kind == core.ResultFallback {
		metrics.RecordGradientFallback(string(bg.Reason))
	}
	metrics.RecordViolations(spec.VariantID, len(validation.Violations))

	return &Result{
		HTML:       html,
		Metadata:   meta,
		Validation: validation,
		Warnings:   warnings,
	}, nil
}

func (s *Service) buildMetadata(spec *variant.Spec, outcome *engine.Outcome, generationID string, duration time.Duration) core.Metadata {
	tiers := make(map[string]string, len(outcome.Elements))
	counts := make(map[string]int)
	fallbacks := make([]string, 0)
	for _, el := range outcome.Elements {
		tiers[el.ElementID] = string(el.Tier)
		for field, value := range el.Fields {
			counts[variant.FieldKey(el.ElementID, field)] = utf8.RuneCountInString(value)
		}
		if el.Degraded() {
			fallbacks = append(fallbacks, el.ElementID)
		}
	}

	meta := core.Metadata{
		VariantID:        spec.VariantID,
		GenerationID:     generationID,
		Mode:             outcome.Mode,
		DurationMs:       duration.Milliseconds(),
		ElementCount:     len(outcome.Elements),
		ModelTiers:       tiers,
		CharacterCounts:  counts,
		FallbackElements: fallbacks,
		VisualStyle:      visualStyle(outcome.Background),
		CompletedAt:      s.now().UTC(),
	}

	if spec.HasBackground() {
		bg := outcome.Background
		fellBack := bg == nil || bg.Kind != core.ResultOk || bg.ImageRef == ""
		meta.FallbackToGradient = &fellBack
		if !fellBack {
			meta.BackgroundImage = bg.ImageRef
		}
	}
	return meta
}

// logRender writes the render log row. A dead request context must not lose
// the row, so the write runs on a fresh context; store errors never fail the
// request.
func (s *Service) logRender(rec core.RenderRecord) {
	if s.Renders == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.Renders.RecordRender(ctx, rec)
}

func (s *Service) slideTitle(spec *variant.Spec, req core.SlideRequest) string {
	if title := strings.TrimSpace(req.Spec.SlideTitle); title != "" {
		return title
	}
	return spec.Title
}

func (s *Service) defaultMode() core.Mode {
	if s.DefaultMode.Valid() {
		return s.DefaultMode
	}
	return core.ModeParallel
}

func (s *Service) timeoutFor(timeoutSec int) time.Duration {
	duration := s.DefaultTimeout
	if duration <= 0 {
		duration = DefaultTimeout
	}
	if timeoutSec > 0 {
		duration = time.Duration(timeoutSec) * time.Second
	}
	max := s.MaxTimeout
	if max <= 0 {
		max = MaxTimeout
	}
	if duration > max {
		duration = max
	}
	return duration
}

func (s *Service) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

func (s *Service) since(start time.Time) time.Duration {
	d := s.now().Sub(start)
	if d < 0 {
		return 0
	}
	return d
}

// visualStyle classifies what ended up behind the slide content.
func visualStyle(bg *core.BackgroundResult) core.VisualStyle {
	switch {
	case bg == nil:
		return core.VisualPlain
	case bg.Kind == core.ResultOk && bg.ImageRef != "":
		return core.VisualImage
	default:
		return core.VisualGradient
	}
}

// backgroundStyle renders the inline CSS for the background_style
// placeholder every template carries.
func backgroundStyle(bg *core.BackgroundResult) string {
	switch {
	case bg == nil:
		return "background: #eef1f6;"
	case bg.Kind == core.ResultOk && bg.ImageRef != "":
		return fmt.Sprintf("background-image: url(%s); background-size: cover; background-position: center;", bg.ImageRef)
	default:
		css := bg.GradientCSS
		if css == "" {
			css = engine.GradientFor("")
		}
		return "background: " + css + ";"
	}
}
