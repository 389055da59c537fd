package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/slidesmith/slidesmith/internal/core"
	"github.com/slidesmith/slidesmith/internal/genlink"
	"github.com/slidesmith/slidesmith/internal/genlink/driver"
	"github.com/slidesmith/slidesmith/internal/promptbuild"
	"github.com/slidesmith/slidesmith/internal/variant"
)

// FieldsGenerator produces structured text fields for one slide element.
type FieldsGenerator interface {
	GenerateFields(ctx context.Context, req genlink.FieldsRequest) (*genlink.FieldsResponse, error)
}

// ImageGenerator produces a background image for a slide.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req genlink.ImageRequest) (*genlink.ImageResult, error)
}

const defaultWorkers = 4

// Orchestrator fans a slide's elements out to generation backends and folds
// individual failures into deterministic fallbacks. Only context
// cancellation and total generation failure abort a run; everything else
// degrades per element.
type Orchestrator struct {
	Fields  FieldsGenerator
	Images  ImageGenerator
	Routing Routing
	Limiter *RateLimiter
	Retry   RetryConfig
	Workers int
	Clock   func() time.Time
}

// Outcome carries element results in declaration order plus the background
// result when the variant declares one.
type Outcome struct {
	Elements   []core.ElementResult
	Background *core.BackgroundResult
	Mode       core.Mode
}

// Run generates content for every element of the variant. Sequential mode
// walks elements in declaration order; parallel mode dispatches them across
// a bounded worker pool. Both modes produce identical result sets for the
// same inputs modulo timing.
func (o *Orchestrator) Run(ctx context.Context, spec *variant.Spec, req core.SlideRequest) (*Outcome, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	mode := req.Mode
	if !mode.Valid() {
		mode = core.ModeParallel
	}

	in := promptbuild.Inputs{
		SlideTitle: req.Spec.SlideTitle,
		KeyMessage: req.Spec.KeyMessage,
		Narrative:  req.Spec.Narrative,
		Audience:   req.Spec.Audience,
		Tone:       req.Spec.Tone,
		Position:   req.Spec.Position,
		Extra:      req.Spec.Extra,
	}
	out := &Outcome{
		Elements: make([]core.ElementResult, len(spec.Elements)),
		Mode:     mode,
	}

	if mode == core.ModeSequential {
		for i := range spec.Elements {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			res, err := o.generateElement(ctx, spec, &spec.Elements[i], in)
			if err != nil {
				return nil, err
			}
			out.Elements[i] = res
		}
		if spec.HasBackground() {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			out.Background = o.generateBackground(ctx, spec, in)
		}
	} else {
		eg, egCtx := errgroup.WithContext(ctx)
		sem := semaphore.NewWeighted(int64(o.workerCount()))

		for i := range spec.Elements {
			eg.Go(func() error {
				if err := sem.Acquire(egCtx, 1); err != nil {
					return err
				}
				defer sem.Release(1)

				res, err := o.generateElement(egCtx, spec, &spec.Elements[i], in)
				if err != nil {
					return err
				}
				out.Elements[i] = res
				return nil
			})
		}
		if spec.HasBackground() {
			eg.Go(func() error {
				if err := sem.Acquire(egCtx, 1); err != nil {
					return err
				}
				defer sem.Release(1)

				out.Background = o.generateBackground(egCtx, spec, in)
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}
	}

	if err := totalFailure(spec.VariantID, out.Elements); err != nil {
		return nil, err
	}
	return out, nil
}

// generateElement runs one element call with retries. Provider failures
// degrade to placeholder fields; only context cancellation returns an error.
func (o *Orchestrator) generateElement(ctx context.Context, spec *variant.Spec, el *variant.ElementDef, in promptbuild.Inputs) (core.ElementResult, error) {
	tier := o.Routing.TierFor(spec, el)
	role := RoleFor(spec, tier)
	started := o.now()

	res := core.ElementResult{
		ElementID: el.ElementID,
		Tier:      tier,
	}

	if blocked, _ := o.backendBlocked(ctx, role); blocked {
		res.Kind = core.ResultFallback
		res.Reason = core.ReasonRateLimited
		res.Fields = placeholderFields(el)
		res.DurationMs = o.sinceMs(started)
		return res, nil
	}

	var resp, salvage *genlink.FieldsResponse
	attempts, err := withRetry(ctx, o.Retry, func(ctx context.Context) error {
		r, callErr := o.Fields.GenerateFields(ctx, genlink.FieldsRequest{
			Role:       role,
			PromptSlug: promptbuild.Slug(spec),
			Variables:  promptbuild.Variables(spec, el, in),
			Schema:     promptbuild.ResponseSchema(el),
			ModelKey:   ModelKeyFor(tier),
		})
		if callErr != nil {
			if r != nil && len(r.Fields) > 0 {
				salvage = r
			}
			o.noteFailure(ctx, role, callErr)
			return callErr
		}
		resp = r
		return nil
	})
	res.Attempts = attempts
	res.DurationMs = o.sinceMs(started)

	if err != nil {
		if ctx.Err() != nil {
			return core.ElementResult{}, err
		}
		if spec.Hero && salvage != nil {
			return heroSalvage(res, el, salvage), nil
		}
		res.Kind = core.ResultFallback
		res.Reason = classifyFailure(err)
		res.Fields = placeholderFields(el)
		return res, nil
	}
	o.recordCall(ctx, role)

	res.Kind = core.ResultOk
	res.Provider = resp.Provider
	res.Model = resp.Model
	res.Fields = resp.Fields
	return res, nil
}

// heroSalvage recovers whatever usable fields a misbehaving hero call
// returned. Hero slides are a single combined pass, so a response that fails
// schema validation may still carry most of the copy; missing fields get
// placeholders. The element only counts as Ok when nothing was missing.
func heroSalvage(res core.ElementResult, el *variant.ElementDef, salvage *genlink.FieldsResponse) core.ElementResult {
	fields := make(map[string]string, len(el.RequiredFields))
	complete := true
	for _, name := range el.RequiredFields {
		if value, ok := salvage.Fields[name]; ok && strings.TrimSpace(value) != "" {
			fields[name] = value
			continue
		}
		complete = false
		if c, ok := el.Constraint(name); ok {
			fields[name] = placeholderValue(c)
		} else {
			fields[name] = strings.TrimSpace(fallbackFiller)
		}
	}

	res.Provider = salvage.Provider
	res.Model = salvage.Model
	res.Fields = fields
	if complete {
		res.Kind = core.ResultOk
		return res
	}
	res.Kind = core.ResultFallback
	res.Reason = core.ReasonBadResponse
	return res
}

// Preflight checks whether the text backends the variant's routing plan
// needs can accept calls right now, so a request that is guaranteed to
// degrade everywhere is rejected before any work starts. Imagery is not
// checked: a parked image backend degrades to a gradient instead of
// rejecting the request.
func (o *Orchestrator) Preflight(ctx context.Context, spec *variant.Spec) error {
	if o.Limiter == nil {
		return nil
	}
	seen := make(map[string]struct{}, 2)
	for i := range spec.Elements {
		tier := o.Routing.TierFor(spec, &spec.Elements[i])
		role := RoleFor(spec, tier)
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		if blocked, wait := o.backendBlocked(ctx, role); blocked {
			return &CapacityError{Backend: role, RetryAfter: wait}
		}
	}
	return nil
}

// totalFailure reports an error when every element degraded. A slide made
// entirely of placeholders is a failed generation, not a deliverable.
func totalFailure(variantID string, elements []core.ElementResult) error {
	if len(elements) == 0 {
		return nil
	}
	rateLimited := true
	var last core.FallbackReason
	for _, el := range elements {
		if el.Kind != core.ResultFallback {
			return nil
		}
		if el.Reason != core.ReasonRateLimited {
			rateLimited = false
		}
		last = el.Reason
	}
	return &core.TotalFailureError{
		VariantID:   variantID,
		RateLimited: rateLimited,
		LastReason:  last,
	}
}

// backendBlocked consults the limiter before dispatch. Limiter store errors
// never block generation.
func (o *Orchestrator) backendBlocked(ctx context.Context, backend string) (bool, time.Duration) {
	if o.Limiter == nil {
		return false, 0
	}
	allowed, wait, err := o.Limiter.Allow(ctx, backend)
	if err != nil || allowed {
		return false, 0
	}
	return true, wait
}

func (o *Orchestrator) recordCall(ctx context.Context, backend string) {
	if o.Limiter == nil {
		return
	}
	_ = o.Limiter.Record(ctx, backend)
}

// noteFailure feeds provider 429 responses back into the limiter so later
// requests skip a backend that is already shedding load.
func (o *Orchestrator) noteFailure(ctx context.Context, backend string, err error) {
	if o.Limiter == nil {
		return
	}
	var perr *driver.ProviderError
	if errors.As(err, &perr) && perr.IsRateLimit() {
		_ = o.Limiter.Record429(ctx, backend, perr.RetryAfter)
	}
}

func (o *Orchestrator) workerCount() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return defaultWorkers
}

func (o *Orchestrator) now() time.Time {
	if o != nil && o.Clock != nil {
		return o.Clock()
	}
	return time.Now().UTC()
}

func (o *Orchestrator) sinceMs(start time.Time) int64 {
	d := o.now().Sub(start)
	if d < 0 {
		return 0
	}
	return d.Milliseconds()
}

// fallbackFiller seeds deterministic placeholder copy. Slices of it are
// sized to each field's baseline so fallback content still satisfies the
// field's length bounds.
const fallbackFiller = "Content pending editorial review. Final copy arrives with the next generation pass. "

func placeholderFields(el *variant.ElementDef) map[string]string {
	fields := make(map[string]string, len(el.RequiredFields))
	for _, name := range el.RequiredFields {
		c, ok := el.Constraint(name)
		if !ok {
			fields[name] = strings.TrimSpace(fallbackFiller)
			continue
		}
		fields[name] = placeholderValue(c)
	}
	return fields
}

func placeholderValue(c variant.CharacterConstraint) string {
	filler := []rune(fallbackFiller)
	out := make([]rune, 0, c.Baseline)
	for len(out) < c.Baseline {
		out = append(out, filler...)
	}
	out = out[:c.Baseline]
	if last := len(out) - 1; out[last] == ' ' {
		out[last] = '.'
	}
	return string(out)
}
