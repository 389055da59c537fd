package engine

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/slidesmith/slidesmith/internal/core"
	"github.com/slidesmith/slidesmith/internal/genlink"
	"github.com/slidesmith/slidesmith/internal/genlink/driver"
	"github.com/slidesmith/slidesmith/internal/genlink/prompt"
	"github.com/slidesmith/slidesmith/internal/variant"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var errValidation = errors.New("response failed schema validation")

type stubFieldsGen struct {
	mu      sync.Mutex
	reqs    []genlink.FieldsRequest
	fail    func(req genlink.FieldsRequest) error
	respond func(req genlink.FieldsRequest) (*genlink.FieldsResponse, error)
}

func (s *stubFieldsGen) GenerateFields(ctx context.Context, req genlink.FieldsRequest) (*genlink.FieldsResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.reqs = append(s.reqs, req)
	s.mu.Unlock()

	if s.respond != nil {
		return s.respond(req)
	}
	if s.fail != nil {
		if err := s.fail(req); err != nil {
			return nil, err
		}
	}

	props, _ := req.Schema["properties"].(map[string]any)
	fields := make(map[string]string, len(props))
	for name := range props {
		fields[name] = "generated " + req.Variables["element_id"] + " " + name
	}
	return &genlink.FieldsResponse{
		Fields:   fields,
		Provider: "stub",
		Model:    "stub-" + req.ModelKey,
	}, nil
}

func (s *stubFieldsGen) calls() []genlink.FieldsRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]genlink.FieldsRequest, len(s.reqs))
	copy(out, s.reqs)
	return out
}

type stubImageGen struct {
	mu   sync.Mutex
	reqs []genlink.ImageRequest
	err  error
	data []byte
	url  string
}

func (s *stubImageGen) GenerateImage(ctx context.Context, req genlink.ImageRequest) (*genlink.ImageResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.reqs = append(s.reqs, req)
	s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	return &genlink.ImageResult{Provider: "stub", Model: "stub-image", Data: s.data, URL: s.url}, nil
}

func loadSpec(t *testing.T, id string) *variant.Spec {
	t.Helper()
	spec, err := variant.NewDefaultLoader().Load(id)
	require.NoError(t, err)
	return spec
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func TestRunParallelGeneratesAllElements(t *testing.T) {
	spec := loadSpec(t, "matrix_2x2")
	gen := &stubFieldsGen{}
	orch := &Orchestrator{
		Fields:  gen,
		Routing: DefaultRouting(),
		Retry:   fastRetry(),
		Workers: 2,
	}

	out, err := orch.Run(context.Background(), spec, core.SlideRequest{VariantID: spec.VariantID, Mode: core.ModeParallel})
	require.NoError(t, err)
	require.Equal(t, core.ModeParallel, out.Mode)
	require.Nil(t, out.Background)
	require.Len(t, out.Elements, 4)

	for i, res := range out.Elements {
		require.Equal(t, spec.Elements[i].ElementID, res.ElementID)
		require.Equal(t, core.ResultOk, res.Kind)
		require.Equal(t, core.TierStandard, res.Tier)
		require.Equal(t, "stub", res.Provider)
		require.Equal(t, "stub-standard", res.Model)
		require.Equal(t, 1, res.Attempts)
		require.Equal(t, "generated "+res.ElementID+" title", res.Fields["title"])
		require.Equal(t, "generated "+res.ElementID+" body", res.Fields["body"])
	}

	for _, req := range gen.calls() {
		require.Equal(t, "fields-standard", req.Role)
		require.Equal(t, prompt.SlugElementFields, req.PromptSlug)
	}
}

func TestRunSequentialMatchesParallel(t *testing.T) {
	spec := loadSpec(t, "metrics_3col")

	run := func(mode core.Mode) (*Outcome, *stubFieldsGen) {
		gen := &stubFieldsGen{}
		orch := &Orchestrator{Fields: gen, Routing: DefaultRouting(), Retry: fastRetry(), Workers: 3}
		out, err := orch.Run(context.Background(), spec, core.SlideRequest{VariantID: spec.VariantID, Mode: mode})
		require.NoError(t, err)
		return out, gen
	}

	seq, seqGen := run(core.ModeSequential)
	par, _ := run(core.ModeParallel)

	require.Len(t, par.Elements, len(seq.Elements))
	for i := range seq.Elements {
		require.Equal(t, seq.Elements[i].ElementID, par.Elements[i].ElementID)
		require.Equal(t, seq.Elements[i].Kind, par.Elements[i].Kind)
		require.Equal(t, seq.Elements[i].Fields, par.Elements[i].Fields)
	}

	// Sequential dispatch preserves declaration order.
	var order []string
	for _, req := range seqGen.calls() {
		order = append(order, req.Variables["element_id"])
	}
	var declared []string
	for _, el := range spec.Elements {
		declared = append(declared, el.ElementID)
	}
	require.Equal(t, declared, order)
}

func TestRunFallsBackPerElement(t *testing.T) {
	spec := loadSpec(t, "matrix_2x2")
	gen := &stubFieldsGen{
		fail: func(req genlink.FieldsRequest) error {
			if req.Variables["element_id"] == "box_2" {
				return &driver.ProviderError{Provider: "stub", StatusCode: 503, Message: "overloaded"}
			}
			return nil
		},
	}
	orch := &Orchestrator{Fields: gen, Routing: DefaultRouting(), Retry: fastRetry()}

	out, err := orch.Run(context.Background(), spec, core.SlideRequest{VariantID: spec.VariantID, Mode: core.ModeSequential})
	require.NoError(t, err)

	degraded := out.Elements[1]
	require.Equal(t, "box_2", degraded.ElementID)
	require.Equal(t, core.ResultFallback, degraded.Kind)
	require.Equal(t, core.ReasonProviderDown, degraded.Reason)
	require.Equal(t, 3, degraded.Attempts)

	// Placeholders land exactly on the baseline so they always satisfy the
	// field bounds.
	require.Len(t, []rune(degraded.Fields["title"]), 20)
	require.Len(t, []rune(degraded.Fields["body"]), 120)
	require.False(t, strings.HasSuffix(degraded.Fields["body"], " "))

	for _, i := range []int{0, 2, 3} {
		require.Equal(t, core.ResultOk, out.Elements[i].Kind)
	}
}

func TestRunTotalFailure(t *testing.T) {
	spec := loadSpec(t, "matrix_2x2")

	t.Run("all rate limited", func(t *testing.T) {
		gen := &stubFieldsGen{
			fail: func(genlink.FieldsRequest) error {
				return &driver.ProviderError{Provider: "stub", StatusCode: 429, Message: "slow down"}
			},
		}
		orch := &Orchestrator{Fields: gen, Routing: DefaultRouting(), Retry: RetryConfig{MaxAttempts: 1}}

		_, err := orch.Run(context.Background(), spec, core.SlideRequest{VariantID: spec.VariantID})
		var tfe *core.TotalFailureError
		require.ErrorAs(t, err, &tfe)
		require.True(t, tfe.RateLimited)
		require.Equal(t, core.ReasonRateLimited, tfe.LastReason)
	})

	t.Run("mixed failures", func(t *testing.T) {
		gen := &stubFieldsGen{
			fail: func(req genlink.FieldsRequest) error {
				if req.Variables["element_id"] == "box_1" {
					return &driver.ProviderError{Provider: "stub", StatusCode: 500, Message: "boom"}
				}
				return &driver.ProviderError{Provider: "stub", StatusCode: 429, Message: "slow down"}
			},
		}
		orch := &Orchestrator{Fields: gen, Routing: DefaultRouting(), Retry: RetryConfig{MaxAttempts: 1}}

		_, err := orch.Run(context.Background(), spec, core.SlideRequest{VariantID: spec.VariantID, Mode: core.ModeSequential})
		var tfe *core.TotalFailureError
		require.ErrorAs(t, err, &tfe)
		require.False(t, tfe.RateLimited)
	})
}

func TestRunHeroRoutesPremiumSinglePass(t *testing.T) {
	spec := loadSpec(t, "title_hero")
	gen := &stubFieldsGen{}
	img := &stubImageGen{data: pngBytes(t, 16, 9)}
	orch := &Orchestrator{Fields: gen, Images: img, Routing: DefaultRouting(), Retry: fastRetry()}

	out, err := orch.Run(context.Background(), spec, core.SlideRequest{VariantID: spec.VariantID, Mode: core.ModeSequential})
	require.NoError(t, err)

	calls := gen.calls()
	require.Len(t, calls, 1)
	require.Equal(t, "hero", calls[0].Role)
	require.Equal(t, "premium", calls[0].ModelKey)
	require.Equal(t, prompt.SlugHeroSlide, calls[0].PromptSlug)

	require.Len(t, out.Elements, 1)
	require.Equal(t, core.TierPremium, out.Elements[0].Tier)

	require.NotNil(t, out.Background)
	require.Equal(t, core.ResultOk, out.Background.Kind)
	require.True(t, strings.HasPrefix(out.Background.ImageRef, "data:image/png;base64,"))
	require.Equal(t, "png", out.Background.Format)
	require.Equal(t, 16, out.Background.Width)
	require.Equal(t, 9, out.Background.Height)

	require.Len(t, img.reqs, 1)
	require.Equal(t, "imagery", img.reqs[0].Role)
	require.Equal(t, "abstract_waves", img.reqs[0].Variables["style"])
	require.Equal(t, "16:9", img.reqs[0].Variables["aspect_ratio"])
}

func TestRunImageFailureFallsBackToGradient(t *testing.T) {
	spec := loadSpec(t, "title_hero")
	gen := &stubFieldsGen{}
	img := &stubImageGen{err: &driver.ProviderError{Provider: "stub", StatusCode: 502, Message: "bad gateway"}}
	orch := &Orchestrator{Fields: gen, Images: img, Routing: DefaultRouting(), Retry: fastRetry()}

	out, err := orch.Run(context.Background(), spec, core.SlideRequest{VariantID: spec.VariantID, Mode: core.ModeParallel})
	require.NoError(t, err)

	require.Equal(t, core.ResultOk, out.Elements[0].Kind)
	require.NotNil(t, out.Background)
	require.Equal(t, core.ResultFallback, out.Background.Kind)
	require.Equal(t, GradientFor("abstract_waves"), out.Background.GradientCSS)
	require.Empty(t, out.Background.ImageRef)
	require.Equal(t, core.ReasonProviderDown, out.Background.Reason)
	require.Equal(t, 3, out.Background.Attempts)
}

func TestRunUndecodableImageFallsBackToGradient(t *testing.T) {
	spec := loadSpec(t, "title_hero")
	gen := &stubFieldsGen{}
	img := &stubImageGen{data: []byte("not an image")}
	orch := &Orchestrator{Fields: gen, Images: img, Routing: DefaultRouting(), Retry: fastRetry()}

	out, err := orch.Run(context.Background(), spec, core.SlideRequest{VariantID: spec.VariantID, Mode: core.ModeSequential})
	require.NoError(t, err)
	require.Equal(t, core.ResultFallback, out.Background.Kind)
	require.Equal(t, core.ReasonBadResponse, out.Background.Reason)
	require.NotEmpty(t, out.Background.GradientCSS)
}

func TestRunPropagatesCancellation(t *testing.T) {
	spec := loadSpec(t, "matrix_2x2")
	gen := &stubFieldsGen{}

	for _, mode := range []core.Mode{core.ModeSequential, core.ModeParallel} {
		orch := &Orchestrator{Fields: gen, Routing: DefaultRouting(), Retry: fastRetry()}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := orch.Run(ctx, spec, core.SlideRequest{VariantID: spec.VariantID, Mode: mode})
		require.ErrorIs(t, err, context.Canceled)
	}
}

func TestRunSkipsBackendInBackoff(t *testing.T) {
	spec := loadSpec(t, "matrix_2x2")
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	until := now.Add(time.Minute)
	store := &memoryRateStore{state: map[string]*core.RateLimitState{
		"fields-standard": {WindowStart: now, BackoffUntil: &until},
	}}
	gen := &stubFieldsGen{}
	orch := &Orchestrator{
		Fields:  gen,
		Routing: DefaultRouting(),
		Retry:   fastRetry(),
		Limiter: &RateLimiter{Store: store, Clock: func() time.Time { return now }},
	}

	_, err := orch.Run(context.Background(), spec, core.SlideRequest{VariantID: spec.VariantID, Mode: core.ModeSequential})
	var tfe *core.TotalFailureError
	require.ErrorAs(t, err, &tfe)
	require.True(t, tfe.RateLimited)
	require.Empty(t, gen.calls())
}

func TestRunRecords429Backoff(t *testing.T) {
	spec := loadSpec(t, "matrix_2x2")
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &memoryRateStore{}
	gen := &stubFieldsGen{
		fail: func(genlink.FieldsRequest) error {
			return &driver.ProviderError{Provider: "stub", StatusCode: 429, Message: "slow down", RetryAfter: 30 * time.Second}
		},
	}
	orch := &Orchestrator{
		Fields:  gen,
		Routing: DefaultRouting(),
		Retry:   RetryConfig{MaxAttempts: 1},
		Limiter: &RateLimiter{Store: store, Clock: func() time.Time { return now }},
	}

	_, err := orch.Run(context.Background(), spec, core.SlideRequest{VariantID: spec.VariantID, Mode: core.ModeSequential})
	var tfe *core.TotalFailureError
	require.ErrorAs(t, err, &tfe)
	require.True(t, tfe.RateLimited)

	// The first 429 parks the backend; remaining elements never dispatch.
	require.Len(t, gen.calls(), 1)
	state := store.state["fields-standard"]
	require.NotNil(t, state)
	require.NotNil(t, state.BackoffUntil)
	require.Equal(t, now.Add(30*time.Second), *state.BackoffUntil)
}

func TestRunHeroSalvagesPartialFields(t *testing.T) {
	spec := loadSpec(t, "title_hero")
	gen := &stubFieldsGen{
		respond: func(req genlink.FieldsRequest) (*genlink.FieldsResponse, error) {
			return &genlink.FieldsResponse{
				Fields:   map[string]string{"title": "Launch Day", "subtitle": "Ship the platform everyone has been waiting for"},
				Provider: "stub",
				Model:    "stub-premium",
			}, &genlink.RawResponseError{Err: errValidation}
		},
	}
	img := &stubImageGen{data: pngBytes(t, 16, 9)}
	orch := &Orchestrator{Fields: gen, Images: img, Routing: DefaultRouting(), Retry: RetryConfig{MaxAttempts: 1}}

	out, err := orch.Run(context.Background(), spec, core.SlideRequest{VariantID: spec.VariantID, Mode: core.ModeSequential})
	require.NoError(t, err)

	hero := out.Elements[0]
	require.Equal(t, core.ResultFallback, hero.Kind)
	require.Equal(t, core.ReasonBadResponse, hero.Reason)
	require.Equal(t, "Launch Day", hero.Fields["title"])
	require.Equal(t, "stub", hero.Provider)
	// The field the model dropped is backfilled at its baseline length.
	require.Len(t, []rune(hero.Fields["kicker"]), 18)
}

func TestRunHeroSalvageCompletesAsOk(t *testing.T) {
	spec := loadSpec(t, "title_hero")
	gen := &stubFieldsGen{
		respond: func(req genlink.FieldsRequest) (*genlink.FieldsResponse, error) {
			return &genlink.FieldsResponse{
				Fields: map[string]string{
					"title":    "Launch Day",
					"subtitle": "Ship the platform everyone has been waiting for",
					"kicker":   "Q3 All Hands",
				},
				Provider: "stub",
				Model:    "stub-premium",
			}, &genlink.RawResponseError{Err: errValidation}
		},
	}
	img := &stubImageGen{data: pngBytes(t, 16, 9)}
	orch := &Orchestrator{Fields: gen, Images: img, Routing: DefaultRouting(), Retry: RetryConfig{MaxAttempts: 1}}

	out, err := orch.Run(context.Background(), spec, core.SlideRequest{VariantID: spec.VariantID, Mode: core.ModeSequential})
	require.NoError(t, err)
	require.Equal(t, core.ResultOk, out.Elements[0].Kind)
	require.Equal(t, "Q3 All Hands", out.Elements[0].Fields["kicker"])
}

func TestPreflight(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	until := now.Add(45 * time.Second)

	t.Run("rejects when a text backend is parked", func(t *testing.T) {
		spec := loadSpec(t, "matrix_2x2")
		store := &memoryRateStore{state: map[string]*core.RateLimitState{
			"fields-standard": {WindowStart: now, BackoffUntil: &until},
		}}
		orch := &Orchestrator{Routing: DefaultRouting(), Limiter: &RateLimiter{Store: store, Clock: func() time.Time { return now }}}

		err := orch.Preflight(context.Background(), spec)
		var cerr *CapacityError
		require.ErrorAs(t, err, &cerr)
		require.Equal(t, "fields-standard", cerr.Backend)
		require.Equal(t, 45*time.Second, cerr.RetryAfter)
	})

	t.Run("ignores parked imagery", func(t *testing.T) {
		spec := loadSpec(t, "title_hero")
		store := &memoryRateStore{state: map[string]*core.RateLimitState{
			"imagery": {WindowStart: now, BackoffUntil: &until},
		}}
		orch := &Orchestrator{Routing: DefaultRouting(), Limiter: &RateLimiter{Store: store, Clock: func() time.Time { return now }}}

		require.NoError(t, orch.Preflight(context.Background(), spec))
	})

	t.Run("no limiter means no gate", func(t *testing.T) {
		spec := loadSpec(t, "matrix_2x2")
		orch := &Orchestrator{Routing: DefaultRouting()}
		require.NoError(t, orch.Preflight(context.Background(), spec))
	})
}

func TestPlaceholderValueHitsBaseline(t *testing.T) {
	cases := []int{2, 18, 60, 120, 500}
	for _, baseline := range cases {
		got := placeholderValue(variant.CharacterConstraint{Baseline: baseline})
		require.Len(t, []rune(got), baseline)
		require.False(t, strings.HasSuffix(got, " "))
	}
}
