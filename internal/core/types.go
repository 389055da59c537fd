package core

import (
	"encoding/json"
	"time"
)

// Mode selects how element generation calls are dispatched.
type Mode string

const (
	ModeSequential Mode = "sequential"
	ModeParallel   Mode = "parallel"
)

// Valid reports whether the mode is one of the dispatch modes.
func (m Mode) Valid() bool {
	return m == ModeSequential || m == ModeParallel
}

// Tier identifies the model quality class an element is routed to.
type Tier string

const (
	TierStandard Tier = "standard"
	TierPremium  Tier = "premium"
)

// ResultKind tags how an element's content was produced.
type ResultKind string

const (
	ResultOk       ResultKind = "ok"
	ResultFallback ResultKind = "fallback"
)

// FallbackReason explains why an element or background degraded.
type FallbackReason string

const (
	ReasonRateLimited  FallbackReason = "rate_limited"
	ReasonTimeout      FallbackReason = "timeout"
	ReasonProviderDown FallbackReason = "provider_unavailable"
	ReasonBadResponse  FallbackReason = "bad_response"
	ReasonRejected     FallbackReason = "rejected"
)

// VisualStyle describes what ended up behind the slide content.
type VisualStyle string

const (
	VisualPlain    VisualStyle = "plain"
	VisualImage    VisualStyle = "image"
	VisualGradient VisualStyle = "gradient"
)

// SlideSpec is the free-text content brief for one slide.
type SlideSpec struct {
	SlideTitle string `json:"slide_title"`
	KeyMessage string `json:"key_message,omitempty"`
	Narrative  string `json:"narrative,omitempty"`
	Audience   string `json:"audience,omitempty"`
	Tone       string `json:"tone,omitempty"`
	Position   string `json:"position,omitempty"`

	// Extra holds additional string fields from the request brief. They are
	// offered to prompt templates as variables and otherwise ignored.
	Extra map[string]string `json:"-"`
}

var slideSpecKnownKeys = []string{"slide_title", "key_message", "narrative", "audience", "tone", "position"}

// UnmarshalJSON keeps unknown string fields in Extra instead of dropping
// them. Non-string values are rejected by request schema validation before
// this decode runs.
func (s *SlideSpec) UnmarshalJSON(data []byte) error {
	type alias SlideSpec
	var known alias
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, key := range slideSpecKnownKeys {
		delete(raw, key)
	}
	for key, val := range raw {
		var str string
		if err := json.Unmarshal(val, &str); err != nil {
			continue
		}
		if known.Extra == nil {
			known.Extra = make(map[string]string)
		}
		known.Extra[key] = str
	}
	*s = SlideSpec(known)
	return nil
}

// SlideRequest is one slide-generation request after wire decoding.
type SlideRequest struct {
	VariantID  string    `json:"variant_id"`
	Spec       SlideSpec `json:"slide_spec"`
	Mode       Mode      `json:"mode,omitempty"`
	TimeoutSec int       `json:"timeout_sec,omitempty"`
}

// ElementResult carries the generated (or fallback) fields for one element.
type ElementResult struct {
	ElementID  string            `json:"element_id"`
	Kind       ResultKind        `json:"kind"`
	Fields     map[string]string `json:"fields"`
	Tier       Tier              `json:"tier"`
	Provider   string            `json:"provider,omitempty"`
	Model      string            `json:"model,omitempty"`
	Attempts   int               `json:"attempts"`
	Reason     FallbackReason    `json:"reason,omitempty"`
	DurationMs int64             `json:"duration_ms"`
}

// Degraded reports whether the element carries placeholder content.
func (r ElementResult) Degraded() bool {
	return r.Kind == ResultFallback
}

// BackgroundResult carries the slide background outcome. Exactly one of
// ImageRef (a data URL or hosted URL) or GradientCSS is set.
type BackgroundResult struct {
	Kind        ResultKind     `json:"kind"`
	ImageRef    string         `json:"image_ref,omitempty"`
	GradientCSS string         `json:"gradient_css,omitempty"`
	Format      string         `json:"format,omitempty"`
	Width       int            `json:"width,omitempty"`
	Height      int            `json:"height,omitempty"`
	Provider    string         `json:"provider,omitempty"`
	Model       string         `json:"model,omitempty"`
	Attempts    int            `json:"attempts"`
	Reason      FallbackReason `json:"reason,omitempty"`
}

// Metadata is the generation provenance block returned with every slide.
type Metadata struct {
	VariantID          string            `json:"variant_id"`
	GenerationID       string            `json:"generation_id"`
	Mode               Mode              `json:"mode"`
	DurationMs         int64             `json:"duration_ms"`
	ElementCount       int               `json:"element_count"`
	ModelTiers         map[string]string `json:"model_tiers"`
	CharacterCounts    map[string]int    `json:"character_counts"`
	FallbackElements   []string          `json:"fallback_elements"`
	VisualStyle        VisualStyle       `json:"visual_style"`
	FallbackToGradient *bool             `json:"fallback_to_gradient,omitempty"`
	BackgroundImage    string            `json:"background_image,omitempty"`
	CompletedAt        time.Time         `json:"completed_at"`
}

// RenderStatus classifies a finished generation for the render log.
type RenderStatus string

const (
	RenderOk       RenderStatus = "ok"
	RenderDegraded RenderStatus = "degraded"
	RenderFailed   RenderStatus = "failed"
)

// RenderRecord is one row of the render log: what was generated, how it
// went, and when.
type RenderRecord struct {
	GenerationID   string       `json:"generation_id"`
	VariantID      string       `json:"variant_id"`
	Mode           Mode         `json:"mode"`
	Status         RenderStatus `json:"status"`
	DurationMs     int64        `json:"duration_ms"`
	ElementCount   int          `json:"element_count"`
	FallbackCount  int          `json:"fallback_count"`
	ViolationCount int          `json:"violation_count"`
	VisualStyle    VisualStyle  `json:"visual_style"`
	CreatedAt      time.Time    `json:"created_at"`
}

// TotalFailureError signals that every element call failed and no usable
// slide could be produced even with placeholders.
type TotalFailureError struct {
	VariantID   string
	RateLimited bool
	LastReason  FallbackReason
}

func (e *TotalFailureError) Error() string {
	if e == nil {
		return "generation failed"
	}
	if e.RateLimited {
		return "generation failed for " + e.VariantID + ": all element calls were rate limited"
	}
	return "generation failed for " + e.VariantID + ": no element call succeeded"
}
