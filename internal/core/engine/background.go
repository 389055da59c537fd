package engine

import (
	"context"

	"github.com/slidesmith/slidesmith/internal/core"
	"github.com/slidesmith/slidesmith/internal/genlink"
	"github.com/slidesmith/slidesmith/internal/genlink/encode"
	"github.com/slidesmith/slidesmith/internal/genlink/imageinfo"
	"github.com/slidesmith/slidesmith/internal/genlink/prompt"
	"github.com/slidesmith/slidesmith/internal/promptbuild"
	"github.com/slidesmith/slidesmith/internal/variant"
)

const imageryBackend = "imagery"

// gradientStyles maps background style archetypes to the CSS gradient used
// when image generation fails. Each palette approximates the mood of the
// image that style would have produced.
var gradientStyles = map[string]string{
	"abstract_waves": "linear-gradient(135deg, #0f2a43 0%, #2d5f8a 55%, #7fb3d5 100%)",
	"soft_texture":   "linear-gradient(160deg, #f6f2ea 0%, #e9e0d2 60%, #d8cab6 100%)",
	"bold_geometric": "linear-gradient(120deg, #1a1a2e 0%, #e94560 100%)",
	"muted_organic":  "linear-gradient(150deg, #3d4f3f 0%, #74937c 55%, #b7c9ae 100%)",
}

const defaultGradient = "linear-gradient(135deg, #232946 0%, #5f6c8a 100%)"

// GradientFor returns the fallback gradient for a background style.
func GradientFor(style string) string {
	if css, ok := gradientStyles[style]; ok {
		return css
	}
	return defaultGradient
}

// generateBackground produces the slide background. Image failures never
// fail the slide: once retries are exhausted the result degrades to a
// style-derived CSS gradient.
func (o *Orchestrator) generateBackground(ctx context.Context, spec *variant.Spec, in promptbuild.Inputs) *core.BackgroundResult {
	bg := spec.Background
	vars := map[string]string{"style": bg.Style}
	if bg.AspectRatio != "" {
		vars["aspect_ratio"] = bg.AspectRatio
	}
	if in.Narrative != "" {
		vars["narrative"] = in.Narrative
	}

	if blocked, _ := o.backendBlocked(ctx, imageryBackend); blocked {
		return gradientFallback(bg.Style, 0, core.ReasonRateLimited)
	}

	var result *genlink.ImageResult
	attempts, err := withRetry(ctx, o.Retry, func(ctx context.Context) error {
		res, callErr := o.Images.GenerateImage(ctx, genlink.ImageRequest{
			Role:       imageryBackend,
			PromptSlug: prompt.SlugBackgroundImage,
			Variables:  vars,
		})
		if callErr != nil {
			o.noteFailure(ctx, imageryBackend, callErr)
			return callErr
		}
		result = res
		return nil
	})
	if err != nil {
		return gradientFallback(bg.Style, attempts, classifyFailure(err))
	}
	o.recordCall(ctx, imageryBackend)

	out := &core.BackgroundResult{
		Kind:     core.ResultOk,
		Provider: result.Provider,
		Model:    result.Model,
		Attempts: attempts,
	}
	switch {
	case len(result.Data) > 0:
		info, inspectErr := imageinfo.Inspect(result.Data)
		if inspectErr != nil {
			return gradientFallback(bg.Style, attempts, core.ReasonBadResponse)
		}
		out.ImageRef = encode.DataURL(info.MIMEType(), result.Data)
		out.Format = info.Format
		out.Width = info.Width
		out.Height = info.Height
	case result.URL != "":
		out.ImageRef = result.URL
	default:
		return gradientFallback(bg.Style, attempts, core.ReasonBadResponse)
	}
	return out
}

func gradientFallback(style string, attempts int, reason core.FallbackReason) *core.BackgroundResult {
	return &core.BackgroundResult{
		Kind:        core.ResultFallback,
		GradientCSS: GradientFor(style),
		Attempts:    attempts,
		Reason:      reason,
	}
}
