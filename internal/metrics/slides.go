package metrics

import (
	"strconv"
	"time"

	"github.com/slidesmith/slidesmith/internal/observability"
)

// Slide generation metrics
var (
	GenerationsTotal     = "slides_generations_total"
	GenerationDuration   = "slides_generation_duration_ms"
	ElementFallbacks     = "slides_element_fallbacks_total"
	GradientFallbacks    = "slides_gradient_fallbacks_total"
	BackendCalls         = "slides_backend_calls_total"
	ValidationViolations = "slides_validation_violations_total"
	CapacityRejections   = "slides_capacity_rejections_total"
	ContractMismatches   = "slides_contract_mismatches_total"
)

// RecordGeneration records one completed (or failed) slide generation.
func RecordGeneration(variantID, mode, status string, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	labels := map[string]string{
		"variant": variantID,
		"mode":    mode,
		"status":  status,
	}
	_ = observability.TelemetrySystem.Counter(GenerationsTotal, 1, labels)
	_ = observability.TelemetrySystem.Histogram(GenerationDuration, duration, map[string]string{
		"variant": variantID,
		"mode":    mode,
	})
}

// RecordElementResult records one element generation call outcome.
func RecordElementResult(provider, tier, kind, reason string) {
	if observability.TelemetrySystem == nil {
		return
	}
	labels := map[string]string{
		"provider": provider,
		"tier":     tier,
		"status":   kind,
	}
	if reason != "" {
		labels["reason"] = reason
	}
	_ = observability.TelemetrySystem.Counter(BackendCalls, 1, labels)
	if kind == "fallback" {
		_ = observability.TelemetrySystem.Counter(ElementFallbacks, 1, map[string]string{
			"reason": reason,
		})
	}
}

// RecordGradientFallback records a background image degrading to a gradient.
func RecordGradientFallback(reason string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(GradientFallbacks, 1, map[string]string{
			"reason": reason,
		})
	}
}

// RecordViolations records character-count violations for a generation.
func RecordViolations(variantID string, count int) {
	if observability.TelemetrySystem == nil || count <= 0 {
		return
	}
	_ = observability.TelemetrySystem.Counter(ValidationViolations, float64(count), map[string]string{
		"variant": variantID,
	})
}

// RecordCapacityRejection records a request rejected before dispatch, either
// by the inbound queue gate or a parked backend.
func RecordCapacityRejection(gate string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(CapacityRejections, 1, map[string]string{
			"gate": gate,
		})
	}
}

// RecordContractMismatch records a response that failed the embedded
// response-schema self check. The response is still served.
func RecordContractMismatch(endpoint string, diagnostics int) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(ContractMismatches, 1, map[string]string{
			"endpoint":    endpoint,
			"diagnostics": strconv.Itoa(diagnostics),
		})
	}
}
