package core

import "time"

// BatchResult captures the outcome of one slide render in a batch run.
type BatchResult struct {
	VariantID   string       `json:"variant_id"`
	SlideTitle  string       `json:"slide_title"`
	Status      RenderStatus `json:"status"`
	OutputPath  string       `json:"output_path,omitempty"`
	DurationMs  int64        `json:"duration_ms,omitempty"`
	Fallbacks   int          `json:"fallback_count"`
	Violations  int          `json:"violation_count"`
	VisualStyle VisualStyle  `json:"visual_style,omitempty"`
	Error       string       `json:"error,omitempty"`
	CompletedAt time.Time    `json:"completed_at"`
}

// Failed reports whether the render produced no slide at all. Degraded
// renders still ship HTML and do not count as failures.
func (r BatchResult) Failed() bool {
	return r.Status == RenderFailed
}
