package handlers

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/schema"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/slidesmith/slidesmith/internal/core"
	"github.com/slidesmith/slidesmith/internal/core/engine"
	apperrors "github.com/slidesmith/slidesmith/internal/errors"
	"github.com/slidesmith/slidesmith/internal/metrics"
	"github.com/slidesmith/slidesmith/internal/observability"
	"github.com/slidesmith/slidesmith/internal/slides"
	"github.com/slidesmith/slidesmith/internal/variant"
)

//go:embed generate_request.schema.json
var generateRequestSchemaBytes []byte

//go:embed generate_response.schema.json
var generateResponseSchemaBytes []byte

var (
	generateValidatorOnce sync.Once
	requestValidator      *schema.Validator
	responseValidator     *schema.Validator
	generateValidatorErr  error
)

// maxGenerateBody bounds the request body read. Slide specs are small; a
// larger body is either a mistake or abuse.
const maxGenerateBody = 1 << 20

// defaultBackendRetry is the hint used when every backend reported rate
// limits but none supplied a usable Retry-After.
const defaultBackendRetry = 30 * time.Second

// Generator produces a rendered slide for one request. *slides.Service is
// the production implementation; tests substitute stubs.
type Generator interface {
	Generate(ctx context.Context, req core.SlideRequest) (*slides.Result, error)
}

// GenerateOptions configures the generate endpoint.
type GenerateOptions struct {
	// MaxConcurrent caps in-flight generations. Requests arriving beyond the
	// cap are rejected with 429 rather than queued.
	MaxConcurrent int

	// QueueRetryAfter is the backoff hint attached to queue-full rejections.
	QueueRetryAfter time.Duration
}

// GenerateHandler serves POST /generate.
type GenerateHandler struct {
	generator Generator
	inflight  *semaphore.Weighted
	retryHint time.Duration
}

// NewGenerateHandler wires the slide generator behind the concurrency gate.
func NewGenerateHandler(g Generator, opts GenerateOptions) *GenerateHandler {
	maxConcurrent := opts.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	hint := opts.QueueRetryAfter
	if hint <= 0 {
		hint = 2 * time.Second
	}
	return &GenerateHandler{
		generator: g,
		inflight:  semaphore.NewWeighted(int64(maxConcurrent)),
		retryHint: hint,
	}
}

type generateRequestOptions struct {
	Mode           string `json:"mode,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

type generateRequest struct {
	VariantID string                  `json:"variant_id"`
	SlideSpec core.SlideSpec          `json:"slide_spec"`
	Options   *generateRequestOptions `json:"options,omitempty"`
}

type generateResponse struct {
	HTML       string         `json:"html"`
	Metadata   core.Metadata  `json:"metadata"`
	Validation validationView `json:"validation"`
}

// validationView mirrors validate.Result so the wire shape stays pinned here
// next to the response schema.
type validationView struct {
	Valid      bool            `json:"valid"`
	Violations json.RawMessage `json:"violations"`
}

// ServeHTTP handles POST /generate: validate the request against the
// embedded schema, reserve a generation slot, run the pipeline, and map the
// outcome onto the endpoint's error contract.
func (h *GenerateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxGenerateBody))
	if err != nil {
		apperrors.RespondWithAPIError(w, r,
			apperrors.NewInvalidInputError("Request body unreadable or too large"), 0)
		return
	}

	req, decodeErr := h.decodeRequest(body)
	if decodeErr != nil {
		apperrors.RespondWithAPIError(w, r, decodeErr, 0)
		return
	}

	if !h.inflight.TryAcquire(1) {
		metrics.RecordCapacityRejection("queue")
		apperrors.RespondWithAPIError(w, r,
			apperrors.NewCapacityExceededError("Server is at its concurrent slide limit"),
			retryAfterSeconds(h.retryHint))
		return
	}
	defer h.inflight.Release(1)

	result, err := h.generator.Generate(r.Context(), *req)
	if err != nil {
		mapped, retryAfter := mapGenerateError(err)
		apperrors.RespondWithAPIError(w, r, mapped, retryAfter)
		return
	}

	h.writeResult(w, r, result)
}

// decodeRequest validates the raw body against the request schema before
// unmarshaling, so contract violations surface as 400 with the schema's
// diagnostic rather than as a decoding quirk.
func (h *GenerateHandler) decodeRequest(body []byte) (*core.SlideRequest, error) {
	reqValidator, _, err := generateValidators()
	if err != nil {
		return nil, apperrors.NewInternalError("Request schema unavailable")
	}

	diagnostics, err := reqValidator.ValidateJSON(body)
	if err != nil {
		return nil, apperrors.NewInvalidInputError("Request is not valid JSON")
	}
	if len(diagnostics) > 0 {
		return nil, apperrors.NewInvalidInputError(diagnostics[0].Message)
	}

	var wire generateRequest
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, apperrors.NewInvalidInputError("Request is not valid JSON")
	}

	req := core.SlideRequest{
		VariantID: wire.VariantID,
		Spec:      wire.SlideSpec,
	}
	if wire.Options != nil {
		req.Mode = core.Mode(wire.Options.Mode)
		req.TimeoutSec = wire.Options.TimeoutSeconds
	}
	return &req, nil
}

// writeResult marshals the success payload, self-checks it against the
// embedded response schema, and sends it. A schema mismatch is a bug on our
// side of the contract: log it, count it, and send the payload anyway.
func (h *GenerateHandler) writeResult(w http.ResponseWriter, r *http.Request, result *slides.Result) {
	violations, err := json.Marshal(result.Validation.Violations)
	if err != nil {
		apperrors.RespondWithAPIError(w, r,
			apperrors.NewInternalError("Response encoding failed"), 0)
		return
	}

	payload, err := json.Marshal(generateResponse{
		HTML:     result.HTML,
		Metadata: result.Metadata,
		Validation: validationView{
			Valid:      result.Validation.Valid,
			Violations: violations,
		},
	})
	if err != nil {
		apperrors.RespondWithAPIError(w, r,
			apperrors.NewInternalError("Response encoding failed"), 0)
		return
	}

	h.selfCheckResponse(payload, result.Metadata.VariantID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func (h *GenerateHandler) selfCheckResponse(payload []byte, variantID string) {
	_, respValidator, err := generateValidators()
	if err != nil {
		return
	}
	diagnostics, err := respValidator.ValidateJSON(payload)
	if err != nil || len(diagnostics) == 0 {
		return
	}

	metrics.RecordContractMismatch("/generate", len(diagnostics))
	if observability.ServerLogger != nil {
		messages := make([]string, 0, len(diagnostics))
		for _, d := range diagnostics {
			messages = append(messages, d.Message)
		}
		observability.ServerLogger.Error("Response violates the generate contract",
			zap.String("variant_id", variantID),
			zap.Int("diagnostics", len(diagnostics)),
			zap.String("first", messages[0]),
			zap.String("all", strings.Join(messages, "; ")),
		)
	}
}

// mapGenerateError translates pipeline failures onto the endpoint contract.
// Unknown variants are the caller's mistake; parked backends and full queues
// ask the caller to retry; total failure and dead deadlines are gateway-side.
func mapGenerateError(err error) (error, int) {
	var notFound *variant.NotFoundError
	if errors.As(err, &notFound) {
		return apperrors.NewUnknownVariantError(
			fmt.Sprintf("Unknown variant_id: %s", notFound.VariantID)), 0
	}

	var malformed *variant.MalformedSpecError
	if errors.As(err, &malformed) {
		return apperrors.NewInternalError(
			fmt.Sprintf("Variant %s failed to load", malformed.VariantID)), 0
	}

	var capacity *engine.CapacityError
	if errors.As(err, &capacity) {
		metrics.RecordCapacityRejection(capacity.Backend)
		return apperrors.NewCapacityExceededError(
				fmt.Sprintf("Backend %s is rate limited", capacity.Backend)),
			retryAfterSeconds(capacity.RetryAfter)
	}

	var total *core.TotalFailureError
	if errors.As(err, &total) {
		if total.RateLimited {
			metrics.RecordCapacityRejection("backend")
			return apperrors.NewCapacityExceededError("All backends are rate limited"),
				retryAfterSeconds(defaultBackendRetry)
		}
		return apperrors.NewExternalServiceError(
			fmt.Sprintf("Slide generation failed: no element succeeded for %s", total.VariantID)), 0
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewTimeoutError("Slide generation exceeded the request deadline"), 0
	}

	return apperrors.NewInternalError("Slide generation failed"), 0
}

// retryAfterSeconds rounds a backoff up to whole seconds, the granularity of
// the Retry-After header. Sub-second waits still report one second so the
// caller never retries immediately.
func retryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 1
	}
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// generateValidators compiles both embedded schemas once. Embedding keeps
// request validation independent of the working directory, which matters
// when the service runs from a container image.
func generateValidators() (*schema.Validator, *schema.Validator, error) {
	generateValidatorOnce.Do(func() {
		requestValidator, generateValidatorErr = schema.NewValidator(generateRequestSchemaBytes)
		if generateValidatorErr != nil {
			return
		}
		responseValidator, generateValidatorErr = schema.NewValidator(generateResponseSchemaBytes)
	})
	if generateValidatorErr != nil {
		return nil, nil, fmt.Errorf("compile generate schemas: %w", generateValidatorErr)
	}
	return requestValidator, responseValidator, nil
}
