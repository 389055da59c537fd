package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// RequestID header key
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLength bounds caller-supplied ids so a hostile header cannot
// inflate log and metric cardinality.
const maxRequestIDLength = 128

// requestIDContextKey is a custom type to avoid context key collisions
type requestIDContextKey string

const RequestIDContextKey requestIDContextKey = "request_id"

// RequestID middleware attaches a request ID to each slide request. Deck
// builders send one request per slide and correlate them with their own ids,
// so a usable inbound X-Request-ID wins over anything minted here.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := sanitizeRequestID(r.Header.Get(RequestIDHeader))

		// Fall back to chi's middleware when the caller sent nothing usable
		if requestID == "" {
			requestID = middleware.GetReqID(r.Context())
		}

		// Last resort: mint a fresh UUID
		if requestID == "" {
			requestID = uuid.New().String()
		}

		// Echo the effective ID so callers can correlate responses
		w.Header().Set(RequestIDHeader, requestID)

		ctx := context.WithValue(r.Context(), RequestIDContextKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sanitizeRequestID trims and validates a caller-supplied request ID.
// Anything containing control characters or spaces is discarded.
func sanitizeRequestID(value string) string {
	value = strings.TrimSpace(value)
	if value == "" || len(value) > maxRequestIDLength {
		return ""
	}
	for _, r := range value {
		if r <= 0x20 || r == 0x7f {
			return ""
		}
	}
	return value
}

// GetRequestID retrieves request ID from context
// Checks both our context key and chi's context key
func GetRequestID(ctx context.Context) string {
	// First check our context key
	if requestID, ok := ctx.Value(RequestIDContextKey).(string); ok {
		return requestID
	}

	// Fall back to chi's request ID
	if requestID := middleware.GetReqID(ctx); requestID != "" {
		return requestID
	}

	return ""
}
