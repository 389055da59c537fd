package genlink

import (
	"context"
	"errors"
	"strings"

	"github.com/slidesmith/slidesmith/internal/genlink/driver"
)

// MapProviderError classifies a generation failure for logging and fallback
// accounting.
func MapProviderError(err error) *GenError {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &GenError{Code: "GENLINK_PROVIDER_TIMEOUT", Message: "provider request timed out"}
	}

	var perr *driver.ProviderError
	if errors.As(err, &perr) && perr != nil {
		status := perr.StatusCode
		details := strings.TrimSpace(perr.Message)
		switch {
		case status == 401 || status == 403:
			return &GenError{Code: "GENLINK_PROVIDER_AUTH", Message: "provider authentication failed", Details: details}
		case status == 429:
			return &GenError{Code: "GENLINK_PROVIDER_RATE_LIMIT", Message: "provider rate limited", Details: details}
		case status >= 500 && status <= 599:
			return &GenError{Code: "GENLINK_PROVIDER_UNAVAILABLE", Message: "provider unavailable", Details: details}
		case status >= 400 && status <= 499:
			return &GenError{Code: "GENLINK_PROVIDER_BAD_REQUEST", Message: "provider rejected request", Details: details}
		default:
			return &GenError{Code: "GENLINK_PROVIDER_ERROR", Message: "provider request failed", Details: details}
		}
	}

	var rawErr *RawResponseError
	if errors.As(err, &rawErr) {
		return &GenError{Code: "GENLINK_BAD_RESPONSE", Message: "provider returned unusable content", Details: rawErr.Error()}
	}

	return &GenError{Code: "GENLINK_PROVIDER_ERROR", Message: "provider request failed", Details: err.Error()}
}
