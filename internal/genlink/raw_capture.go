package genlink

import "encoding/json"

// rawCaptureCeiling bounds debug captures regardless of config. Background
// generations answer with base64 image payloads, and capturing one verbatim
// would dwarf the rest of the debug record.
const rawCaptureCeiling = 1 << 20

func truncateJSONRaw(input json.RawMessage, max int) json.RawMessage {
	if max <= 0 {
		return nil
	}
	if len(input) <= max {
		return input
	}
	out := make(json.RawMessage, 0, max)
	out = append(out, input[:max]...)
	return out
}

func isRawCaptureEnabled(cfg Config, includeRaw bool) bool {
	if !includeRaw {
		return false
	}
	return cfg.Debug.CaptureRawEnabled
}

func rawLimit(cfg Config) int {
	limit := cfg.Debug.CaptureRawMaxBytes
	if limit <= 0 {
		return 0
	}
	if limit > rawCaptureCeiling {
		return rawCaptureCeiling
	}
	return limit
}
