package genlink

import "encoding/json"

// RawResponseError wraps a decode or schema failure together with the raw
// model payload. Element generation degrades to placeholders on these, so
// the payload is often the only evidence of what the model actually said.
type RawResponseError struct {
	Err error
	Raw json.RawMessage
}

func (e *RawResponseError) Error() string {
	if e == nil || e.Err == nil {
		return "generation response error"
	}
	return e.Err.Error()
}

func (e *RawResponseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
