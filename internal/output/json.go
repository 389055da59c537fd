package output

import (
	"encoding/json"
)

// JSONFormatter renders results as JSON.
type JSONFormatter struct {
	Indent bool
}

// FormatRender renders a generation summary as JSON.
func (f *JSONFormatter) FormatRender(view *RenderView) (string, error) {
	if view == nil {
		return "", nil
	}

	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = json.MarshalIndent(view, "", "  ")
	} else {
		data, err = json.Marshal(view)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}
