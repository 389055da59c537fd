// Package imageinfo inspects generated image payloads without fully
// decoding them.
package imageinfo

import (
	"bytes"
	"fmt"
	"image"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// Info describes a decoded image header.
type Info struct {
	Format string `json:"format"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// MIMEType returns the media type for the detected format.
func (i Info) MIMEType() string {
	return "image/" + i.Format
}

// Inspect reads the image header and reports format and dimensions. It
// rejects payloads no registered decoder recognizes, which catches
// truncated or mislabeled provider responses before they reach a slide.
func Inspect(data []byte) (Info, error) {
	if len(data) == 0 {
		return Info{}, fmt.Errorf("empty image payload")
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Info{}, fmt.Errorf("decode image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Info{}, fmt.Errorf("invalid image dimensions %dx%d", cfg.Width, cfg.Height)
	}

	return Info{Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}
