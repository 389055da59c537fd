package imageinfo

import (
	"bytes"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInspectReadsPNGHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 16, 9))))

	info, err := Inspect(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, "png", info.Format)
	require.Equal(t, 16, info.Width)
	require.Equal(t, 9, info.Height)
	require.Equal(t, "image/png", info.MIMEType())
}

func TestInspectRejectsGarbage(t *testing.T) {
	_, err := Inspect([]byte("not an image"))
	require.Error(t, err)

	_, err = Inspect(nil)
	require.Error(t, err)
}
