package encode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBase64RoundTrip(t *testing.T) {
	original := []byte("slide bytes")
	encoded := EncodeBase64String(original)
	decoded, err := DecodeBase64String(encoded)
	require.NoError(t, err)
	require.Equal(t, original, decoded)
}

func TestDataURL(t *testing.T) {
	url := DataURL("image/png", []byte{0x89, 0x50})
	require.Equal(t, "data:image/png;base64,iVA=", url)
}

func TestParseDataURL(t *testing.T) {
	mime, data, err := ParseDataURL("data:image/png;base64,iVA=")
	require.NoError(t, err)
	require.Equal(t, "image/png", mime)
	require.Equal(t, []byte{0x89, 0x50}, data)

	_, _, err = ParseDataURL("https://cdn.example.com/bg.png")
	require.Error(t, err)

	_, _, err = ParseDataURL("data:image/png,rawpayload")
	require.Error(t, err)
}
