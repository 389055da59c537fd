package cmd

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteThumbnailShrinksImage(t *testing.T) {
	dir := t.TempDir()
	inPath := filepath.Join(dir, "in.png")
	outPath := filepath.Join(dir, "out.jpg")

	img := image.NewRGBA(image.Rect(0, 0, 1000, 500))
	f, err := os.Create(inPath)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	dims, err := writeThumbnail(inPath, outPath, 200, "jpeg", 80)
	require.NoError(t, err)
	require.Equal(t, image.Pt(1000, 500), dims)

	outInfo, err := os.Stat(outPath)
	require.NoError(t, err)
	require.Greater(t, outInfo.Size(), int64(0))
}

func TestAspectDeviates(t *testing.T) {
	require.False(t, aspectDeviates(image.Pt(1792, 1024)))
	require.False(t, aspectDeviates(image.Pt(448, 256)))
	require.True(t, aspectDeviates(image.Pt(1024, 1024)))
	require.True(t, aspectDeviates(image.Pt(1000, 500)))

	// Unreadable dimensions are not worth warning about.
	require.False(t, aspectDeviates(image.Pt(0, 0)))
}

func TestThumbnailArtifactDetection(t *testing.T) {
	require.True(t, isThumbnailArtifact("bg.thumbnail.jpg", "thumbnail"))
	require.True(t, isThumbnailArtifact("BG.Thumbnail.JPG", "thumbnail"))
	require.False(t, isThumbnailArtifact("bg.png", "thumbnail"))
	require.False(t, isThumbnailArtifact("bg.thumbnail.jpg", "review"))

	require.True(t, isSourceImage("bg.png"))
	require.True(t, isSourceImage("bg.JPEG"))
	require.False(t, isSourceImage("notes.md"))
}

func TestVerifyDirWritable(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, verifyDirWritable(root))

	if os.Geteuid() == 0 {
		t.Skip("mode bits do not constrain root")
	}
	locked := filepath.Join(root, "locked")
	require.NoError(t, os.MkdirAll(locked, 0500))
	err := verifyDirWritable(locked)
	require.Error(t, err)
}
