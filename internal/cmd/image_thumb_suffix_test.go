package cmd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestThumbnailPath(t *testing.T) {
	require.Equal(t, "/decks/q3/bg.thumbnail.jpg", thumbnailPath("/decks/q3", "bg.png", "thumbnail", "jpeg"))
	require.Equal(t, "/decks/q3/bg.review.png", thumbnailPath("/decks/q3", "bg.jpeg", "review", "png"))
	require.Equal(t, "/decks/q3/hero.thumbnail.jpg", thumbnailPath("/decks/q3", "hero.webp", "thumbnail", "jpeg"))
}
