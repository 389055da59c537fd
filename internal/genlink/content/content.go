package content

import "strings"

// ContentType represents supported content types using IANA media types.
type ContentType string

const (
	ContentTypeText ContentType = "text/plain"
	ContentTypeJSON ContentType = "application/json"
	ContentTypePNG  ContentType = "image/png"
)

// ContentBlock represents a single piece of content.
type ContentBlock struct {
	Type    ContentType `json:"type"`
	Text    string      `json:"text,omitempty"`
	Data    []byte      `json:"data,omitempty"`
	DataURL string      `json:"data_url,omitempty"`
}

// Message represents a chat message.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// Text builds a plain-text content block.
func Text(text string) ContentBlock {
	return ContentBlock{Type: ContentTypeText, Text: text}
}

// Image builds an image content block with raw bytes.
func Image(mime string, data []byte) ContentBlock {
	return ContentBlock{Type: ContentType(mime), Data: data}
}

// IsImage reports whether the block carries image content.
func (b ContentBlock) IsImage() bool {
	return strings.HasPrefix(string(b.Type), "image/")
}
