package vision

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractVisionInfo(t *testing.T) {
	messages := []Message{
		{Role: "system", Content: TextContent("You are a GUI agent.")},
		{Role: "user", Content: ChunkContent(
			Chunk{Type: ChunkImage, Image: "file:///tmp/a.png"},
			Chunk{Type: ChunkText, Text: "click the button"},
			Chunk{Type: ChunkVideo, Video: "file:///tmp/b.mp4"},
			Chunk{Type: ChunkImage, Image: "file:///tmp/c.png"},
		)},
		{Role: "assistant", Content: ChunkContent(Chunk{Type: "audio"})},
	}

	images, videos := ExtractVisionInfo(messages)
	assert.Equal(t, []string{"file:///tmp/a.png", "file:///tmp/c.png"}, images)
	assert.Equal(t, []string{"file:///tmp/b.mp4"}, videos)
}

func TestExtractVisionInfo_Empty(t *testing.T) {
	images, videos := ExtractVisionInfo(nil)
	assert.Empty(t, images)
	assert.Empty(t, videos)
	assert.NotNil(t, images)
	assert.NotNil(t, videos)
}

func TestDecodeMessages(t *testing.T) {
	raw := []byte(`[
		{"role": "system", "content": "plain text"},
		{"role": "user", "content": [
			{"type": "image", "image": "https://example.com/x.jpg"},
			{"type": "text", "text": "what is this?"}
		]},
		{"role": "user", "content": null}
	]`)

	messages, err := DecodeMessages(raw)
	require.NoError(t, err)
	require.Len(t, messages, 3)

	assert.False(t, messages[0].Content.IsList)
	assert.Equal(t, "plain text", messages[0].Content.Text)
	assert.True(t, messages[1].Content.IsList)
	assert.Len(t, messages[1].Content.Chunks, 2)
	assert.False(t, messages[2].Content.IsList)

	images, videos := ExtractVisionInfo(messages)
	assert.Equal(t, []string{"https://example.com/x.jpg"}, images)
	assert.Empty(t, videos)
}

func TestDecodeMessages_RejectsObjectContent(t *testing.T) {
	_, err := DecodeMessages([]byte(`[{"role": "user", "content": {"type": "image"}}]`))
	assert.Error(t, err)
}

func TestContent_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(Message{Role: "user", Content: TextContent("hi")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"user","content":"hi"}`, string(data))

	data, err = json.Marshal(Message{Role: "user", Content: ChunkContent(Chunk{Type: ChunkImage, Image: "a.png"})})
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"user","content":[{"type":"image","image":"a.png"}]}`, string(data))
}
