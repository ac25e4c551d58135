// Package vision pulls image and video references out of chat messages before
// they are handed to a vision-language model processor.
package vision

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type ChunkType string

const (
	ChunkImage ChunkType = "image"
	ChunkVideo ChunkType = "video"
	ChunkText  ChunkType = "text"
)

// Chunk is one element of a message's content list. Only the field matching
// Type is meaningful.
type Chunk struct {
	Type  ChunkType `json:"type"`
	Image string    `json:"image,omitempty"`
	Video string    `json:"video,omitempty"`
	Text  string    `json:"text,omitempty"`
}

type Message struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

// Content holds either a plain string or a list of chunks.
type Content struct {
	Text   string
	Chunks []Chunk
	IsList bool
}

func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = Content{}
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Content{Text: s}
		return nil
	case '[':
		var chunks []Chunk
		if err := json.Unmarshal(data, &chunks); err != nil {
			return fmt.Errorf("decode content chunks: %w", err)
		}
		*c = Content{Chunks: chunks, IsList: true}
		return nil
	default:
		return fmt.Errorf("content must be a string or a list, got %s", data[:1])
	}
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.IsList {
		if c.Chunks == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(c.Chunks)
	}
	return json.Marshal(c.Text)
}

func TextContent(s string) Content {
	return Content{Text: s}
}

func ChunkContent(chunks ...Chunk) Content {
	return Content{Chunks: chunks, IsList: true}
}

// ExtractVisionInfo returns the image and video payloads found in messages, in
// order. Messages with plain string content are skipped.
func ExtractVisionInfo(messages []Message) (images, videos []string) {
	images, videos = []string{}, []string{}
	for _, m := range messages {
		if !m.Content.IsList {
			continue
		}
		for _, chunk := range m.Content.Chunks {
			switch chunk.Type {
			case ChunkImage:
				images = append(images, chunk.Image)
			case ChunkVideo:
				videos = append(videos, chunk.Video)
			}
		}
	}
	return images, videos
}

// DecodeMessages parses a JSON array of messages.
func DecodeMessages(data []byte) ([]Message, error) {
	var messages []Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return messages, nil
}
