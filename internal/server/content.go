package server

import (
	"encoding/json"
	"errors"
	"strings"
)

type ContentKind int

const (
	TextContent ContentKind = iota
	FileContent
)

var ErrMalformedFileMessage = errors.New("malformed file message")

// FileRef describes an uploaded file shared in a room. The file itself
// lives elsewhere; messages only carry its metadata.
type FileRef struct {
	Type     string `json:"type"`
	FileId   string `json:"fileId"`
	Filename string `json:"filename"`
	FileType string `json:"fileType,omitempty"`
	FileUrl  string `json:"fileUrl"`
}

// Content is the body of a chat message, either plain text or a file
// reference. File references travel as a tagged JSON object inside the
// message string, so text that merely resembles JSON stays text.
type Content struct {
	Kind ContentKind
	Text string
	File *FileRef
}

// ParseContent classifies a raw message body. A body is a file reference
// only when it is a JSON object tagged "type":"file" with a filename and
// file URL; anything else is plain text.
func ParseContent(raw string) (Content, error) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return Content{Kind: TextContent, Text: raw}, nil
	}

	var ref FileRef
	if err := json.Unmarshal([]byte(trimmed), &ref); err != nil {
		return Content{Kind: TextContent, Text: raw}, nil
	}

	if ref.Type != "file" {
		return Content{Kind: TextContent, Text: raw}, nil
	}

	if ref.Filename == "" || ref.FileUrl == "" {
		return Content{}, ErrMalformedFileMessage
	}

	return Content{Kind: FileContent, File: &ref}, nil
}

// Encode returns the message body as stored and broadcast.
func (c Content) Encode() (string, error) {
	if c.Kind == FileContent {
		b, err := json.Marshal(c.File)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return c.Text, nil
}
