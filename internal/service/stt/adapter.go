// Package stt defines the interface for Speech-to-Text providers.
package stt

import (
	"context"
	"path/filepath"
	"strings"
)

// Options are the recognition settings sent with every request of a run.
type Options struct {
	Model       string
	Language    string
	SmartFormat bool
	Punctuate   bool
	Paragraphs  bool
	Utterances  bool
}

// Payload is one audio file to submit.
type Payload struct {
	Path     string
	MIMEType string
	Size     int64
}

// NewPayload builds a Payload for path with the MIME type inferred from its extension.
func NewPayload(path string, size int64) Payload {
	return Payload{Path: path, MIMEType: MIMETypeFor(path), Size: size}
}

// MIMETypeFor returns "audio/<ext>" for path, lowercased and without the dot.
func MIMETypeFor(path string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		return "application/octet-stream"
	}
	return "audio/" + ext
}

// Client defines the interface for STT providers (Deepgram, Google, mock).
type Client interface {
	// Name identifies the provider in logs and metrics.
	Name() string

	// Transcribe submits one payload and blocks until the provider answers.
	// It does not retry.
	Transcribe(ctx context.Context, p Payload, opts Options) (*Response, error)
}
