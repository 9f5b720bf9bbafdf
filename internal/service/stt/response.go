package stt

import (
	"encoding/json"
	"fmt"
)

// Response is a provider answer in the Deepgram pre-recorded shape.
// Providers with a different wire format map into it.
type Response struct {
	Metadata *Metadata `json:"metadata,omitempty"`
	Results  *Results  `json:"results,omitempty"`

	// Raw is the body as received from the provider.
	Raw json.RawMessage `json:"-"`
}

// Metadata describes the request as the provider saw it.
type Metadata struct {
	RequestID string  `json:"request_id,omitempty"`
	Duration  float64 `json:"duration,omitempty"`
	Channels  int     `json:"channels,omitempty"`
}

// Results holds per-channel alternatives and optional utterances.
type Results struct {
	Channels   []Channel   `json:"channels"`
	Utterances []Utterance `json:"utterances,omitempty"`
}

// Channel is one audio channel. Alternatives is nil when the key was absent.
type Channel struct {
	Alternatives []Alternative `json:"alternatives"`
}

// Alternative is one candidate transcript. Transcript is nil when absent.
type Alternative struct {
	Transcript *string    `json:"transcript"`
	Confidence float64    `json:"confidence,omitempty"`
	Words      []Word     `json:"words,omitempty"`
	Paragraphs *Paragraph `json:"paragraphs,omitempty"`
}

// Word is a single recognized word with timings in seconds.
type Word struct {
	Word       string  `json:"word"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
}

// Paragraph carries the paragraph-formatted transcript.
type Paragraph struct {
	Transcript string `json:"transcript"`
}

// Utterance is a speaker turn, present when utterances were requested.
type Utterance struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
	Transcript string  `json:"transcript"`
	Speaker    int     `json:"speaker,omitempty"`
}

// ParseResponse decodes a provider body. Any decode failure wraps ErrMalformedResponse.
func ParseResponse(body []byte) (*Response, error) {
	var r Response
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	r.Raw = append(json.RawMessage(nil), body...)
	return &r, nil
}

// FirstTranscript returns results.channels[0].alternatives[0].transcript.
func (r *Response) FirstTranscript() (string, error) {
	switch {
	case r == nil:
		return "", fmt.Errorf("%w: empty response", ErrMalformedResponse)
	case r.Results == nil:
		return "", fmt.Errorf("%w: missing results", ErrMalformedResponse)
	case len(r.Results.Channels) == 0:
		return "", fmt.Errorf("%w: missing results.channels", ErrMalformedResponse)
	case len(r.Results.Channels[0].Alternatives) == 0:
		return "", fmt.Errorf("%w: missing results.channels[0].alternatives", ErrMalformedResponse)
	case r.Results.Channels[0].Alternatives[0].Transcript == nil:
		return "", fmt.Errorf("%w: missing transcript", ErrMalformedResponse)
	}
	return *r.Results.Channels[0].Alternatives[0].Transcript, nil
}

// TextResponse builds a single-channel Response around transcript.
func TextResponse(transcript string) *Response {
	return &Response{
		Results: &Results{
			Channels: []Channel{{Alternatives: []Alternative{{Transcript: &transcript}}}},
		},
	}
}
