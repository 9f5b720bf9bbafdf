package stt

import (
	"errors"
	"fmt"
)

var (
	// ErrTranscriptionAPI matches every *APIError.
	ErrTranscriptionAPI = errors.New("transcription API error")

	// ErrMalformedResponse is returned when a response lacks the expected structure.
	ErrMalformedResponse = errors.New("malformed transcription response")
)

// APIError describes a failed call to a provider: transport failure,
// rejected credentials or a non-success status.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
	Auth       bool
	Timeout    bool
	Cause      error
}

func (e *APIError) Error() string {
	msg := e.Provider + ": "
	switch {
	case e.Timeout:
		msg += "request timed out"
	case e.Auth:
		msg += "authentication failed"
	case e.StatusCode != 0:
		msg += fmt.Sprintf("status %d", e.StatusCode)
	default:
		msg += "request failed"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is ErrTranscriptionAPI.
func (e *APIError) Is(target error) bool {
	return target == ErrTranscriptionAPI
}

// ErrorType returns a short label for metrics.
func (e *APIError) ErrorType() string {
	switch {
	case e.Timeout:
		return "timeout"
	case e.Auth:
		return "auth"
	case e.StatusCode >= 500:
		return "server"
	case e.StatusCode >= 400:
		return "client"
	default:
		return "network"
	}
}

// ErrorType labels err for the STT error counter.
func ErrorType(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorType()
	}
	if errors.Is(err, ErrMalformedResponse) {
		return "malformed"
	}
	return "other"
}
