// Package schema checks transcript events before they are published.
package schema

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"deepspeak/internal/models"
	"deepspeak/internal/observability/logging"
)

// ErrInvalidEvent is returned for events missing required fields.
var ErrInvalidEvent = errors.New("invalid event")

type Validator struct {
	log zerolog.Logger
}

func New() *Validator {
	return &Validator{log: logging.WithComponent("schema")}
}

// Validate checks the required fields of the known event types.
// Unknown types are rejected.
func (v *Validator) Validate(event any) error {
	var err error
	switch e := event.(type) {
	case *models.ChunkTranscribed:
		err = chunk(e)
	case *models.TranscriptCompleted:
		err = completed(e)
	case *models.TranscriptFailed:
		err = failed(e)
	default:
		err = fmt.Errorf("%w: unsupported type %T", ErrInvalidEvent, event)
	}
	if err != nil {
		v.log.Warn().Err(err).Msg("Event rejected")
		return err
	}
	v.log.Trace().Type("event", event).Msg("Schema validated")
	return nil
}

func chunk(e *models.ChunkTranscribed) error {
	if err := common(e.EventType, models.EventChunkCompleted, e.RunID, e.Timestamp); err != nil {
		return err
	}
	if e.Ordinal < 0 || e.Total <= e.Ordinal {
		return fmt.Errorf("%w: ordinal %d out of range for %d chunks", ErrInvalidEvent, e.Ordinal, e.Total)
	}
	if e.DurationMs < 0 || e.OffsetMs < 0 {
		return fmt.Errorf("%w: negative offset or duration", ErrInvalidEvent)
	}
	return nil
}

func completed(e *models.TranscriptCompleted) error {
	if err := common(e.EventType, models.EventRunCompleted, e.RunID, e.Timestamp); err != nil {
		return err
	}
	if e.Mode != "whole" && e.Mode != "chunked" {
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidEvent, e.Mode)
	}
	if e.Chunks < 1 {
		return fmt.Errorf("%w: chunks must be at least 1", ErrInvalidEvent)
	}
	return nil
}

func failed(e *models.TranscriptFailed) error {
	if err := common(e.EventType, models.EventRunFailed, e.RunID, e.Timestamp); err != nil {
		return err
	}
	if e.Error == "" {
		return fmt.Errorf("%w: missing error", ErrInvalidEvent)
	}
	return nil
}

func common(eventType, want, runID string, ts int64) error {
	switch {
	case eventType != want:
		return fmt.Errorf("%w: eventType %q, want %q", ErrInvalidEvent, eventType, want)
	case runID == "":
		return fmt.Errorf("%w: missing runId", ErrInvalidEvent)
	case ts <= 0:
		return fmt.Errorf("%w: missing timestamp", ErrInvalidEvent)
	}
	return nil
}
