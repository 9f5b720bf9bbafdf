package pipeline

import (
	"errors"
	"fmt"
)

// ErrOutput is returned when the transcript cannot be written.
var ErrOutput = errors.New("output write failed")

// ChunkError attributes a failure to one chunk.
type ChunkError struct {
	Ordinal int
	Total   int
	Err     error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %d/%d: %v", e.Ordinal+1, e.Total, e.Err)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}

// PartialError reports a chunked run that failed after delivering the
// transcript of its first Done chunks to Destination.
type PartialError struct {
	Done        int
	Total       int
	Destination string
	Err         error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("partial transcript (chunks 1-%d of %d) written to %s: %v", e.Done, e.Total, e.Destination, e.Err)
}

func (e *PartialError) Unwrap() error {
	return e.Err
}
