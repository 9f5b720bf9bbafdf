// Package models defines the data structures for transcript events.
package models

// Event types published by a run.
const (
	EventChunkCompleted = "transcript.chunk.completed"
	EventRunCompleted   = "transcript.run.completed"
	EventRunFailed      = "transcript.run.failed"
)

// ChunkTranscribed is emitted once per successfully transcribed chunk.
type ChunkTranscribed struct {
	EventType  string  `json:"eventType"`
	RunID      string  `json:"runId"`
	File       string  `json:"file"`
	Timestamp  int64   `json:"timestamp"`
	Provider   string  `json:"provider"`
	Ordinal    int     `json:"ordinal"`
	Total      int     `json:"total"`
	OffsetMs   int64   `json:"offsetMs"`
	DurationMs int64   `json:"durationMs"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// TranscriptCompleted is emitted when the aggregated transcript was delivered.
type TranscriptCompleted struct {
	EventType   string `json:"eventType"`
	RunID       string `json:"runId"`
	File        string `json:"file"`
	Timestamp   int64  `json:"timestamp"`
	Provider    string `json:"provider"`
	Mode        string `json:"mode"`
	Chunks      int    `json:"chunks"`
	Chars       int    `json:"chars"`
	Destination string `json:"destination"`
	ElapsedMs   int64  `json:"elapsedMs"`
}

// TranscriptFailed is emitted when a run aborts.
type TranscriptFailed struct {
	EventType  string `json:"eventType"`
	RunID      string `json:"runId"`
	File       string `json:"file"`
	Timestamp  int64  `json:"timestamp"`
	Provider   string `json:"provider"`
	State      string `json:"state"`
	Error      string `json:"error"`
	ChunksDone int    `json:"chunksDone"`
	Chunks     int    `json:"chunks"`
	Partial    bool   `json:"partial"`
}
