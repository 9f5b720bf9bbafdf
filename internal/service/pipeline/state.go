// Package pipeline drives one transcription run from input file to output.
package pipeline

import (
	"errors"
	"fmt"
	"sync"
)

// State represents the lifecycle state of a run.
type State int

const (
	StateInit State = iota
	StateProbed
	StateExtractedAudio
	StateSizeChecked
	StateWholeTranscribe
	StateChunkTranscribe
	StateAggregated
	StateDone
	// StateFailed is terminal and reachable from every non-terminal state.
	StateFailed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateProbed:
		return "PROBED"
	case StateExtractedAudio:
		return "EXTRACTED_AUDIO"
	case StateSizeChecked:
		return "SIZE_CHECKED"
	case StateWholeTranscribe:
		return "WHOLE_TRANSCRIBE"
	case StateChunkTranscribe:
		return "CHUNK_TRANSCRIBE"
	case StateAggregated:
		return "AGGREGATED"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true if the state is terminal (DONE or FAILED).
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

// ErrInvalidTransition is returned when a run skips or repeats a state.
var ErrInvalidTransition = errors.New("invalid state transition")

var transitions = map[State][]State{
	StateInit:            {StateProbed},
	StateProbed:          {StateExtractedAudio, StateSizeChecked},
	StateExtractedAudio:  {StateSizeChecked},
	StateSizeChecked:     {StateWholeTranscribe, StateChunkTranscribe},
	StateWholeTranscribe: {StateAggregated},
	StateChunkTranscribe: {StateAggregated},
	StateAggregated:      {StateDone},
}

// Lifecycle manages the state machine for a single run.
// Thread-safe for concurrent access.
//
// State transitions:
//
//	INIT → PROBED → [EXTRACTED_AUDIO] → SIZE_CHECKED ─┬→ WHOLE_TRANSCRIBE ─┬→ AGGREGATED → DONE
//	                                                  └→ CHUNK_TRANSCRIBE ─┘
//
// Any non-terminal state may move to FAILED.
type Lifecycle struct {
	mu    sync.RWMutex
	runID string
	state State
	path  []State
}

// NewLifecycle creates a new run lifecycle in INIT state.
func NewLifecycle(runID string) *Lifecycle {
	return &Lifecycle{
		runID: runID,
		state: StateInit,
		path:  []State{StateInit},
	}
}

// RunID returns the run ID.
func (l *Lifecycle) RunID() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.runID
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Path returns every state visited so far, in order.
func (l *Lifecycle) Path() []State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]State(nil), l.path...)
}

// Transition moves the run to next, or returns ErrInvalidTransition.
func (l *Lifecycle) Transition(next State) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, allowed := range transitions[l.state] {
		if allowed == next {
			l.state = next
			l.path = append(l.path, next)
			return nil
		}
	}
	return fmt.Errorf("%w: %v → %v", ErrInvalidTransition, l.state, next)
}

// Fail moves the run to FAILED and returns the state it failed in.
// Returns false if the run was already terminal.
func (l *Lifecycle) Fail() (State, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	prev := l.state
	if prev.IsTerminal() {
		return prev, false
	}
	l.state = StateFailed
	l.path = append(l.path, StateFailed)
	return prev, true
}
