// Package mock provides a scripted STT client for testing without credentials.
// Each call consumes the next scripted Step; once the script runs out the
// client answers with DefaultUtterances in rotation.
package mock

import (
	"context"
	"os"
	"sync"
	"time"

	"deepspeak/internal/service/stt"
)

// DefaultUtterances are returned, cycling, when no script step is left.
var DefaultUtterances = []string{
	"mock transcript segment one",
	"mock transcript segment two",
	"mock transcript segment three",
	"mock transcript segment four",
	"mock transcript segment five",
}

// Step scripts the outcome of one call.
type Step struct {
	Response *stt.Response
	Err      error
	Delay    time.Duration // simulated processing time, cut short by ctx
}

// Call records one Transcribe invocation.
type Call struct {
	Payload stt.Payload
	Options stt.Options
	// Existed reports whether the payload file was on disk when the call was made.
	Existed bool
	Content []byte
}

// Responder computes a reply from the call instead of the script.
type Responder func(call Call) (*stt.Response, error)

// Client implements stt.Client with scripted responses.
type Client struct {
	mu        sync.Mutex
	steps     []Step
	next      int
	responder Responder
	calls     []Call
	capture   bool
}

// New creates a mock client that plays steps in call order.
func New(steps ...Step) *Client {
	return &Client{steps: steps}
}

// NewResponder creates a mock client whose replies are computed by fn.
func NewResponder(fn Responder) *Client {
	return &Client{responder: fn}
}

// CaptureContent makes the client keep a copy of every payload file.
func (c *Client) CaptureContent() *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.capture = true
	return c
}

// Name returns the provider identifier.
func (c *Client) Name() string {
	return "mock"
}

// Transcribe records the call and returns its scripted outcome.
func (c *Client) Transcribe(ctx context.Context, p stt.Payload, opts stt.Options) (*stt.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, &stt.APIError{Provider: "mock", Cause: err}
	}

	call := Call{Payload: p, Options: opts}
	if _, err := os.Stat(p.Path); err == nil {
		call.Existed = true
	}

	c.mu.Lock()
	if c.capture && call.Existed {
		call.Content, _ = os.ReadFile(p.Path)
	}
	c.calls = append(c.calls, call)
	n := len(c.calls) - 1
	var step Step
	scripted := c.responder == nil && c.next < len(c.steps)
	if scripted {
		step = c.steps[c.next]
		c.next++
	}
	responder := c.responder
	c.mu.Unlock()

	if responder != nil {
		return responder(call)
	}
	if !scripted {
		return stt.TextResponse(DefaultUtterances[n%len(DefaultUtterances)]), nil
	}

	if step.Delay > 0 {
		select {
		case <-ctx.Done():
			return nil, &stt.APIError{Provider: "mock", Cause: ctx.Err()}
		case <-time.After(step.Delay):
		}
	}
	return step.Response, step.Err
}

// Calls returns a copy of the call log.
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// CallCount returns the number of Transcribe calls so far.
func (c *Client) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}
