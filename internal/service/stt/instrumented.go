package stt

import (
	"context"
	"time"

	"deepspeak/internal/observability/metrics"
)

// Instrumented wraps a Client and records request metrics for every call.
type Instrumented struct {
	Client
	metrics *metrics.Metrics
}

// WithMetrics wraps c. A nil m uses metrics.DefaultMetrics.
func WithMetrics(c Client, m *metrics.Metrics) *Instrumented {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &Instrumented{Client: c, metrics: m}
}

// Transcribe forwards to the wrapped client.
func (i *Instrumented) Transcribe(ctx context.Context, p Payload, opts Options) (*Response, error) {
	start := time.Now()
	resp, err := i.Client.Transcribe(ctx, p, opts)
	i.metrics.RecordSTTRequest(i.Name(), p.Size, time.Since(start).Seconds())
	if err != nil {
		i.metrics.RecordSTTError(i.Name(), ErrorType(err))
	}
	return resp, err
}
