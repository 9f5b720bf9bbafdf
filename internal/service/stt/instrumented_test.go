package stt

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"deepspeak/internal/observability/metrics"
)

type stubClient struct {
	err error
}

func (s stubClient) Name() string { return "stub" }

func (s stubClient) Transcribe(ctx context.Context, p Payload, opts Options) (*Response, error) {
	if s.err != nil {
		return nil, s.err
	}
	return TextResponse("ok"), nil
}

func TestInstrumented_RecordsRequests(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	c := WithMetrics(stubClient{}, m)

	if c.Name() != "stub" {
		t.Errorf("expected wrapped name, got %s", c.Name())
	}
	if _, err := c.Transcribe(context.Background(), Payload{Size: 100}, Options{}); err != nil {
		t.Fatal(err)
	}
	if got := testutil.ToFloat64(m.STTRequests.WithLabelValues("stub")); got != 1 {
		t.Errorf("expected 1 request, got %v", got)
	}
	if got := testutil.ToFloat64(m.STTBytesSent.WithLabelValues("stub")); got != 100 {
		t.Errorf("expected 100 bytes, got %v", got)
	}
}

func TestInstrumented_RecordsErrors(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	c := WithMetrics(stubClient{err: &APIError{Provider: "stub", StatusCode: 401, Auth: true}}, m)

	if _, err := c.Transcribe(context.Background(), Payload{}, Options{}); err == nil {
		t.Fatal("expected error")
	}
	if got := testutil.ToFloat64(m.STTErrors.WithLabelValues("stub", "auth")); got != 1 {
		t.Errorf("expected 1 auth error, got %v", got)
	}
}
