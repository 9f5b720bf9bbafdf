package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_ChunkLifecycle(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordChunkCreated()
	m.RecordChunkCreated()
	m.RecordChunkReleased(true)

	if got := testutil.ToFloat64(m.ChunksCreated); got != 2 {
		t.Errorf("expected 2 chunks created, got %v", got)
	}
	if got := testutil.ToFloat64(m.ChunksActive); got != 1 {
		t.Errorf("expected 1 active chunk, got %v", got)
	}

	m.RecordChunkReleased(false)

	if got := testutil.ToFloat64(m.ChunksActive); got != 0 {
		t.Errorf("expected 0 active chunks, got %v", got)
	}
	if got := testutil.ToFloat64(m.ChunksFinished.WithLabelValues("failure")); got != 1 {
		t.Errorf("expected 1 failed chunk, got %v", got)
	}
}

func TestMetrics_RecordRun(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordRun("whole", true, 1.5)
	m.RecordRun("chunked", false, 12)

	if got := testutil.ToFloat64(m.RunsTotal.WithLabelValues("whole", "success")); got != 1 {
		t.Errorf("expected 1 successful whole run, got %v", got)
	}
	if got := testutil.ToFloat64(m.RunsTotal.WithLabelValues("chunked", "failure")); got != 1 {
		t.Errorf("expected 1 failed chunked run, got %v", got)
	}
}

func TestMetrics_RecordSTTRequest(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordSTTRequest("deepgram", 1024, 0.2)
	m.RecordSTTRequest("deepgram", 2048, 0.4)
	m.RecordSTTError("deepgram", "auth")

	if got := testutil.ToFloat64(m.STTRequests.WithLabelValues("deepgram")); got != 2 {
		t.Errorf("expected 2 requests, got %v", got)
	}
	if got := testutil.ToFloat64(m.STTBytesSent.WithLabelValues("deepgram")); got != 3072 {
		t.Errorf("expected 3072 bytes, got %v", got)
	}
	if got := testutil.ToFloat64(m.STTErrors.WithLabelValues("deepgram", "auth")); got != 1 {
		t.Errorf("expected 1 auth error, got %v", got)
	}
}

func TestMetrics_RecordKafkaPublish(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordKafkaPublish("chunks", "chunk", nil, 0.01)
	m.RecordKafkaPublish("chunks", "chunk", errors.New("broker down"), 0.02)

	if got := testutil.ToFloat64(m.KafkaPublishTotal.WithLabelValues("chunks", "chunk")); got != 2 {
		t.Errorf("expected 2 publishes, got %v", got)
	}
	if got := testutil.ToFloat64(m.KafkaPublishErrors.WithLabelValues("chunks", "chunk")); got != 1 {
		t.Errorf("expected 1 publish error, got %v", got)
	}
}
