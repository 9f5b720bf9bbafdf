package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"deepspeak/internal/config"
	"deepspeak/internal/observability/metrics"
	"deepspeak/internal/service/media"
	"deepspeak/internal/service/pipeline"
	"deepspeak/internal/service/stt"
	"deepspeak/internal/service/stt/google"
	"deepspeak/internal/service/stt/mock"
)

func testConfig(t *testing.T) *config.Configuration {
	t.Helper()
	cfg := config.Load()
	cfg.STT.Provider = config.ProviderMock
	cfg.STT.APIKey = ""
	cfg.Chunking.TempDir = t.TempDir()
	cfg.Observability.MetricsAddr = ""
	cfg.Kafka.Enabled = false
	return cfg
}

func testApp(t *testing.T, cfg *config.Configuration) (*Application, *bytes.Buffer) {
	t.Helper()
	a := New(cfg)
	a.Metrics = metrics.NewMetrics(prometheus.NewRegistry())
	out := &bytes.Buffer{}
	a.Stdout = out
	return a, out
}

func writeWAV(t *testing.T, dir string) string {
	t.Helper()
	data, err := media.EncodeWAV(make([]byte, 2000), 1000, 1, 16)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "talk.wav")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, ExitOK},
		{"config", fmt.Errorf("%w: bad", config.ErrInvalid), ExitUsage},
		{"credential", fmt.Errorf("%w: DEEPGRAM_API_KEY not set", config.ErrCredentialMissing), ExitFailure},
		{"not found", fmt.Errorf("%w: x.wav", media.ErrNotFound), ExitFailure},
		{"extraction", fmt.Errorf("%w: ffmpeg", media.ErrExtraction), ExitExtraction},
		{"invalid wav", media.ErrInvalidWAV, ExitExtraction},
		{"api", &stt.APIError{Provider: "deepgram", StatusCode: 500}, ExitAPI},
		{"malformed", fmt.Errorf("%w: no channels", stt.ErrMalformedResponse), ExitMalformed},
		{"output", fmt.Errorf("%w: disk full", pipeline.ErrOutput), ExitOutput},
		{"other", errors.New("boom"), ExitFailure},
		{
			"chunk api",
			&pipeline.PartialError{Done: 1, Total: 3, Err: &pipeline.ChunkError{Ordinal: 1, Total: 3, Err: &stt.APIError{StatusCode: 502}}},
			ExitAPI,
		},
		{
			"chunk malformed",
			&pipeline.ChunkError{Ordinal: 0, Total: 2, Err: stt.ErrMalformedResponse},
			ExitMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestRun_MissingCredentialBeforeAnyWork(t *testing.T) {
	cfg := testConfig(t)
	cfg.STT.Provider = config.ProviderDeepgram
	a, out := testApp(t, cfg)
	called := false
	a.newClient = func(ctx context.Context) (stt.Client, func(), error) {
		called = true
		return mock.New(), func() {}, nil
	}

	// The input does not exist: the credential error must win.
	_, err := a.Run(context.Background(), pipeline.Request{Input: filepath.Join(t.TempDir(), "missing.wav")})
	if !errors.Is(err, config.ErrCredentialMissing) {
		t.Fatalf("expected ErrCredentialMissing, got %v", err)
	}
	if called {
		t.Error("no client may be built without a credential")
	}
	if out.Len() != 0 {
		t.Error("nothing may be printed")
	}
	if ExitCode(err) != ExitFailure {
		t.Errorf("expected exit 1, got %d", ExitCode(err))
	}
}

func TestRun_MockProviderEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	a, out := testApp(t, cfg)
	input := writeWAV(t, t.TempDir())

	res, err := a.Run(context.Background(), pipeline.Request{Input: input})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Mode != pipeline.ModeWhole {
		t.Errorf("expected whole-file mode, got %s", res.Mode)
	}
	want := mock.DefaultUtterances[0] + "\n"
	if out.String() != want {
		t.Errorf("stdout = %q, want %q", out.String(), want)
	}
	if got := testutil.ToFloat64(a.Metrics.STTRequests.WithLabelValues("mock")); got != 1 {
		t.Errorf("expected one instrumented STT request, got %v", got)
	}
}

func TestRun_ChunkedWithInjectedClient(t *testing.T) {
	cfg := testConfig(t)
	cfg.Chunking.MaxBytes = 100
	a, out := testApp(t, cfg)
	client := mock.New()
	a.newClient = func(ctx context.Context) (stt.Client, func(), error) {
		return client, func() {}, nil
	}
	input := writeWAV(t, t.TempDir())
	output := filepath.Join(t.TempDir(), "out.txt")

	res, err := a.Run(context.Background(), pipeline.Request{Input: input, Output: output})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// One second of audio with a ten-minute chunk length is one chunk.
	if res.Mode != pipeline.ModeChunked || res.Chunks != 1 {
		t.Errorf("unexpected result %+v", res)
	}
	if client.Calls()[0].Options.Model != cfg.STT.Model {
		t.Errorf("expected model %s to be passed", cfg.STT.Model)
	}
	if out.Len() != 0 {
		t.Error("stdout must stay empty with an output file")
	}
	entries, _ := os.ReadDir(cfg.Chunking.TempDir)
	if len(entries) != 0 {
		t.Errorf("expected temp dir to be empty, found %d entries", len(entries))
	}
}

func TestRun_GoogleChunksWithinInlineLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.STT.Provider = config.ProviderGoogle
	cfg.STT.GoogleCredentials = "creds.json"
	cfg.Chunking.ChunkMinutes = 200
	a, _ := testApp(t, cfg)
	client := mock.New()
	a.newClient = func(ctx context.Context) (stt.Client, func(), error) {
		return client, func() {}, nil
	}

	// 11 MiB of 1 kHz mono 16-bit audio is about 96 minutes: one chunk by duration,
	// two once the inline limit applies.
	data, err := media.EncodeWAV(make([]byte, 11<<20), 1000, 1, 16)
	if err != nil {
		t.Fatal(err)
	}
	input := filepath.Join(t.TempDir(), "long.wav")
	if err := os.WriteFile(input, data, 0o600); err != nil {
		t.Fatal(err)
	}

	res, err := a.Run(context.Background(), pipeline.Request{Input: input, Output: filepath.Join(t.TempDir(), "out.txt")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Mode != pipeline.ModeChunked || res.Chunks != 2 {
		t.Errorf("expected 2 chunks, got %+v", res)
	}
	for _, c := range client.Calls() {
		if c.Payload.Size > google.MaxInlineBytes {
			t.Errorf("chunk %s is %d bytes, above the inline limit", c.Payload.Path, c.Payload.Size)
		}
	}
}

func TestRequestLimit(t *testing.T) {
	tests := []struct {
		provider string
		max      int64
		want     int64
	}{
		{config.ProviderDeepgram, config.DefaultMaxBytes, config.DefaultMaxBytes},
		{config.ProviderGoogle, config.DefaultMaxBytes, google.MaxInlineBytes},
		{config.ProviderGoogle, 1024, 1024},
		{config.ProviderMock, 1024, 1024},
	}
	for _, tt := range tests {
		cfg := testConfig(t)
		cfg.STT.Provider = tt.provider
		cfg.Chunking.MaxBytes = tt.max
		a, _ := testApp(t, cfg)
		if got := a.requestLimit(); got != tt.want {
			t.Errorf("%s with %d: got %d, want %d", tt.provider, tt.max, got, tt.want)
		}
	}
}

func TestRun_ClientFactoryError(t *testing.T) {
	cfg := testConfig(t)
	a, _ := testApp(t, cfg)
	a.newClient = func(ctx context.Context) (stt.Client, func(), error) {
		return nil, nil, &stt.APIError{Provider: "google", Message: "client init failed"}
	}

	_, err := a.Run(context.Background(), pipeline.Request{Input: writeWAV(t, t.TempDir())})
	if ExitCode(err) != ExitAPI {
		t.Errorf("expected exit %d, got %d (%v)", ExitAPI, ExitCode(err), err)
	}
}

func TestProviderClient(t *testing.T) {
	tests := []struct {
		provider string
		want     string
		wantErr  bool
	}{
		{config.ProviderDeepgram, "deepgram", false},
		{config.ProviderMock, "mock", false},
		{"whisper", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.STT.Provider = tt.provider
			cfg.STT.APIKey = "key"
			a, _ := testApp(t, cfg)

			c, release, err := a.providerClient(context.Background())
			if tt.wantErr {
				if !errors.Is(err, config.ErrInvalid) {
					t.Fatalf("expected ErrInvalid, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			defer release()
			if c.Name() != tt.want {
				t.Errorf("expected %s, got %s", tt.want, c.Name())
			}
			if _, ok := c.(*stt.Instrumented); !ok {
				t.Errorf("expected instrumented client, got %T", c)
			}
		})
	}
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf)
	if !strings.Contains(buf.String(), "/_____/") {
		t.Error("expected banner art")
	}
	if strings.HasSuffix(buf.String(), "\n\n") {
		t.Error("banner must end with a single newline")
	}
}
