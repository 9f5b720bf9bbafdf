// Package google provides a Google Cloud Speech-to-Text adapter.
package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"

	"deepspeak/internal/observability"
	"deepspeak/internal/observability/logging"
	"deepspeak/internal/observability/metrics"
	"deepspeak/internal/service/stt"
)

const providerName = "google"

// MaxInlineBytes is the largest audio payload the API accepts as inline content.
const MaxInlineBytes int64 = 10 << 20

// Config holds Google STT configuration.
type Config struct {
	Model   string
	Timeout time.Duration

	// MaxBytes is the payload limit, checked before the file is read.
	// Values outside (0, MaxInlineBytes] use MaxInlineBytes.
	MaxBytes int64
}

// DefaultConfig returns the default Google STT configuration.
func DefaultConfig() Config {
	return Config{
		Model:    "latest_long",
		Timeout:  30 * time.Minute,
		MaxBytes: MaxInlineBytes,
	}
}

// recognizeFunc runs one long-running recognition to completion.
type recognizeFunc func(ctx context.Context, req *speechpb.LongRunningRecognizeRequest) (*speechpb.LongRunningRecognizeResponse, error)

// Adapter implements stt.Client using Google Cloud Speech-to-Text.
type Adapter struct {
	cfg       Config
	client    *speech.Client
	recognize recognizeFunc
	log       zerolog.Logger
}

// New creates a new Google STT adapter.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func New(ctx context.Context, cfg Config, m *metrics.Metrics) (*Adapter, error) {
	c, err := speech.NewClient(ctx,
		option.WithGRPCDialOption(grpc.WithUnaryInterceptor(observability.UnaryClientInterceptor(m, providerName))),
	)
	if err != nil {
		return nil, err
	}
	a := newAdapter(cfg, func(ctx context.Context, req *speechpb.LongRunningRecognizeRequest) (*speechpb.LongRunningRecognizeResponse, error) {
		op, err := c.LongRunningRecognize(ctx, req)
		if err != nil {
			return nil, err
		}
		return op.Wait(ctx)
	})
	a.client = c
	return a, nil
}

func newAdapter(cfg Config, fn recognizeFunc) *Adapter {
	if cfg.Model == "" {
		cfg.Model = DefaultConfig().Model
	}
	if cfg.MaxBytes <= 0 || cfg.MaxBytes > MaxInlineBytes {
		cfg.MaxBytes = MaxInlineBytes
	}
	return &Adapter{
		cfg:       cfg,
		recognize: fn,
		log:       logging.WithComponent("google-stt"),
	}
}

// Name returns the provider identifier.
func (a *Adapter) Name() string {
	return providerName
}

// Transcribe sends the payload as inline content and waits for the operation.
func (a *Adapter) Transcribe(ctx context.Context, p stt.Payload, opts stt.Options) (*stt.Response, error) {
	size := p.Size
	if st, err := os.Stat(p.Path); err == nil {
		size = st.Size()
	}
	if size > a.cfg.MaxBytes {
		return nil, &stt.APIError{
			Provider:   providerName,
			StatusCode: http.StatusRequestEntityTooLarge,
			Message:    fmt.Sprintf("payload of %d bytes exceeds inline limit of %d", size, a.cfg.MaxBytes),
		}
	}

	content, err := os.ReadFile(p.Path)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}

	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}

	req := &speechpb.LongRunningRecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   encodingFor(p.MIMEType),
			LanguageCode:               opts.Language,
			Model:                      a.cfg.Model,
			EnableAutomaticPunctuation: opts.Punctuate,
			EnableWordTimeOffsets:      true,
			EnableWordConfidence:       true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: content},
		},
	}

	a.log.Debug().
		Str("path", p.Path).
		Str("encoding", req.Config.Encoding.String()).
		Int("bytes", len(content)).
		Msg("Starting long-running recognition")

	resp, err := a.recognize(ctx, req)
	if err != nil {
		return nil, classify(ctx, err)
	}
	return toResponse(resp)
}

// Close releases the underlying gRPC connection.
func (a *Adapter) Close() error {
	if a.client != nil {
		return a.client.Close()
	}
	return nil
}

// encodingFor maps a payload MIME type to a recognition encoding.
// WAV and FLAC carry their format in the header, so the API detects it.
func encodingFor(mime string) speechpb.RecognitionConfig_AudioEncoding {
	switch strings.TrimPrefix(mime, "audio/") {
	case "flac":
		return speechpb.RecognitionConfig_FLAC
	case "ogg", "opus":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "webm":
		return speechpb.RecognitionConfig_WEBM_OPUS
	case "amr":
		return speechpb.RecognitionConfig_AMR
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}

// toResponse flattens consecutive recognition results into one channel
// with a single alternative, in the shape the aggregator reads.
func toResponse(resp *speechpb.LongRunningRecognizeResponse) (*stt.Response, error) {
	raw, err := protojson.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", stt.ErrMalformedResponse, err)
	}

	var (
		parts []string
		words []stt.Word
		conf  float64
		n     int
	)
	for _, r := range resp.GetResults() {
		alts := r.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		alt := alts[0]
		if t := strings.TrimSpace(alt.GetTranscript()); t != "" {
			parts = append(parts, t)
		}
		conf += float64(alt.GetConfidence())
		n++
		for _, w := range alt.GetWords() {
			words = append(words, stt.Word{
				Word:       w.GetWord(),
				Start:      w.GetStartTime().AsDuration().Seconds(),
				End:        w.GetEndTime().AsDuration().Seconds(),
				Confidence: float64(w.GetConfidence()),
			})
		}
	}
	if n > 0 {
		conf /= float64(n)
	}

	out := stt.TextResponse(strings.Join(parts, " "))
	alt := &out.Results.Channels[0].Alternatives[0]
	alt.Confidence = conf
	alt.Words = words
	out.Metadata = &stt.Metadata{Duration: resp.GetTotalBilledTime().AsDuration().Seconds(), Channels: 1}
	out.Raw = raw
	return out, nil
}

var httpStatus = map[codes.Code]int{
	codes.InvalidArgument:   http.StatusBadRequest,
	codes.Unauthenticated:   http.StatusUnauthorized,
	codes.PermissionDenied:  http.StatusForbidden,
	codes.NotFound:          http.StatusNotFound,
	codes.ResourceExhausted: http.StatusTooManyRequests,
	codes.Internal:          http.StatusInternalServerError,
	codes.Unavailable:       http.StatusServiceUnavailable,
	codes.DeadlineExceeded:  http.StatusGatewayTimeout,
}

// classify converts a gRPC or context error into an *stt.APIError.
func classify(ctx context.Context, err error) error {
	st, _ := status.FromError(err)
	code := st.Code()
	timeout := code == codes.DeadlineExceeded || errors.Is(ctx.Err(), context.DeadlineExceeded)
	return &stt.APIError{
		Provider:   providerName,
		StatusCode: httpStatus[code],
		Message:    st.Message(),
		Auth:       code == codes.Unauthenticated || code == codes.PermissionDenied,
		Timeout:    timeout,
		Cause:      err,
	}
}
