// Package app wires configuration, providers and the transcription
// pipeline into a single run.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"deepspeak/internal/config"
	"deepspeak/internal/events"
	"deepspeak/internal/observability"
	"deepspeak/internal/observability/logging"
	"deepspeak/internal/observability/metrics"
	"deepspeak/internal/service/media"
	"deepspeak/internal/service/pipeline"
	"deepspeak/internal/service/stt"
	"deepspeak/internal/service/stt/deepgram"
	"deepspeak/internal/service/stt/google"
	"deepspeak/internal/service/stt/mock"
)

// Exit codes.
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitUsage      = 2
	ExitExtraction = 3
	ExitAPI        = 4
	ExitMalformed  = 5
	ExitOutput     = 6
)

const banner = `
    ____  __________  ____        __________  __________ __ __
   / __ \|__  /__  / / __ \      / ____/ __ \|__  / / // //_/
  / / / / /_ < /_ < / /_/ /_____/___ \/ /_/ / /_ < / // ,<
 / /_/ /___/ /__/ // ____/_____/___/ / ____/___/ //__  / /| |
/_____//____/____//_/         /_____/_/    /____/   /_/_/ |_|
`

// clientFactory builds the STT client for a run. The returned func
// releases provider resources.
type clientFactory func(ctx context.Context) (stt.Client, func(), error)

// Application holds process-wide state for one invocation.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration
	Metrics     *metrics.Metrics
	Stdout      io.Writer

	newClient clientFactory
}

// New constructs an Application and initializes logging.
func New(cfg *config.Configuration) *Application {
	a := &Application{
		Cfg:     cfg,
		Metrics: metrics.DefaultMetrics,
		Stdout:  os.Stdout,
	}
	a.newClient = a.providerClient
	a.setupLogger()
	return a
}

func (a *Application) setupLogger() {
	logging.Init(logging.Config{
		Level:  a.Cfg.Observability.LogLevel,
		Format: a.Cfg.Observability.LogFormat,
	})
	a.Logger = logging.WithComponent("application").With().
		Str("service", a.Cfg.Service.Name).
		Logger()

	a.Logger.Debug().
		Str("logLevel", a.Cfg.Observability.LogLevel).
		Str("logFormat", a.Cfg.Observability.LogFormat).
		Msg("Logger setup completed")
}

// PrintBanner writes the startup banner to w.
func PrintBanner(w io.Writer) {
	_, _ = fmt.Fprint(w, banner)
}

// Run checks the credential, builds the provider and pipeline, and
// transcribes req. The credential check happens before the input is
// touched.
func (a *Application) Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error) {
	a.StartupTime = time.Now().UTC()
	log := a.Logger.With().Str("method", "Run").Logger()

	if err := a.Cfg.CheckCredential(); err != nil {
		log.Error().Err(err).Str("provider", a.Cfg.STT.Provider).Msg("Missing credential")
		return nil, err
	}

	if addr := a.Cfg.Observability.MetricsAddr; addr != "" {
		srv := observability.NewServer(addr)
		if err := srv.Start(); err != nil {
			log.Warn().Err(err).Str("addr", addr).Msg("Observability server not started")
		} else {
			defer a.shutdownServer(srv)
		}
	}

	client, release, err := a.newClient(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	publisher := events.New(&events.Config{
		Enabled:          a.Cfg.Kafka.Enabled,
		Brokers:          a.Cfg.Kafka.Brokers,
		TopicChunks:      a.Cfg.Kafka.TopicChunks,
		TopicTranscripts: a.Cfg.Kafka.TopicTranscripts,
		Principal:        a.Cfg.Kafka.Principal,
		Metrics:          a.Metrics,
	})
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warn().Err(err).Msg("Event publisher close failed")
		}
	}()

	maxBytes := a.requestLimit()
	chunkCfg := media.ChunkerConfig{
		Length:  a.Cfg.Chunking.ChunkLength(),
		TempDir: a.Cfg.Chunking.TempDir,
		Workers: a.Cfg.Chunking.Concurrency,
	}
	if maxBytes < a.Cfg.Chunking.MaxBytes {
		log.Info().
			Str("provider", a.Cfg.STT.Provider).
			Int64("maxBytes", maxBytes).
			Msg("Provider request limit lowers the size threshold")
		chunkCfg.MaxBytes = maxBytes
	}
	chunker, err := media.NewChunker(chunkCfg, a.Metrics)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalid, err)
	}

	driver := pipeline.NewDriver(
		pipeline.Config{
			MaxBytes: maxBytes,
			TempDir:  a.Cfg.Chunking.TempDir,
			Options:  a.options(),
		},
		client,
		media.NewFFmpeg(a.Cfg.Media.FFmpegPath, a.Cfg.Media.FFmpegTimeout),
		chunker,
		pipeline.WithPublisher(publisher),
		pipeline.WithMetrics(a.Metrics),
		pipeline.WithStdout(a.Stdout),
	)

	log.Info().
		Time("startupTime", a.StartupTime).
		Str("provider", client.Name()).
		Str("input", req.Input).
		Msg("deepspeak starting")

	return driver.Run(ctx, req)
}

func (a *Application) options() stt.Options {
	return stt.Options{
		Model:       a.Cfg.STT.Model,
		Language:    a.Cfg.STT.Language,
		SmartFormat: a.Cfg.STT.SmartFormat,
		Punctuate:   a.Cfg.STT.Punctuate,
		Paragraphs:  a.Cfg.STT.Paragraphs,
		Utterances:  a.Cfg.STT.Utterances,
	}
}

// requestLimit is the largest file sent in one request: the configured
// threshold, lowered to the inline limit for Google.
func (a *Application) requestLimit() int64 {
	limit := a.Cfg.Chunking.MaxBytes
	if a.Cfg.STT.Provider == config.ProviderGoogle {
		limit = min(limit, google.MaxInlineBytes)
	}
	return limit
}

// providerClient builds the configured provider, instrumented with a.Metrics.
func (a *Application) providerClient(ctx context.Context) (stt.Client, func(), error) {
	cfg := a.Cfg.STT
	switch cfg.Provider {
	case config.ProviderDeepgram:
		c := deepgram.New(cfg.APIKey,
			deepgram.WithBaseURL(cfg.BaseURL),
			deepgram.WithTimeout(cfg.RequestTimeout),
		)
		return stt.WithMetrics(c, a.Metrics), func() {}, nil
	case config.ProviderGoogle:
		gcfg := google.DefaultConfig()
		gcfg.Model = cfg.GoogleModel
		gcfg.Timeout = cfg.RequestTimeout
		c, err := google.New(ctx, gcfg, a.Metrics)
		if err != nil {
			return nil, nil, &stt.APIError{Provider: config.ProviderGoogle, Message: "client init failed", Cause: err}
		}
		release := func() {
			if err := c.Close(); err != nil {
				a.Logger.Warn().Err(err).Msg("Google STT client close failed")
			}
		}
		return stt.WithMetrics(c, a.Metrics), release, nil
	case config.ProviderMock:
		a.Logger.Warn().Msg("Using mock STT provider")
		return stt.WithMetrics(mock.New(), a.Metrics), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown STT provider %q", config.ErrInvalid, cfg.Provider)
	}
}

func (a *Application) shutdownServer(srv *observability.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("Observability server shutdown failed")
	}
}

// Shutdown logs the end of the run.
func (a *Application) Shutdown(err error) {
	ev := a.Logger.Info()
	if err != nil {
		ev = a.Logger.Error().Err(err)
	}
	ev.Int("exitCode", ExitCode(err)).
		Dur("uptime", time.Since(a.StartupTime)).
		Msg("deepspeak shutting down")
}

// ExitCode maps a run error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, config.ErrInvalid):
		return ExitUsage
	case errors.Is(err, config.ErrCredentialMissing), errors.Is(err, media.ErrNotFound):
		return ExitFailure
	case errors.Is(err, media.ErrExtraction), errors.Is(err, media.ErrInvalidWAV):
		return ExitExtraction
	case errors.Is(err, stt.ErrMalformedResponse):
		return ExitMalformed
	case errors.Is(err, stt.ErrTranscriptionAPI):
		return ExitAPI
	case errors.Is(err, pipeline.ErrOutput):
		return ExitOutput
	default:
		return ExitFailure
	}
}
