// Package config loads runtime configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Supported STT providers.
const (
	ProviderDeepgram = "deepgram"
	ProviderGoogle   = "google"
	ProviderMock     = "mock"
)

// DefaultMaxBytes is the whole-file upload limit; larger inputs are chunked.
const DefaultMaxBytes int64 = 2 * 1024 * 1024 * 1024

// Configuration errors.
var (
	ErrCredentialMissing = errors.New("credential missing")
	ErrInvalid           = errors.New("invalid configuration")
)

// Configuration is the full runtime configuration for a transcription run.
type Configuration struct {
	Service       ServiceConfig
	STT           STTConfig
	Chunking      ChunkingConfig
	Media         MediaConfig
	Observability ObservabilityConfig
	Kafka         KafkaConfig
}

// ServiceConfig identifies this process in logs and events.
type ServiceConfig struct {
	Name      string
	Principal string
}

// STTConfig selects and configures the speech-to-text provider.
type STTConfig struct {
	Provider          string
	APIKey            string
	BaseURL           string
	GoogleCredentials string
	GoogleModel       string
	Model             string
	Language          string
	SmartFormat       bool
	Punctuate         bool
	Paragraphs        bool
	Utterances        bool
	RequestTimeout    time.Duration
}

// ChunkingConfig controls the size threshold and chunk layout.
type ChunkingConfig struct {
	MaxBytes     int64
	ChunkMinutes int
	Concurrency  int
	TempDir      string
}

// MediaConfig locates the ffmpeg binary.
type MediaConfig struct {
	FFmpegPath    string
	FFmpegTimeout time.Duration
}

// ObservabilityConfig configures logging and the metrics endpoint.
type ObservabilityConfig struct {
	LogLevel    string
	LogFormat   string
	MetricsAddr string
}

// KafkaConfig configures optional event publication.
type KafkaConfig struct {
	Enabled          bool
	Brokers          []string
	TopicChunks      string
	TopicTranscripts string
	Principal        string
}

// Load reads the configuration from environment variables.
// Unparseable values fall back to their defaults.
func Load() *Configuration {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-deepspeak")

	return &Configuration{
		Service: ServiceConfig{
			Name:      envOrDefault("SERVICE_NAME", "deepspeak"),
			Principal: principal,
		},
		STT: STTConfig{
			Provider:          strings.ToLower(envOrDefault("STT_PROVIDER", ProviderDeepgram)),
			APIKey:            os.Getenv("DEEPGRAM_API_KEY"),
			BaseURL:           envOrDefault("DEEPGRAM_BASE_URL", "https://api.deepgram.com"),
			GoogleCredentials: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
			GoogleModel:       envOrDefault("GOOGLE_STT_MODEL", "latest_long"),
			Model:             envOrDefault("STT_MODEL", "nova-2"),
			Language:          envOrDefault("STT_LANGUAGE", "it"),
			SmartFormat:       envOrDefaultBool("STT_SMART_FORMAT", true),
			Punctuate:         envOrDefaultBool("STT_PUNCTUATE", true),
			Paragraphs:        envOrDefaultBool("STT_PARAGRAPHS", true),
			Utterances:        envOrDefaultBool("STT_UTTERANCES", false),
			RequestTimeout:    envOrDefaultDuration("STT_REQUEST_TIMEOUT", 30*time.Minute),
		},
		Chunking: ChunkingConfig{
			MaxBytes:     envOrDefaultInt64("CHUNK_MAX_BYTES", DefaultMaxBytes),
			ChunkMinutes: envOrDefaultInt("CHUNK_LENGTH_MINUTES", 10),
			Concurrency:  envOrDefaultInt("CHUNK_CONCURRENCY", 1),
			TempDir:      os.Getenv("CHUNK_TEMP_DIR"),
		},
		Media: MediaConfig{
			FFmpegPath:    envOrDefault("FFMPEG_PATH", "ffmpeg"),
			FFmpegTimeout: envOrDefaultDuration("FFMPEG_TIMEOUT", 2*time.Hour),
		},
		Observability: ObservabilityConfig{
			LogLevel:    envOrDefault("LOG_LEVEL", "info"),
			LogFormat:   envOrDefault("LOG_FORMAT", "console"),
			MetricsAddr: os.Getenv("METRICS_ADDR"),
		},
		Kafka: KafkaConfig{
			Enabled:          envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:          splitList(os.Getenv("KAFKA_BROKERS")),
			TopicChunks:      envOrDefault("KAFKA_TOPIC_CHUNKS", "transcript.chunks"),
			TopicTranscripts: envOrDefault("KAFKA_TOPIC_TRANSCRIPTS", "transcript.runs"),
			Principal:        envOrDefault("KAFKA_PRINCIPAL", principal),
		},
	}
}

// CheckCredential reports ErrCredentialMissing when the selected provider
// cannot authenticate. It must run before any network call.
func (c *Configuration) CheckCredential() error {
	switch c.STT.Provider {
	case ProviderDeepgram:
		if c.STT.APIKey == "" {
			return fmt.Errorf("%w: DEEPGRAM_API_KEY not set", ErrCredentialMissing)
		}
	case ProviderGoogle:
		if c.STT.GoogleCredentials == "" {
			return fmt.Errorf("%w: GOOGLE_APPLICATION_CREDENTIALS not set", ErrCredentialMissing)
		}
	}
	return nil
}

// Validate checks provider selection and numeric ranges.
func (c *Configuration) Validate() error {
	switch c.STT.Provider {
	case ProviderDeepgram, ProviderGoogle, ProviderMock:
	default:
		return fmt.Errorf("%w: unknown STT provider %q", ErrInvalid, c.STT.Provider)
	}
	if c.Chunking.ChunkMinutes <= 0 {
		return fmt.Errorf("%w: chunk length must be positive, got %d", ErrInvalid, c.Chunking.ChunkMinutes)
	}
	if c.Chunking.MaxBytes <= 0 {
		return fmt.Errorf("%w: max bytes must be positive, got %d", ErrInvalid, c.Chunking.MaxBytes)
	}
	if c.Chunking.Concurrency <= 0 {
		return fmt.Errorf("%w: concurrency must be positive, got %d", ErrInvalid, c.Chunking.Concurrency)
	}
	if c.STT.RequestTimeout <= 0 {
		return fmt.Errorf("%w: request timeout must be positive, got %v", ErrInvalid, c.STT.RequestTimeout)
	}
	return nil
}

// ChunkLength returns the chunk duration.
func (c ChunkingConfig) ChunkLength() time.Duration {
	return time.Duration(c.ChunkMinutes) * time.Minute
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
