package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"deepspeak/internal/config"
	"deepspeak/internal/models"
	"deepspeak/internal/observability/logging"
	"deepspeak/internal/observability/metrics"
	"deepspeak/internal/service/media"
	"deepspeak/internal/service/stt"
	"deepspeak/internal/service/transcript"
)

// Transcription modes.
const (
	ModeWhole   = "whole"
	ModeChunked = "chunked"
)

const (
	partialSuffix  = ".partial"
	publishTimeout = 10 * time.Second
)

// Extractor produces WAV audio from other containers.
type Extractor interface {
	ExtractAudio(ctx context.Context, video media.File) (media.File, error)
	Decode(ctx context.Context, src, dst string) error
}

// Splitter cuts a WAV file into chunks and hands each to fn.
type Splitter interface {
	Each(ctx context.Context, path string, fn media.ChunkFunc) (int, error)
}

// EventPublisher receives chunk and run events.
type EventPublisher interface {
	PublishChunk(ctx context.Context, key string, event any) error
	PublishTranscript(ctx context.Context, key string, event any) error
}

// Config holds the per-run settings of a Driver.
type Config struct {
	// MaxBytes is the largest file sent in a single request.
	MaxBytes int64
	// TempDir receives decoded WAV files; "" uses os.TempDir.
	TempDir string
	Options stt.Options
}

// Request names the input and, optionally, the output file.
type Request struct {
	Input  string
	Output string // "" writes to stdout
}

// Result describes a completed run.
type Result struct {
	RunID       string
	Mode        string
	Chunks      int
	Text        string
	Destination string
	Path        []State
}

// Driver runs transcriptions.
type Driver struct {
	cfg       Config
	client    stt.Client
	extractor Extractor
	splitter  Splitter
	publisher EventPublisher
	metrics   *metrics.Metrics
	stdout    io.Writer
	newID     func() string
}

// Option configures a Driver.
type Option func(*Driver)

// WithPublisher sends chunk and run events to p.
func WithPublisher(p EventPublisher) Option {
	return func(d *Driver) {
		d.publisher = p
	}
}

// WithMetrics records run metrics on m instead of metrics.DefaultMetrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Driver) {
		d.metrics = m
	}
}

// WithStdout replaces os.Stdout as the default transcript destination.
func WithStdout(w io.Writer) Option {
	return func(d *Driver) {
		d.stdout = w
	}
}

// WithRunIDs replaces the run ID generator.
func WithRunIDs(fn func() string) Option {
	return func(d *Driver) {
		d.newID = fn
	}
}

// NewDriver creates a Driver.
func NewDriver(cfg Config, client stt.Client, extractor Extractor, splitter Splitter, opts ...Option) *Driver {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = config.DefaultMaxBytes
	}
	d := &Driver{
		cfg:       cfg,
		client:    client,
		extractor: extractor,
		splitter:  splitter,
		metrics:   metrics.DefaultMetrics,
		stdout:    os.Stdout,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// run is the state of one Run call.
type run struct {
	*Driver
	id    string
	req   Request
	lc    *Lifecycle
	log   zerolog.Logger
	start time.Time
	mode  string
	total int

	mu     sync.Mutex
	pieces []transcript.Piece
}

// Run transcribes req.Input and delivers the transcript. Any failure
// aborts the run; a chunked run that fails after its first chunks
// succeeded still delivers their transcript and returns a *PartialError.
func (d *Driver) Run(ctx context.Context, req Request) (*Result, error) {
	r := &run{
		Driver: d,
		id:     d.newID(),
		req:    req,
		start:  time.Now(),
	}
	r.lc = NewLifecycle(r.id)
	r.log = logging.WithRun(r.id, req.Input)

	r.log.Info().
		Str("provider", d.client.Name()).
		Str("model", d.cfg.Options.Model).
		Str("language", d.cfg.Options.Language).
		Bool("utterances", d.cfg.Options.Utterances).
		Msg("Starting transcription")

	res, err := r.execute(ctx)
	if err != nil {
		r.fail(ctx, err)
		return nil, err
	}

	elapsed := time.Since(r.start)
	d.metrics.RecordRun(r.mode, true, elapsed.Seconds())
	d.metrics.RecordTranscript(len(res.Text))
	r.log.Info().
		Str("mode", r.mode).
		Int("chunks", res.Chunks).
		Int("chars", len(res.Text)).
		Dur("elapsed", elapsed).
		Msg("Transcription complete")

	r.publishRun(ctx, &models.TranscriptCompleted{
		EventType:   models.EventRunCompleted,
		RunID:       r.id,
		File:        req.Input,
		Timestamp:   time.Now().UnixMilli(),
		Provider:    d.client.Name(),
		Mode:        r.mode,
		Chunks:      res.Chunks,
		Chars:       len(res.Text),
		Destination: res.Destination,
		ElapsedMs:   elapsed.Milliseconds(),
	})
	return res, nil
}

func (r *run) execute(ctx context.Context) (*Result, error) {
	f, err := media.Probe(r.req.Input)
	if err != nil {
		return nil, err
	}
	if err := r.lc.Transition(StateProbed); err != nil {
		return nil, err
	}
	r.log.Info().Str("kind", f.Kind.String()).Int64("bytes", f.Size).Msg("Input probed")
	if !f.KnownExt {
		r.log.Warn().Str("ext", f.Ext()).Msg("Unrecognized extension, treating input as audio")
	}

	if f.Kind == media.KindVideo {
		r.log.Info().Str("output", media.WAVPath(f.Path)).Msg("Extracting audio from video")
		start := time.Now()
		audio, err := r.extractor.ExtractAudio(ctx, f)
		r.metrics.RecordExtraction(time.Since(start).Seconds())
		if err != nil {
			return nil, err
		}
		if err := r.lc.Transition(StateExtractedAudio); err != nil {
			return nil, err
		}
		f = audio
	}

	if err := r.lc.Transition(StateSizeChecked); err != nil {
		return nil, err
	}
	r.metrics.RecordInputSize(f.Size)

	if f.Size <= r.cfg.MaxBytes {
		err = r.transcribeWhole(ctx, f)
	} else {
		r.log.Info().
			Int64("bytes", f.Size).
			Int64("threshold", r.cfg.MaxBytes).
			Msg("File exceeds size threshold, chunking")
		err = r.transcribeChunks(ctx, f)
	}
	if err != nil {
		return nil, err
	}

	text, err := transcript.Aggregate(r.pieces)
	if err != nil {
		return nil, err
	}
	if err := r.lc.Transition(StateAggregated); err != nil {
		return nil, err
	}

	dest, err := r.deliver(r.req.Output, text)
	if err != nil {
		return nil, err
	}
	if err := r.lc.Transition(StateDone); err != nil {
		return nil, err
	}

	return &Result{
		RunID:       r.id,
		Mode:        r.mode,
		Chunks:      len(r.pieces),
		Text:        text,
		Destination: dest,
		Path:        r.lc.Path(),
	}, nil
}

func (r *run) transcribeWhole(ctx context.Context, f media.File) error {
	if err := r.lc.Transition(StateWholeTranscribe); err != nil {
		return err
	}
	r.mode = ModeWhole
	r.total = 1

	r.log.Info().Int64("bytes", f.Size).Msg("Transcribing entire file")
	resp, err := r.client.Transcribe(ctx, stt.NewPayload(f.Path, f.Size), r.cfg.Options)
	if err != nil {
		return err
	}
	p, err := transcript.NewPiece(0, resp)
	if err != nil {
		return err
	}
	r.pieces = []transcript.Piece{p}
	return nil
}

func (r *run) transcribeChunks(ctx context.Context, f media.File) error {
	if err := r.lc.Transition(StateChunkTranscribe); err != nil {
		return err
	}
	r.mode = ModeChunked

	wav := f.Path
	if !f.IsWAV() {
		tmp, err := r.decodeToTemp(ctx, f)
		if err != nil {
			return err
		}
		defer r.removeTemp(tmp)
		wav = tmp
	}

	total, err := r.splitter.Each(ctx, wav, r.transcribeChunk)
	r.total = total
	if err != nil {
		return r.partial(err)
	}
	return nil
}

// transcribeChunk is the ChunkFunc handed to the splitter. It may run
// concurrently with itself.
func (r *run) transcribeChunk(ctx context.Context, ch media.Chunk) error {
	log := logging.WithChunk(r.log, ch.Ordinal, ch.Total)
	log.Info().
		Dur("offset", ch.Offset).
		Dur("duration", ch.Duration).
		Msgf("Processing chunk %d/%d", ch.Ordinal+1, ch.Total)

	resp, err := r.client.Transcribe(ctx, stt.NewPayload(ch.Path, ch.Size), r.cfg.Options)
	var p transcript.Piece
	if err == nil {
		p, err = transcript.NewPiece(ch.Ordinal, resp)
	}
	if err != nil {
		return &ChunkError{Ordinal: ch.Ordinal, Total: ch.Total, Err: err}
	}

	r.mu.Lock()
	r.pieces = append(r.pieces, p)
	r.mu.Unlock()

	confidence := 0.0
	if alts := resp.Results.Channels[0].Alternatives; len(alts) > 0 {
		confidence = alts[0].Confidence
	}
	r.publishChunk(ctx, &models.ChunkTranscribed{
		EventType:  models.EventChunkCompleted,
		RunID:      r.id,
		File:       r.req.Input,
		Timestamp:  time.Now().UnixMilli(),
		Provider:   r.client.Name(),
		Ordinal:    ch.Ordinal,
		Total:      ch.Total,
		OffsetMs:   ch.Offset.Milliseconds(),
		DurationMs: ch.Duration.Milliseconds(),
		Text:       p.Text,
		Confidence: confidence,
	})
	return nil
}

// partial delivers the contiguous prefix of finished chunks, if any,
// and wraps cause in a PartialError.
func (r *run) partial(cause error) error {
	r.mu.Lock()
	prefix, k := transcript.Prefix(r.pieces)
	r.mu.Unlock()
	if k == 0 {
		return cause
	}

	text := fmt.Sprintf("[PARTIAL TRANSCRIPT: chunks 1-%d of %d]\n", k, r.total) + transcript.Join(prefix)
	path := ""
	if r.req.Output != "" {
		path = r.req.Output + partialSuffix
	}
	dest, err := r.deliver(path, text)
	if err != nil {
		return errors.Join(cause, err)
	}
	r.log.Warn().
		Int("chunks", k).
		Int("total", r.total).
		Str("output", dest).
		Msg("Saved partial transcript")
	return &PartialError{Done: k, Total: r.total, Destination: dest, Err: cause}
}

// deliver writes text to path, or to stdout when path is empty.
func (r *run) deliver(path, text string) (string, error) {
	if path == "" {
		if _, err := io.WriteString(r.stdout, text+"\n"); err != nil {
			return "", fmt.Errorf("%w: stdout: %w", ErrOutput, err)
		}
		return "stdout", nil
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("%w: %w", ErrOutput, err)
	}
	r.log.Info().Str("output", path).Msg("Saved transcript")
	return path, nil
}

func (r *run) decodeToTemp(ctx context.Context, f media.File) (string, error) {
	tmp, err := os.CreateTemp(r.cfg.TempDir, "decoded-*.wav")
	if err != nil {
		return "", fmt.Errorf("create decode target: %w", err)
	}
	name := tmp.Name()
	_ = tmp.Close()

	r.log.Info().Str("to", name).Msg("Decoding audio to WAV for chunking")
	start := time.Now()
	err = r.extractor.Decode(ctx, f.Path, name)
	r.metrics.RecordExtraction(time.Since(start).Seconds())
	if err != nil {
		r.removeTemp(name)
		return "", err
	}
	return name, nil
}

func (r *run) removeTemp(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		r.log.Warn().Err(err).Str("path", path).Msg("Failed to remove temporary file")
	}
}

func (r *run) fail(ctx context.Context, err error) {
	prev, _ := r.lc.Fail()
	mode := r.mode
	if mode == "" {
		mode = "none"
	}
	r.metrics.RecordRun(mode, false, time.Since(r.start).Seconds())

	var pe *PartialError
	partial := errors.As(err, &pe)

	r.mu.Lock()
	_, done := transcript.Prefix(r.pieces)
	r.mu.Unlock()

	r.log.Error().
		Err(err).
		Str("state", prev.String()).
		Int("chunksDone", done).
		Bool("partial", partial).
		Msg("Transcription failed")

	r.publishRun(ctx, &models.TranscriptFailed{
		EventType:  models.EventRunFailed,
		RunID:      r.id,
		File:       r.req.Input,
		Timestamp:  time.Now().UnixMilli(),
		Provider:   r.client.Name(),
		State:      prev.String(),
		Error:      err.Error(),
		ChunksDone: done,
		Chunks:     r.total,
		Partial:    partial,
	})
}

// publishChunk and publishRun never fail the run; errors are logged by the publisher.
func (r *run) publishChunk(ctx context.Context, event *models.ChunkTranscribed) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.PublishChunk(ctx, r.id, event); err != nil {
		r.log.Warn().Err(err).Int("chunk", event.Ordinal).Msg("Chunk event not published")
	}
}

func (r *run) publishRun(ctx context.Context, event any) {
	if r.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := r.publisher.PublishTranscript(ctx, r.id, event); err != nil {
		r.log.Warn().Err(err).Msg("Run event not published")
	}
}
