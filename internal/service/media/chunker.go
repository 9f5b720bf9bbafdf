package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"deepspeak/internal/observability/logging"
	"deepspeak/internal/observability/metrics"
)

// Chunk is one fixed-duration segment of a WAV stream, written to a
// temporary file owned by the Chunker. The file only exists while the
// ChunkFunc it was handed to is running.
type Chunk struct {
	Ordinal  int
	Total    int
	Offset   time.Duration
	Duration time.Duration
	Path     string
	Size     int64
}

// ChunkFunc consumes one chunk. The chunk file is removed when it returns.
type ChunkFunc func(ctx context.Context, c Chunk) error

// Plan describes how a stream will be split.
type Plan struct {
	Info           WAVInfo
	FramesPerChunk int64
	Chunks         int
}

// ChunkerConfig configures a Chunker.
type ChunkerConfig struct {
	Length  time.Duration // duration of every chunk but the last
	TempDir string        // "" uses os.TempDir
	Workers int           // <= 1 is strictly sequential

	// MaxBytes, when positive, shortens chunks so every chunk file,
	// header included, fits in MaxBytes.
	MaxBytes int64
}

// Chunker splits WAV files into fixed-duration chunks.
type Chunker struct {
	length   time.Duration
	dir      string
	workers  int
	maxBytes int64
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// NewChunker creates a Chunker. A nil m uses metrics.DefaultMetrics.
func NewChunker(cfg ChunkerConfig, m *metrics.Metrics) (*Chunker, error) {
	if cfg.Length <= 0 {
		return nil, fmt.Errorf("chunk length must be positive, got %v", cfg.Length)
	}
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &Chunker{
		length:   cfg.Length,
		dir:      cfg.TempDir,
		workers:  cfg.Workers,
		maxBytes: cfg.MaxBytes,
		metrics:  m,
		log:      logging.WithComponent("chunker"),
	}, nil
}

// Plan reads the WAV header at path and computes the chunk layout.
func (c *Chunker) Plan(path string) (Plan, error) {
	f, err := os.Open(path)
	if err != nil {
		return Plan{}, err
	}
	defer f.Close()
	return c.plan(f)
}

func (c *Chunker) plan(f *os.File) (Plan, error) {
	st, err := f.Stat()
	if err != nil {
		return Plan{}, err
	}
	info, err := ReadWAVInfo(f, st.Size())
	if err != nil {
		return Plan{}, fmt.Errorf("%s: %w", f.Name(), err)
	}

	perChunk := int64(info.SampleRate) * c.length.Milliseconds() / 1000
	if perChunk <= 0 {
		return Plan{}, fmt.Errorf("chunk length %v is shorter than one frame", c.length)
	}
	if c.maxBytes > 0 {
		limit := (c.maxBytes - wavHeaderSize(info.FormatChunk)) / int64(info.BlockAlign)
		if limit <= 0 {
			return Plan{}, fmt.Errorf("chunk byte limit %d is smaller than one frame", c.maxBytes)
		}
		if limit < perChunk {
			c.log.Debug().
				Int64("frames", perChunk).
				Int64("limit", limit).
				Int64("maxBytes", c.maxBytes).
				Msg("Chunk length capped by byte limit")
			perChunk = limit
		}
	}
	total := info.Frames()
	return Plan{
		Info:           info,
		FramesPerChunk: perChunk,
		Chunks:         int((total + perChunk - 1) / perChunk),
	}, nil
}

// Each splits the WAV file at path and calls fn once per chunk, in ordinal
// order when sequential. Every chunk file is removed after fn returns,
// whether fn succeeded, failed or panicked. With more than one worker,
// chunks are submitted concurrently and the first failure cancels the
// context handed to the others; no further chunks are cut after it.
// It returns the number of chunks in the plan.
func (c *Chunker) Each(ctx context.Context, path string, fn ChunkFunc) (int, error) {
	src, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	plan, err := c.plan(src)
	if err != nil {
		return 0, err
	}
	if plan.Chunks == 0 {
		return 0, fmt.Errorf("%w: %s has no audio frames", ErrInvalidWAV, path)
	}

	c.log.Info().
		Str("file", path).
		Int("chunks", plan.Chunks).
		Dur("chunkLength", c.length).
		Dur("duration", plan.Info.Duration()).
		Int("workers", max(c.workers, 1)).
		Msg("Chunking audio")

	if c.workers <= 1 {
		for i := 0; i < plan.Chunks; i++ {
			if err := ctx.Err(); err != nil {
				return plan.Chunks, err
			}
			chunk, err := c.cut(src, plan, i)
			if err != nil {
				return plan.Chunks, err
			}
			if err := c.run(ctx, chunk, fn); err != nil {
				return plan.Chunks, err
			}
		}
		return plan.Chunks, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	var cutErr error
	for i := 0; i < plan.Chunks; i++ {
		if gctx.Err() != nil {
			break
		}
		chunk, err := c.cut(src, plan, i)
		if err != nil {
			cutErr = err
			cancel()
			break
		}
		g.Go(func() error {
			return c.run(gctx, chunk, fn)
		})
	}

	if err := g.Wait(); err != nil && (cutErr == nil || !errors.Is(err, context.Canceled)) {
		return plan.Chunks, err
	}
	if cutErr != nil {
		return plan.Chunks, cutErr
	}
	return plan.Chunks, ctx.Err()
}

// cut writes chunk i of plan to a new temporary file.
func (c *Chunker) cut(src io.ReaderAt, plan Plan, i int) (Chunk, error) {
	info := plan.Info
	startFrame := int64(i) * plan.FramesPerChunk
	frames := min(plan.FramesPerChunk, info.Frames()-startFrame)
	offset := info.DataOffset + startFrame*int64(info.BlockAlign)
	size := frames * int64(info.BlockAlign)

	f, err := os.CreateTemp(c.dir, fmt.Sprintf("chunk-%04d-*.wav", i))
	if err != nil {
		return Chunk{}, fmt.Errorf("create chunk %d: %w", i, err)
	}
	chunk := Chunk{
		Ordinal:  i,
		Total:    plan.Chunks,
		Offset:   info.FramesDuration(startFrame),
		Duration: info.FramesDuration(frames),
		Path:     f.Name(),
	}
	c.metrics.RecordChunkCreated()

	err = writeWAVHeader(f, info.FormatChunk, size)
	if err == nil {
		_, err = io.Copy(f, io.NewSectionReader(src, offset, size))
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = c.release(chunk, false)
		return Chunk{}, fmt.Errorf("write chunk %d: %w", i, err)
	}

	if st, err := os.Stat(chunk.Path); err == nil {
		chunk.Size = st.Size()
	}
	return chunk, nil
}

// run hands chunk to fn and always releases it afterwards.
func (c *Chunker) run(ctx context.Context, chunk Chunk, fn ChunkFunc) (err error) {
	defer func() {
		if rerr := c.release(chunk, err == nil); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, chunk)
}

func (c *Chunker) release(chunk Chunk, success bool) error {
	c.metrics.RecordChunkReleased(success)
	if err := os.Remove(chunk.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		c.log.Error().Err(err).Str("path", chunk.Path).Msg("Failed to remove chunk file")
		return fmt.Errorf("remove chunk %d: %w", chunk.Ordinal, err)
	}
	c.log.Debug().Int("chunk", chunk.Ordinal).Str("path", chunk.Path).Msg("Chunk file released")
	return nil
}
