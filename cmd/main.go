package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"deepspeak/internal/app"
	"deepspeak/internal/config"
	"deepspeak/internal/service/pipeline"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	// A missing .env is not an error.
	_ = godotenv.Load()

	var runErr error
	cmd := newRootCmd(func(cmd *cobra.Command, cfg *config.Configuration, req pipeline.Request) {
		runErr = execute(cmd.Context(), cfg, req)
	})
	cmd.SetArgs(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		return app.ExitUsage
	}
	return app.ExitCode(runErr)
}

type runFunc func(cmd *cobra.Command, cfg *config.Configuration, req pipeline.Request)

func newRootCmd(fn runFunc) *cobra.Command {
	var (
		input, output string
		chunkLength   int
		concurrency   int
	)

	cmd := &cobra.Command{
		Use:           "deepspeak --file <path>",
		Short:         "D33P-5P34K: a transcription tool",
		Long:          "Transcribes an audio or video file with a speech-to-text provider.\nFiles above the size threshold are split into fixed-duration WAV chunks.",
		Example:       "  deepspeak -f lecture.mp4 -o lecture.txt\n  deepspeak -f call.wav --language en --utterances",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cfg := config.Load()
	flags := cmd.Flags()
	flags.StringVarP(&input, "file", "f", "", "path to audio/video file")
	flags.StringVarP(&output, "output", "o", "", "output transcript file (defaults to stdout)")
	flags.StringVar(&cfg.STT.Model, "model", cfg.STT.Model, "model (nova-2, nova-3, whisper)")
	flags.StringVar(&cfg.STT.Language, "language", cfg.STT.Language, "language code (e.g. en, it, es)")
	flags.BoolVar(&cfg.STT.Utterances, "utterances", cfg.STT.Utterances, "include utterance timestamps and speaker info")
	flags.IntVar(&chunkLength, "chunk-length", cfg.Chunking.ChunkMinutes, "minutes per chunk when the file exceeds the size threshold")
	flags.StringVar(&cfg.STT.Provider, "provider", cfg.STT.Provider, "speech-to-text provider (deepgram, google, mock)")
	flags.IntVar(&concurrency, "concurrency", cfg.Chunking.Concurrency, "chunks transcribed in parallel")
	flags.DurationVar(&cfg.STT.RequestTimeout, "timeout", cfg.STT.RequestTimeout, "per-request timeout")
	flags.StringVar(&cfg.Chunking.TempDir, "temp-dir", cfg.Chunking.TempDir, "directory for temporary chunk files")
	_ = cmd.MarkFlagRequired("file")

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		cfg.STT.Provider = strings.ToLower(cfg.STT.Provider)
		cfg.Chunking.ChunkMinutes = chunkLength
		cfg.Chunking.Concurrency = concurrency
		if err := cfg.Validate(); err != nil {
			return err
		}
		fn(cmd, cfg, pipeline.Request{Input: input, Output: output})
		return nil
	}
	return cmd
}

func execute(ctx context.Context, cfg *config.Configuration, req pipeline.Request) error {
	app.PrintBanner(os.Stderr)

	a := app.New(cfg)
	res, err := a.Run(ctx, req)
	a.Shutdown(err)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return err
	}
	a.Logger.Debug().
		Str("runId", res.RunID).
		Str("destination", res.Destination).
		Msg("Run finished")
	return nil
}
