// Command transcribe sends an audio file to the transcription endpoint and
// prints the transcript, optionally with per-segment timestamps.
//
//	transcribe recording.mp3
//	transcribe -language en -timestamps recording.mp3
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/lukasbauer/fishvoice/internal/app"
	"github.com/lukasbauer/fishvoice/internal/fishaudio"
)

func main() {
	cfg := app.LoadConfigFromEnv()

	var (
		language   = flag.String("language", "", "audio language (auto-detected when empty)")
		timestamps = flag.Bool("timestamps", false, "print per-segment timestamps")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "", log.LstdFlags)

	if cfg.FishAPIKey == "" {
		logger.Fatal("FISH_API_KEY is required")
	}
	if flag.NArg() != 1 {
		logger.Fatal("usage: transcribe [-language xx] [-timestamps] <audio file>")
	}

	audio, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		logger.Fatalf("read audio: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := fishaudio.NewClient(fishaudio.Config{
		APIKey:  cfg.FishAPIKey,
		BaseURL: cfg.FishBaseURL,
		Model:   cfg.FishModel,
	})

	result, err := client.Transcribe(ctx, fishaudio.ASRRequest{
		Audio:            audio,
		Language:         *language,
		IgnoreTimestamps: !*timestamps,
	})
	if err != nil {
		logger.Fatalf("transcribe: %v", err)
	}

	fmt.Println(result.Text)
	fmt.Fprintf(os.Stderr, "duration: %.2fs\n", result.Duration)

	if *timestamps {
		for _, seg := range result.Segments {
			fmt.Printf("[%.2fs - %.2fs]: %s\n", seg.Start, seg.End, seg.Text)
		}
	}
}
