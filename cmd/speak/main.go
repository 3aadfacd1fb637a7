// Command speak streams text through the live synthesis endpoint and plays
// the audio locally with mpv as it arrives.
//
// The text comes from the command line, stdin, or (with -chat) a streaming
// LLM completion, in which case fragments are spoken while the model is
// still generating.
//
//	speak "Hello from the live API"
//	echo "Hello" | speak
//	speak -chat "Tell me a short joke"
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/lukasbauer/fishvoice/internal/app"
	"github.com/lukasbauer/fishvoice/internal/fishaudio"
	"github.com/lukasbauer/fishvoice/internal/llm"
	"github.com/lukasbauer/fishvoice/internal/player"
	"github.com/lukasbauer/fishvoice/internal/realtime"
)

func main() {
	cfg := app.LoadConfigFromEnv()

	var (
		refID   = flag.String("ref", cfg.TTSReferenceID, "voice model reference ID")
		format  = flag.String("format", "opus", "audio format (opus, mp3, wav)")
		latency = flag.String("latency", "balanced", "latency mode (normal, balanced)")
		chat    = flag.String("chat", "", "generate the spoken text with an LLM from this prompt")
		debug   = flag.Bool("debug", false, "request server log events")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "", log.LstdFlags)

	if cfg.FishAPIKey == "" {
		logger.Fatal("FISH_API_KEY is required")
	}

	// Playback is a hard dependency; check before opening any connection.
	if !player.Installed(player.Config{}) {
		logger.Fatal("mpv not found in PATH; install it with e.g. apt-get install mpv")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	texts, err := textProducer(ctx, cfg, *chat, flag.Args())
	if err != nil {
		logger.Fatalf("text producer: %v", err)
	}

	req := fishaudio.NewTTSRequest("")
	req.ReferenceID = *refID
	req.Format = *format
	req.Latency = *latency
	req.Temperature = 0.7
	req.TopP = 0.7
	req.Prosody = &fishaudio.Prosody{Speed: 1.0}

	sess, err := realtime.Dial(ctx, realtime.Config{
		APIKey:   cfg.FishAPIKey,
		Endpoint: cfg.FishLiveEndpoint,
		Model:    cfg.FishModel,
		Request:  req,
		Debug:    *debug,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatalf("connect: %v", err)
	}
	defer sess.Close()

	p, err := player.Start(player.Config{})
	if err != nil {
		logger.Fatalf("start playback: %v", err)
	}
	defer p.Close()

	reason, err := sess.Stream(ctx, texts, p)

	// Teardown order: let the player drain and exit, then release the
	// connection, before reporting the outcome.
	if closeErr := p.Close(); closeErr != nil && err == nil {
		logger.Printf("playback: %v", closeErr)
	}
	_ = sess.Close()

	if err != nil {
		logger.Fatalf("session failed: %v", err)
	}
	logger.Printf("session finished: %s", reason)
}

// textProducer returns the fragment stream to synthesize: either a live LLM
// completion, or the given text split into words (trailing separator kept,
// the way the live endpoint expects fragments).
func textProducer(ctx context.Context, cfg app.Config, chatPrompt string, args []string) (<-chan string, error) {
	if chatPrompt != "" {
		if cfg.OpenAIAPIKey == "" {
			return nil, errors.New("OPENAI_API_KEY is required for -chat")
		}
		client := llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.OpenAIModel,
		})
		return client.CompleteStream(ctx, []llm.Message{
			{Role: "user", Content: chatPrompt},
		})
	}

	var text string
	if len(args) > 0 {
		text = strings.Join(args, " ")
	} else {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		text = string(data)
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("nothing to speak: pass text as arguments, on stdin, or via -chat")
	}

	ch := make(chan string)
	go func() {
		defer close(ch)
		for _, word := range strings.Fields(text) {
			select {
			case ch <- word + " ":
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}
