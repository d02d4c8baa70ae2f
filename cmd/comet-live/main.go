// Command comet-live runs a live voice conversation from the terminal:
// microphone audio goes up over a websocket, reply audio plays back,
// and the merged transcript prints when the session ends.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/comet-ai/comet-live/internal/dotenv"
	"github.com/comet-ai/comet-live/pkg/device"
	"github.com/comet-ai/comet-live/pkg/live"
)

func main() {
	os.Exit(runMain())
}

func runMain() int {
	envFile := flag.String("env", ".env", "env file to load")
	urlFlag := flag.String("url", "", "live endpoint URL (env COMET_LIVE_URL)")
	apiKeyFlag := flag.String("api-key", "", "API key (env COMET_API_KEY)")
	modelFlag := flag.String("model", "", "model name (env COMET_MODEL)")
	verbose := flag.Bool("verbose", false, "debug logging")
	flag.Parse()

	if err := dotenv.Load(*envFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	url := firstNonEmpty(*urlFlag, os.Getenv("COMET_LIVE_URL"))
	apiKey := firstNonEmpty(*apiKeyFlag, os.Getenv("COMET_API_KEY"))
	model := firstNonEmpty(*modelFlag, os.Getenv("COMET_MODEL"), "comet-live-1")
	if url == "" {
		fmt.Fprintln(os.Stderr, "missing endpoint: set -url or COMET_LIVE_URL")
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var statusMu sync.Mutex
	lastStatus := live.Status(-1)

	cfg := live.Config{
		URL:    url,
		APIKey: apiKey,
		Model:  model,
		Logger: logger,
		OpenInput: func() (io.ReadCloser, error) {
			return device.OpenMic(
				live.CaptureAudioConfig.SampleRate,
				live.CaptureAudioConfig.Channels,
			)
		},
		OpenOutput: func() (device.Output, error) {
			return device.OpenSpeaker(
				live.PlaybackAudioConfig.SampleRate,
				live.PlaybackAudioConfig.Channels,
			)
		},
		OnUpdate: func(u live.Update) {
			statusMu.Lock()
			changed := u.Status != lastStatus
			lastStatus = u.Status
			statusMu.Unlock()
			if changed {
				logger.Info("status", "phase", u.Status.String())
			}
		},
		OnFinalTranscript: func(turns []live.Turn) {
			if len(turns) == 0 {
				return
			}
			fmt.Println("\n--- transcript ---")
			for _, turn := range turns {
				fmt.Printf("[%s] %s\n", turn.Speaker, turn.Text)
			}
		},
	}

	sess, err := live.Start(ctx, cfg)
	if err != nil {
		logger.Error("starting session", "error", err)
		return 1
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		sess.End()
		<-sess.Done()
	case <-sess.Done():
	}

	if err := sess.Err(); err != nil {
		logger.Error("session failed", "error", err)
		return 1
	}
	return 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
