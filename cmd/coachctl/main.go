package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/attuneai/coach-gateway/internal/capture"
	"github.com/attuneai/coach-gateway/internal/coach"
	"github.com/attuneai/coach-gateway/internal/config"
	"github.com/attuneai/coach-gateway/internal/observability"
	"github.com/attuneai/coach-gateway/internal/resilience"
	"github.com/attuneai/coach-gateway/internal/resource"
	"github.com/attuneai/coach-gateway/internal/session"
	"github.com/attuneai/coach-gateway/internal/synthesize"
	"github.com/attuneai/coach-gateway/internal/transcribe"
)

// coachctl runs one coaching turn from the local microphone: record until
// Enter (or sustained silence when enabled), transcribe, print the coach
// reply as it reveals, and save the synthesized audio.
func main() {
	outPath := flag.String("out", "coach-reply.mp3", "where to write the synthesized reply audio")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.WithSession(observability.NewCorrelationID())

	device := capture.NewPortAudioDevice(cfg.CaptureChunkMS)
	resources := resource.NewManager(device, "/playback/local", logger)
	recorder := capture.NewController(resources, logger)

	httpClient := &http.Client{Timeout: cfg.RequestTimeout()}
	retry := &resilience.RetryConfig{
		MaxAttempts:       cfg.RetryMaxAttempts,
		InitialBackoff:    cfg.RetryInitialBackoff(),
		MaxBackoff:        resilience.DefaultRetryConfig().MaxBackoff,
		BackoffMultiplier: resilience.DefaultRetryConfig().BackoffMultiplier,
	}
	transcriber := transcribe.NewClient(cfg.BackendBase(), httpClient, retry, logger)
	synthesizer := synthesize.NewClient(cfg.BackendBase(), httpClient, retry, logger)
	producer := coach.NewProducer(cfg.CoachRevealInterval(), logger)
	metrics := observability.NewSessionMetrics("local")

	machine := session.NewMachine(resources, recorder, transcriber, synthesizer, producer, metrics, logger)
	defer machine.Shutdown()

	final := make(chan session.Event, 1)
	machine.SetListener(func(e session.Event) {
		switch e.Type {
		case session.EventTranscript:
			fmt.Printf("\nYou said: %s\n\n", e.Snapshot.Turn.UserTranscript)
		case session.EventToken:
			fmt.Print(e.Delta)
		case session.EventError:
			fmt.Fprintf(os.Stderr, "\n%s\n", e.Snapshot.Turn.ErrorMessage)
			select {
			case final <- e:
			default:
			}
		case session.EventFinal:
			select {
			case final <- e:
			default:
			}
		}
	})

	ctx := context.Background()
	if cfg.SilenceAutoStop {
		recorder.EnableSilenceAutoStop(cfg.SilenceEnergyThreshold, cfg.SilenceChunks, func() {
			machine.StopRecording(ctx)
		})
	}

	fmt.Println("Recording... press Enter to stop.")
	machine.StartRecording(ctx)
	if machine.State() != session.StateRecording {
		os.Exit(1)
	}

	go func() {
		bufio.NewReader(os.Stdin).ReadString('\n')
		machine.StopRecording(ctx)
	}()

	e := <-final
	fmt.Println()

	turn := e.Snapshot.Turn
	if turn.ErrorMessage != "" && turn.CoachText == "" {
		os.Exit(1)
	}
	if turn.ErrorMessage != "" {
		fmt.Fprintln(os.Stderr, turn.ErrorMessage)
	}
	if handle := e.Snapshot.Turn.AudioHandle; handle != nil {
		if err := os.WriteFile(*outPath, handle.Bytes(), 0o644); err != nil {
			logger.Error().Err(err).Str("path", *outPath).Msg("Failed to save reply audio")
			os.Exit(1)
		}
		fmt.Printf("Saved reply audio to %s\n", *outPath)
	}
}
