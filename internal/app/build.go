package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ent0n29/dayroom/internal/audio"
	"github.com/ent0n29/dayroom/internal/brain"
	"github.com/ent0n29/dayroom/internal/capture"
	"github.com/ent0n29/dayroom/internal/config"
	"github.com/ent0n29/dayroom/internal/httpapi"
	"github.com/ent0n29/dayroom/internal/memory"
	"github.com/ent0n29/dayroom/internal/observability"
	"github.com/ent0n29/dayroom/internal/playback"
	"github.com/ent0n29/dayroom/internal/session"
	"github.com/ent0n29/dayroom/internal/voice"
)

// mockPlaybackDuration is how long a mock playback "speaks" before ending.
const mockPlaybackDuration = 300 * time.Millisecond

type BuildResult struct {
	Config     config.Config
	API        *httpapi.Server
	Session    *session.Machine
	Controller *voice.Controller
	Brain      *brain.Client
	Metrics    *observability.Metrics

	// Cleanup releases the input device and audio output.
	Cleanup func() error
}

func Build(_ context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	brainClient, err := brain.NewClient(brain.Config{
		BaseURL:  cfg.BrainURL,
		TurnPath: cfg.BrainTurnPath,
		Timeout:  cfg.BrainTurnTimeout,
	}, metrics)
	if err != nil {
		return nil, fmt.Errorf("brain client init failed: %w", err)
	}

	device, player, err := resolveDevices(cfg)
	if err != nil {
		return nil, err
	}

	machine := session.NewMachine(cfg.BrainInitialCompliance)
	metrics.SetComplianceScore(machine.Snapshot().ComplianceScore)

	controller, err := voice.NewController(voice.Config{
		Session:     machine,
		Recorder:    capture.NewRecorder(device, cfg.CaptureFlushTimeout),
		Transport:   brainClient,
		Memory:      memory.NewWindow(cfg.BrainHistoryTurns),
		Playback:    playback.NewController(player),
		Metrics:     metrics,
		TurnTimeout: cfg.BrainTurnTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("voice controller init failed: %w", err)
	}

	api := httpapi.New(cfg, controller, metrics)

	slog.Info("voice link configured",
		"brain_url", brainClient.URL(),
		"device_mode", cfg.DeviceMode,
		"history_turns", cfg.BrainHistoryTurns,
	)

	return &BuildResult{
		Config:     cfg,
		API:        api,
		Session:    machine,
		Controller: controller,
		Brain:      brainClient,
		Metrics:    metrics,
		Cleanup: func() error {
			controller.Close()
			return nil
		},
	}, nil
}

func resolveDevices(cfg config.Config) (capture.Device, playback.Player, error) {
	switch cfg.DeviceMode {
	case config.DeviceModeMock:
		// Placeholder utterance; the brain only sees opaque bytes.
		silence := make([]byte, audio.DefaultFormat.SampleRate)
		return capture.NewMockDevice(silence), playback.NewMockPlayer(mockPlaybackDuration), nil
	case config.DeviceModeCommand:
		format := audio.Format{SampleRate: cfg.CaptureSampleRate, Channels: 1}
		return capture.NewCommandDevice(cfg.CaptureCommand, format), playback.NewCommandPlayer(cfg.PlaybackCommand), nil
	default:
		return nil, nil, errors.New("unsupported device mode " + cfg.DeviceMode)
	}
}
