package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BrainTurnTimeout != 60*time.Second {
		t.Fatalf("BrainTurnTimeout = %v, want 60s", cfg.BrainTurnTimeout)
	}
	if cfg.BrainHistoryTurns != 3 {
		t.Fatalf("BrainHistoryTurns = %d, want 3", cfg.BrainHistoryTurns)
	}
	if cfg.BrainInitialCompliance != 50 {
		t.Fatalf("BrainInitialCompliance = %d, want 50", cfg.BrainInitialCompliance)
	}
	if cfg.DeviceMode != DeviceModeCommand {
		t.Fatalf("DeviceMode = %q, want %q", cfg.DeviceMode, DeviceModeCommand)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9191")
	t.Setenv("BRAIN_URL", "https://brain.example.com")
	t.Setenv("BRAIN_TURN_TIMEOUT", "5s")
	t.Setenv("DEVICE_MODE", "MOCK")
	t.Setenv("APP_ALLOW_ANY_ORIGIN", "yes")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9191" || cfg.BrainURL != "https://brain.example.com" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.BrainTurnTimeout != 5*time.Second {
		t.Fatalf("BrainTurnTimeout = %v, want 5s", cfg.BrainTurnTimeout)
	}
	if cfg.DeviceMode != DeviceModeMock {
		t.Fatalf("DeviceMode = %q, want %q", cfg.DeviceMode, DeviceModeMock)
	}
	if !cfg.AllowAnyOrigin {
		t.Fatalf("AllowAnyOrigin = false, want true")
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	setCoreEnvEmpty(t)
	path := filepath.Join(t.TempDir(), "dayroom.yaml")
	body := "brain_url: http://brain.local:9000\nbrain_history_turns: 1\ndevice_mode: mock\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Setenv("BRAIN_HISTORY_TURNS", "2")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.BrainURL != "http://brain.local:9000" {
		t.Fatalf("BrainURL = %q, want file value", cfg.BrainURL)
	}
	if cfg.BrainHistoryTurns != 2 {
		t.Fatalf("BrainHistoryTurns = %d, want env override 2", cfg.BrainHistoryTurns)
	}
	if cfg.DeviceMode != DeviceModeMock {
		t.Fatalf("DeviceMode = %q, want mock", cfg.DeviceMode)
	}
}

func TestLoadFileRejectsUnknownKeys(t *testing.T) {
	setCoreEnvEmpty(t)
	path := filepath.Join(t.TempDir(), "dayroom.yaml")
	if err := os.WriteFile(path, []byte("brian_url: http://x\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatalf("expected unknown key error")
	}
}

func TestLoadValidation(t *testing.T) {
	cases := map[string]struct {
		key, value, want string
	}{
		"compliance range": {"BRAIN_INITIAL_COMPLIANCE", "101", "BRAIN_INITIAL_COMPLIANCE"},
		"bad url":          {"BRAIN_URL", "ftp://brain", "BRAIN_URL"},
		"bad mode":         {"DEVICE_MODE", "usb", "DEVICE_MODE"},
		"bad duration":     {"BRAIN_TURN_TIMEOUT", "soon", "BRAIN_TURN_TIMEOUT"},
		"bad bool":         {"APP_ALLOW_ANY_ORIGIN", "maybe", "APP_ALLOW_ANY_ORIGIN"},
		"bad log level":    {"LOG_LEVEL", "shout", "LOG_LEVEL"},
		"zero history":     {"BRAIN_HISTORY_TURNS", "0", "BRAIN_HISTORY_TURNS"},
		"history over cap": {"BRAIN_HISTORY_TURNS", "4", "BRAIN_HISTORY_TURNS"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv(tc.key, tc.value)
			_, err := Load()
			if err == nil {
				t.Fatalf("Load() expected error for %s=%s", tc.key, tc.value)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Load() error = %v, want mention of %s", err, tc.want)
			}
		})
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		ConfigPathEnv,
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"LOG_LEVEL",
		"LOG_FORMAT",
		"BRAIN_URL",
		"BRAIN_TURN_PATH",
		"BRAIN_TURN_TIMEOUT",
		"BRAIN_HISTORY_TURNS",
		"BRAIN_INITIAL_COMPLIANCE",
		"DEVICE_MODE",
		"CAPTURE_COMMAND",
		"CAPTURE_SAMPLE_RATE",
		"CAPTURE_FLUSH_TIMEOUT",
		"PLAYBACK_COMMAND",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
