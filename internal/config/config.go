package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ent0n29/dayroom/internal/memory"
)

// Device modes.
const (
	DeviceModeCommand = "command"
	DeviceModeMock    = "mock"
)

// Config contains all runtime settings for the voice link service. Values
// come from defaults, then an optional YAML file, then the environment.
type Config struct {
	BindAddr         string        `yaml:"bind_addr"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`
	MetricsNamespace string        `yaml:"metrics_namespace"`
	AllowAnyOrigin   bool          `yaml:"allow_any_origin"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	BrainURL               string        `yaml:"brain_url"`
	BrainTurnPath          string        `yaml:"brain_turn_path"`
	BrainTurnTimeout       time.Duration `yaml:"brain_turn_timeout"`
	BrainHistoryTurns      int           `yaml:"brain_history_turns"`
	BrainInitialCompliance int           `yaml:"brain_initial_compliance"`

	DeviceMode          string        `yaml:"device_mode"`
	CaptureCommand      string        `yaml:"capture_command"`
	CaptureSampleRate   int           `yaml:"capture_sample_rate"`
	CaptureFlushTimeout time.Duration `yaml:"capture_flush_timeout"`
	PlaybackCommand     string        `yaml:"playback_command"`
}

// ConfigPathEnv names the optional YAML overlay file.
const ConfigPathEnv = "DAYROOM_CONFIG"

func Defaults() Config {
	return Config{
		BindAddr:               ":8080",
		ShutdownTimeout:        15 * time.Second,
		MetricsNamespace:       "dayroom",
		LogLevel:               "info",
		LogFormat:              "text",
		BrainURL:               "http://localhost:8787",
		BrainTurnPath:          "/v1/turn",
		BrainTurnTimeout:       60 * time.Second,
		BrainHistoryTurns:      3,
		BrainInitialCompliance: 50,
		DeviceMode:             DeviceModeCommand,
		CaptureCommand:         "arecord -q -t raw -f S16_LE",
		CaptureSampleRate:      16000,
		CaptureFlushTimeout:    2 * time.Second,
		PlaybackCommand:        "ffplay -nodisp -autoexit -loglevel error",
	}
}

// Load reads the file named by DAYROOM_CONFIG (if any) and the environment.
func Load() (Config, error) {
	return LoadFile(envTrimmed(ConfigPathEnv))
}

// LoadFile overlays path (ignored when empty) on the defaults, then applies
// environment variables and validates the result.
func LoadFile(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: open %q: %w", path, err)
		}
		defer f.Close()
		if err := decodeYAML(f, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: %q: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode yaml: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.BindAddr = envOrDefault("APP_BIND_ADDR", cfg.BindAddr)
	cfg.MetricsNamespace = envOrDefault("APP_METRICS_NAMESPACE", cfg.MetricsNamespace)
	cfg.LogLevel = strings.ToLower(envOrDefault("LOG_LEVEL", cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(envOrDefault("LOG_FORMAT", cfg.LogFormat))
	cfg.BrainURL = envOrDefault("BRAIN_URL", cfg.BrainURL)
	cfg.BrainTurnPath = envOrDefault("BRAIN_TURN_PATH", cfg.BrainTurnPath)
	cfg.DeviceMode = strings.ToLower(envOrDefault("DEVICE_MODE", cfg.DeviceMode))
	cfg.CaptureCommand = envOrDefault("CAPTURE_COMMAND", cfg.CaptureCommand)
	cfg.PlaybackCommand = envOrDefault("PLAYBACK_COMMAND", cfg.PlaybackCommand)

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return err
	}
	cfg.BrainTurnTimeout, err = durationFromEnv("BRAIN_TURN_TIMEOUT", cfg.BrainTurnTimeout)
	if err != nil {
		return err
	}
	cfg.BrainHistoryTurns, err = intFromEnv("BRAIN_HISTORY_TURNS", cfg.BrainHistoryTurns)
	if err != nil {
		return err
	}
	cfg.BrainInitialCompliance, err = intFromEnv("BRAIN_INITIAL_COMPLIANCE", cfg.BrainInitialCompliance)
	if err != nil {
		return err
	}
	cfg.CaptureSampleRate, err = intFromEnv("CAPTURE_SAMPLE_RATE", cfg.CaptureSampleRate)
	if err != nil {
		return err
	}
	cfg.CaptureFlushTimeout, err = durationFromEnv("CAPTURE_FLUSH_TIMEOUT", cfg.CaptureFlushTimeout)
	if err != nil {
		return err
	}
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	u, err := url.Parse(c.BrainURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("BRAIN_URL must be an absolute http(s) URL, got %q", c.BrainURL)
	}
	if !strings.HasPrefix(c.BrainTurnPath, "/") {
		return fmt.Errorf("BRAIN_TURN_PATH must start with /")
	}
	if c.BrainTurnTimeout <= 0 {
		return fmt.Errorf("BRAIN_TURN_TIMEOUT must be positive")
	}
	if c.BrainHistoryTurns < 1 || c.BrainHistoryTurns > memory.MaxTurns {
		return fmt.Errorf("BRAIN_HISTORY_TURNS must be within 1..%d", memory.MaxTurns)
	}
	if c.BrainInitialCompliance < 0 || c.BrainInitialCompliance > 100 {
		return fmt.Errorf("BRAIN_INITIAL_COMPLIANCE must be within 0..100")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("APP_SHUTDOWN_TIMEOUT must be positive")
	}
	switch c.DeviceMode {
	case DeviceModeCommand:
		if strings.TrimSpace(c.CaptureCommand) == "" {
			return fmt.Errorf("CAPTURE_COMMAND is required in %s mode", DeviceModeCommand)
		}
		if strings.TrimSpace(c.PlaybackCommand) == "" {
			return fmt.Errorf("PLAYBACK_COMMAND is required in %s mode", DeviceModeCommand)
		}
	case DeviceModeMock:
	default:
		return fmt.Errorf("DEVICE_MODE must be %q or %q, got %q", DeviceModeCommand, DeviceModeMock, c.DeviceMode)
	}
	if c.CaptureSampleRate <= 0 {
		return fmt.Errorf("CAPTURE_SAMPLE_RATE must be positive")
	}
	if c.CaptureFlushTimeout <= 0 {
		return fmt.Errorf("CAPTURE_FLUSH_TIMEOUT must be positive")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	v := envTrimmed(key)
	if v == "" {
		return fallback
	}
	return v
}

// envTrimmed reads key from the environment without surrounding whitespace.
func envTrimmed(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(envTrimmed(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
