package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete demo configuration.
type Config struct {
	Audio      AudioConfig      `yaml:"audio"`
	Keywords   KeywordsConfig   `yaml:"keywords"`
	Board      BoardConfig      `yaml:"board"`
	Loop       LoopConfig       `yaml:"loop"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Capture    CaptureConfig    `yaml:"capture"`
	Recording  RecordingConfig  `yaml:"recording"`
	HTTP       HTTPConfig       `yaml:"http"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// AudioConfig describes the window geometry the classifier expects.
type AudioConfig struct {
	SampleRate           int     `yaml:"sample_rate"`
	SliceSize            int     `yaml:"slice_size"`              // samples per window
	SlicesPerModelWindow int     `yaml:"slices_per_model_window"` // warm-up windows
	SignalScale          float32 `yaml:"signal_scale"`
}

// KeywordsConfig names the two tracked labels in priority order.
type KeywordsConfig struct {
	Primary   string `yaml:"primary"`
	Secondary string `yaml:"secondary"`
}

type BoardConfig struct {
	PrimaryPin   int  `yaml:"primary_pin"`
	SecondaryPin int  `yaml:"secondary_pin"`
	LogEvents    bool `yaml:"log_events"`
}

type LoopConfig struct {
	TickMs int `yaml:"tick_ms"`
}

// ClassifierConfig selects the inference collaborator. Type is "http" or "replay".
type ClassifierConfig struct {
	Type      string `yaml:"type"`
	URL       string `yaml:"url"`
	TimeoutMs int    `yaml:"timeout_ms"`
	Script    string `yaml:"script"`
	Loop      bool   `yaml:"loop"`
}

// CaptureConfig describes the host-side audio source. Format is "raw" (signed
// 8-bit PCM) or "wav".
type CaptureConfig struct {
	Input     string `yaml:"input"`
	Format    string `yaml:"format"`
	Realtime  bool   `yaml:"realtime"`
	Loop      bool   `yaml:"loop"`
	ChunkSize int    `yaml:"chunk_size"`
}

type RecordingConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Dir             string `yaml:"dir"`
	RetentionHours  int    `yaml:"retention_hours"`
	CleanupInterval int    `yaml:"cleanup_interval_s"`
	MaxFiles        int    `yaml:"max_files"`
}

type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration the firmware demo ships with.
func Default() *Config {
	return &Config{
		Audio: AudioConfig{
			SampleRate:           16000,
			SliceSize:            4000,
			SlicesPerModelWindow: 4,
			SignalScale:          1,
		},
		Keywords: KeywordsConfig{Primary: "microbit", Secondary: "house"},
		Board:    BoardConfig{PrimaryPin: 0, SecondaryPin: 1, LogEvents: true},
		Loop:     LoopConfig{TickMs: 1},
		Classifier: ClassifierConfig{
			Type:      "replay",
			TimeoutMs: 2000,
		},
		Capture: CaptureConfig{
			Format:    "raw",
			Realtime:  true,
			ChunkSize: 256,
		},
		Recording: RecordingConfig{
			RetentionHours:  24,
			CleanupInterval: 60,
			MaxFiles:        200,
		},
		HTTP:    HTTPConfig{Address: ":8080"},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads the YAML file at path on top of Default, applies environment
// overrides and validates the result. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Read is Load without validation, for callers that apply further
// overrides (command-line flags) before validating.
func Read(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("CLASSIFIER_URL")); v != "" {
		c.Classifier.Type = "http"
		c.Classifier.URL = v
	}
	if v := strings.ToLower(strings.TrimSpace(os.Getenv("SAVE_AUDIO_ENABLED"))); v != "" {
		c.Recording.Enabled = v == "true" || v == "1" || v == "yes"
	}
	if v := strings.TrimSpace(os.Getenv("SAVE_AUDIO_DIR")); v != "" {
		c.Recording.Dir = v
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.Keywords.Validate(); err != nil {
		return fmt.Errorf("keywords config: %w", err)
	}
	if err := c.Board.Validate(); err != nil {
		return fmt.Errorf("board config: %w", err)
	}
	if c.Loop.TickMs < 1 {
		return fmt.Errorf("loop config: tick_ms must be at least 1, got %d", c.Loop.TickMs)
	}
	if err := c.Classifier.Validate(); err != nil {
		return fmt.Errorf("classifier config: %w", err)
	}
	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}
	if err := c.Recording.Validate(); err != nil {
		return fmt.Errorf("recording config: %w", err)
	}
	if c.HTTP.Enabled && c.HTTP.Address == "" {
		return fmt.Errorf("http config: address cannot be empty when http is enabled")
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging config: level must be one of [debug, info, warn, error], got '%s'", c.Logging.Level)
	}
	return nil
}

func (a *AudioConfig) Validate() error {
	if a.SampleRate < 1000 {
		return fmt.Errorf("sample_rate must be at least 1000 Hz, got %d", a.SampleRate)
	}
	if a.SliceSize < 1 {
		return fmt.Errorf("slice_size must be positive, got %d", a.SliceSize)
	}
	if a.SlicesPerModelWindow < 0 {
		return fmt.Errorf("slices_per_model_window cannot be negative, got %d", a.SlicesPerModelWindow)
	}
	if a.SignalScale <= 0 {
		return fmt.Errorf("signal_scale must be positive, got %f", a.SignalScale)
	}
	return nil
}

func (k *KeywordsConfig) Validate() error {
	if k.Primary == "" || k.Secondary == "" {
		return fmt.Errorf("primary and secondary keywords are required")
	}
	if k.Primary == k.Secondary {
		return fmt.Errorf("primary and secondary keywords must differ, both are '%s'", k.Primary)
	}
	return nil
}

func (b *BoardConfig) Validate() error {
	if b.PrimaryPin < 0 || b.SecondaryPin < 0 {
		return fmt.Errorf("pins cannot be negative")
	}
	if b.PrimaryPin == b.SecondaryPin {
		return fmt.Errorf("primary_pin and secondary_pin must differ, both are %d", b.PrimaryPin)
	}
	return nil
}

func (c *ClassifierConfig) Validate() error {
	switch c.Type {
	case "http":
		if c.URL == "" {
			return fmt.Errorf("url cannot be empty for the http classifier")
		}
		if c.TimeoutMs < 1 {
			return fmt.Errorf("timeout_ms must be positive, got %d", c.TimeoutMs)
		}
	case "replay":
		if c.Script == "" {
			return fmt.Errorf("script cannot be empty for the replay classifier")
		}
	default:
		return fmt.Errorf("type must be 'http' or 'replay', got '%s'", c.Type)
	}
	return nil
}

func (c *CaptureConfig) Validate() error {
	if c.Input == "" {
		return fmt.Errorf("input cannot be empty")
	}
	if c.Format != "raw" && c.Format != "wav" {
		return fmt.Errorf("format must be 'raw' or 'wav', got '%s'", c.Format)
	}
	if c.ChunkSize < 1 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize)
	}
	return nil
}

func (r *RecordingConfig) Validate() error {
	if !r.Enabled {
		return nil
	}
	if strings.TrimSpace(r.Dir) == "" {
		return fmt.Errorf("dir cannot be empty when recording is enabled")
	}
	if r.RetentionHours < 1 {
		return fmt.Errorf("retention_hours must be at least 1, got %d", r.RetentionHours)
	}
	if r.CleanupInterval < 1 {
		return fmt.Errorf("cleanup_interval_s must be at least 1, got %d", r.CleanupInterval)
	}
	return nil
}

// Tick returns the inference loop polling interval.
func (l *LoopConfig) Tick() time.Duration {
	return time.Duration(l.TickMs) * time.Millisecond
}

func (c *ClassifierConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

func (r *RecordingConfig) Retention() time.Duration {
	return time.Duration(r.RetentionHours) * time.Hour
}

func (r *RecordingConfig) Interval() time.Duration {
	return time.Duration(r.CleanupInterval) * time.Second
}
