// Package config loads the settings used to assemble a feedback pipeline.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/koscakluka/ema-access/core/events"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Speech    SpeechConfig    `toml:"speech" yaml:"speech"`
	Coalescer CoalescerConfig `toml:"coalescer" yaml:"coalescer"`
	Rules     RulesConfig     `toml:"rules" yaml:"rules"`
	Input     InputConfig     `toml:"input" yaml:"input"`
	Feedback  FeedbackConfig  `toml:"feedback" yaml:"feedback"`
}

type SpeechConfig struct {
	// Engines are tried in order when the current one fails.
	Engines []string `toml:"engines" yaml:"engines"`
	// EngineURL is the base websocket URL engines are dialed at.
	EngineURL        string  `toml:"engine_url" yaml:"engine_url"`
	Pitch            float64 `toml:"pitch" yaml:"pitch"`
	Rate             float64 `toml:"rate" yaml:"rate"`
	Intonation       bool    `toml:"intonation" yaml:"intonation"`
	Volume           float64 `toml:"volume" yaml:"volume"`
	FailureThreshold int     `toml:"failure_threshold" yaml:"failure_threshold"`
	AnnounceEngine   bool    `toml:"announce_engine" yaml:"announce_engine"`
}

type CoalescerConfig struct {
	Delay            time.Duration `toml:"delay" yaml:"delay"`
	QueueBound       int           `toml:"queue_bound" yaml:"queue_bound"`
	CollapsibleKinds []string      `toml:"collapsible_kinds" yaml:"collapsible_kinds"`
}

type RulesConfig struct {
	Files []string `toml:"files" yaml:"files"`
	// Watch reloads rule files when they change on disk.
	Watch bool `toml:"watch" yaml:"watch"`
}

type InputConfig struct {
	// ComboFile replaces the built-in key combo table when set.
	ComboFile string `toml:"combo_file" yaml:"combo_file"`
}

type FeedbackConfig struct {
	EarconVolume float64 `toml:"earcon_volume" yaml:"earcon_volume"`
	// Tones overrides or extends the built-in earcon tones.
	Tones map[string]ToneConfig `toml:"tones" yaml:"tones"`
}

type ToneConfig struct {
	Frequency float64       `toml:"frequency" yaml:"frequency"`
	Duration  time.Duration `toml:"duration" yaml:"duration"`
}

func Default() *Config {
	kinds := make([]string, 0, 2)
	for _, kind := range []events.Kind{events.KindWindowContentChanged, events.KindViewScrolled} {
		kinds = append(kinds, string(kind))
	}

	return &Config{
		Speech: SpeechConfig{
			Engines:          []string{"default"},
			EngineURL:        "ws://127.0.0.1:8765",
			Pitch:            1,
			Rate:             1,
			Intonation:       true,
			Volume:           1,
			FailureThreshold: 2,
			AnnounceEngine:   true,
		},
		Coalescer: CoalescerConfig{
			Delay:            50 * time.Millisecond,
			QueueBound:       10,
			CollapsibleKinds: kinds,
		},
		Feedback: FeedbackConfig{
			EarconVolume: 0.5,
		},
	}
}

// Load reads path over the defaults. The decoder is chosen by extension:
// .toml, .yaml or .yml.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("failed to decode TOML config: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode YAML config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Speech.Engines) == 0 {
		errs = append(errs, errors.New("speech.engines: at least one engine is required"))
	}
	for i, name := range c.Speech.Engines {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, fmt.Errorf("speech.engines[%d]: name is empty", i))
		}
	}
	if c.Speech.Pitch <= 0 {
		errs = append(errs, fmt.Errorf("speech.pitch: must be positive, got %v", c.Speech.Pitch))
	}
	if c.Speech.Rate <= 0 {
		errs = append(errs, fmt.Errorf("speech.rate: must be positive, got %v", c.Speech.Rate))
	}
	if c.Speech.Volume < 0 || c.Speech.Volume > 1 {
		errs = append(errs, fmt.Errorf("speech.volume: must be in [0, 1], got %v", c.Speech.Volume))
	}
	if c.Speech.FailureThreshold < 1 {
		errs = append(errs, fmt.Errorf("speech.failure_threshold: must be at least 1, got %d", c.Speech.FailureThreshold))
	}

	if c.Coalescer.Delay < 0 {
		errs = append(errs, fmt.Errorf("coalescer.delay: must not be negative, got %s", c.Coalescer.Delay))
	}
	if c.Coalescer.QueueBound < 1 {
		errs = append(errs, fmt.Errorf("coalescer.queue_bound: must be at least 1, got %d", c.Coalescer.QueueBound))
	}

	if c.Feedback.EarconVolume < 0 || c.Feedback.EarconVolume > 1 {
		errs = append(errs, fmt.Errorf("feedback.earcon_volume: must be in [0, 1], got %v", c.Feedback.EarconVolume))
	}
	for id, tone := range c.Feedback.Tones {
		if tone.Frequency <= 0 {
			errs = append(errs, fmt.Errorf("feedback.tones.%s: frequency must be positive", id))
		}
		if tone.Duration <= 0 {
			errs = append(errs, fmt.Errorf("feedback.tones.%s: duration must be positive", id))
		}
	}

	return errors.Join(errs...)
}

// CollapsibleKinds returns the configured kinds as event kinds.
func (c *Config) CollapsibleKinds() []events.Kind {
	kinds := make([]events.Kind, 0, len(c.Coalescer.CollapsibleKinds))
	for _, kind := range c.Coalescer.CollapsibleKinds {
		kinds = append(kinds, events.Kind(kind))
	}
	return kinds
}
