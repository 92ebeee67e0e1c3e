// Package config loads the daemon configuration: defaults first, then
// an optional YAML overlay, then validation.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/coherence-field/go-companion/internal/boundary"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/contextkey"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/field"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/gate"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/mixer"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/phase"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/sense"
)

// #region duration

// Duration decodes YAML strings like "20ms" into a time.Duration.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// #endregion duration

// #region config

// Config holds every tunable of the companion daemon.
type Config struct {
	// CuriosityDrive scales cold-start baselines and exploration, [0,1].
	CuriosityDrive float32 `yaml:"curiosity_drive"`

	// TickPeriod is the reflexive loop cadence.
	TickPeriod Duration `yaml:"tick_period"`
	// MixEvery is how many ticks pass between mixing recomputations.
	MixEvery uint64 `yaml:"mix_every"`
	// PersistEvery is how many ticks pass between snapshot persists.
	PersistEvery uint64 `yaml:"persist_every"`
	// DegradedAfter marks the runner unreachable when its heartbeat is
	// older than this many ticks.
	DegradedAfter uint64 `yaml:"degraded_after"`

	// DatabasePath is the SQLite file holding accumulators, the matrix,
	// and the snapshot log.
	DatabasePath string `yaml:"database_path"`
	// ListenAddr is the telemetry HTTP/WebSocket bind address.
	ListenAddr string `yaml:"listen_addr"`

	Detector sense.DetectorConfig     `yaml:"detector"`
	Tracker  contextkey.TrackerConfig `yaml:"tracker"`
	Field    field.Config             `yaml:"field"`
	Gate     gate.Config              `yaml:"gate"`
	Mixer    mixer.Config             `yaml:"mixer"`
	Boundary boundary.Config          `yaml:"boundary"`
	Phase    phase.Config             `yaml:"phase"`
}

// Default returns the configuration used when no file overrides it.
func Default() *Config {
	return &Config{
		CuriosityDrive: 0.8,
		TickPeriod:     Duration(20 * time.Millisecond),
		MixEvery:       250,
		PersistEvery:   500,
		DegradedAfter:  1000,
		DatabasePath:   "coherence.db",
		ListenAddr:     "127.0.0.1:8710",
		Detector:       sense.DefaultDetectorConfig(),
		Tracker:        contextkey.DefaultTrackerConfig(),
		Field:          field.DefaultConfig(),
		Gate:           gate.DefaultConfig(),
		Mixer:          mixer.DefaultConfig(),
		Boundary:       boundary.DefaultConfig(),
		Phase:          phase.DefaultConfig(),
	}
}

// Load reads the YAML file at path over the defaults. An empty path
// returns validated defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// #endregion config

// #region validate

// Validate rejects configurations the daemon cannot run safely with.
func (c *Config) Validate() error {
	if c.CuriosityDrive < 0 || c.CuriosityDrive > 1 {
		return fmt.Errorf("curiosity_drive %v outside [0,1]", c.CuriosityDrive)
	}
	if c.TickPeriod <= 0 {
		return fmt.Errorf("tick_period must be positive, got %v", c.TickPeriod)
	}
	if c.MixEvery == 0 || c.PersistEvery == 0 || c.DegradedAfter == 0 {
		return fmt.Errorf("mix_every, persist_every, degraded_after must all be positive")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database_path is required")
	}
	if c.Field.ColdStartBase > 0.15 {
		return fmt.Errorf("cold_start_base %v exceeds the 0.15 bound", c.Field.ColdStartBase)
	}
	if c.Field.FloorMax <= 0 || c.Field.FloorMax > 1 {
		return fmt.Errorf("floor_max %v outside (0,1]", c.Field.FloorMax)
	}
	if c.Field.HabituationCap == 0 {
		return fmt.Errorf("habituation_cap must be positive")
	}
	if w := c.Gate.InstantWeight + c.Gate.ContextWeight; w < 0.999 || w > 1.001 {
		return fmt.Errorf("gate blend weights sum to %v, want 1", w)
	}
	if c.Gate.UnfamiliarCutoff <= 0 || c.Gate.UnfamiliarCutoff >= 1 {
		return fmt.Errorf("unfamiliar_cutoff %v outside (0,1)", c.Gate.UnfamiliarCutoff)
	}
	if c.Mixer.Tolerance <= 0 || c.Mixer.MaxIterations <= 0 {
		return fmt.Errorf("mixer tolerance and max_iterations must be positive")
	}
	if c.Mixer.TransferCap < 0 || c.Mixer.TransferCap > 1 {
		return fmt.Errorf("transfer_cap %v outside [0,1]", c.Mixer.TransferCap)
	}
	if c.Phase.Margin < 0 || c.Phase.Margin >= 0.5 {
		return fmt.Errorf("phase margin %v outside [0,0.5)", c.Phase.Margin)
	}
	return nil
}

// #endregion validate
