// Package config loads and validates the simulation's startup
// configuration, the way KoordeDHT's internal/node/config package loads
// node configuration: YAML on disk, defaulted and validated before use.
package config

import (
	"fmt"
	"os"
	"time"

	"chordring/internal/logger"
	zapfactory "chordring/internal/logger/zap"
	"chordring/internal/telemetry"

	"gopkg.in/yaml.v3"
)

// Ring holds the Chord protocol parameters from spec.md §6.
type Ring struct {
	Bits                   int           `yaml:"bits"`
	Replication            int           `yaml:"replication"`
	Seed                   int64         `yaml:"seed"`
	StabilizePeriod        time.Duration `yaml:"stabilize_period"`
	FixFingersPeriod       time.Duration `yaml:"fix_fingers_period"`
	CheckPredecessorPeriod time.Duration `yaml:"check_predecessor_period"`
}

// Config is the top-level startup configuration.
type Config struct {
	Ring      Ring              `yaml:"ring"`
	Logger    zapfactory.Config `yaml:"logger"`
	Telemetry telemetry.Config  `yaml:"telemetry"`
}

// Default returns the reference configuration from spec.md: M=5,
// stabilize_period=1s, a modest replication factor, and logging disabled.
func Default() Config {
	return Config{
		Ring: Ring{
			Bits:                   5,
			Replication:            3,
			Seed:                   1,
			StabilizePeriod:        time.Second,
			FixFingersPeriod:       time.Second,
			CheckPredecessorPeriod: time.Second,
		},
		Logger: zapfactory.Config{
			Active:   false,
			Level:    "info",
			Encoding: "console",
		},
		Telemetry: telemetry.Config{
			Tracing: telemetry.TracingConfig{Enabled: false},
		},
	}
}

// LoadConfig reads a YAML configuration file at path, applying reference
// defaults for any field left unset. A missing file is not an error: the
// defaults apply on their own, mirroring the teacher's "works out of the
// box, config file is optional" posture.
func LoadConfig(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("reading config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %q: %w", path, err)
	}
	return cfg, nil
}

// ValidateConfig checks the loaded configuration against the constraints
// spec.md places on M, R, and the maintenance periods.
func (c Config) ValidateConfig() error {
	if c.Ring.Bits <= 0 || c.Ring.Bits > 160 {
		return fmt.Errorf("ring.bits = %d: must be in (0, 160]", c.Ring.Bits)
	}
	if c.Ring.Replication < 1 {
		return fmt.Errorf("ring.replication = %d: must be >= 1", c.Ring.Replication)
	}
	if c.Ring.StabilizePeriod <= 0 {
		return fmt.Errorf("ring.stabilize_period must be positive")
	}
	if c.Ring.FixFingersPeriod <= 0 {
		return fmt.Errorf("ring.fix_fingers_period must be positive")
	}
	if c.Ring.CheckPredecessorPeriod <= 0 {
		return fmt.Errorf("ring.check_predecessor_period must be positive")
	}
	return nil
}

// LogConfig emits the resolved configuration at Info level, the way
// KoordeDHT's main.go logs its config right after validating it.
func (c Config) LogConfig(lgr logger.Logger) {
	lgr.Info("configuration loaded",
		logger.F("bits", c.Ring.Bits),
		logger.F("replication", c.Ring.Replication),
		logger.F("seed", c.Ring.Seed),
		logger.F("stabilize_period", c.Ring.StabilizePeriod.String()),
		logger.F("fix_fingers_period", c.Ring.FixFingersPeriod.String()),
		logger.F("check_predecessor_period", c.Ring.CheckPredecessorPeriod.String()),
		logger.F("tracing_enabled", c.Telemetry.Tracing.Enabled))
}
