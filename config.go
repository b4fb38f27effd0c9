package server

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"armada/server/internal/sim"
	"armada/server/logging"
)

// ServerConfig is the full runtime configuration, loadable from YAML.
type ServerConfig struct {
	Addr             string `yaml:"addr"`
	TickRate         int    `yaml:"tickRate"`
	CatchupMaxTicks  int    `yaml:"catchupMaxTicks"`
	CommandCapacity  int    `yaml:"commandCapacity"`
	PerActorLimit    int    `yaml:"perActorLimit"`
	QueueWarningStep int    `yaml:"queueWarningStep"`

	World sim.WorldConfig `yaml:"world"`
	Log   logging.Config  `yaml:"log"`
}

// DefaultConfig returns the configuration used when no file is provided.
func DefaultConfig() ServerConfig {
	return ServerConfig{
		Addr:             ":8080",
		TickRate:         DefaultTickRate,
		CatchupMaxTicks:  4,
		CommandCapacity:  1024,
		PerActorLimit:    8,
		QueueWarningStep: 256,
		World:            sim.WorldConfig{}.Normalized(),
		Log:              logging.DefaultConfig(),
	}
}

// Normalized fills unset fields with defaults.
func (c ServerConfig) Normalized() ServerConfig {
	defaults := DefaultConfig()
	if c.Addr == "" {
		c.Addr = defaults.Addr
	}
	if c.TickRate <= 0 {
		c.TickRate = defaults.TickRate
	}
	if c.CatchupMaxTicks <= 0 {
		c.CatchupMaxTicks = defaults.CatchupMaxTicks
	}
	if c.CommandCapacity <= 0 {
		c.CommandCapacity = defaults.CommandCapacity
	}
	if c.PerActorLimit <= 0 {
		c.PerActorLimit = defaults.PerActorLimit
	}
	if c.QueueWarningStep <= 0 {
		c.QueueWarningStep = defaults.QueueWarningStep
	}
	c.World = c.World.Normalized()
	return c
}

// LoadConfig reads and normalizes a YAML configuration file. A missing path
// yields the defaults.
func LoadConfig(path string) (ServerConfig, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ServerConfig{}, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg ServerConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return ServerConfig{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg.Normalized(), nil
}
