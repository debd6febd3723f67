package main

import (
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hirotools/mutlog/pkg/mut"
)

// Config is the on-disk tool configuration. Missing file means
// defaults; a broken file is an error rather than a silent fallback,
// a half-applied config pointed at the wrong serial port is worse
// than no config.
type Config struct {
	Transport string        `yaml:"transport"` // "can" or "kline"
	CAN       CANConfig     `yaml:"can"`
	Serial    SerialConfig  `yaml:"serial"`
	ROM       ROMConfig     `yaml:"rom"`
	Logging   LoggingConfig `yaml:"logging"`
}

type CANConfig struct {
	Adapter  string `yaml:"adapter"` // gocan adapter name
	Port     string `yaml:"port"`
	Baudrate int    `yaml:"baudrate"`
	Rate     float64 `yaml:"rate"` // CAN bitrate, kbit
}

type SerialConfig struct {
	Port     string `yaml:"port"`
	Baudrate int    `yaml:"baudrate"`
}

type ROMConfig struct {
	Start     uint32 `yaml:"start"`
	Size      int    `yaml:"size"`
	BlockSize int    `yaml:"block_size"`
}

type LoggingConfig struct {
	PollIntervalMs int `yaml:"poll_interval_ms"`
}

func DefaultConfig() *Config {
	return &Config{
		Transport: mut.TransportCAN,
		CAN: CANConfig{
			Adapter:  "OBDLink SX",
			Port:     "/dev/ttyUSB0",
			Baudrate: 2000000,
			Rate:     500,
		},
		Serial: SerialConfig{
			Port:     "/dev/ttyUSB0",
			Baudrate: 15625,
		},
		ROM: ROMConfig{
			Start:     0x000000,
			Size:      0x100000,
			BlockSize: 128,
		},
		Logging: LoggingConfig{
			PollIntervalMs: 100,
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("no config at %s, using defaults", path)
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Transport != mut.TransportCAN && cfg.Transport != mut.TransportKLine {
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
	return cfg, nil
}
