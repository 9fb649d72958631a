package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the gemmforge configuration file (~/.config/gemmforge/config.yaml).
// Pointer fields distinguish "not set" from zero values.
type Config struct {
	Catalog string `yaml:"catalog"`

	// Target
	Arch              *int64 `yaml:"arch"`
	NoTF32            *bool  `yaml:"no_tf32"`
	UseFP16Acc        *bool  `yaml:"use_fp16_acc"`
	AllowSIMT         *bool  `yaml:"allow_simt"`
	L2CacheBytes      *int64 `yaml:"l2_cache_bytes"`
	DeviceMemoryBytes *int64 `yaml:"device_memory_bytes"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "gemmforge", "config.yaml")
}

// LoadConfig reads the config file at path, or the default location when path is empty.
// A missing default file is a zero Config; a missing explicit file is an error.
func LoadConfig(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = configPath()
		if path == "" {
			return Config{}, nil
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// applyGlobalConfig applies config file defaults to the global flag variables when the
// corresponding flag was not set on the command line.
func applyGlobalConfig(c *cli.Command, cfg Config) {
	if cfg.Catalog != "" && !c.IsSet("catalog") {
		catalogPath = cfg.Catalog
	}
	if cfg.Arch != nil && !c.IsSet("arch") {
		arch = *cfg.Arch
	}
	if cfg.NoTF32 != nil && !c.IsSet("no-tf32") {
		noTF32 = *cfg.NoTF32
	}
	if cfg.UseFP16Acc != nil && !c.IsSet("fp16-acc") {
		useFP16Acc = *cfg.UseFP16Acc
	}
	if cfg.AllowSIMT != nil && !c.IsSet("allow-simt") {
		allowSIMT = *cfg.AllowSIMT
	}
	if cfg.L2CacheBytes != nil && !c.IsSet("l2-cache-bytes") {
		l2CacheBytes = *cfg.L2CacheBytes
	}
	if cfg.DeviceMemoryBytes != nil && !c.IsSet("device-memory-bytes") {
		deviceMemory = *cfg.DeviceMemoryBytes
	}
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}
