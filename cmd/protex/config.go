package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the protex configuration file (~/.config/protex/config.yaml).
// Numeric fields are pointers so "not set" is distinguishable from zero.
type Config struct {
	ToksPerBatch        *int64 `yaml:"toks_per_batch"`
	TruncationSeqLength *int64 `yaml:"truncation_seq_length"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "protex", "config.yaml")
}

// LoadConfig reads the config file. Returns a zero Config if the file doesn't exist.
func LoadConfig() Config {
	path := configPath()
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}

// applyExtractConfig applies config file defaults to extract command
// variables when the corresponding CLI flag was not explicitly set.
func applyExtractConfig(c *cli.Command, cfg Config, toksPerBatch, truncation *int64) {
	if cfg.ToksPerBatch != nil && !c.IsSet("toks_per_batch") {
		*toksPerBatch = *cfg.ToksPerBatch
	}
	if cfg.TruncationSeqLength != nil && !c.IsSet("truncation_seq_length") {
		*truncation = *cfg.TruncationSeqLength
	}
	applyLogConfig(c, cfg)
}

func applyLogConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}
