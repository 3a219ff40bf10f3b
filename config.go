package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/urfave/cli/v3"

	"github.com/524D/mzstream/internal/mzml"
)

// config holds the settings that can come from a TOML file. Flags given
// on the command line take precedence.
type config struct {
	LogLevel    string
	MSLevel     string
	RT          string
	Immediate   bool
	Compression mzml.Compression
	Software    string
}

type fileConfig struct {
	LogLevel    string `toml:"log_level"`
	MSLevel     string `toml:"ms_level"`
	RT          string `toml:"rt"`
	Immediate   bool   `toml:"immediate"`
	Compression string `toml:"compression"`
	Software    string `toml:"software"`
}

func defaultConfig() config {
	return config{
		LogLevel:    "warn",
		MSLevel:     ":",
		RT:          ":",
		Compression: mzml.CompressionZlib,
		Software:    progName,
	}
}

func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return config{}, fmt.Errorf("load config: %w", err)
	}

	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("ms_level") {
		cfg.MSLevel = strings.TrimSpace(raw.MSLevel)
	}
	if meta.IsDefined("rt") {
		cfg.RT = strings.TrimSpace(raw.RT)
	}
	if meta.IsDefined("immediate") {
		cfg.Immediate = raw.Immediate
	}
	if meta.IsDefined("compression") {
		c, ok := mzml.ParseCompression(strings.TrimSpace(raw.Compression))
		if !ok {
			return config{}, fmt.Errorf("parse compression: unknown compression %q", raw.Compression)
		}
		cfg.Compression = c
	}
	if meta.IsDefined("software") {
		if sw := strings.TrimSpace(raw.Software); sw != "" {
			cfg.Software = sw
		}
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return config{}, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}
	return cfg, nil
}

// applyFlags overrides config values with flags that were set explicitly
func (cfg *config) applyFlags(cmd *cli.Command) error {
	if cmd.IsSet("log-level") {
		cfg.LogLevel = cmd.String("log-level")
	}
	if cmd.IsSet("mslevel") {
		cfg.MSLevel = cmd.String("mslevel")
	}
	if cmd.IsSet("rt") {
		cfg.RT = cmd.String("rt")
	}
	if cmd.IsSet("immediate") {
		cfg.Immediate = cmd.Bool("immediate")
	}
	if cmd.IsSet("compression") {
		c, ok := mzml.ParseCompression(cmd.String("compression"))
		if !ok {
			return fmt.Errorf("unknown compression %q", cmd.String("compression"))
		}
		cfg.Compression = c
	}
	return nil
}
