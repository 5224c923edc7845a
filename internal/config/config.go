package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultGlamourStyle = "dark"
	DefaultServerURL    = "http://localhost:8000"
)

type AppConfig struct {
	ServerURL    string
	DBPath       string
	LogPath      string
	GlamourStyle string
	PollInterval time.Duration
	MaxAttempts  int

	// Headless mode: run one query and print the report instead of the TUI.
	Ask string
	Out string
}

// fileConfig is the optional YAML config file shape. Flags and the
// environment take precedence over it.
type fileConfig struct {
	ServerURL    string `yaml:"server_url"`
	DBPath       string `yaml:"db_path"`
	GlamourStyle string `yaml:"glamour_style"`
	PollInterval string `yaml:"poll_interval"`
}

func Parse() (AppConfig, error) {
	cfg := AppConfig{
		PollInterval: time.Second,
		MaxAttempts:  300,
	}

	var configPath string
	flag.StringVar(&configPath, "config", "", "path to YAML config file")
	flag.StringVar(&cfg.ServerURL, "server", "", "research service base URL")
	flag.StringVar(&cfg.DBPath, "db-path", "", "path to the conversation SQLite file")
	flag.StringVar(&cfg.GlamourStyle, "style", "", "glamour style for report rendering")
	flag.StringVar(&cfg.Ask, "ask", "", "run one research query without the TUI and print the report")
	flag.StringVar(&cfg.Out, "out", "", "with -ask, also write the raw report to this file")
	flag.Parse()

	if configPath != "" {
		if err := applyFile(&cfg, configPath); err != nil {
			return cfg, err
		}
	}
	applyDefaults(&cfg)

	if cfg.DBPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return cfg, fmt.Errorf("resolve home directory: %w", err)
		}
		cfg.DBPath = filepath.Join(home, ".local", "share", "deep-research", "chat.sqlite")
	}
	cfg.LogPath = filepath.Join(filepath.Dir(cfg.DBPath), "deep-research.log")

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return cfg, fmt.Errorf("create data dir: %w", err)
	}
	return cfg, nil
}

// applyFile fills in fields the flags left empty.
func applyFile(cfg *AppConfig, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	if cfg.ServerURL == "" {
		cfg.ServerURL = fc.ServerURL
	}
	if cfg.DBPath == "" {
		cfg.DBPath = fc.DBPath
	}
	if cfg.GlamourStyle == "" {
		cfg.GlamourStyle = fc.GlamourStyle
	}
	if fc.PollInterval != "" {
		d, err := time.ParseDuration(fc.PollInterval)
		if err != nil {
			return fmt.Errorf("parse poll_interval: %w", err)
		}
		cfg.PollInterval = d
	}
	return nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.ServerURL == "" {
		cfg.ServerURL = os.Getenv("DEEP_RESEARCH_SERVER")
	}
	if cfg.ServerURL == "" {
		cfg.ServerURL = DefaultServerURL
	}
	if cfg.GlamourStyle == "" {
		cfg.GlamourStyle = DefaultGlamourStyle
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 300
	}
}
