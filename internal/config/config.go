// Package config loads critchecker configuration from defaults, an optional
// TOML file and CRITCHECKER_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Defaults applied before the config file and environment are read.
const (
	DefaultReportPath  = "~/critmas.csv"
	DefaultConfigPath  = "~/.config/critchecker/config.toml"
	DefaultBaseURL     = "https://www.deviantart.com"
	DefaultConcurrency = 8
	DefaultMaxDepth    = 8
	DefaultTimeout     = 30 * time.Second
	DefaultRetries     = 3
)

// Config holds the settings of one critchecker invocation.
type Config struct {
	ReportPath       string
	DBPath           string // Empty disables the SQLite export.
	Concurrency      int
	MaxDepth         int
	Timeout          time.Duration
	Retries          int
	BaseURL          string
	LogLevel         slog.Level
	Convenors        []string
	ScanText         bool
	IncludeBody      bool
	IncludeTimestamp bool
}

// fileConfig mirrors the TOML layout. Pointer fields distinguish an absent
// key from an explicit zero.
type fileConfig struct {
	ReportPath       *string  `toml:"report_path"`
	DBPath           *string  `toml:"db_path"`
	Concurrency      *int     `toml:"concurrency"`
	MaxDepth         *int     `toml:"max_depth"`
	TimeoutSeconds   *int     `toml:"timeout_seconds"`
	Retries          *int     `toml:"retries"`
	BaseURL          *string  `toml:"base_url"`
	LogLevel         *string  `toml:"log_level"`
	Convenors        []string `toml:"convenors"`
	ScanText         *bool    `toml:"scan_text"`
	IncludeBody      *bool    `toml:"include_body"`
	IncludeTimestamp *bool    `toml:"include_timestamp"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ReportPath:  DefaultReportPath,
		Concurrency: DefaultConcurrency,
		MaxDepth:    DefaultMaxDepth,
		Timeout:     DefaultTimeout,
		Retries:     DefaultRetries,
		BaseURL:     DefaultBaseURL,
		LogLevel:    slog.LevelInfo,
	}
}

// Load builds a Config. An explicit path must exist; an empty path falls back
// to DefaultConfigPath when that file is present.
// Environment variables: CRITCHECKER_REPORT_PATH, CRITCHECKER_DB_PATH,
// CRITCHECKER_CONCURRENCY, CRITCHECKER_MAX_DEPTH, CRITCHECKER_TIMEOUT
// (duration), CRITCHECKER_RETRIES, CRITCHECKER_BASE_URL,
// CRITCHECKER_LOG_LEVEL, CRITCHECKER_CONVENORS (comma separated).
func Load(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Normalize(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) loadFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath
	}

	resolved, err := ExpandPath(path)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", resolved, err)
	}

	if err := c.apply(fc); err != nil {
		return fmt.Errorf("config %s: %w", resolved, err)
	}

	return nil
}

func (c *Config) apply(fc fileConfig) error {
	if fc.ReportPath != nil {
		c.ReportPath = *fc.ReportPath
	}
	if fc.DBPath != nil {
		c.DBPath = *fc.DBPath
	}
	if fc.Concurrency != nil {
		c.Concurrency = *fc.Concurrency
	}
	if fc.MaxDepth != nil {
		c.MaxDepth = *fc.MaxDepth
	}
	if fc.TimeoutSeconds != nil {
		c.Timeout = time.Duration(*fc.TimeoutSeconds) * time.Second
	}
	if fc.Retries != nil {
		c.Retries = *fc.Retries
	}
	if fc.BaseURL != nil {
		c.BaseURL = *fc.BaseURL
	}
	if fc.LogLevel != nil {
		level, err := ParseLevel(*fc.LogLevel)
		if err != nil {
			return err
		}
		c.LogLevel = level
	}
	if fc.Convenors != nil {
		c.Convenors = fc.Convenors
	}
	if fc.ScanText != nil {
		c.ScanText = *fc.ScanText
	}
	if fc.IncludeBody != nil {
		c.IncludeBody = *fc.IncludeBody
	}
	if fc.IncludeTimestamp != nil {
		c.IncludeTimestamp = *fc.IncludeTimestamp
	}
	return nil
}

func (c *Config) loadEnv() error {
	if v, ok := os.LookupEnv("CRITCHECKER_REPORT_PATH"); ok {
		c.ReportPath = v
	}

	if v, ok := os.LookupEnv("CRITCHECKER_DB_PATH"); ok {
		c.DBPath = v
	}

	if v, ok := os.LookupEnv("CRITCHECKER_CONCURRENCY"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CRITCHECKER_CONCURRENCY has invalid value %q: %w", v, err)
		}
		c.Concurrency = n
	}

	if v, ok := os.LookupEnv("CRITCHECKER_MAX_DEPTH"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CRITCHECKER_MAX_DEPTH has invalid value %q: %w", v, err)
		}
		c.MaxDepth = n
	}

	if v, ok := os.LookupEnv("CRITCHECKER_TIMEOUT"); ok {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CRITCHECKER_TIMEOUT has invalid duration %q: %w", v, err)
		}
		c.Timeout = parsed
	}

	if v, ok := os.LookupEnv("CRITCHECKER_RETRIES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CRITCHECKER_RETRIES has invalid value %q: %w", v, err)
		}
		c.Retries = n
	}

	if v, ok := os.LookupEnv("CRITCHECKER_BASE_URL"); ok {
		c.BaseURL = v
	}

	if v, ok := os.LookupEnv("CRITCHECKER_LOG_LEVEL"); ok {
		level, err := ParseLevel(v)
		if err != nil {
			return fmt.Errorf("CRITCHECKER_LOG_LEVEL: %w", err)
		}
		c.LogLevel = level
	}

	if v, ok := os.LookupEnv("CRITCHECKER_CONVENORS"); ok && v != "" {
		c.Convenors = SplitList(v)
	}

	return nil
}

// Normalize expands paths and validates numeric settings. Callers that
// override fields after Load (such as CLI flags) should call it again.
func (c *Config) Normalize() error {
	var err error
	if c.ReportPath, err = ExpandPath(c.ReportPath); err != nil {
		return err
	}
	if c.DBPath, err = ExpandPath(c.DBPath); err != nil {
		return err
	}

	if c.ReportPath == "" {
		return errors.New("report path must be set")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.MaxDepth < 1 {
		return fmt.Errorf("max depth must be at least 1, got %d", c.MaxDepth)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.Retries < 0 {
		return fmt.Errorf("retries must not be negative, got %d", c.Retries)
	}
	return nil
}

// ParseLevel maps a level name (debug, info, warn, error) to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// SplitList splits a comma-separated list, dropping blank entries.
func SplitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

// ExpandPath resolves a leading ~ to the home directory and makes the path
// absolute. Empty input stays empty.
func ExpandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}
