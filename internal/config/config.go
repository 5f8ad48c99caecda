package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ErrorPolicy defines how a pass reacts to a failed filesystem operation
type ErrorPolicy string

const (
	OnErrorSkip  ErrorPolicy = "skip"
	OnErrorAbort ErrorPolicy = "abort"
)

const (
	// DefaultIntervalMS is used when no positive interval is configured
	DefaultIntervalMS = 6000

	defaultSource  = "SourceFolder"
	defaultTarget  = "TargetFolder"
	defaultLogFile = "~/Documents/sync.log"
)

// Config represents the complete treesyncd configuration
type Config struct {
	Paths PathsConfig `yaml:"paths" toml:"paths"`
	Sync  SyncConfig  `yaml:"sync" toml:"sync"`

	// File is the config file that was read, empty when defaults were used
	File string `yaml:"-" toml:"-"`
	// Warnings collects non-fatal problems found while applying defaults
	Warnings []string `yaml:"-" toml:"-"`
}

// PathsConfig configures the mirrored trees and the journal
type PathsConfig struct {
	Source  string `yaml:"source" toml:"source"`
	Target  string `yaml:"target" toml:"target"`
	LogFile string `yaml:"log_file" toml:"log_file"`
}

// SyncConfig configures pass timing and failure handling
type SyncConfig struct {
	IntervalMS int         `yaml:"interval_ms" toml:"interval_ms"`
	OnError    ErrorPolicy `yaml:"on_error" toml:"on_error"`
}

// DefaultPath returns the default config file location
func DefaultPath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".config", "treesyncd", "config.yaml"), nil
}

// LoadOption adjusts how Load treats the config file
type LoadOption func(*loadOptions)

type loadOptions struct {
	allowMissing bool
	overrides    []func(*Config)
}

// AllowMissing makes Load fall back to built-in defaults when the file does
// not exist
func AllowMissing() LoadOption {
	return func(o *loadOptions) {
		o.allowMissing = true
	}
}

// WithOverride applies fn to the parsed file before defaults and validation
func WithOverride(fn func(*Config)) LoadOption {
	return func(o *loadOptions) {
		o.overrides = append(o.overrides, fn)
	}
}

// Load reads, parses and finalizes the configuration file. The format is
// TOML for a .toml extension and YAML otherwise.
func Load(path string, opts ...LoadOption) (*Config, error) {
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}

	cfg, err := read(path)
	if err != nil {
		if !o.allowMissing || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		cfg = &Config{}
	}

	for _, fn := range o.overrides {
		fn(cfg)
	}

	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func read(path string) (*Config, error) {
	// Expand environment variables in path
	path, err := expandPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.File = path
	return &cfg, nil
}

// finalize expands paths, applies defaults and validates the result
func (c *Config) finalize() error {
	if err := c.expandEnv(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := c.applyDefaults(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	return nil
}

// expandEnv expands environment variables and ~ in all path fields
func (c *Config) expandEnv() error {
	for _, p := range []*string{&c.Paths.Source, &c.Paths.Target, &c.Paths.LogFile} {
		expanded, err := expandPath(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}
	return nil
}

// applyDefaults fills in zero-value fields and makes paths absolute
func (c *Config) applyDefaults() error {
	if c.Paths.Source == "" {
		c.Paths.Source = defaultSource
	}
	if c.Paths.Target == "" {
		c.Paths.Target = defaultTarget
	}
	if c.Paths.LogFile == "" {
		logFile, err := homedir.Expand(defaultLogFile)
		if err != nil {
			return fmt.Errorf("failed to resolve default log file: %w", err)
		}
		c.Paths.LogFile = logFile
	}

	if c.Sync.IntervalMS < 0 {
		c.Warnings = append(c.Warnings, fmt.Sprintf("sync.interval_ms %d is not positive, using %d", c.Sync.IntervalMS, DefaultIntervalMS))
	}
	if c.Sync.IntervalMS <= 0 {
		c.Sync.IntervalMS = DefaultIntervalMS
	}

	if c.Sync.OnError == "" {
		c.Sync.OnError = OnErrorSkip
	}

	for _, p := range []*string{&c.Paths.Source, &c.Paths.Target, &c.Paths.LogFile} {
		abs, err := filepath.Abs(*p)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", *p, err)
		}
		*p = abs
	}
	return nil
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Paths.Source == "" {
		return fmt.Errorf("paths.source is required")
	}
	if c.Paths.Target == "" {
		return fmt.Errorf("paths.target is required")
	}
	if c.Paths.LogFile == "" {
		return fmt.Errorf("paths.log_file is required")
	}

	// Ensure paths are absolute
	if !filepath.IsAbs(c.Paths.Source) {
		return fmt.Errorf("paths.source must be an absolute path: %s", c.Paths.Source)
	}
	if !filepath.IsAbs(c.Paths.Target) {
		return fmt.Errorf("paths.target must be an absolute path: %s", c.Paths.Target)
	}

	// The trees must not overlap
	if c.Paths.Source == c.Paths.Target {
		return fmt.Errorf("paths.source and paths.target must differ: %s", c.Paths.Source)
	}
	if isWithin(c.Paths.Source, c.Paths.Target) {
		return fmt.Errorf("paths.target must not be inside paths.source: %s", c.Paths.Target)
	}
	if isWithin(c.Paths.Target, c.Paths.Source) {
		return fmt.Errorf("paths.source must not be inside paths.target: %s", c.Paths.Source)
	}

	if c.Sync.IntervalMS <= 0 {
		return fmt.Errorf("sync.interval_ms must be positive: %d", c.Sync.IntervalMS)
	}

	switch c.Sync.OnError {
	case OnErrorSkip, OnErrorAbort:
		// valid
	default:
		return fmt.Errorf("invalid sync.on_error policy: %s (must be skip or abort)", c.Sync.OnError)
	}

	return nil
}

// Interval returns the pass interval as a duration
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Sync.IntervalMS) * time.Millisecond
}

// SetInterval parses a command-line interval in milliseconds. Values that are
// not positive integers fall back to DefaultIntervalMS with a warning.
func (c *Config) SetInterval(raw string) {
	ms, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || ms <= 0 {
		c.Warnings = append(c.Warnings, fmt.Sprintf("invalid interval %q, using %d", raw, DefaultIntervalMS))
		ms = DefaultIntervalMS
	}
	c.Sync.IntervalMS = ms
}

// expandPath expands environment variables and a leading ~
func expandPath(p string) (string, error) {
	expanded, err := homedir.Expand(os.ExpandEnv(p))
	if err != nil {
		return "", fmt.Errorf("failed to expand %s: %w", p, err)
	}
	return expanded, nil
}

// isWithin reports whether child lies below parent
func isWithin(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
