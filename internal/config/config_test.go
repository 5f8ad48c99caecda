package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mitchellh/go-homedir"

	"github.com/schaermu/treesyncd/internal/testutil"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	content := `
paths:
  source: "/data/source"
  target: "/backup/target"
  log_file: "/var/log/treesyncd/sync.log"

sync:
  interval_ms: 2500
  on_error: "abort"
`
	cfg, err := Load(writeConfig(t, "config.yaml", content))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Paths.Source != "/data/source" {
		t.Errorf("expected source /data/source, got %s", cfg.Paths.Source)
	}
	if cfg.Paths.Target != "/backup/target" {
		t.Errorf("expected target /backup/target, got %s", cfg.Paths.Target)
	}
	if cfg.Sync.IntervalMS != 2500 {
		t.Errorf("expected interval 2500, got %d", cfg.Sync.IntervalMS)
	}
	if cfg.Sync.OnError != OnErrorAbort {
		t.Errorf("expected on_error abort, got %s", cfg.Sync.OnError)
	}
	if len(cfg.Warnings) != 0 {
		t.Errorf("expected no warnings, got %v", cfg.Warnings)
	}
}

func TestLoad_TOML(t *testing.T) {
	content := `
[paths]
source = "/data/source"
target = "/backup/target"

[sync]
interval_ms = 1000
`
	cfg, err := Load(writeConfig(t, "config.toml", content))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Paths.Source != "/data/source" {
		t.Errorf("expected source /data/source, got %s", cfg.Paths.Source)
	}
	if cfg.Sync.IntervalMS != 1000 {
		t.Errorf("expected interval 1000, got %d", cfg.Sync.IntervalMS)
	}
	if cfg.Sync.OnError != OnErrorSkip {
		t.Errorf("expected default on_error skip, got %s", cfg.Sync.OnError)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{
			name:    "invalid yaml",
			file:    "config.yaml",
			content: "paths: [unclosed",
			wantErr: "failed to parse config file",
		},
		{
			name:    "invalid toml",
			file:    "config.toml",
			content: "[paths\nsource =",
			wantErr: "failed to parse config file",
		},
		{
			name:    "invalid policy",
			file:    "config.yaml",
			content: "paths:\n  source: /a\n  target: /b\nsync:\n  on_error: retry\n",
			wantErr: "invalid sync.on_error policy",
		},
		{
			name:    "nested target",
			file:    "config.yaml",
			content: "paths:\n  source: /a\n  target: /a/b\n",
			wantErr: "must not be inside",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.file, tt.content))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected a not-exist error, got %v", err)
	}
}

func TestLoad_AllowMissing(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "nonexistent.yaml"), AllowMissing(), WithOverride(func(c *Config) {
		c.Paths.Source = filepath.Join(dir, "a")
		c.Paths.Target = filepath.Join(dir, "b")
	}))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.File != "" {
		t.Errorf("expected no config file, got %s", cfg.File)
	}
	if cfg.Paths.Source != filepath.Join(dir, "a") {
		t.Errorf("override not applied, source is %s", cfg.Paths.Source)
	}
	if cfg.Sync.IntervalMS != DefaultIntervalMS {
		t.Errorf("expected default interval, got %d", cfg.Sync.IntervalMS)
	}
}

func TestLoad_AllowMissingKeepsParseErrors(t *testing.T) {
	_, err := Load(writeConfig(t, "config.yaml", "paths: [unclosed"), AllowMissing())
	if err == nil {
		t.Fatal("expected parse error, got nil")
	}
}

func TestLoad_OverrideBeatsFile(t *testing.T) {
	path := writeConfig(t, "config.yaml", "paths:\n  source: /data/source\n  target: /data/target\nsync:\n  interval_ms: 500\n")

	cfg, err := Load(path, WithOverride(func(c *Config) {
		c.Paths.Target = "/backup/target"
		c.SetInterval("750")
	}))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.File != path {
		t.Errorf("expected File %s, got %s", path, cfg.File)
	}
	if cfg.Paths.Source != "/data/source" {
		t.Errorf("expected source from file, got %s", cfg.Paths.Source)
	}
	if cfg.Paths.Target != "/backup/target" {
		t.Errorf("expected overridden target, got %s", cfg.Paths.Target)
	}
	if cfg.Sync.IntervalMS != 750 {
		t.Errorf("expected overridden interval 750, got %d", cfg.Sync.IntervalMS)
	}
}

func TestLoad_ExampleConfigs(t *testing.T) {
	for _, name := range []string{"config.example.yaml", "config.example.toml"} {
		t.Run(name, func(t *testing.T) {
			path, err := testutil.ExampleConfig(name)
			if err != nil {
				t.Fatalf("failed to locate example: %v", err)
			}

			cfg, err := Load(path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}

			home, err := homedir.Dir()
			if err != nil {
				t.Fatalf("failed to get home: %v", err)
			}
			if want := filepath.Join(home, "SourceFolder"); cfg.Paths.Source != want {
				t.Errorf("expected source %s, got %s", want, cfg.Paths.Source)
			}
			if cfg.Sync.IntervalMS != DefaultIntervalMS {
				t.Errorf("expected interval %d, got %d", DefaultIntervalMS, cfg.Sync.IntervalMS)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Paths: PathsConfig{
				Source:  "/data/source",
				Target:  "/data/target",
				LogFile: "/data/sync.log",
			},
			Sync: SyncConfig{
				IntervalMS: 6000,
				OnError:    OnErrorSkip,
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "abort policy", mutate: func(c *Config) { c.Sync.OnError = OnErrorAbort }},
		{name: "sibling with common prefix", mutate: func(c *Config) { c.Paths.Target = "/data/source-copy" }},
		{name: "missing source", mutate: func(c *Config) { c.Paths.Source = "" }, wantErr: true},
		{name: "missing target", mutate: func(c *Config) { c.Paths.Target = "" }, wantErr: true},
		{name: "missing log file", mutate: func(c *Config) { c.Paths.LogFile = "" }, wantErr: true},
		{name: "relative source", mutate: func(c *Config) { c.Paths.Source = "source" }, wantErr: true},
		{name: "relative target", mutate: func(c *Config) { c.Paths.Target = "target" }, wantErr: true},
		{name: "same paths", mutate: func(c *Config) { c.Paths.Target = c.Paths.Source }, wantErr: true},
		{name: "target inside source", mutate: func(c *Config) { c.Paths.Target = "/data/source/mirror" }, wantErr: true},
		{name: "source inside target", mutate: func(c *Config) { c.Paths.Source = "/data/target/in" }, wantErr: true},
		{name: "zero interval", mutate: func(c *Config) { c.Sync.IntervalMS = 0 }, wantErr: true},
		{name: "unknown policy", mutate: func(c *Config) { c.Sync.OnError = "retry" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	home, err := homedir.Dir()
	if err != nil {
		t.Fatal(err)
	}

	cfg := Config{}
	if err := cfg.applyDefaults(); err != nil {
		t.Fatalf("applyDefaults() failed: %v", err)
	}

	if cfg.Paths.Source != filepath.Join(wd, "SourceFolder") {
		t.Errorf("unexpected default source %s", cfg.Paths.Source)
	}
	if cfg.Paths.Target != filepath.Join(wd, "TargetFolder") {
		t.Errorf("unexpected default target %s", cfg.Paths.Target)
	}
	if cfg.Paths.LogFile != filepath.Join(home, "Documents", "sync.log") {
		t.Errorf("unexpected default log file %s", cfg.Paths.LogFile)
	}
	if cfg.Sync.IntervalMS != DefaultIntervalMS {
		t.Errorf("applyDefaults() did not set interval, got %d", cfg.Sync.IntervalMS)
	}
	if cfg.Sync.OnError != OnErrorSkip {
		t.Errorf("applyDefaults() did not set on_error, got %q", cfg.Sync.OnError)
	}
	if len(cfg.Warnings) != 0 {
		t.Errorf("unset interval must not warn, got %v", cfg.Warnings)
	}

	// Explicit values must not be overwritten
	cfg2 := Config{Sync: SyncConfig{IntervalMS: 100, OnError: OnErrorAbort}}
	if err := cfg2.applyDefaults(); err != nil {
		t.Fatal(err)
	}
	if cfg2.Sync.IntervalMS != 100 || cfg2.Sync.OnError != OnErrorAbort {
		t.Errorf("applyDefaults() overwrote explicit sync settings: %+v", cfg2.Sync)
	}
}

func TestApplyDefaults_NegativeInterval(t *testing.T) {
	cfg := Config{Sync: SyncConfig{IntervalMS: -5}}
	if err := cfg.applyDefaults(); err != nil {
		t.Fatal(err)
	}

	if cfg.Sync.IntervalMS != DefaultIntervalMS {
		t.Errorf("expected fallback to %d, got %d", DefaultIntervalMS, cfg.Sync.IntervalMS)
	}
	if len(cfg.Warnings) != 1 {
		t.Errorf("expected one warning, got %v", cfg.Warnings)
	}
}

func TestSetInterval(t *testing.T) {
	tests := []struct {
		raw      string
		want     int
		wantWarn bool
	}{
		{raw: "1500", want: 1500},
		{raw: " 42 ", want: 42},
		{raw: "0", want: DefaultIntervalMS, wantWarn: true},
		{raw: "-10", want: DefaultIntervalMS, wantWarn: true},
		{raw: "soon", want: DefaultIntervalMS, wantWarn: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			var cfg Config
			cfg.SetInterval(tt.raw)

			if cfg.Sync.IntervalMS != tt.want {
				t.Errorf("SetInterval(%q) = %d, want %d", tt.raw, cfg.Sync.IntervalMS, tt.want)
			}
			if got := len(cfg.Warnings) > 0; got != tt.wantWarn {
				t.Errorf("SetInterval(%q) warned = %v, want %v", tt.raw, got, tt.wantWarn)
			}
		})
	}
}

func TestInterval(t *testing.T) {
	cfg := Config{Sync: SyncConfig{IntervalMS: 6000}}
	if got := cfg.Interval().Seconds(); got != 6 {
		t.Errorf("Interval() = %vs, want 6s", got)
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("TREESYNCD_TEST_ROOT", "/srv/test")

	home, err := homedir.Dir()
	if err != nil {
		t.Fatal(err)
	}

	cfg := Config{
		Paths: PathsConfig{
			Source:  "${TREESYNCD_TEST_ROOT}/source",
			Target:  "~/target",
			LogFile: "$TREESYNCD_TEST_ROOT/logs/sync.log",
		},
	}

	if err := cfg.expandEnv(); err != nil {
		t.Fatalf("expandEnv() failed: %v", err)
	}

	checks := []struct {
		name string
		got  string
		want string
	}{
		{"Paths.Source", cfg.Paths.Source, "/srv/test/source"},
		{"Paths.Target", cfg.Paths.Target, filepath.Join(home, "target")},
		{"Paths.LogFile", cfg.Paths.LogFile, "/srv/test/logs/sync.log"},
	}

	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("expandEnv() %s = %s, want %s", c.name, c.got, c.want)
		}
	}
}

func TestDefaultPath(t *testing.T) {
	path, err := DefaultPath()
	if err != nil {
		t.Fatalf("DefaultPath() failed: %v", err)
	}
	if !strings.HasSuffix(path, filepath.Join(".config", "treesyncd", "config.yaml")) {
		t.Errorf("unexpected default path %s", path)
	}
}
