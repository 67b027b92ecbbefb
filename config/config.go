package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"

	"github.com/clickweave/clickweave/pkg/logger"
)

// Input backends.
const (
	BackendDesktop = "desktop"
	BackendBrowser = "browser"
	BackendDryRun  = "dryrun"
)

type Config struct {
	Debug     bool                `json:"debug" toml:"debug"`
	Server    ServerConfig        `json:"server" toml:"server"`
	Database  DatabaseConfig      `json:"database" toml:"database"`
	Auth      AuthConfig          `json:"auth" toml:"auth"`
	Input     InputConfig         `json:"input" toml:"input"`
	Safety    SafetyConfig        `json:"safety" toml:"safety"`
	Engine    EngineConfig        `json:"engine" toml:"engine"`
	Scheduler SchedulerConfig     `json:"scheduler" toml:"scheduler"`
	History   HistoryConfig       `json:"history" toml:"history"`
	MCP       MCPConfig           `json:"mcp" toml:"mcp"`
	Log       logger.LoggerConfig `json:"log" toml:"log"`
}

type ServerConfig struct {
	Port string `json:"port" toml:"port"`
	Host string `json:"host" toml:"host"`
}

type DatabaseConfig struct {
	Path string `json:"path" toml:"path"`
}

// AuthConfig enables bearer-token auth on the HTTP API.
type AuthConfig struct {
	Enabled       bool   `json:"enabled" toml:"enabled"`
	Secret        string `json:"secret" toml:"secret"`
	TokenTTLHours int    `json:"token_ttl_hours" toml:"token_ttl_hours"`
}

type InputConfig struct {
	Backend string        `json:"backend" toml:"backend"`
	Browser BrowserConfig `json:"browser" toml:"browser"`
	DryRun  DryRunConfig  `json:"dryrun" toml:"dryrun"`
}

// BrowserConfig drives a Chrome page as the input surface.
type BrowserConfig struct {
	BinPath    string `json:"bin_path" toml:"bin_path"`
	ControlURL string `json:"control_url,omitempty" toml:"control_url,omitempty"`
	StartURL   string `json:"start_url" toml:"start_url"`
	Headless   bool   `json:"headless" toml:"headless"`
	Width      int    `json:"width" toml:"width"`
	Height     int    `json:"height" toml:"height"`
}

type DryRunConfig struct {
	Width  int `json:"width" toml:"width"`
	Height int `json:"height" toml:"height"`
}

type SafetyConfig struct {
	FailsafeEnabled bool   `json:"failsafe_enabled" toml:"failsafe_enabled"`
	FailsafeCorner  string `json:"failsafe_corner" toml:"failsafe_corner"`
	FailsafeSize    int    `json:"failsafe_size" toml:"failsafe_size"`
	StopGraceMS     int    `json:"stop_grace_ms" toml:"stop_grace_ms"`
	// StopWatcherOnEmergency also halts pixel monitoring on emergency stop.
	StopWatcherOnEmergency bool `json:"stop_watcher_on_emergency" toml:"stop_watcher_on_emergency"`
}

type EngineConfig struct {
	MoveSettleMS int `json:"move_settle_ms" toml:"move_settle_ms"`
	LoopGapMS    int `json:"loop_gap_ms" toml:"loop_gap_ms"`
}

type SchedulerConfig struct {
	Workers  int    `json:"workers" toml:"workers"`
	Timezone string `json:"timezone,omitempty" toml:"timezone,omitempty"`
}

type HistoryConfig struct {
	MaxEntries int `json:"max_entries" toml:"max_entries"`
}

type MCPConfig struct {
	Enabled bool   `json:"enabled" toml:"enabled"`
	Path    string `json:"path" toml:"path"`
}

// Default returns the configuration written on first run.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Port: "8080", Host: "127.0.0.1"},
		Database: DatabaseConfig{Path: "./data/clickweave.db"},
		Auth:     AuthConfig{TokenTTLHours: 24},
		Input: InputConfig{
			Backend: BackendDesktop,
			Browser: BrowserConfig{StartURL: "about:blank", Headless: true, Width: 1280, Height: 800},
			DryRun:  DryRunConfig{Width: 1920, Height: 1080},
		},
		Safety: SafetyConfig{
			FailsafeEnabled:        true,
			FailsafeCorner:         "top-left",
			FailsafeSize:           50,
			StopGraceMS:            2000,
			StopWatcherOnEmergency: true,
		},
		Engine:    EngineConfig{MoveSettleMS: 50, LoopGapMS: 50},
		Scheduler: SchedulerConfig{Workers: 5},
		History:   HistoryConfig{MaxEntries: 1000},
		MCP:       MCPConfig{Enabled: true, Path: "/mcp"},
		Log: logger.LoggerConfig{
			Level:      "info",
			File:       "./log/clickweave.log",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
		},
	}
}

// Load reads path. A missing file yields the defaults, which are written
// back to path. Fields absent from the file keep their defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		for _, dir := range []string{filepath.Dir(cfg.Database.Path), filepath.Dir(cfg.Log.File)} {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				logger.Warn(context.Background(), "Failed to create directory %s: %v", dir, err)
			}
		}
		if out, err := toml.Marshal(cfg); err == nil {
			if err := os.WriteFile(path, out, 0o644); err != nil {
				logger.Warn(context.Background(), "Failed to write default config %s: %v", path, err)
			}
		}
	case err != nil:
		return nil, errors.Wrapf(err, "read config %s", path)
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("CLICKWEAVE_INPUT"); v != "" {
		c.Input.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("CLICKWEAVE_JWT_SECRET"); v != "" {
		c.Auth.Secret = v
	}
	if v := os.Getenv("CHROME_BIN_PATH"); v != "" {
		c.Input.Browser.BinPath = v
	}
}

func (c *Config) Validate() error {
	switch c.Input.Backend {
	case BackendDesktop, BackendBrowser, BackendDryRun:
	default:
		return errors.Errorf("unknown input backend %q", c.Input.Backend)
	}
	switch c.Safety.FailsafeCorner {
	case "top-left", "top-right", "bottom-left", "bottom-right":
	default:
		return errors.Errorf("unknown failsafe corner %q", c.Safety.FailsafeCorner)
	}
	if c.Auth.Enabled && c.Auth.Secret == "" {
		return errors.New("auth enabled without a secret")
	}
	if c.Scheduler.Workers < 1 {
		return errors.Errorf("scheduler workers must be >= 1, got %d", c.Scheduler.Workers)
	}
	if c.Scheduler.Timezone != "" {
		if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
			return errors.Wrap(err, "scheduler timezone")
		}
	}
	return nil
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

func (c *Config) StopGrace() time.Duration {
	return time.Duration(c.Safety.StopGraceMS) * time.Millisecond
}

func (c *Config) MoveSettle() time.Duration {
	return time.Duration(c.Engine.MoveSettleMS) * time.Millisecond
}

func (c *Config) LoopGap() time.Duration {
	return time.Duration(c.Engine.LoopGapMS) * time.Millisecond
}

func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenTTLHours) * time.Hour
}

// Location is the scheduler's time zone, local time when unset.
func (c *Config) Location() *time.Location {
	if c.Scheduler.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
