package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	toml "github.com/pelletier/go-toml/v2"
)

// EnvPrefix namespaces environment overrides, e.g. LEAFRUN_API_BASE.
const EnvPrefix = "leafrun"

// Config holds the resolved leafrun settings.
type Config struct {
	APIBase         string        `split_words:"true"`
	RoutesPath      string        `split_words:"true"`
	ReportsPath     string        `split_words:"true"`
	InitPath        string        `split_words:"true"`
	PromoterID      string        `split_words:"true"`
	DataDir         string        `split_words:"true"`
	StoreBackend    string        `split_words:"true"`
	Namespace       string        `split_words:"true"`
	RequestTimeout  time.Duration `split_words:"true"`
	SyncInterval    time.Duration `split_words:"true"`
	ProbeInterval   time.Duration `split_words:"true"`
	PriorityKeyword string        `split_words:"true"`
	LogLevel        string        `split_words:"true"`
	LogFormat       string        `split_words:"true"`
	MetricsAddr     string        `split_words:"true"`
}

const (
	defaultConfigPath     = "~/.config/leafrun/config.toml"
	defaultDataDir        = "~/.local/share/leafrun"
	defaultAPIBase        = "http://127.0.0.1:8080"
	defaultRoutesPath     = "/routes"
	defaultReportsPath    = "/reports"
	defaultInitPath       = "/init-data"
	defaultPromoterID     = "1"
	defaultStoreBackend   = "badger"
	defaultNamespace      = "promoter_"
	defaultRequestTimeout = 10 * time.Second
	defaultSyncInterval   = 30 * time.Second
	defaultProbeInterval  = 15 * time.Second
	defaultLogLevel       = "info"
	defaultLogFormat      = "console"
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		APIBase:        defaultAPIBase,
		RoutesPath:     defaultRoutesPath,
		ReportsPath:    defaultReportsPath,
		InitPath:       defaultInitPath,
		PromoterID:     defaultPromoterID,
		DataDir:        mustExpand(defaultDataDir),
		StoreBackend:   defaultStoreBackend,
		Namespace:      defaultNamespace,
		RequestTimeout: defaultRequestTimeout,
		SyncInterval:   defaultSyncInterval,
		ProbeInterval:  defaultProbeInterval,
		LogLevel:       defaultLogLevel,
		LogFormat:      defaultLogFormat,
	}
}

// fileConfig mirrors the TOML layout. Durations are strings like "10s".
type fileConfig struct {
	APIBase         string `toml:"api_base"`
	RoutesPath      string `toml:"routes_path"`
	ReportsPath     string `toml:"reports_path"`
	InitPath        string `toml:"init_path"`
	PromoterID      string `toml:"promoter_id"`
	DataDir         string `toml:"data_dir"`
	StoreBackend    string `toml:"store_backend"`
	Namespace       string `toml:"namespace"`
	RequestTimeout  string `toml:"request_timeout"`
	SyncInterval    string `toml:"sync_interval"`
	ProbeInterval   string `toml:"probe_interval"`
	PriorityKeyword string `toml:"priority_keyword"`
	LogLevel        string `toml:"log_level"`
	LogFormat       string `toml:"log_format"`
	MetricsAddr     string `toml:"metrics_addr"`
}

// Load reads the TOML file at path (or the default location), then applies
// LEAFRUN_* environment overrides. A missing file yields the defaults.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()

	file, err := os.Open(resolved)
	switch {
	case err == nil:
		defer func() { _ = file.Close() }()
		bytes, err := io.ReadAll(file)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		var raw fileConfig
		if err := toml.Unmarshal(bytes, &raw); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
		if err := cfg.merge(raw); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("open config: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("environment overrides: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) merge(raw fileConfig) error {
	setString(&c.APIBase, raw.APIBase)
	setString(&c.RoutesPath, raw.RoutesPath)
	setString(&c.ReportsPath, raw.ReportsPath)
	setString(&c.InitPath, raw.InitPath)
	setString(&c.PromoterID, raw.PromoterID)
	setString(&c.DataDir, raw.DataDir)
	setString(&c.StoreBackend, raw.StoreBackend)
	setString(&c.Namespace, raw.Namespace)
	setString(&c.PriorityKeyword, raw.PriorityKeyword)
	setString(&c.LogLevel, raw.LogLevel)
	setString(&c.LogFormat, raw.LogFormat)
	setString(&c.MetricsAddr, raw.MetricsAddr)

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"request_timeout", raw.RequestTimeout, &c.RequestTimeout},
		{"sync_interval", raw.SyncInterval, &c.SyncInterval},
		{"probe_interval", raw.ProbeInterval, &c.ProbeInterval},
	}
	for _, d := range durations {
		v := strings.TrimSpace(d.raw)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = parsed
	}
	return nil
}

func (c *Config) normalize() {
	c.StoreBackend = strings.ToLower(strings.TrimSpace(c.StoreBackend))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	c.APIBase = strings.TrimSpace(c.APIBase)
	c.PromoterID = strings.TrimSpace(c.PromoterID)
	if strings.TrimSpace(c.DataDir) != "" {
		c.DataDir = mustExpand(c.DataDir)
	}
}

// Validate reports settings that cannot work.
func (c Config) Validate() error {
	switch c.StoreBackend {
	case "badger", "sqlite", "memory":
	default:
		return fmt.Errorf("store_backend %q: want badger, sqlite or memory", c.StoreBackend)
	}
	if c.APIBase == "" {
		return fmt.Errorf("api_base is required")
	}
	if c.RequestTimeout <= 0 || c.SyncInterval <= 0 || c.ProbeInterval <= 0 {
		return fmt.Errorf("request_timeout, sync_interval and probe_interval must be positive")
	}
	return nil
}

// LogPath returns the file the TUI logs to.
func (c Config) LogPath() string {
	if strings.TrimSpace(c.DataDir) == "" {
		return mustExpand(defaultDataDir + "/leafrun.log")
	}
	return filepath.Join(c.DataDir, "leafrun.log")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return defaultConfigPath
}

func setString(dst *string, v string) {
	if trimmed := strings.TrimSpace(v); trimmed != "" {
		*dst = trimmed
	}
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
