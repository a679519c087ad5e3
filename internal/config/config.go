package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	toml "github.com/pelletier/go-toml/v2"
)

// Config captures everything feedline reads from config.toml.
type Config struct {
	APIBase      string        `validate:"required"`
	Timeline     string        `validate:"required,excludesall=?#"`
	PageSize     int           `validate:"min=1,max=100"`
	PollInterval time.Duration `validate:"min=0"`
	CachePath    string        // empty disables the cache
	LogPath      string
	LogLevel     string `validate:"oneof=trace debug info warn error"`
	LogFormat    string `validate:"oneof=json console"`
	MetricsAddr  string `validate:"omitempty,hostname_port"`
}

const (
	defaultConfigPath = "~/.config/feedline/config.toml"
	defaultCachePath  = "~/.local/share/feedline/cache.db"
	defaultLogPath    = "~/.local/state/feedline/feedline.log"
	defaultAPIBase    = "127.0.0.1:8080"
	defaultTimeline   = "home"
	defaultPageSize   = 20
	defaultLogLevel   = "info"
	defaultLogFormat  = "json"

	// cacheOff in cache_path disables the first-page cache.
	cacheOff = "off"
)

var validate = validator.New()

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		APIBase:   defaultAPIBase,
		Timeline:  defaultTimeline,
		PageSize:  defaultPageSize,
		CachePath: mustExpand(defaultCachePath),
		LogPath:   mustExpand(defaultLogPath),
		LogLevel:  defaultLogLevel,
		LogFormat: defaultLogFormat,
	}
}

// Load locates and parses config.toml, falling back to defaults when missing.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path, defaultConfigPath)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw struct {
		APIBase      string `toml:"api_base"`
		Timeline     string `toml:"timeline"`
		PageSize     int    `toml:"page_size"`
		PollInterval string `toml:"poll_interval"`
		CachePath    string `toml:"cache_path"`
		LogPath      string `toml:"log_path"`
		LogLevel     string `toml:"log_level"`
		LogFormat    string `toml:"log_format"`
		MetricsAddr  string `toml:"metrics_addr"`
	}
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if v := strings.TrimSpace(raw.APIBase); v != "" {
		cfg.APIBase = v
	}
	if v := strings.TrimSpace(raw.Timeline); v != "" {
		cfg.Timeline = v
	}
	if raw.PageSize != 0 {
		cfg.PageSize = raw.PageSize
	}
	if v := strings.TrimSpace(raw.PollInterval); v != "" {
		interval, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse poll_interval: %w", err)
		}
		cfg.PollInterval = interval
	}
	switch v := strings.TrimSpace(raw.CachePath); {
	case strings.EqualFold(v, cacheOff):
		cfg.CachePath = ""
	case v == ":memory:":
		cfg.CachePath = v
	case v != "":
		cfg.CachePath = mustExpand(v)
	}
	if v := strings.TrimSpace(raw.LogPath); v != "" {
		if v == "stderr" || v == "stdout" {
			cfg.LogPath = v
		} else {
			cfg.LogPath = mustExpand(v)
		}
	}
	if v := strings.TrimSpace(raw.LogLevel); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := strings.TrimSpace(raw.LogFormat); v != "" {
		cfg.LogFormat = strings.ToLower(v)
	}
	cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field ranges and enumerations.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// CacheEnabled reports whether the first-page cache should be opened.
func (c Config) CacheEnabled() bool {
	return strings.TrimSpace(c.CachePath) != ""
}

func resolvePath(path, fallback string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(fallback)
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
