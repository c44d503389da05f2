package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all argus configuration.
type Config struct {
	// Backend connection
	Server ServerConfig `yaml:"server"`

	// Chat view: reveal cadence, notices, theme
	Chat ChatConfig `yaml:"chat"`

	// Dashboard view: metric polling
	Dashboard DashboardConfig `yaml:"dashboard"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// Bundled development backend
	DevServer DevServerConfig `yaml:"devserver"`
}

// ServerConfig configures the backend HTTP client.
type ServerConfig struct {
	BaseURL string `yaml:"base_url"`
	// Timeout bounds non-streaming calls (upload, reset, metrics).
	// Streamed replies are bounded only by cancellation.
	Timeout string `yaml:"timeout"`
}

// ChatConfig configures the streamed reply renderer.
type ChatConfig struct {
	RevealDelay   string `yaml:"reveal_delay"`   // per-character pacing
	NoticeTimeout string `yaml:"notice_timeout"` // auto-dismiss; "0" disables
	Theme         string `yaml:"theme"`          // light, dark, auto
	ResetOnStart  bool   `yaml:"reset_on_start"`
}

// DashboardConfig configures the metric poller.
type DashboardConfig struct {
	MetricsInterval string  `yaml:"metrics_interval"`
	DriftThreshold  float64 `yaml:"drift_threshold"`
}

// DevServerConfig configures `argus devserver`.
type DevServerConfig struct {
	Addr           string `yaml:"addr"`
	UploadDir      string `yaml:"upload_dir"`
	MetricsPath    string `yaml:"metrics_path"`
	RatePerMinute  int    `yaml:"rate_per_minute"`
	Burst          int    `yaml:"burst"`
	ChunkDelay     string `yaml:"chunk_delay"`
	WarnAfterTurns int    `yaml:"warn_after_turns"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL: "http://localhost:7860",
			Timeout: "30s",
		},
		Chat: ChatConfig{
			RevealDelay:   "10ms",
			NoticeTimeout: "5s",
			Theme:         "auto",
			ResetOnStart:  true,
		},
		Dashboard: DashboardConfig{
			MetricsInterval: "15s",
			DriftThreshold:  0.2,
		},
		Logging: LoggingConfig{
			Level:     "info",
			DebugMode: false,
			Dir:       filepath.Join(".argus", "logs"),
		},
		DevServer: DevServerConfig{
			Addr:           "127.0.0.1:7860",
			UploadDir:      filepath.Join(".argus", "uploads"),
			RatePerMinute:  20,
			Burst:          5,
			ChunkDelay:     "40ms",
			WarnAfterTurns: 8,
		},
	}
}

// DefaultConfigPath returns the project-local config path.
func DefaultConfigPath() string {
	if cwd, err := os.Getwd(); err == nil {
		return filepath.Join(cwd, ".argus", "config.yaml")
	}
	return filepath.Join(".argus", "config.yaml")
}

// Load loads configuration from a YAML file. A missing file yields defaults.
// Environment overrides apply in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ARGUS_BASE_URL"); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv("ARGUS_THEME"); v != "" {
		c.Chat.Theme = v
	}
	if v := os.Getenv("ARGUS_REVEAL_DELAY"); v != "" {
		c.Chat.RevealDelay = v
	}
	if v := os.Getenv("ARGUS_DEBUG"); v != "" {
		if on, err := strconv.ParseBool(v); err == nil {
			c.Logging.DebugMode = on
		}
	}
	if v := os.Getenv("ARGUS_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks settings that would otherwise fail late.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("server.base_url must be an absolute URL, got %q", c.Server.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server.base_url scheme must be http or https, got %q", u.Scheme)
	}
	for name, v := range map[string]string{
		"server.timeout":             c.Server.Timeout,
		"chat.reveal_delay":          c.Chat.RevealDelay,
		"chat.notice_timeout":        c.Chat.NoticeTimeout,
		"dashboard.metrics_interval": c.Dashboard.MetricsInterval,
	} {
		if v == "" {
			continue
		}
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	switch strings.ToLower(c.Chat.Theme) {
	case "", "auto", "light", "dark":
	default:
		return fmt.Errorf("chat.theme must be auto, light or dark, got %q", c.Chat.Theme)
	}
	if c.Dashboard.DriftThreshold <= 0 {
		return fmt.Errorf("dashboard.drift_threshold must be positive")
	}
	return nil
}

// parseDuration accepts Go durations and a bare "0".
func parseDuration(v string) (time.Duration, error) {
	if v == "0" {
		return 0, nil
	}
	return time.ParseDuration(v)
}

func durationOr(v string, fallback time.Duration) time.Duration {
	d, err := parseDuration(v)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

// GetServerTimeout returns the non-streaming request timeout.
func (c *Config) GetServerTimeout() time.Duration {
	return durationOr(c.Server.Timeout, 30*time.Second)
}

// GetRevealDelay returns the per-character reveal delay.
func (c *Config) GetRevealDelay() time.Duration {
	return durationOr(c.Chat.RevealDelay, 10*time.Millisecond)
}

// GetNoticeTimeout returns how long notices stay visible. Zero disables auto-dismiss.
func (c *Config) GetNoticeTimeout() time.Duration {
	return durationOr(c.Chat.NoticeTimeout, 5*time.Second)
}

// GetMetricsInterval returns the dashboard polling interval.
func (c *Config) GetMetricsInterval() time.Duration {
	return durationOr(c.Dashboard.MetricsInterval, 15*time.Second)
}

// GetChunkDelay returns the devserver delay between streamed chunks.
func (c *Config) GetChunkDelay() time.Duration {
	return durationOr(c.DevServer.ChunkDelay, 40*time.Millisecond)
}
