package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"ARGUS_BASE_URL", "ARGUS_THEME", "ARGUS_REVEAL_DELAY", "ARGUS_DEBUG", "ARGUS_LOG_LEVEL"} {
		t.Setenv(k, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "http://localhost:7860", cfg.Server.BaseURL)
	assert.Equal(t, 10*time.Millisecond, cfg.GetRevealDelay())
	assert.Equal(t, 5*time.Second, cfg.GetNoticeTimeout())
	assert.Equal(t, 15*time.Second, cfg.GetMetricsInterval())
	assert.True(t, cfg.Chat.ResetOnStart)
	require.NoError(t, cfg.Validate())
}

func TestConfig_SaveLoad(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := DefaultConfig()
	cfg.Server.BaseURL = "https://argus.example.com"
	cfg.Chat.RevealDelay = "25ms"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://argus.example.com", loaded.Server.BaseURL)
	assert.Equal(t, 25*time.Millisecond, loaded.GetRevealDelay())
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chat:\n  theme: dark\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "dark", cfg.Chat.Theme)
	assert.Equal(t, "10ms", cfg.Chat.RevealDelay)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chat: [unterminated"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("ARGUS_BASE_URL", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ARGUS_BASE_URL", "http://10.0.0.5:9000")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, "http://10.0.0.5:9000", cfg.Server.BaseURL)
	})

	t.Run("ARGUS_DEBUG toggles debug mode", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ARGUS_DEBUG", "true")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.True(t, cfg.Logging.DebugMode)
	})

	t.Run("unparseable ARGUS_DEBUG is ignored", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ARGUS_DEBUG", "maybe")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.False(t, cfg.Logging.DebugMode)
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"relative url", func(c *Config) { c.Server.BaseURL = "localhost:7860" }},
		{"bad scheme", func(c *Config) { c.Server.BaseURL = "ftp://host" }},
		{"bad duration", func(c *Config) { c.Chat.RevealDelay = "fast" }},
		{"negative duration", func(c *Config) { c.Chat.NoticeTimeout = "-1s" }},
		{"bad theme", func(c *Config) { c.Chat.Theme = "neon" }},
		{"zero threshold", func(c *Config) { c.Dashboard.DriftThreshold = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestGetNoticeTimeout_ZeroDisables(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Chat.NoticeTimeout = "0"
	assert.Equal(t, time.Duration(0), cfg.GetNoticeTimeout())
	require.NoError(t, cfg.Validate())
}

func TestLoggingConfig_IsCategoryEnabled(t *testing.T) {
	lc := LoggingConfig{DebugMode: true, Categories: map[string]bool{"api": false}}
	assert.False(t, lc.IsCategoryEnabled("api"))
	assert.True(t, lc.IsCategoryEnabled("stream"))

	lc.DebugMode = false
	assert.False(t, lc.IsCategoryEnabled("stream"))
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, DefaultConfig().Save(path))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path, func(c *Config) { changes <- c }) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)

	cfg := DefaultConfig()
	cfg.Chat.RevealDelay = "50ms"
	require.NoError(t, cfg.Save(path))

	select {
	case got := <-changes:
		assert.Equal(t, 50*time.Millisecond, got.GetRevealDelay())
	case <-time.After(3 * time.Second):
		t.Fatal("expected reload after write")
	}

	cancel()
	require.NoError(t, <-done)
}
