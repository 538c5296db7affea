package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "appmaker.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:8000", cfg.ServerURL)
	assert.Equal(t, 2*time.Minute, cfg.RequestTimeout)
	assert.Equal(t, 3, cfg.RetryAttempts)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, 5*time.Second, cfg.SettleDelay)
	assert.Equal(t, "global", cfg.LogScope)
	assert.True(t, cfg.AutoPollOnRun)
	assert.True(t, cfg.AutoSelectLast)
	assert.Equal(t, "gemini", cfg.DefaultProvider)
	assert.Equal(t, "gemini-1.5-pro", cfg.DefaultModel)
	assert.Empty(t, cfg.FileUsed)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, `
server_url: http://backend:9000/
poll_interval: 2s
log_scope: project
log_level: debug
auto_select_last: false
`)

	t.Setenv("APPMAKER_POLL_INTERVAL", "3s")
	t.Setenv("APPMAKER_LOG_LEVEL", "warn")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"--log-level=error"}))

	cfg, err := Load(path, fs)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.FileUsed)
	assert.Equal(t, "http://backend:9000/", cfg.ServerURL, "file overrides default")
	assert.Equal(t, "http://backend:9000", cfg.ServerBase())
	assert.Equal(t, "project", cfg.LogScope, "file value survives untouched flags")
	assert.False(t, cfg.AutoSelectLast)
	assert.Equal(t, 3*time.Second, cfg.PollInterval, "env overrides file")
	assert.Equal(t, "error", cfg.LogLevel, "changed flag overrides env")
}

func TestLoadPicksUpFileInWorkingDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "default_model: gemini-1.5-flash\n")
	t.Chdir(dir)

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultFile, cfg.FileUsed)
	assert.Equal(t, "gemini-1.5-flash", cfg.DefaultModel)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		errSubstr string
	}{
		{"bad url", func(c *Config) { c.ServerURL = "localhost:8000" }, "server_url"},
		{"zero timeout", func(c *Config) { c.RequestTimeout = 0 }, "request_timeout"},
		{"no attempts", func(c *Config) { c.RetryAttempts = 0 }, "retry_attempts"},
		{"fast polling", func(c *Config) { c.PollInterval = time.Millisecond }, "poll_interval"},
		{"negative settle", func(c *Config) { c.SettleDelay = -time.Second }, "settle_delay"},
		{"unknown scope", func(c *Config) { c.LogScope = "all" }, "log_scope"},
		{"unknown level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"unknown format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			cfg, err := Load("", nil)
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func TestLoadRejectsInvalidEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("APPMAKER_LOG_SCOPE", "everything")

	_, err := Load("", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_scope")
}

func TestWatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "log_level: info\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, nil, func(cfg *Config, err error) {
			if err == nil {
				reloaded <- cfg
			}
		})
	}()

	// Give the watcher time to register before writing.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("log_level: debug\n"), 0o644))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, "debug", cfg.LogLevel)
	case <-time.After(3 * time.Second):
		t.Fatal("config was not reloaded")
	}

	cancel()
	require.NoError(t, <-done)
}
