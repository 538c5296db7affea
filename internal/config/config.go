// Package config loads client settings from defaults, an optional YAML
// file, APPMAKER_* environment variables and command-line flags, in that
// order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const (
	EnvPrefix   = "APPMAKER_"
	DefaultFile = "appmaker.yaml"
)

// Config holds all client configuration.
type Config struct {
	// Backend
	ServerURL      string        `koanf:"server_url" yaml:"server_url"`
	RequestTimeout time.Duration `koanf:"request_timeout" yaml:"request_timeout"`
	RetryAttempts  int           `koanf:"retry_attempts" yaml:"retry_attempts"`

	// Session
	PollInterval       time.Duration `koanf:"poll_interval" yaml:"poll_interval"`
	SettleDelay        time.Duration `koanf:"settle_delay" yaml:"settle_delay"`
	LogScope           string        `koanf:"log_scope" yaml:"log_scope"`
	StopPollingOnError bool          `koanf:"stop_polling_on_error" yaml:"stop_polling_on_error"`
	AutoPollOnRun      bool          `koanf:"auto_poll_on_run" yaml:"auto_poll_on_run"`
	AutoSelectLast     bool          `koanf:"auto_select_last" yaml:"auto_select_last"`
	DefaultProvider    string        `koanf:"default_provider" yaml:"default_provider"`
	DefaultModel       string        `koanf:"default_model" yaml:"default_model"`

	// Local bridge
	ListenAddr string `koanf:"listen_addr" yaml:"listen_addr"`

	// Logging
	LogLevel  string `koanf:"log_level" yaml:"log_level"`
	LogFormat string `koanf:"log_format" yaml:"log_format"`
	LogOutput string `koanf:"log_output" yaml:"log_output"`

	// FileUsed is the config file that was read, if any.
	FileUsed string `koanf:"-" yaml:"-"`
}

// Defaults returns the built-in settings.
func Defaults() map[string]any {
	return map[string]any{
		"server_url":            "http://127.0.0.1:8000",
		"request_timeout":       "2m",
		"retry_attempts":        3,
		"poll_interval":         "1s",
		"settle_delay":          "5s",
		"log_scope":             "global",
		"stop_polling_on_error": false,
		"auto_poll_on_run":      true,
		"auto_select_last":      true,
		"default_provider":      "gemini",
		"default_model":         "gemini-1.5-pro",
		"listen_addr":           "127.0.0.1:8765",
		"log_level":             "info",
		"log_format":            "auto",
		"log_output":            "stderr",
	}
}

// BindFlags registers the overridable settings on fs. Only flags the user
// actually set take part in Load.
func BindFlags(fs *pflag.FlagSet) {
	fs.String("server-url", "http://127.0.0.1:8000", "App Maker backend URL")
	fs.Duration("request-timeout", 2*time.Minute, "timeout for a single backend request")
	fs.Duration("poll-interval", time.Second, "log and problem refresh interval")
	fs.String("log-scope", "global", "log stream to poll: global or project")
	fs.String("log-level", "info", "log level: debug, info, warn, error")
	fs.String("log-format", "auto", "log format: json, console or auto")
}

// Load reads the configuration. An empty path uses appmaker.yaml from the
// working directory when present. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	used := findFile(path)
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", used, err)
		}
	}

	// APPMAKER_POLL_INTERVAL -> poll_interval
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed || f.Name == "config" {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.FileUsed = used

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func findFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if _, err := os.Stat(DefaultFile); err == nil {
		return DefaultFile
	}
	return ""
}

// Validate rejects settings the client cannot run with.
func (c *Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("server_url %q must be an http(s) URL", c.ServerURL))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request_timeout must be positive"))
	}
	if c.RetryAttempts < 1 {
		errs = append(errs, errors.New("retry_attempts must be at least 1"))
	}
	if c.PollInterval < 100*time.Millisecond {
		errs = append(errs, errors.New("poll_interval must be at least 100ms"))
	}
	if c.SettleDelay < 0 {
		errs = append(errs, errors.New("settle_delay must not be negative"))
	}
	switch strings.ToLower(c.LogScope) {
	case "global", "project":
	default:
		errs = append(errs, fmt.Errorf("log_scope %q must be global or project", c.LogScope))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %q is not a known level", c.LogLevel))
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "console", "auto", "":
	default:
		errs = append(errs, fmt.Errorf("log_format %q must be json, console or auto", c.LogFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// ServerBase returns ServerURL without a trailing slash.
func (c *Config) ServerBase() string {
	return strings.TrimRight(c.ServerURL, "/")
}
