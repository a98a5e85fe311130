// Package config loads the TruthGuard process configuration from
// ~/.truthguard/config.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/felixgeelhaar/truthguard/pkg/domain/settings"
	"gopkg.in/yaml.v3"
)

const (
	dirName    = ".truthguard"
	configFile = "config.yaml"

	// EnvServiceURL overrides the seeded scoring service URL.
	EnvServiceURL = "TRUTHGUARD_SERVICE_URL"
)

// Config is the process configuration. User-facing extension settings live
// in the settings store, not here.
type Config struct {
	Log           LogConfig           `yaml:"log"`
	Bridge        BridgeConfig        `yaml:"bridge"`
	Web           WebConfig           `yaml:"web"`
	Settings      SettingsConfig      `yaml:"settings"`
	Overlay       OverlayConfig       `yaml:"overlay"`
	Scoring       ScoringConfig       `yaml:"scoring"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Chrome        ChromeConfig        `yaml:"chrome"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type BridgeConfig struct {
	Addr string `yaml:"addr"`
	Path string `yaml:"path"`
}

// URL is the websocket URL clients dial.
func (b BridgeConfig) URL() string {
	return "ws://" + b.Addr + b.Path
}

type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type SettingsConfig struct {
	Path string `yaml:"path"`
	// ServiceURL is seeded into the store on first install.
	ServiceURL string `yaml:"service_url"`
	Watch      bool   `yaml:"watch"`
}

type OverlayConfig struct {
	ResultTimeout time.Duration `yaml:"result_timeout"`
	ErrorTimeout  time.Duration `yaml:"error_timeout"`
}

// ScoringConfig tunes the scoring client. Zero values keep the single
// attempt with no deadline.
type ScoringConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
}

type NotificationsConfig struct {
	Terminal bool            `yaml:"terminal"`
	Slack    []SlackConfig   `yaml:"slack"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
	// DeadLetterPath records webhook deliveries that exhausted their retries.
	DeadLetterPath string `yaml:"dead_letter_path"`
}

// SlackConfig is a Slack incoming webhook.
type SlackConfig struct {
	Name    string `yaml:"name"`
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

// WebhookConfig is an outgoing notification endpoint.
type WebhookConfig struct {
	Name       string        `yaml:"name"`
	URL        string        `yaml:"url"`
	Secret     string        `yaml:"secret"`
	Enabled    bool          `yaml:"enabled"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// ChromeConfig attaches the background to a real browser over the DevTools
// protocol.
type ChromeConfig struct {
	Enabled      bool          `yaml:"enabled"`
	DebuggerURL  string        `yaml:"debugger_url"`
	Headless     bool          `yaml:"headless"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log:    LogConfig{Level: "info", Format: "console"},
		Bridge: BridgeConfig{Addr: "127.0.0.1:7420", Path: "/ws"},
		Web:    WebConfig{Enabled: true, Addr: "127.0.0.1:5001"},
		Settings: SettingsConfig{
			Path:       filepath.Join("~", dirName, "settings.yaml"),
			ServiceURL: settings.DefaultServiceURL,
			Watch:      true,
		},
		Overlay: OverlayConfig{ResultTimeout: 10 * time.Second, ErrorTimeout: 5 * time.Second},
		Scoring: ScoringConfig{MaxAttempts: 1, RetryDelay: 500 * time.Millisecond},
		Notifications: NotificationsConfig{
			Terminal:       true,
			DeadLetterPath: filepath.Join("~", dirName, "deadletters.jsonl"),
		},
		Chrome: ChromeConfig{Headless: false, PollInterval: 500 * time.Millisecond},
	}
}

// DefaultPath returns ~/.truthguard/config.yaml.
func DefaultPath() string {
	return filepath.Join("~", dirName, configFile)
}

// Load overlays the file at path onto Default. A missing file is not an
// error. An empty path means DefaultPath.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath()
	}
	path = ExpandHome(path)

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to unmarshal config %s: %w", path, err)
		}
	}

	if v := os.Getenv(EnvServiceURL); v != "" {
		cfg.Settings.ServiceURL = v
	}
	cfg.Settings.Path = ExpandHome(cfg.Settings.Path)
	cfg.Notifications.DeadLetterPath = ExpandHome(cfg.Notifications.DeadLetterPath)
	return cfg, cfg.Validate()
}

// Validate checks values the rest of the process relies on.
func (c Config) Validate() error {
	if c.Settings.Path == "" {
		return fmt.Errorf("settings.path must be set")
	}
	if c.Overlay.ResultTimeout < 0 || c.Overlay.ErrorTimeout < 0 {
		return fmt.Errorf("overlay timeouts must not be negative")
	}
	if c.Scoring.MaxAttempts < 0 {
		return fmt.Errorf("scoring.max_attempts must not be negative")
	}
	seed := settings.Partial{ServiceURL: &c.Settings.ServiceURL}
	if err := seed.Validate(); err != nil {
		return fmt.Errorf("settings.service_url: %w", err)
	}
	for _, sc := range c.Notifications.Slack {
		if sc.Enabled && sc.URL == "" {
			return fmt.Errorf("slack %q has no url", sc.Name)
		}
	}
	for _, wh := range c.Notifications.Webhooks {
		if wh.Enabled && wh.URL == "" {
			return fmt.Errorf("webhook %q has no url", wh.Name)
		}
	}
	return nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
