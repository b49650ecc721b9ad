// Package config loads and validates the bot's configuration files: the
// main TOML (or YAML) config and the YAML products list.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration. Numeric fields are milliseconds unless
// the name says otherwise.
type Config struct {
	Bot        BotConfig        `toml:"bot" yaml:"bot"`
	Accounts   []AccountConfig  `toml:"accounts" yaml:"accounts"`
	Proxies    ProxiesConfig    `toml:"proxies" yaml:"proxies"`
	Captcha    CaptchaConfig    `toml:"captcha" yaml:"captcha"`
	Stealth    StealthConfig    `toml:"stealth" yaml:"stealth"`
	Monitoring MonitoringConfig `toml:"monitoring" yaml:"monitoring"`
}

type BotConfig struct {
	Name          string `toml:"name" yaml:"name"`
	BaseURL       string `toml:"base_url" yaml:"base_url"`
	UserAgent     string `toml:"user_agent" yaml:"user_agent"`
	MaxConcurrent int64  `toml:"max_concurrent" yaml:"max_concurrent"`
	DataDir       string `toml:"data_dir" yaml:"data_dir"`
	SessionsDir   string `toml:"sessions_dir" yaml:"sessions_dir"`
	DatabasePath  string `toml:"database_path" yaml:"database_path"`
	MetricsAddr   string `toml:"metrics_addr" yaml:"metrics_addr"`
}

type AccountConfig struct {
	ID              string `toml:"id" yaml:"id"`
	Username        string `toml:"username" yaml:"username"`
	PaymentMethod   string `toml:"payment_method" yaml:"payment_method"`
	ShippingAddress string `toml:"shipping_address" yaml:"shipping_address"`
}

type ProxiesConfig struct {
	File                  string `toml:"file" yaml:"file"`
	TestURL               string `toml:"test_url" yaml:"test_url"`
	HealthCheckIntervalMS int    `toml:"health_check_interval_ms" yaml:"health_check_interval_ms"`
	CheckTimeoutMS        int    `toml:"check_timeout_ms" yaml:"check_timeout_ms"`
}

type CaptchaConfig struct {
	APIKey         string `toml:"api_key" yaml:"api_key"`
	Endpoint       string `toml:"endpoint" yaml:"endpoint"`
	PollIntervalMS int    `toml:"poll_interval_ms" yaml:"poll_interval_ms"`
	MaxPolls       int    `toml:"max_polls" yaml:"max_polls"`
}

type StealthConfig struct {
	Enabled          bool   `toml:"enabled" yaml:"enabled"`
	BrowserFamily    string `toml:"browser_family" yaml:"browser_family"`
	PreRequestMinMS  int    `toml:"pre_request_min_ms" yaml:"pre_request_min_ms"`
	PreRequestMaxMS  int    `toml:"pre_request_max_ms" yaml:"pre_request_max_ms"`
	PostRequestMinMS int    `toml:"post_request_min_ms" yaml:"post_request_min_ms"`
	PostRequestMaxMS int    `toml:"post_request_max_ms" yaml:"post_request_max_ms"`
}

type MonitoringConfig struct {
	DefaultIntervalMS int `toml:"default_interval_ms" yaml:"default_interval_ms"`
	TimeoutMS         int `toml:"timeout_ms" yaml:"timeout_ms"`
	MaxRetries        int `toml:"max_retries" yaml:"max_retries"`
}

// Default returns a config with workable development defaults.
func Default() *Config {
	return &Config{
		Bot: BotConfig{
			Name:          "lazabot",
			MaxConcurrent: 10,
			DataDir:       "data",
			SessionsDir:   filepath.Join("data", "sessions"),
			DatabasePath:  filepath.Join("data", "lazabot.db"),
			MetricsAddr:   ":9090",
		},
		Proxies: ProxiesConfig{
			HealthCheckIntervalMS: 60_000,
			CheckTimeoutMS:        10_000,
		},
		Captcha: CaptchaConfig{
			PollIntervalMS: 5_000,
			MaxPolls:       60,
		},
		Stealth: StealthConfig{
			Enabled:          true,
			PreRequestMinMS:  100,
			PreRequestMaxMS:  500,
			PostRequestMinMS: 200,
			PostRequestMaxMS: 800,
		},
		Monitoring: MonitoringConfig{
			DefaultIntervalMS: 1_000,
			TimeoutMS:         30_000,
			MaxRetries:        3,
		},
	}
}

// Load reads a config file, choosing the codec by extension, and fills in
// defaults for anything unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = toml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config as TOML.
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate checks fields whose misconfiguration would only surface at
// runtime.
func (c *Config) Validate() error {
	if c.Bot.MaxConcurrent < 1 {
		return fmt.Errorf("bot.max_concurrent must be at least 1, got %d", c.Bot.MaxConcurrent)
	}
	if c.Monitoring.DefaultIntervalMS < 1 {
		return fmt.Errorf("monitoring.default_interval_ms must be positive, got %d", c.Monitoring.DefaultIntervalMS)
	}
	if c.Captcha.MaxPolls < 1 {
		return fmt.Errorf("captcha.max_polls must be positive, got %d", c.Captcha.MaxPolls)
	}
	if c.Stealth.PreRequestMinMS > c.Stealth.PreRequestMaxMS {
		return fmt.Errorf("stealth.pre_request_min_ms exceeds pre_request_max_ms")
	}
	if c.Stealth.PostRequestMinMS > c.Stealth.PostRequestMaxMS {
		return fmt.Errorf("stealth.post_request_min_ms exceeds post_request_max_ms")
	}
	for i, acct := range c.Accounts {
		if acct.ID == "" {
			return fmt.Errorf("accounts[%d] is missing an id", i)
		}
	}
	return nil
}

// Set assigns a dotted key like "bot.max_concurrent" from its string value,
// round-tripping through the TOML document.
func (c *Config) Set(key, value string) error {
	parts := strings.SplitN(key, ".", 2)
	if len(parts) != 2 {
		return fmt.Errorf("key %q must be of the form table.field", key)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}

	table, ok := doc[parts[0]].(map[string]any)
	if !ok {
		return fmt.Errorf("unknown config table %q", parts[0])
	}
	if _, known := table[parts[1]]; !known {
		return fmt.Errorf("unknown config key %q", key)
	}
	table[parts[1]] = coerce(value)

	updated, err := toml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to re-encode config: %w", err)
	}
	if err := toml.Unmarshal(updated, c); err != nil {
		return fmt.Errorf("value %q is not valid for %q: %w", value, key, err)
	}
	return c.Validate()
}

// coerce maps a CLI-supplied string onto the most specific TOML value.
func coerce(value string) any {
	switch value {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.ParseInt(value, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return value
}
