// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"

	"github.com/solwatch/solwatch/internal/types"
)

// Config holds everything the monitor needs to run. The stream
// endpoint and token are required; everything else degrades
// gracefully when absent.
type Config struct {
	StreamEndpoint string   `mapstructure:"stream_endpoint"`
	StreamToken    string   `mapstructure:"stream_token"`
	EnabledDEXs    []string `mapstructure:"enabled_dexs"`

	SinkURL   string `mapstructure:"sink_url"`
	SinkToken string `mapstructure:"sink_token"`

	JournalPath         string `mapstructure:"journal_path"`
	MetadataFallbackKey string `mapstructure:"metadata_fallback_key"`
	WeightsPath         string `mapstructure:"weights_path"`

	LogLevel    string `mapstructure:"log_level"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

const (
	DefaultJournalPath = "data/pool_events.jsonl"
	DefaultLogLevel    = "info"
)

// Load reads configuration from an optional file and the environment.
// Environment variables always win; path may be empty.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("journal_path", DefaultJournalPath)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("enabled_dexs", enabledDEXDefaults())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	bindEnvironment(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	normalizeDEXs(&cfg)
	return &cfg, validate(&cfg)
}

// bindEnvironment maps the documented env var names onto config keys.
func bindEnvironment(v *viper.Viper) {
	bindings := map[string]string{
		"stream_endpoint":       "STREAM_ENDPOINT",
		"stream_token":          "STREAM_TOKEN",
		"enabled_dexs":          "ENABLED_DEXS",
		"sink_url":              "SINK_URL",
		"sink_token":            "SINK_TOKEN",
		"journal_path":          "JOURNAL_PATH",
		"metadata_fallback_key": "METADATA_FALLBACK_KEY",
		"weights_path":          "WEIGHTS_PATH",
		"log_level":             "LOG_LEVEL",
		"metrics_addr":          "METRICS_ADDR",
	}
	for key, env := range bindings {
		_ = v.BindEnv(key, env)
	}
}

func enabledDEXDefaults() []string {
	names := make([]string, 0, len(types.AllDEXKinds))
	for _, dex := range types.AllDEXKinds {
		names = append(names, string(dex))
	}
	return names
}

// normalizeDEXs accepts a comma-separated env value as well as a
// config-file list, trimming blanks.
func normalizeDEXs(cfg *Config) {
	var clean []string
	for _, entry := range cfg.EnabledDEXs {
		for _, name := range strings.Split(entry, ",") {
			name = strings.ToLower(strings.TrimSpace(name))
			if name != "" {
				clean = append(clean, name)
			}
		}
	}
	cfg.EnabledDEXs = clean
}

func validate(cfg *Config) error {
	if cfg.StreamEndpoint == "" {
		return errors.New("missing stream endpoint")
	}
	if cfg.StreamToken == "" {
		return errors.New("missing stream token")
	}
	if len(cfg.EnabledDEXs) == 0 {
		return errors.New("no DEXs enabled")
	}
	for _, name := range cfg.EnabledDEXs {
		if !validDEX(name) {
			return fmt.Errorf("unknown DEX %q", name)
		}
	}
	if cfg.SinkURL != "" {
		if err := validateHTTPURL(cfg.SinkURL); err != nil {
			return fmt.Errorf("invalid sink URL: %w", err)
		}
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", cfg.LogLevel)
	}
	return nil
}

func validDEX(name string) bool {
	for _, dex := range types.AllDEXKinds {
		if string(dex) == name {
			return true
		}
	}
	return false
}

func validateHTTPURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return errors.New("malformed URL")
	}
	if !strings.HasPrefix(parsed.Scheme, "http") {
		return errors.New("URL must use http or https")
	}
	return nil
}

// DEXKinds converts the enabled names into their typed form.
func (c *Config) DEXKinds() []types.DEXKind {
	kinds := make([]types.DEXKind, 0, len(c.EnabledDEXs))
	for _, name := range c.EnabledDEXs {
		kinds = append(kinds, types.DEXKind(name))
	}
	return kinds
}
