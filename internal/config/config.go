// Package config loads and validates the bridge's TOML configuration
// file (spec.md §6). Grounded on the teacher's internal/config.Load,
// generalized from YAML-with-env-var-binding to the TOML shape spec.md
// requires, decoded with viper plus pelletier/go-toml/v2 underneath it
// and mapstructure for the nested maps.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/orchestre-dev/anthropic-bridge/internal/bridgeerr"
)

// Config is the full bridge configuration (spec.md §6.1).
type Config struct {
	Port     int               `mapstructure:"port" toml:"port"`
	Provider ProviderConfig    `mapstructure:"provider" toml:"provider"`
	Models   map[string]string `mapstructure:"models" toml:"models"`
	Params   ParamsConfig      `mapstructure:"params" toml:"params"`
	Server   ServerConfig      `mapstructure:"server" toml:"server"`
	Logging  LoggingConfig     `mapstructure:"logging" toml:"logging"`
}

// ProviderConfig names the single upstream this bridge instance talks
// to. Name selects a preset from Presets unless it is "custom", in
// which case BaseURL/Format must be supplied directly.
type ProviderConfig struct {
	Name      string `mapstructure:"name" toml:"name"`
	BaseURL   string `mapstructure:"base_url" toml:"base_url"`
	APIKeyEnv string `mapstructure:"api_key_env" toml:"api_key_env"`
	Format    string `mapstructure:"format" toml:"format"`
}

// ParamsConfig controls request-field translation (spec.md §4.2 rule 7).
type ParamsConfig struct {
	Drop []string `mapstructure:"drop" toml:"drop"`
}

// ServerConfig holds the bridge's own listener and lifecycle tuning.
type ServerConfig struct {
	Host            string        `mapstructure:"host" toml:"host"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" toml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" toml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" toml:"shutdown_timeout"`
	RateLimitRPS    float64       `mapstructure:"rate_limit_rps" toml:"rate_limit_rps"`
}

// LoggingConfig controls the bridge's structured logger.
type LoggingConfig struct {
	Level      string `mapstructure:"level" toml:"level"`
	Format     string `mapstructure:"format" toml:"format"`
	RingSize   int    `mapstructure:"ring_size" toml:"ring_size"`
	RequestLog string `mapstructure:"request_log_path" toml:"request_log_path"`
}

// Preset is a built-in base URL/format pair for a named provider
// (spec.md §6.2).
type Preset struct {
	BaseURL string
	Format  string
}

// Presets is the table of recognized provider names. "custom" is
// deliberately absent: it signals the caller must supply base_url
// directly rather than resolving one.
var Presets = map[string]Preset{
	"openai":     {BaseURL: "https://api.openai.com/v1", Format: "openai"},
	"openrouter": {BaseURL: "https://openrouter.ai/api/v1", Format: "openai"},
	"fireworks":  {BaseURL: "https://api.fireworks.ai/inference/v1", Format: "openai"},
	"grok":       {BaseURL: "https://api.x.ai/v1", Format: "openai"},
	"together":   {BaseURL: "https://api.together.xyz/v1", Format: "openai"},
	"groq":       {BaseURL: "https://api.groq.com/openai/v1", Format: "openai"},
	"deepseek":   {BaseURL: "https://api.deepseek.com/v1", Format: "openai"},
	"anthropic":  {BaseURL: "https://api.anthropic.com", Format: "anthropic"},
}

// Load reads the TOML config at path, applies defaults, resolves the
// provider preset, and validates the result. Any failure is returned as
// a *bridgeerr.Error of KindConfigError (spec.md §6.4: config errors
// exit the process before a listener is ever opened).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, bridgeerr.Wrap(err, bridgeerr.KindConfigError, fmt.Sprintf("reading config file %s", path))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, bridgeerr.Wrap(err, bridgeerr.KindConfigError, "decoding config")
	}

	if err := resolveProvider(&cfg); err != nil {
		return nil, err
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 4222)
	v.SetDefault("provider.format", "")
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "5m")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.rate_limit_rps", 0.0)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.ring_size", 1000)
}

// resolveProvider fills in BaseURL/Format from Presets when the
// provider name matches one and the fields were left blank, then checks
// that a base URL is set and the format is "openai" or "anthropic". The
// API key is read separately, by APIKey (spec.md §6.2: the key itself is
// never written to the config file).
func resolveProvider(cfg *Config) error {
	name := strings.ToLower(cfg.Provider.Name)
	if name == "" {
		return bridgeerr.New(bridgeerr.KindConfigError, "provider.name is required")
	}

	if preset, ok := Presets[name]; ok {
		if cfg.Provider.BaseURL == "" {
			cfg.Provider.BaseURL = preset.BaseURL
		}
		if cfg.Provider.Format == "" {
			cfg.Provider.Format = preset.Format
		}
	} else if name != "custom" {
		return bridgeerr.Newf(bridgeerr.KindConfigError, "unknown provider %q (use a preset name or \"custom\")", cfg.Provider.Name)
	}

	if cfg.Provider.BaseURL == "" {
		return bridgeerr.New(bridgeerr.KindConfigError, "provider.base_url is required for a custom provider")
	}
	if cfg.Provider.Format != "anthropic" && cfg.Provider.Format != "openai" {
		return bridgeerr.Newf(bridgeerr.KindConfigError, "provider.format must be \"openai\" or \"anthropic\", got %q", cfg.Provider.Format)
	}

	return nil
}

// APIKey reads the provider's API key from its configured environment
// variable. Missing APIKeyEnv is valid (e.g. a local Ollama-style
// endpoint needs none); an APIKeyEnv naming an unset variable is not.
func (c *Config) APIKey() (string, error) {
	if c.Provider.APIKeyEnv == "" {
		return "", nil
	}
	key := os.Getenv(c.Provider.APIKeyEnv)
	if key == "" {
		return "", bridgeerr.Newf(bridgeerr.KindConfigError, "environment variable %s is not set", c.Provider.APIKeyEnv)
	}
	return key, nil
}

func validate(cfg *Config) error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return bridgeerr.Newf(bridgeerr.KindConfigError, "invalid port %d", cfg.Port)
	}
	if _, err := cfg.APIKey(); err != nil {
		return err
	}
	return nil
}

// Marshal renders cfg back to TOML, used by `abridge status` to echo
// the effective configuration (spec.md §12 supplemented CLI surface).
func Marshal(cfg *Config) ([]byte, error) {
	return toml.Marshal(cfg)
}
