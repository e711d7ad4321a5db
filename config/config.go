package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the assistant
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Tools     ToolsConfig     `mapstructure:"tools"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Executor  ExecutorConfig  `mapstructure:"executor"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// RegistryConfig controls tool card signing. With an empty secret the
// registry skips signature validation.
type RegistryConfig struct {
	SigningSecret string `mapstructure:"signing_secret"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
	MaxQueryLength int           `mapstructure:"max_query_length"`
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address   string `mapstructure:"address"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// LLMConfig contains LLM provider configurations
type LLMConfig struct {
	Providers map[string]LLMProvider `mapstructure:"providers"`
	Routing   LLMRoutingConfig       `mapstructure:"routing"`
}

// LLMProvider represents a single LLM provider configuration
type LLMProvider struct {
	Type    string              `mapstructure:"type"` // openai, groq
	APIKey  string              `mapstructure:"api_key"`
	BaseURL string              `mapstructure:"base_url"`
	Models  map[string]LLMModel `mapstructure:"models"`
	Timeout time.Duration       `mapstructure:"timeout"`
}

// LLMModel represents a specific model configuration
type LLMModel struct {
	Name            string  `mapstructure:"name"`
	APIName         string  `mapstructure:"api_name"`
	MaxTokens       int     `mapstructure:"max_tokens"`
	Temperature     float64 `mapstructure:"temperature"`
	CostPer1K       float64 `mapstructure:"cost_per_1k_input"`
	CostPer1KOutput float64 `mapstructure:"cost_per_1k_output"`
}

// LLMRoutingConfig defines which model to use for different pipeline stages
type LLMRoutingConfig struct {
	Planning     string `mapstructure:"planning"`     // Use for plan generation
	Verification string `mapstructure:"verification"` // Use for result verification
	Fallback     string `mapstructure:"fallback"`     // Fallback model
}

// ToolsConfig contains per-adapter settings; a missing key disables that tool only
type ToolsConfig struct {
	GitHub  GitHubConfig  `mapstructure:"github"`
	Weather WeatherConfig `mapstructure:"weather"`
	News    NewsConfig    `mapstructure:"news"`
}

// GitHubConfig contains GitHub API settings. The token is optional;
// unauthenticated requests work with lower rate limits.
type GitHubConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Token    string `mapstructure:"token"`
	Endpoint string `mapstructure:"endpoint"`
}

// WeatherConfig contains OpenWeatherMap settings
type WeatherConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Endpoint string `mapstructure:"endpoint"`
	Units    string `mapstructure:"units"`
}

// NewsConfig contains NewsAPI settings
type NewsConfig struct {
	APIKey     string `mapstructure:"api_key"`
	Endpoint   string `mapstructure:"endpoint"`
	MaxResults int    `mapstructure:"max_results"`
}

// ExecutorConfig controls per-step retry behaviour
type ExecutorConfig struct {
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	CostTracking bool `mapstructure:"cost_tracking"`
}

func (e ExecutorConfig) Validate() error {
	if e.MaxRetries <= 0 {
		return fmt.Errorf("executor.max_retries must be > 0")
	}
	return nil
}

func (l LLMConfig) Validate() error {
	if len(l.Providers) == 0 {
		return fmt.Errorf("llm.providers is required")
	}
	for name, p := range l.Providers {
		if strings.TrimSpace(p.APIKey) == "" {
			return fmt.Errorf("llm.providers.%s.api_key is required", name)
		}
		if len(p.Models) == 0 {
			return fmt.Errorf("llm.providers.%s.models is required", name)
		}
	}
	if strings.TrimSpace(l.Routing.Planning) == "" && strings.TrimSpace(l.Routing.Fallback) == "" {
		return fmt.Errorf("llm.routing.planning or llm.routing.fallback is required")
	}
	return nil
}

// LoadConfig loads config from file (optional) and OPSASSIST_* env overrides
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")

	v.SetDefault("general.log_level", "info")
	v.SetDefault("general.default_timeout", "30s")
	v.SetDefault("general.max_query_length", 2000)
	v.SetDefault("server.address", ":8080")
	v.SetDefault("executor.max_retries", 3)
	v.SetDefault("executor.retry_delay", "1s")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.cost_tracking", true)
	v.SetDefault("tools.github.enabled", true)
	v.SetDefault("tools.github.endpoint", "https://api.github.com")
	v.SetDefault("tools.weather.endpoint", "https://api.openweathermap.org/data/2.5")
	v.SetDefault("tools.weather.units", "metric")
	v.SetDefault("tools.news.endpoint", "https://newsapi.org/v2")
	v.SetDefault("tools.news.max_results", 20)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("OPSASSIST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// env-only operation is allowed when no explicit file was requested
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &config, nil
}

// Validate checks the sections the pipeline needs. Commands that never
// touch the pipeline (token issuing) skip it.
func (c *Config) Validate() error {
	if err := c.LLM.Validate(); err != nil {
		return err
	}
	return c.Executor.Validate()
}
