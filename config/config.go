package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the account-plan research engine
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Research  ResearchConfig  `mapstructure:"research"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Server    ServerConfig    `mapstructure:"server"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// LLMConfig contains the LLM backend configuration consumed by the gateway
type LLMConfig struct {
	Provider           string        `mapstructure:"provider"` // gemini, openai
	APIKey             string        `mapstructure:"api_key"`
	BaseURL            string        `mapstructure:"base_url"`
	Model              string        `mapstructure:"model"`
	FallbackModels     []string      `mapstructure:"fallback_models"`
	Temperature        float64       `mapstructure:"temperature"`
	TemperatureBackoff float64       `mapstructure:"temperature_backoff"`
	MaxAttempts        int           `mapstructure:"max_attempts"`
	MaxTokens          int           `mapstructure:"max_tokens"`
	Timeout            time.Duration `mapstructure:"timeout"`
}

// ResearchConfig bounds the multi-step research pipeline
type ResearchConfig struct {
	Timebox          time.Duration `mapstructure:"timebox"`
	MaxSubQueries    int           `mapstructure:"max_subqueries"`
	MaxSnippets      int           `mapstructure:"max_snippets"`
	MinCorpusResults int           `mapstructure:"min_corpus_results"`
	RetryCap         int           `mapstructure:"retry_cap"`
	AdapterTimeout   time.Duration `mapstructure:"adapter_timeout"`
}

// SourcesConfig contains knowledge source adapter settings
type SourcesConfig struct {
	Corpus    CorpusConfig    `mapstructure:"corpus"`
	WebSearch WebSearchConfig `mapstructure:"web_search"`
}

// CorpusConfig contains document-corpus index settings
type CorpusConfig struct {
	TextDir   string `mapstructure:"text_dir"`
	IndexPath string `mapstructure:"index_path"`
	Watch     bool   `mapstructure:"watch"`
}

// WebSearchConfig contains web search settings
type WebSearchConfig struct {
	Provider     string `mapstructure:"provider"` // brave, serper
	BraveAPIKey  string `mapstructure:"brave_api_key"`
	SerperAPIKey string `mapstructure:"serper_api_key"`
	MaxResults   int    `mapstructure:"max_results"`
}

// CacheConfig contains Cache Manager settings
type CacheConfig struct {
	Backend string      `mapstructure:"backend"` // file, redis
	Dir     string      `mapstructure:"dir"`
	TTLDays int         `mapstructure:"ttl_days"`
	Redis   RedisConfig `mapstructure:"redis"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// StorageConfig contains report-run persistence settings
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL     string        `mapstructure:"url"`
	Host    string        `mapstructure:"host"`
	Port    int           `mapstructure:"port"`
	User    string        `mapstructure:"user"`
	Pass    string        `mapstructure:"password"`
	DBName  string        `mapstructure:"dbname"`
	SSLMode string        `mapstructure:"sslmode"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// TelemetryConfig contains telemetry settings
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// TTL returns the cache TTL as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLDays) * 24 * time.Hour
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("accountplan")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.SetEnvPrefix("ACCOUNTPLAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Config file is optional - defaults cover a local run
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	overrideFromEnv(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("general.debug", false)
	v.SetDefault("general.log_level", "info")

	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.model", "gemini-1.5-flash-latest")
	v.SetDefault("llm.fallback_models", []string{"gemini-2.0-flash", "gemini-flash-latest"})
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.temperature_backoff", 0.05)
	v.SetDefault("llm.max_attempts", 3)
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.timeout", "45s")

	v.SetDefault("research.timebox", "5m")
	v.SetDefault("research.max_subqueries", 4)
	v.SetDefault("research.max_snippets", 20)
	v.SetDefault("research.min_corpus_results", 2)
	v.SetDefault("research.retry_cap", 2)
	v.SetDefault("research.adapter_timeout", "15s")

	v.SetDefault("sources.corpus.text_dir", "./data/corpus")
	v.SetDefault("sources.corpus.index_path", "./data/corpus.bleve")
	v.SetDefault("sources.corpus.watch", false)
	v.SetDefault("sources.web_search.provider", "brave")
	v.SetDefault("sources.web_search.max_results", 6)

	v.SetDefault("cache.backend", "file")
	v.SetDefault("cache.dir", "./data/cache")
	v.SetDefault("cache.ttl_days", 7)
	v.SetDefault("cache.redis.host", "localhost")
	v.SetDefault("cache.redis.port", 6379)
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.timeout", "5s")

	v.SetDefault("storage.postgres.sslmode", "disable")
	v.SetDefault("storage.postgres.timeout", "5s")

	v.SetDefault("server.addr", ":8080")

	v.SetDefault("telemetry.enabled", true)
}

// overrideFromEnv overrides configuration with environment variables for sensitive data
func overrideFromEnv(v *viper.Viper) {
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		v.Set("llm.api_key", apiKey)
	}
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" && v.GetString("llm.provider") == "openai" {
		v.Set("llm.api_key", apiKey)
	}

	if apiKey := os.Getenv("BRAVE_SEARCH_KEY"); apiKey != "" {
		v.Set("sources.web_search.brave_api_key", apiKey)
	}
	if apiKey := os.Getenv("SERPER_API_KEY"); apiKey != "" {
		v.Set("sources.web_search.serper_api_key", apiKey)
	}

	if host := os.Getenv("REDIS_HOST"); host != "" {
		v.Set("cache.redis.host", host)
	}
	if port := os.Getenv("REDIS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			v.Set("cache.redis.port", p)
		}
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		v.Set("cache.redis.password", password)
	}

	if url := os.Getenv("DATABASE_URL"); url != "" {
		v.Set("storage.postgres.url", url)
	}
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	if config.LLM.Model == "" {
		return fmt.Errorf("llm.model must be configured")
	}
	switch config.LLM.Provider {
	case "gemini", "openai":
	default:
		return fmt.Errorf("unsupported llm provider: %s", config.LLM.Provider)
	}
	if config.LLM.MaxAttempts < 1 {
		return fmt.Errorf("llm.max_attempts must be at least 1")
	}
	if config.Cache.TTLDays < 1 {
		return fmt.Errorf("cache.ttl_days must be at least 1")
	}
	switch config.Cache.Backend {
	case "file", "redis":
	default:
		return fmt.Errorf("unsupported cache backend: %s", config.Cache.Backend)
	}
	if config.Research.RetryCap < 0 {
		return fmt.Errorf("research.retry_cap must not be negative")
	}
	return nil
}
