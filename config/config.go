package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the extraction pipeline
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Agents    AgentsConfig    `mapstructure:"agents"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Sink      SinkConfig      `mapstructure:"sink"`
	Server    ServerConfig    `mapstructure:"server"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug             bool          `mapstructure:"debug"`
	LogLevel          string        `mapstructure:"log_level"`
	MaxProcessingTime time.Duration `mapstructure:"max_processing_time"`
	DefaultTimeout    time.Duration `mapstructure:"default_timeout"`
}

// LLMConfig contains LLM provider configurations
type LLMConfig struct {
	Providers map[string]LLMProvider `mapstructure:"providers"`
	Routing   LLMRoutingConfig       `mapstructure:"routing"`
}

// LLMProvider represents a single LLM provider configuration
type LLMProvider struct {
	Type    string              `mapstructure:"type"` // openai, ollama
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

// LLMRoutingConfig defines which model to use for different pipeline phases
type LLMRoutingConfig struct {
	Planning   string `mapstructure:"planning"`   // cohort planning over the whole document
	Extraction string `mapstructure:"extraction"` // per-cohort specialist agents
	Fallback   string `mapstructure:"fallback"`
}

// AgentsConfig contains extraction agent settings
type AgentsConfig struct {
	MaxRetries   int           `mapstructure:"max_retries"`
	AgentTimeout time.Duration `mapstructure:"agent_timeout"`
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	MetricsPort  int    `mapstructure:"metrics_port"`
	LogFile      string `mapstructure:"log_file"`
	CostTracking bool   `mapstructure:"cost_tracking"`
	PeriodicLogs bool   `mapstructure:"periodic_logs"`
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// DSN builds a connection string from the configured fields. URL wins when set.
func (c PostgresConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	if c.Host == "" || c.DBName == "" {
		return ""
	}
	port := c.Port
	if port == 0 {
		port = 5432
	}
	ssl := c.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", c.User, c.Password, c.Host, port, c.DBName, ssl)
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// SinkConfig controls where run artifacts are written
type SinkConfig struct {
	OutputDir string   `mapstructure:"output_dir"`
	S3        S3Config `mapstructure:"s3"`
}

// S3Config contains S3 upload settings for run artifacts
type S3Config struct {
	Enabled   bool   `mapstructure:"enabled"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

// ServerConfig contains HTTP API settings
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("guidekg")
		viper.SetConfigType("json")
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("GUIDEKG")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	// Config file is optional; defaults plus env cover the common case.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	overrideFromEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("general.debug", false)
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("general.max_processing_time", "30m")
	viper.SetDefault("general.default_timeout", "60s")

	viper.SetDefault("llm.routing.planning", "gpt-4o")
	viper.SetDefault("llm.routing.extraction", "gpt-4o")
	viper.SetDefault("llm.routing.fallback", "gpt-4o-mini")

	viper.SetDefault("agents.max_retries", 3)
	viper.SetDefault("agents.agent_timeout", "5m")

	viper.SetDefault("telemetry.enabled", true)
	viper.SetDefault("telemetry.metrics_port", 9090)
	viper.SetDefault("telemetry.cost_tracking", true)
	viper.SetDefault("telemetry.periodic_logs", false)

	viper.SetDefault("storage.postgres.host", "")
	viper.SetDefault("storage.postgres.port", 5432)
	viper.SetDefault("storage.postgres.sslmode", "disable")
	viper.SetDefault("storage.postgres.timeout", "5s")
	viper.SetDefault("storage.redis.host", "localhost")
	viper.SetDefault("storage.redis.port", 6379)
	viper.SetDefault("storage.redis.db", 0)
	viper.SetDefault("storage.redis.timeout", "5s")

	viper.SetDefault("sink.output_dir", "./results")
	viper.SetDefault("sink.s3.enabled", false)
	viper.SetDefault("sink.s3.prefix", "guidekg")

	viper.SetDefault("server.addr", ":10002")
}

// overrideFromEnv overrides configuration with well-known environment variables
func overrideFromEnv() {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		viper.Set("llm.providers.openai.api_key", apiKey)
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		viper.Set("llm.providers.ollama.base_url", host)
	}

	if url := os.Getenv("DATABASE_URL"); url != "" {
		viper.Set("storage.postgres.url", url)
	}
	if host := os.Getenv("POSTGRES_HOST"); host != "" {
		viper.Set("storage.postgres.host", host)
	}
	if port := os.Getenv("POSTGRES_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			viper.Set("storage.postgres.port", p)
		}
	}
	if user := os.Getenv("POSTGRES_USER"); user != "" {
		viper.Set("storage.postgres.user", user)
	}
	if pass := os.Getenv("POSTGRES_PASSWORD"); pass != "" {
		viper.Set("storage.postgres.password", pass)
	}
	if db := os.Getenv("POSTGRES_DB"); db != "" {
		viper.Set("storage.postgres.dbname", db)
	}

	if host := os.Getenv("REDIS_HOST"); host != "" {
		viper.Set("storage.redis.host", host)
	}
	if port := os.Getenv("REDIS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			viper.Set("storage.redis.port", p)
		}
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		viper.Set("storage.redis.password", password)
	}

	if bucket := os.Getenv("GUIDEKG_S3_BUCKET"); bucket != "" {
		viper.Set("sink.s3.enabled", true)
		viper.Set("sink.s3.bucket", bucket)
	}
	if key := os.Getenv("AWS_ACCESS_KEY"); key != "" {
		viper.Set("sink.s3.access_key", key)
	}
	if secret := os.Getenv("AWS_SECRET_KEY"); secret != "" {
		viper.Set("sink.s3.secret_key", secret)
	}
	if region := os.Getenv("AWS_REGION"); region != "" {
		viper.Set("sink.s3.region", region)
	}
	if endpoint := os.Getenv("AWS_ENDPOINT"); endpoint != "" {
		viper.Set("sink.s3.endpoint", endpoint)
	}
}

func validateConfig(config *Config) error {
	if len(config.LLM.Providers) == 0 {
		return fmt.Errorf("at least one LLM provider must be configured")
	}

	routingModels := []string{
		config.LLM.Routing.Planning,
		config.LLM.Routing.Extraction,
		config.LLM.Routing.Fallback,
	}
	for _, model := range routingModels {
		if model == "" {
			continue
		}
		found := false
		for _, provider := range config.LLM.Providers {
			for alias, providerModel := range provider.Models {
				// A model entry without an explicit name answers to its alias,
				// matching how the provider factory indexes it.
				name := providerModel.Name
				if name == "" {
					name = alias
				}
				if name == model {
					found = true
					break
				}
			}
			if found {
				break
			}
		}
		if !found {
			return fmt.Errorf("routing model %q not found in any provider", model)
		}
	}

	if config.Agents.MaxRetries < 0 {
		return fmt.Errorf("agents.max_retries cannot be negative")
	}

	return nil
}
