package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultPassingPercentage is used for rounds that do not carry their own threshold.
const DefaultPassingPercentage = 70

// FeedbackProvider describes the OpenAI-compatible endpoint used for study advice.
type FeedbackProvider struct {
	APIKey  string `mapstructure:"api_key"` // Name of the environment variable holding the key, or the key itself
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
	Prompt  string `mapstructure:"prompt"`
}

// Config holds the application's configuration.
type Config struct {
	Server struct {
		Port           string
		AllowedOrigins []string `mapstructure:"allowed_origins"` // CORS; empty allows any origin
	}
	Database struct {
		Driver string // sqlite, postgres or mysql
		DSN    string // Data Source Name ("memory" or a file path for SQLite)
	}
	Assessment struct {
		DefaultPassingPercentage int  `mapstructure:"default_passing_percentage"`
		RedistributeShortfall    bool `mapstructure:"redistribute_shortfall"`
	}
	Auth struct {
		JWTSecret string `mapstructure:"jwt_secret"`
	}
	Redis struct {
		Addr          string
		Password      string
		DB            int
		PoolTTLSecond int `mapstructure:"pool_ttl_seconds"`
	}
	RabbitMQ struct {
		URL      string `mapstructure:"url"`
		Exchange string
	} `mapstructure:"rabbitmq"`
	Feedback FeedbackProvider
}

// LoadConfig loads configuration from an optional .env file, config.yaml and environment variables.
// The returned value is passed explicitly to the components that need it.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("WARN: [Config] Failed to load .env file: %v", err)
	}

	v := viper.New()
	v.SetConfigName("config")    // Name of config file (without extension)
	v.SetConfigType("yaml")      // REQUIRED if the config file does not have the extension in the name
	v.AddConfigPath("./config")  // Path to look for the config file in
	v.AddConfigPath(".")         // Optionally look for config in the working directory
	v.AddConfigPath("../config") // For running from locations like tests

	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			log.Println("WARN: [Config] Configuration file (config.yaml) not found. Using environment variables and defaults.")
		} else {
			return nil, fmt.Errorf("error reading configuration file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	applyEnvOverrides(&cfg)

	if cfg.Assessment.DefaultPassingPercentage <= 0 || cfg.Assessment.DefaultPassingPercentage > 100 {
		log.Printf("WARN: [Config] default_passing_percentage %d is out of range, using %d.", cfg.Assessment.DefaultPassingPercentage, DefaultPassingPercentage)
		cfg.Assessment.DefaultPassingPercentage = DefaultPassingPercentage
	}

	log.Printf("INFO: [Config] Configuration loading complete (db driver=%s, default passing=%d%%).", cfg.Database.Driver, cfg.Assessment.DefaultPassingPercentage)
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "memory")
	v.SetDefault("assessment.default_passing_percentage", DefaultPassingPercentage)
	v.SetDefault("assessment.redistribute_shortfall", false)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_ttl_seconds", 300)
	v.SetDefault("rabbitmq.url", "")
	v.SetDefault("rabbitmq.exchange", "assessment.events")
	v.SetDefault("feedback.api_key", "FEEDBACK_API_KEY")
	v.SetDefault("feedback.base_url", "")
	v.SetDefault("feedback.model", "gpt-4o-mini")
	v.SetDefault("feedback.prompt", "")
}

// applyEnvOverrides handles the short env names used by deployment manifests.
func applyEnvOverrides(cfg *Config) {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Server.Port = port
		log.Printf("INFO: [Config] Server port overridden by environment variable SERVER_PORT: %s", port)
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if url := os.Getenv("RABBITMQ_URL"); url != "" {
		cfg.RabbitMQ.URL = url
	}

	// The api_key field names an environment variable unless it already looks like a key.
	keyRef := cfg.Feedback.APIKey
	if envValue := os.Getenv(keyRef); envValue != "" {
		cfg.Feedback.APIKey = envValue
		log.Printf("INFO: [Config] Loaded feedback API key from environment variable '%s'.", keyRef)
	} else if keyRef == "" || strings.HasSuffix(keyRef, "_KEY") {
		cfg.Feedback.APIKey = ""
		log.Printf("WARN: [Config] Feedback API key (env var '%s') is not set; study advice is disabled.", keyRef)
	}
}
