package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store drivers.
const (
	StoreDriverFirestore = "firestore"
	StoreDriverMemory    = "memory"
)

// Config holds all configuration for the application.
type Config struct {
	Port                             string        `mapstructure:"PORT"`
	GinMode                          string        `mapstructure:"GIN_MODE"`
	LogLevel                         string        `mapstructure:"LOG_LEVEL"`
	FirebaseProjectID                string        `mapstructure:"FIREBASE_PROJECT_ID"`
	GoogleApplicationCredentials     string        `mapstructure:"GOOGLE_APPLICATION_CREDENTIALS"`
	FirebaseServiceAccountJSONBase64 string        `mapstructure:"FIREBASE_SERVICE_ACCOUNT_JSON_BASE64"`
	ClientURL                        string        `mapstructure:"CLIENT_URL"`
	StoreDriver                      string        `mapstructure:"STORE_DRIVER"`
	RedisAddr                        string        `mapstructure:"REDIS_ADDR"`
	RedisPassword                    string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB                          int           `mapstructure:"REDIS_DB"`
	EmailCacheTTL                    time.Duration `mapstructure:"EMAIL_CACHE_TTL"`
	RabbitMQURL                      string        `mapstructure:"RABBITMQ_URL"`
	SOSQueueName                     string        `mapstructure:"SOS_QUEUE_NAME"`
	SOSMaxParallel                   int           `mapstructure:"SOS_MAX_PARALLEL"`
	ShutdownTimeout                  time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
}

var keys = []string{
	"PORT",
	"GIN_MODE",
	"LOG_LEVEL",
	"FIREBASE_PROJECT_ID",
	"GOOGLE_APPLICATION_CREDENTIALS",
	"FIREBASE_SERVICE_ACCOUNT_JSON_BASE64",
	"CLIENT_URL",
	"STORE_DRIVER",
	"REDIS_ADDR",
	"REDIS_PASSWORD",
	"REDIS_DB",
	"EMAIL_CACHE_TTL",
	"RABBITMQ_URL",
	"SOS_QUEUE_NAME",
	"SOS_MAX_PARALLEL",
	"SHUTDOWN_TIMEOUT",
}

// LoadConfig loads configuration from environment variables and an optional
// YAML file named by CONFIG_FILE. Outside release mode a .env file in the
// working directory is loaded first if present.
func LoadConfig() (*Config, error) {
	if os.Getenv("GIN_MODE") != "release" {
		// Missing .env is normal; real environment variables win over it.
		_ = godotenv.Load()
	}
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("PORT", "8080")
	v.SetDefault("GIN_MODE", "debug")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE_DRIVER", StoreDriverFirestore)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("EMAIL_CACHE_TTL", 10*time.Minute)
	v.SetDefault("SOS_QUEUE_NAME", "sos.alerts")
	v.SetDefault("SOS_MAX_PARALLEL", 8)
	v.SetDefault("SHUTDOWN_TIMEOUT", 10*time.Second)

	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", k, err)
		}
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.New("failed to unmarshal config: " + err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.FirebaseProjectID == "" {
		return errors.New("FIREBASE_PROJECT_ID is required")
	}
	switch c.StoreDriver {
	case StoreDriverFirestore, StoreDriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreDriverFirestore, StoreDriverMemory, c.StoreDriver)
	}
	if c.SOSMaxParallel < 1 {
		return errors.New("SOS_MAX_PARALLEL must be at least 1")
	}
	if c.EmailCacheTTL <= 0 {
		return errors.New("EMAIL_CACHE_TTL must be positive")
	}
	return nil
}

// IsRelease reports whether gin runs in release mode.
func (c *Config) IsRelease() bool {
	return strings.EqualFold(c.GinMode, "release")
}
