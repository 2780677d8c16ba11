package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the user service.
// Tags use mapstructure for Viper unmarshalling; every key can also be
// supplied as an environment variable of the same name.
type Config struct {
	HTTPPort string `mapstructure:"HTTP_PORT"`

	// Identity directory (Keycloak) settings.
	DirectoryURL          string `mapstructure:"DIRECTORY_URL"`
	DirectoryRealm        string `mapstructure:"DIRECTORY_REALM"`
	DirectoryClientID     string `mapstructure:"DIRECTORY_CLIENT_ID"`
	DirectoryClientSecret string `mapstructure:"DIRECTORY_CLIENT_SECRET"`
	// DirectoryMaxUsers caps how many records a full listing will pull
	// from the directory, regardless of backend pagination.
	DirectoryMaxUsers int `mapstructure:"DIRECTORY_MAX_USERS"`
	// DirectoryPopulationOracle controls whether the backend's user-count
	// endpoint is consulted as a cache freshness signal. When disabled,
	// full listings always go to the directory.
	DirectoryPopulationOracle bool `mapstructure:"DIRECTORY_POPULATION_ORACLE"`

	// User cache settings. An empty REDIS_ADDR selects the in-memory store.
	RedisAddr       string `mapstructure:"REDIS_ADDR"`
	RedisPassword   string `mapstructure:"REDIS_PASSWORD"`
	RedisDB         int    `mapstructure:"REDIS_DB"`
	CacheKeyPrefix  string `mapstructure:"CACHE_KEY_PREFIX"`
	CacheTTLSeconds int    `mapstructure:"CACHE_TTL_SECONDS"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogPretty bool   `mapstructure:"LOG_PRETTY"`
}

// CacheTTL returns the configured cache TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// LoadConfig reads configuration from file, environment variables, and defaults.
func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("/etc/user-service/")
	v.AddConfigPath("$HOME/.user-service")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("DIRECTORY_URL", "http://localhost:8180")
	v.SetDefault("DIRECTORY_REALM", "corsairops")
	v.SetDefault("DIRECTORY_CLIENT_ID", "user-service")
	v.SetDefault("DIRECTORY_CLIENT_SECRET", "")
	v.SetDefault("DIRECTORY_MAX_USERS", 5000)
	v.SetDefault("DIRECTORY_POPULATION_ORACLE", true)
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_KEY_PREFIX", "user-service")
	v.SetDefault("CACHE_TTL_SECONDS", 3600)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", false)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is acceptable: defaults and env vars apply.
		// Any other read error (permissions, malformed YAML) is real.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &cfg, nil
}
