package config_test

import (
	"testing"
	"time"

	"github.com/CorsairOps/user-service/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "corsairops", cfg.DirectoryRealm)
	assert.Equal(t, 5000, cfg.DirectoryMaxUsers)
	assert.True(t, cfg.DirectoryPopulationOracle)
	assert.Equal(t, 3600, cfg.CacheTTLSeconds)
	assert.Equal(t, time.Hour, cfg.CacheTTL())
	assert.Empty(t, cfg.RedisAddr)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("DIRECTORY_URL", "https://idp.example.com")
	t.Setenv("DIRECTORY_POPULATION_ORACLE", "false")
	t.Setenv("CACHE_TTL_SECONDS", "120")
	t.Setenv("REDIS_ADDR", "redis:6379")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "https://idp.example.com", cfg.DirectoryURL)
	assert.False(t, cfg.DirectoryPopulationOracle)
	assert.Equal(t, 2*time.Minute, cfg.CacheTTL())
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
}
