package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	userapi "github.com/CorsairOps/user-service/api/echo"
	"github.com/CorsairOps/user-service/cache"
	redisstore "github.com/CorsairOps/user-service/cache/redis"
	"github.com/CorsairOps/user-service/config"
	"github.com/CorsairOps/user-service/directory/keycloak"
	"github.com/CorsairOps/user-service/services"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logLevel, parseErr := zerolog.ParseLevel(cfg.LogLevel)
	if parseErr != nil {
		logLevel = zerolog.InfoLevel
		log.Warn().
			Str("configured_log_level", cfg.LogLevel).
			Str("fallback_log_level", logLevel.String()).
			Msg("Invalid LOG_LEVEL configured, defaulting to 'info'")
	}
	zerolog.SetGlobalLevel(logLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	log.Info().
		Str("directory_url", cfg.DirectoryURL).
		Str("realm", cfg.DirectoryRealm).
		Bool("population_oracle", cfg.DirectoryPopulationOracle).
		Dur("cache_ttl", cfg.CacheTTL()).
		Msg("Starting user-service")

	store, cleanup, err := buildStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize user cache")
	}
	defer cleanup()

	creds := keycloak.NewCredentialManager(nil, cfg.DirectoryURL, cfg.DirectoryRealm,
		cfg.DirectoryClientID, cfg.DirectoryClientSecret)
	dir := keycloak.NewClient(nil, cfg.DirectoryURL, cfg.DirectoryRealm, creds, keycloak.Options{
		MaxUsers:         cfg.DirectoryMaxUsers,
		PopulationOracle: cfg.DirectoryPopulationOracle,
	})

	userService := services.NewUserService(store, dir)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	userapi.NewUserAPI(userService).RegisterRoutes(e)

	go func() {
		if err := e.Start(":" + cfg.HTTPPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down user-service")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
}

// buildStore selects the Redis cache when an address is configured, and
// the in-memory ttlcache store otherwise.
func buildStore(cfg *config.Config) (cache.UserStore, func(), error) {
	if cfg.RedisAddr == "" {
		log.Info().Msg("REDIS_ADDR not set, using in-memory user cache")
		store := cache.NewMemoryUserStore(cfg.CacheTTL())
		return store, store.Stop, nil
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, nil, err
	}

	store := redisstore.NewUserStore(client, cfg.CacheKeyPrefix, cfg.CacheTTL())
	cleanup := func() {
		if err := client.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close Redis client")
		}
	}
	return store, cleanup, nil
}
