package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"opsdeck/internal/logger"

	"github.com/joho/godotenv"
)

func init() {
	envFiles := []string{
		".env",
	}

	for _, envFile := range envFiles {
		if err := godotenv.Load(envFile); err != nil {
			if !os.IsNotExist(err) {
				logger.Warn("Error loading %s: %v", envFile, err)
			}
		}
	}
}

func GetEnv(key string, defaultValue string) string {
	value := os.Getenv(key)

	if value == "" {
		return defaultValue
	}

	return value
}

func GetEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)

	if value == "" {
		return defaultValue
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		logger.Warn("Invalid integer for %s: %q, using %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)

	if value == "" {
		return defaultValue
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		logger.Warn("Invalid duration for %s: %q, using %s", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getHomeDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		logger.Warn("Could not determine home directory: %v", err)
		return ""
	}
	return homeDir
}

func getDefaultDatabasePath(fallback string, profile string) string {
	homeDir := getHomeDir()
	if homeDir == "" {
		return fallback
	}
	return filepath.Join(homeDir, ".opsdeck", profile, "opsdeck.db")
}

type Configuration struct {
	DatabasePath   string
	OpsdeckProfile string

	PoolMaxConnections int
	PoolStaleAfter     time.Duration
	PoolSweepEvery     time.Duration
	ConnectTimeout     time.Duration

	SearchWorkers int
	SearchTimeout time.Duration

	TerminalIdleAfter    time.Duration
	TerminalReapEvery    time.Duration
	TerminalHistoryBound int
}

var OpsdeckProfile = GetEnv("OPSDECK_PROFILE", "default")
var DatabasePath = GetEnv("DATABASE_PATH", getDefaultDatabasePath("/app/opsdeck/opsdeck.db", OpsdeckProfile))

var Config = &Configuration{
	DatabasePath:   DatabasePath,
	OpsdeckProfile: OpsdeckProfile,

	PoolMaxConnections: GetEnvInt("POOL_MAX_CONNECTIONS", 20),
	PoolStaleAfter:     GetEnvDuration("POOL_STALE_AFTER", 5*time.Minute),
	PoolSweepEvery:     GetEnvDuration("POOL_SWEEP_EVERY", time.Minute),
	ConnectTimeout:     GetEnvDuration("CONNECT_TIMEOUT", 10*time.Second),

	SearchWorkers: GetEnvInt("SEARCH_WORKERS", 10),
	SearchTimeout: GetEnvDuration("SEARCH_TIMEOUT", 30*time.Second),

	TerminalIdleAfter:    GetEnvDuration("TERMINAL_IDLE_AFTER", 30*time.Minute),
	TerminalReapEvery:    GetEnvDuration("TERMINAL_REAP_EVERY", 30*time.Second),
	TerminalHistoryBound: GetEnvInt("TERMINAL_HISTORY_BOUND", 200),
}
