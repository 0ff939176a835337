package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
)

type Config struct {
	ServerPort          string
	DatabaseURL         string
	RedisURL            string
	AdminJWTSecret      string
	RootAccountID       int64
	StaleLoginSchedule  string
	NeverActiveSchedule string
	TaskLockTTL         time.Duration
	RunMigrations       bool
}

func LoadConfig() (*Config, error) {
	lockTTL, err := time.ParseDuration(getEnv("TASK_LOCK_TTL", "30m"))
	if err != nil {
		return nil, errors.New("invalid TASK_LOCK_TTL format")
	}

	rootID, err := strconv.ParseInt(getEnv("ROOT_ACCOUNT_ID", "1"), 10, 64)
	if err != nil {
		return nil, errors.New("invalid ROOT_ACCOUNT_ID")
	}

	runMigrations, err := strconv.ParseBool(getEnv("RUN_MIGRATIONS", "true"))
	if err != nil {
		return nil, errors.New("invalid RUN_MIGRATIONS")
	}

	cfg := &Config{
		ServerPort:          getEnv("SERVER_PORT", "8080"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		RedisURL:            os.Getenv("REDIS_URL"),
		AdminJWTSecret:      os.Getenv("ADMIN_JWT_SECRET"),
		RootAccountID:       rootID,
		StaleLoginSchedule:  getEnv("STALE_LOGIN_SCHEDULE", "0 3 * * *"),
		NeverActiveSchedule: getEnv("NEVER_ACTIVE_SCHEDULE", "@every 1h"),
		TaskLockTTL:         lockTTL,
		RunMigrations:       runMigrations,
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.AdminJWTSecret == "" {
		return nil, errors.New("ADMIN_JWT_SECRET is required")
	}
	if cfg.TaskLockTTL <= 0 {
		return nil, errors.New("TASK_LOCK_TTL must be positive")
	}
	if _, err := cron.ParseStandard(cfg.StaleLoginSchedule); err != nil {
		return nil, fmt.Errorf("invalid STALE_LOGIN_SCHEDULE: %w", err)
	}
	if _, err := cron.ParseStandard(cfg.NeverActiveSchedule); err != nil {
		return nil, fmt.Errorf("invalid NEVER_ACTIVE_SCHEDULE: %w", err)
	}

	return cfg, nil
}

// Helper: get env with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
