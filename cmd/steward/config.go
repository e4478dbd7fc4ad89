package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all steward server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	DBPath            string `json:"db_path"`
	LogLevel          string `json:"log_level"`
	SchedulerInterval int    `json:"scheduler_interval_seconds"`
}

func defaultConfig() Config {
	return Config{
		DBPath:            filepath.Join(stewardDir(), "steward.db"),
		LogLevel:          "info",
		SchedulerInterval: 60,
	}
}

func stewardDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".steward"
	}
	return filepath.Join(home, ".steward")
}

func settingsPath() string {
	return filepath.Join(stewardDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("STEWARD_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("STEWARD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("STEWARD_SCHEDULER_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SchedulerInterval = n
		}
	}

	return cfg
}

func (c Config) schedulerInterval() time.Duration {
	if c.SchedulerInterval <= 0 {
		return time.Minute
	}
	return time.Duration(c.SchedulerInterval) * time.Second
}
