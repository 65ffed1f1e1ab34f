package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all ruleflow server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	ListenAddr      string `json:"listen_addr"`
	DBPath          string `json:"db_path"`
	LogLevel        string `json:"log_level"`
	RefreshCron     string `json:"refresh_cron"`      // empty disables auto-refresh
	RefreshPollSecs int    `json:"refresh_poll_secs"` // due-ness check interval
}

func defaultConfig() Config {
	return Config{
		ListenAddr:      ":4200",
		DBPath:          filepath.Join(ruleflowDir(), "ruleflow.db"),
		LogLevel:        "info",
		RefreshCron:     "*/5 * * * *",
		RefreshPollSecs: 15,
	}
}

func ruleflowDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ruleflow"
	}
	return filepath.Join(home, ".ruleflow")
}

func settingsPath() string {
	return filepath.Join(ruleflowDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("RULEFLOW_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("RULEFLOW_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("RULEFLOW_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v, ok := os.LookupEnv("RULEFLOW_REFRESH_CRON"); ok {
		cfg.RefreshCron = v
	}
	if v := os.Getenv("RULEFLOW_REFRESH_POLL_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RefreshPollSecs = n
		}
	}

	return cfg
}

func (c Config) refreshPollInterval() time.Duration {
	return time.Duration(c.RefreshPollSecs) * time.Second
}
