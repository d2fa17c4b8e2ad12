package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rendis/chatflow/pkg/runtime"
)

// Config holds all chatflow CLI configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	DBPath      string `json:"db_path"`
	LogLevel    string `json:"log_level"`
	MaxDepth    int    `json:"max_depth"`
	Mode        string `json:"mode"`
	Tributaries string `json:"tributaries"`
	PoolSize    int    `json:"pool_size"`

	// SimulateTimeout bounds one chatflow.simulate call, e.g. "30s".
	SimulateTimeout string `json:"simulate_timeout"`
	MaxSpoken       int    `json:"max_spoken"`
}

func defaultConfig() Config {
	return Config{
		DBPath:   filepath.Join(chatflowDir(), "chatflow.db"),
		LogLevel: "warn",
		MaxDepth: runtime.DefaultMaxDepth,
		Mode:     runtime.ModeBlocking,
		PoolSize: 4,

		SimulateTimeout: "30s",
		MaxSpoken:       1000,
	}
}

func chatflowDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chatflow"
	}
	return filepath.Join(home, ".chatflow")
}

func settingsPath() string {
	return filepath.Join(chatflowDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("CHATFLOW_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("CHATFLOW_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CHATFLOW_MAX_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxDepth = n
		}
	}
	if v := os.Getenv("CHATFLOW_MODE"); v != "" {
		cfg.Mode = v
	}
	if v := os.Getenv("CHATFLOW_TRIBUTARIES"); v != "" {
		cfg.Tributaries = v
	}
	if v := os.Getenv("CHATFLOW_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PoolSize = n
		}
	}

	if v := os.Getenv("CHATFLOW_SIMULATE_TIMEOUT"); v != "" {
		cfg.SimulateTimeout = v
	}
	if v := os.Getenv("CHATFLOW_MAX_SPOKEN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxSpoken = n
		}
	}

	if cfg.Mode != runtime.ModeCooperative {
		cfg.Mode = runtime.ModeBlocking
	}
	return cfg
}

// simulateTimeout parses SimulateTimeout. Unparsable or non-positive
// values yield zero, which leaves the server default in place.
func (c Config) simulateTimeout() time.Duration {
	d, err := time.ParseDuration(c.SimulateTimeout)
	if err != nil || d <= 0 {
		return 0
	}
	return d
}
