// Package config loads the server configuration: defaults, overlaid by an
// optional YAML file, overlaid by environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Engine holds the evaluation tunables. They can change at runtime via
// the config watcher; everything else requires a restart.
type Engine struct {
	DefaultTimeoutMs int `yaml:"defaultTimeoutMs"`
	MaxContexts      int `yaml:"maxContexts"`
	MaxRenderLength  int `yaml:"maxRenderLength"`
}

// DefaultTimeout returns the timeout as a duration.
func (e Engine) DefaultTimeout() time.Duration {
	return time.Duration(e.DefaultTimeoutMs) * time.Millisecond
}

type Config struct {
	Addr   string `yaml:"addr"`
	DBPath string `yaml:"dbPath"`
	// JWTSecret enables bearer auth on the API; empty leaves it open.
	JWTSecret string `yaml:"jwtSecret"`
	// Isolated selects the worker-process evaluator over the in-process
	// engine.
	Isolated     bool   `yaml:"isolated"`
	WorkerBinary string `yaml:"workerBinary"`
	Engine       Engine `yaml:"engine"`
}

func Default() Config {
	return Config{
		Addr:         ":8080",
		DBPath:       "lineval.db",
		WorkerBinary: "lineval-worker",
		Engine: Engine{
			DefaultTimeoutMs: 5000,
			MaxContexts:      16,
			MaxRenderLength:  200,
		},
	}
}

// Load reads the configuration. An empty path skips the file and uses
// defaults plus environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("LINEVAL_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("LINEVAL_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("LINEVAL_JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("LINEVAL_WORKER_BIN"); v != "" {
		cfg.WorkerBinary = v
	}
	if v := os.Getenv("LINEVAL_ISOLATED"); v != "" {
		cfg.Isolated = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("LINEVAL_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Engine.DefaultTimeoutMs = n
		}
	}
	if v := os.Getenv("LINEVAL_MAX_CONTEXTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Engine.MaxContexts = n
		}
	}
}
