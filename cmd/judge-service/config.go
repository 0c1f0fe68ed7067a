package main

import (
	"fmt"
	"os"
	"time"

	"judgebox/internal/common/cache"
	"judgebox/internal/common/db"
	"judgebox/internal/judge/sandbox"
	"judgebox/internal/judge/sandbox/engine"
	"judgebox/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8085"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 5 * time.Minute
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultBuildContext    = "sandbox"
	defaultGuardTTL        = 10 * time.Minute
	defaultMetricsPath     = "/metrics"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// DatabaseConfig is the MySQL pool plus schema handling.
type DatabaseConfig struct {
	db.MySQLConfig `yaml:",inline"`
	Migrate        bool `yaml:"migrate"`
}

// JudgeConfig holds judge run settings.
type JudgeConfig struct {
	GuardTTL     time.Duration `yaml:"guardTTL"`
	JobTimeout   time.Duration `yaml:"jobTimeout"`
	MaxCodeBytes int           `yaml:"maxCodeBytes"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// AppConfig holds judge-service config.
type AppConfig struct {
	Server   ServerConfig      `yaml:"server"`
	Logger   logger.Config     `yaml:"logger"`
	Database DatabaseConfig    `yaml:"database"`
	Redis    cache.RedisConfig `yaml:"redis"`
	Sandbox  sandbox.Config    `yaml:"sandbox"`
	Judge    JudgeConfig       `yaml:"judge"`
	Metrics  MetricsConfig     `yaml:"metrics"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	cfg.Redis.ApplyDefaults()
	applyServerDefaults(&cfg.Server)
	applySandboxDefaults(&cfg.Sandbox)
	if cfg.Judge.GuardTTL == 0 {
		cfg.Judge.GuardTTL = defaultGuardTTL
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = defaultMetricsPath
	}
	return &cfg, nil
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Addr == "" {
		cfg.Addr = defaultHTTPAddr
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
}

// applySandboxDefaults fills the fields the service reads itself. The runner
// defaults memory, mount target and command file on its own.
func applySandboxDefaults(cfg *sandbox.Config) {
	if cfg.Kind == "" {
		cfg.Kind = engine.KindCLI
	}
	if cfg.Binary == "" {
		cfg.Binary = "docker"
	}
	if cfg.BuildContext == "" {
		cfg.BuildContext = defaultBuildContext
	}
}
