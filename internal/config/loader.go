// Package config loads process configuration with the precedence
// runtime overrides > environment > config file > defaults.
package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// envPrefix is the prefix for every configuration environment variable.
const envPrefix = "GOBEACON"

// ServerConfig configures the local status HTTP server.
type ServerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig configures process logging.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Profile string `mapstructure:"profile"`
}

// RemoteConfig configures the connection to the job service.
type RemoteConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// JobsConfig configures the job tracking engine.
type JobsConfig struct {
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	MaxPollInterval time.Duration `mapstructure:"max_poll_interval"`
	BackoffFactor   float64       `mapstructure:"backoff_factor"`
	RetireAfter     time.Duration `mapstructure:"retire_after"`
}

// NotificationsConfig configures the notification polling engine.
type NotificationsConfig struct {
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	SlowEvery         int           `mapstructure:"slow_every"`
	InitialFetchLimit int           `mapstructure:"initial_fetch_limit"`
	RetainRead        time.Duration `mapstructure:"retain_read"`
	RateLimit         float64       `mapstructure:"rate_limit"`
	PolicyFile        string        `mapstructure:"policy_file"`
}

// HealthConfig configures the health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// DebugConfig configures debug facilities.
type DebugConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	PprofEnabled bool `mapstructure:"pprof_enabled"`
}

// Config is the full process configuration.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Remote        RemoteConfig        `mapstructure:"remote"`
	Jobs          JobsConfig          `mapstructure:"jobs"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Health        HealthConfig        `mapstructure:"health"`
	Debug         DebugConfig         `mapstructure:"debug"`
}

var (
	configMu  sync.RWMutex
	appConfig *Config
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	v.SetDefault("remote.base_url", "http://localhost:3000")
	v.SetDefault("remote.request_timeout", "10s")

	v.SetDefault("jobs.poll_interval", "5s")
	v.SetDefault("jobs.max_poll_interval", "30s")
	v.SetDefault("jobs.backoff_factor", 1.5)
	v.SetDefault("jobs.retire_after", "30s")

	v.SetDefault("notifications.poll_interval", "5s")
	v.SetDefault("notifications.slow_every", 6)
	v.SetDefault("notifications.initial_fetch_limit", 50)
	v.SetDefault("notifications.retain_read", "24h")
	v.SetDefault("notifications.rate_limit", 0.0)
	v.SetDefault("notifications.policy_file", "")

	v.SetDefault("health.enabled", true)

	v.SetDefault("debug.enabled", false)
	v.SetDefault("debug.pprof_enabled", false)
}

// envBindings maps short operator-facing env vars onto config keys, in
// addition to the automatic GOBEACON_SECTION_KEY mapping.
var envBindings = map[string]string{
	"server.host":              "GOBEACON_HOST",
	"server.port":              "GOBEACON_PORT",
	"server.read_timeout":      "GOBEACON_READ_TIMEOUT",
	"server.write_timeout":     "GOBEACON_WRITE_TIMEOUT",
	"server.shutdown_timeout":  "GOBEACON_SHUTDOWN_TIMEOUT",
	"logging.level":            "GOBEACON_LOG_LEVEL",
	"logging.profile":          "GOBEACON_LOG_PROFILE",
	"remote.base_url":          "GOBEACON_REMOTE_URL",
	"remote.request_timeout":   "GOBEACON_REMOTE_TIMEOUT",
	"health.enabled":           "GOBEACON_HEALTH_ENABLED",
	"notifications.rate_limit": "GOBEACON_NOTIFY_RATE_LIMIT",
}

// Load builds the configuration and installs it as the process config.
// Optional override maps take precedence over environment and file
// values; later maps win over earlier ones.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("gobeacon")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/gobeacon")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	// Runtime overrides use Set, which outranks env and file values.
	for _, o := range overrides {
		applyOverrides(v, "", o)
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	configMu.Lock()
	appConfig = &cfg
	configMu.Unlock()
	return &cfg, nil
}

// applyOverrides flattens nested override maps into dotted keys.
func applyOverrides(v *viper.Viper, prefix string, values map[string]any) {
	for key, val := range values {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			applyOverrides(v, full, nested)
			continue
		}
		v.Set(full, val)
	}
}

// GetConfig returns the most recently loaded config, nil before Load.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}
