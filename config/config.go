// Package config loads server configuration from an optional .env file, a
// YAML file and HRL_* environment variables, in that order of precedence
// (environment wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/warp/hr-ledger/generic"
)

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Auth     AuthConfig     `yaml:"auth"`
	Retry    RetryConfig    `yaml:"retry"`
	Leave    LeaveConfig    `yaml:"leave"`
}

type HTTPConfig struct {
	Port            int           `yaml:"port"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver          string        `yaml:"driver"` // sqlite | postgres
	DSN             string        `yaml:"dsn"`    // file path for sqlite
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type LogConfig struct {
	Development bool   `yaml:"development"`
	Level       string `yaml:"level"`
}

type KafkaConfig struct {
	Brokers     []string `yaml:"brokers"`
	Topic       string   `yaml:"topic"`
	QueueSize   int      `yaml:"queue_size"`
	CreateTopic bool     `yaml:"create_topic"`
}

// Enabled reports whether events go to Kafka.
func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

type AuthConfig struct {
	JWTSecret  string `yaml:"jwt_secret"`
	AdminToken string `yaml:"admin_token"`
}

type RetryConfig struct {
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	MaxElapsedTime  time.Duration `yaml:"max_elapsed_time"`
	MaxRetries      uint64        `yaml:"max_retries"`
}

// Policy converts the retry settings for the core.
func (r RetryConfig) Policy() generic.RetryPolicy {
	return generic.RetryPolicy{
		InitialInterval: r.InitialInterval,
		MaxInterval:     r.MaxInterval,
		MaxElapsedTime:  r.MaxElapsedTime,
		MaxRetries:      r.MaxRetries,
	}
}

type LeaveConfig struct {
	Entitlement      string        `yaml:"entitlement"` // flat | prorated | tenure
	RolloverEnabled  bool          `yaml:"rollover_enabled"`
	RolloverInterval time.Duration `yaml:"rollover_interval"`
}

// Default returns a configuration that runs locally on SQLite.
func Default() Config {
	d := generic.DefaultRetryPolicy()
	return Config{
		HTTP:     HTTPConfig{Port: 8080, ShutdownTimeout: 30 * time.Second},
		Database: DatabaseConfig{Driver: "sqlite", DSN: "hr-ledger.db"},
		Log:      LogConfig{Level: "info"},
		Kafka:    KafkaConfig{Topic: "hr-ledger.events", QueueSize: 1000},
		Retry: RetryConfig{
			InitialInterval: d.InitialInterval,
			MaxInterval:     d.MaxInterval,
			MaxElapsedTime:  d.MaxElapsedTime,
			MaxRetries:      d.MaxRetries,
		},
		Leave: LeaveConfig{Entitlement: "flat", RolloverEnabled: true, RolloverInterval: time.Hour},
	}
}

// Load builds the configuration. A missing .env or YAML file is not an
// error; path may be empty.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("HRL_HTTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HRL_HTTP_PORT: %w", err)
		}
		c.HTTP.Port = port
	}
	if v := getenv("HRL_DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := getenv("HRL_DB_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := getenv("HRL_KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := getenv("HRL_KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := getenv("HRL_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := getenv("HRL_ADMIN_TOKEN"); v != "" {
		c.Auth.AdminToken = v
	}
	if v := getenv("HRL_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("HRL_ENTITLEMENT"); v != "" {
		c.Leave.Entitlement = v
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	switch {
	case c.HTTP.Port <= 0 || c.HTTP.Port > 65535:
		return fmt.Errorf("http.port %d is out of range", c.HTTP.Port)
	case c.Database.Driver != "sqlite" && c.Database.Driver != "postgres":
		return fmt.Errorf("database.driver %q is not supported (sqlite, postgres)", c.Database.Driver)
	case c.Database.DSN == "":
		return errors.New("database.dsn is required")
	case c.Kafka.Enabled() && c.Kafka.Topic == "":
		return errors.New("kafka.topic is required when brokers are set")
	}
	switch c.Leave.Entitlement {
	case "", "flat", "prorated", "tenure":
	default:
		return fmt.Errorf("leave.entitlement %q is not supported (flat, prorated, tenure)", c.Leave.Entitlement)
	}
	return nil
}
