package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/wekeepgrowing/academy-payments/pkg/config"
	"github.com/wekeepgrowing/academy-payments/pkg/logger"
)

const serviceName = "payment"

type Config struct {
	Service      ServiceConfig      `mapstructure:"service"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Server       ServerConfig       `mapstructure:"server"`
	Log          LogConfig          `mapstructure:"log"`
	JWT          JWTConfig          `mapstructure:"jwt"`
	Payment      PaymentConfig      `mapstructure:"payment"`
	Webhook      WebhookConfig      `mapstructure:"webhook"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Settings     SettingsConfig     `mapstructure:"settings"`
	Notification NotificationConfig `mapstructure:"notification"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"`
	Output      string `mapstructure:"output"`
	FilePath    string `mapstructure:"file_path"`
	Development bool   `mapstructure:"development"`
}

// ZapConfig converts the section into the shared logger configuration.
func (c LogConfig) ZapConfig() logger.Config {
	return logger.Config{
		Level:       c.Level,
		Format:      c.Format,
		Output:      c.Output,
		FilePath:    c.FilePath,
		Development: c.Development,
	}
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

// PaymentConfig controls intent creation.
type PaymentConfig struct {
	// MaxAmount is the per-transaction ceiling in major units.
	MaxAmount           string        `mapstructure:"max_amount"`
	SupportedCurrencies []string      `mapstructure:"supported_currencies"`
	GatewayTimeout      time.Duration `mapstructure:"gateway_timeout"`
	DefaultDescription  string        `mapstructure:"default_description"`
}

type WebhookConfig struct {
	// EventRetention is how long processed-event markers are kept. Zero disables eviction.
	EventRetention time.Duration `mapstructure:"event_retention"`
	EvictInterval  time.Duration `mapstructure:"evict_interval"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SettingsConfig points at the academy settings file.
type SettingsConfig struct {
	Path     string        `mapstructure:"path"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type NotificationConfig struct {
	// Driver is "redis" or "log".
	Driver  string        `mapstructure:"driver"`
	Channel string        `mapstructure:"channel"`
	Timeout time.Duration `mapstructure:"timeout"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"service.name":                  serviceName,
		"service.environment":           "development",
		"service.version":               "dev",
		"service.stripe_secret_key":     "",
		"service.stripe_webhook_secret": "",
		"service.stripe_api_url":        "",

		"database.host":               "localhost",
		"database.port":               5432,
		"database.name":               "academy",
		"database.user":               "postgres",
		"database.password":           "",
		"database.ssl_mode":           "disable",
		"database.max_open_conns":     25,
		"database.max_idle_conns":     5,
		"database.conn_max_lifetime":  "30m",
		"database.conn_max_idle_time": "5m",
		"database.log_level":          "warn",
		"database.slow_threshold":     "200ms",

		"server.http.host":          "0.0.0.0",
		"server.http.port":          8080,
		"server.http.read_timeout":  "15s",
		"server.http.write_timeout": "30s",
		"server.grpc.host":          "0.0.0.0",
		"server.grpc.port":          9090,
		"server.cors_allow_origins": []string{"*"},

		"log.level":       "info",
		"log.format":      "json",
		"log.output":      "stdout",
		"log.file_path":   "",
		"log.development": false,

		"jwt.secret": "",

		"payment.max_amount":           "10000",
		"payment.supported_currencies": []string{},
		"payment.gateway_timeout":      "10s",
		"payment.default_description":  "Academy payment",

		"webhook.event_retention": "720h",
		"webhook.evict_interval":  "1h",
		"webhook.max_body_bytes":  65536,

		"redis.enabled":  false,
		"redis.addr":     "localhost:6379",
		"redis.password": "",
		"redis.db":       0,

		"settings.path":      "configs/academy.yaml",
		"settings.cache_ttl": "1m",

		"notification.driver":  "log",
		"notification.channel": "payments.outcomes",
		"notification.timeout": "5s",
	}
}

// LoadConfig reads configs/<APP_ENV>/payment.yaml (or CONFIG_PATH) with
// PAYMENT_-prefixed environment overrides.
func LoadConfig() (*Config, error) {
	src, err := pkgconfig.LoadWithDefaults(serviceName, defaults())
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := src.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail late at request time.
func (c *Config) Validate() error {
	if c.Payment.GatewayTimeout <= 0 {
		return fmt.Errorf("payment.gateway_timeout must be positive")
	}
	if c.Notification.Driver != "log" && c.Notification.Driver != "redis" {
		return fmt.Errorf("notification.driver must be log or redis, got %q", c.Notification.Driver)
	}
	if c.Notification.Driver == "redis" && !c.Redis.Enabled {
		return fmt.Errorf("notification.driver redis requires redis.enabled")
	}
	return nil
}
