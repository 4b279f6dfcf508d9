// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Bot      BotConfig      `mapstructure:"bot"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Server   ServerConfig   `mapstructure:"server"`
	Media    MediaConfig    `mapstructure:"media"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
}

// BotConfig holds Telegram bot configuration.
type BotConfig struct {
	Token string `mapstructure:"token"`
	// AppURL is the mini-app the launch button opens.
	AppURL string `mapstructure:"app_url"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StorageConfig holds mirrored-media storage configuration.
type StorageConfig struct {
	// Bucket prefixes every object key, mirroring the bucket the
	// original deployment stored photos in.
	Bucket        string        `mapstructure:"bucket"`
	PublicBaseURL string        `mapstructure:"public_base_url"`
	SigningSecret string        `mapstructure:"signing_secret"`
	SignedURLTTL  time.Duration `mapstructure:"signed_url_ttl"`
}

// ServerConfig holds the HTTP front-end configuration.
type ServerConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// MediaConfig holds the photo-mirror configuration.
type MediaConfig struct {
	// MirrorTimeout bounds the best-effort photo mirror so it can
	// never stall the primary reply.
	MirrorTimeout time.Duration `mapstructure:"mirror_timeout"`
}

// WebhookConfig holds inbound webhook configuration.
type WebhookConfig struct {
	// PublicURL is the externally visible webhook endpoint. When set,
	// it is registered with Telegram once at startup.
	PublicURL string `mapstructure:"public_url"`
	// SecretToken is echoed back by Telegram in the
	// X-Telegram-Bot-Api-Secret-Token header on every delivery.
	SecretToken string `mapstructure:"secret_token"`
	// DedupeTTL is how long a processed update id is remembered.
	DedupeTTL time.Duration `mapstructure:"dedupe_ttl"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables use underscore separator and uppercase,
	// e.g. BOT_TOKEN, DATABASE_HOST, STORAGE_SIGNING_SECRET.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK - we can use env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate reports missing required values. The process must not serve
// traffic on a config error.
func (c *Config) Validate() error {
	var errs []error
	if c.Bot.Token == "" {
		errs = append(errs, errors.New("bot.token is required"))
	}
	if c.Storage.SigningSecret == "" {
		errs = append(errs, errors.New("storage.signing_secret is required"))
	}
	if c.Storage.PublicBaseURL == "" {
		errs = append(errs, errors.New("storage.public_base_url is required"))
	}
	return errors.Join(errs...)
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "diamondbot")
	v.SetDefault("database.name", "diamondbot")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	// Bot defaults
	v.SetDefault("bot.app_url", "https://diamondheist.netlify.app/")

	// Storage defaults
	v.SetDefault("storage.bucket", "diamondapp")
	v.SetDefault("storage.signed_url_ttl", "8760h") // 365 days

	// Server defaults
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "15s")

	// Media mirror defaults
	v.SetDefault("media.mirror_timeout", "10s")

	// Webhook defaults
	v.SetDefault("webhook.dedupe_ttl", "24h")
}
