package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all Aeris configuration.
type Config struct {
	Storage StorageConfig `mapstructure:"storage"`
	Server  ServerConfig  `mapstructure:"server"`
	Alerts  AlertsConfig  `mapstructure:"alerts"`
	Weather WeatherConfig `mapstructure:"weather"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// StorageConfig selects and configures the record store.
type StorageConfig struct {
	Driver string      `mapstructure:"driver"`
	Path   string      `mapstructure:"path"`
	Redis  RedisConfig `mapstructure:"redis"`
}

// RedisConfig defines Redis connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// ServerConfig defines HTTP API settings.
type ServerConfig struct {
	Listen       string        `mapstructure:"listen"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// AlertsConfig tunes the alert scheduler and throttle.
type AlertsConfig struct {
	Interval       time.Duration `mapstructure:"interval"`
	ThrottleWindow time.Duration `mapstructure:"throttle_window"`
	Concurrency    int           `mapstructure:"concurrency"`
	RunOnStart     bool          `mapstructure:"run_on_start"`
	PolicyFile     string        `mapstructure:"policy_file"`
}

// WeatherConfig defines the Open-Meteo client and snapshot cache.
type WeatherConfig struct {
	ForecastURL   string        `mapstructure:"forecast_url"`
	AirQualityURL string        `mapstructure:"air_quality_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	CacheSize     int           `mapstructure:"cache_size"`
}

// NotifyConfig selects the outbound channel.
type NotifyConfig struct {
	Channel  string         `mapstructure:"channel"`
	Timeout  time.Duration  `mapstructure:"timeout"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Slack    SlackConfig    `mapstructure:"slack"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
}

// TelegramConfig defines Telegram Bot API settings.
type TelegramConfig struct {
	Token  string `mapstructure:"token"`
	APIURL string `mapstructure:"api_url"`
}

// WebhookConfig defines generic webhook settings.
type WebhookConfig struct {
	URL    string `mapstructure:"url"`
	Secret string `mapstructure:"secret"`
}

// SlackConfig defines Slack webhook settings.
type SlackConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
}

// KafkaConfig defines the alert topic producer.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables. A .env file
// in the working directory is loaded first; variables already set win.
func Load(cfgFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("find home directory: %w", err)
		}

		v.AddConfigPath(filepath.Join(home, ".aeris"))
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	home, _ := os.UserHomeDir()
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.path", filepath.Join(home, ".aeris", "aeris.db"))
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.prefix", "aeris:")
	v.SetDefault("server.listen", ":5000")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("alerts.interval", "240m")
	v.SetDefault("alerts.throttle_window", "240m")
	v.SetDefault("alerts.concurrency", 4)
	v.SetDefault("alerts.run_on_start", false)
	v.SetDefault("alerts.policy_file", "")
	v.SetDefault("weather.forecast_url", "https://api.open-meteo.com/v1/forecast")
	v.SetDefault("weather.air_quality_url", "https://air-quality-api.open-meteo.com/v1/air-quality")
	v.SetDefault("weather.timeout", "15s")
	v.SetDefault("weather.cache_ttl", "10m")
	v.SetDefault("weather.cache_size", 1000)
	v.SetDefault("notify.channel", "telegram")
	v.SetDefault("notify.timeout", "10s")
	v.SetDefault("notify.telegram.token", "")
	v.SetDefault("notify.telegram.api_url", "https://api.telegram.org")
	v.SetDefault("notify.webhook.url", "")
	v.SetDefault("notify.webhook.secret", "")
	v.SetDefault("notify.slack.webhook_url", "")
	v.SetDefault("notify.kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("notify.kafka.topic", "weather-alerts")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetEnvPrefix("AERIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the sqlite driver")
		}
	case "redis":
		if c.Storage.Redis.Addr == "" {
			return fmt.Errorf("storage.redis.addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q (want sqlite or redis)", c.Storage.Driver)
	}

	durations := []struct {
		key string
		val time.Duration
	}{
		{"alerts.interval", c.Alerts.Interval},
		{"alerts.throttle_window", c.Alerts.ThrottleWindow},
		{"weather.timeout", c.Weather.Timeout},
		{"notify.timeout", c.Notify.Timeout},
		{"server.read_timeout", c.Server.ReadTimeout},
		{"server.write_timeout", c.Server.WriteTimeout},
	}
	for _, d := range durations {
		if d.val <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.key, d.val)
		}
	}
	if c.Weather.CacheTTL < 0 {
		return fmt.Errorf("weather.cache_ttl must not be negative")
	}
	if c.Alerts.Concurrency <= 0 {
		return fmt.Errorf("alerts.concurrency must be positive, got %d", c.Alerts.Concurrency)
	}
	if c.Weather.ForecastURL == "" {
		return fmt.Errorf("weather.forecast_url is required")
	}

	switch c.Notify.Channel {
	case "telegram":
		if c.Notify.Telegram.Token == "" {
			return fmt.Errorf("notify.telegram.token is required for the telegram channel")
		}
	case "webhook":
		if c.Notify.Webhook.URL == "" {
			return fmt.Errorf("notify.webhook.url is required for the webhook channel")
		}
	case "slack":
		if c.Notify.Slack.WebhookURL == "" {
			return fmt.Errorf("notify.slack.webhook_url is required for the slack channel")
		}
	case "kafka":
		if len(c.Notify.Kafka.Brokers) == 0 || c.Notify.Kafka.Topic == "" {
			return fmt.Errorf("notify.kafka.brokers and notify.kafka.topic are required for the kafka channel")
		}
	default:
		return fmt.Errorf("unknown notify.channel %q", c.Notify.Channel)
	}

	return nil
}
