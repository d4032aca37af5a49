package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/ogulcanaydogan/aeris/internal/config"
	"github.com/ogulcanaydogan/aeris/internal/observability"
	"github.com/ogulcanaydogan/aeris/pkg/account"
	"github.com/ogulcanaydogan/aeris/pkg/alerting"
	"github.com/ogulcanaydogan/aeris/pkg/hazard"
	"github.com/ogulcanaydogan/aeris/pkg/notify"
	"github.com/ogulcanaydogan/aeris/pkg/storage"
	"github.com/ogulcanaydogan/aeris/pkg/weather"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "aeris",
	Short: "Aeris - weather and air-quality alerts for registered users",
	Long: `Aeris periodically checks current weather and air quality at each linked
user's location and sends a single aggregated alert when hazardous conditions
appear, throttling repeats of the same hazards.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.aeris/config.yaml)")
}

// loadConfig loads the configuration.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

// newLogger creates a structured logger from config.
func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	return slog.New(handler)
}

// initStorage creates a storage backend from config.
func initStorage(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	switch cfg.Storage.Driver {
	case storage.DriverRedis:
		return storage.NewRedis(ctx, storage.RedisOptions{
			Addr:     cfg.Storage.Redis.Addr,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
			Prefix:   cfg.Storage.Redis.Prefix,
		})
	case storage.DriverSQLite, "":
		return storage.NewSQLite(cfg.Storage.Path)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// initNotifiers registers every channel whose settings are present. The
// returned closer releases producer connections.
func initNotifiers(cfg *config.Config) (*notify.Registry, func() error, error) {
	registry := notify.NewRegistry()
	closer := func() error { return nil }
	n := cfg.Notify

	var candidates []notify.Notifier
	if n.Telegram.Token != "" {
		candidates = append(candidates, notify.NewTelegramNotifier(n.Telegram.APIURL, n.Telegram.Token, n.Timeout))
	}
	if n.Webhook.URL != "" {
		candidates = append(candidates, notify.NewWebhookNotifier(n.Webhook.URL, n.Webhook.Secret, n.Timeout))
	}
	if n.Slack.WebhookURL != "" {
		candidates = append(candidates, notify.NewSlackNotifier(n.Slack.WebhookURL, n.Timeout))
	}
	if len(n.Kafka.Brokers) > 0 && n.Kafka.Topic != "" {
		k := notify.NewKafkaNotifier(n.Kafka.Brokers, n.Kafka.Topic, n.Timeout)
		candidates = append(candidates, k)
		closer = k.Close
	}

	for _, c := range candidates {
		if err := registry.Register(c); err != nil {
			_ = closer()
			return nil, nil, err
		}
	}
	return registry, closer, nil
}

// loadPolicy returns the configured threshold policy.
func loadPolicy(cfg *config.Config) (hazard.Policy, error) {
	if cfg.Alerts.PolicyFile == "" {
		return hazard.DefaultPolicy(), nil
	}
	p, err := hazard.LoadPolicy(cfg.Alerts.PolicyFile)
	if err != nil {
		return hazard.Policy{}, fmt.Errorf("load policy: %w", err)
	}
	return p, nil
}

// components is the fully wired engine used by the commands.
type components struct {
	logger     *slog.Logger
	store      storage.Storage
	registry   *prometheus.Registry
	metrics    *observability.Metrics
	accounts   *account.Service
	aggregator *alerting.Aggregator

	closeNotifiers func() error
}

// initComponents wires storage, weather, notifier and aggregator from config.
// Callers must Close the result.
func initComponents(ctx context.Context, cfg *config.Config) (*components, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger := newLogger(cfg)

	policy, err := loadPolicy(cfg)
	if err != nil {
		return nil, err
	}

	store, err := initStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	notifiers, closeNotifiers, err := initNotifiers(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}
	notifier, err := notifiers.Get(cfg.Notify.Channel)
	if err != nil {
		closeNotifiers()
		store.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	source := weather.NewCachedSource(
		weather.NewOpenMeteo(weather.Options{
			ForecastURL:   cfg.Weather.ForecastURL,
			AirQualityURL: cfg.Weather.AirQualityURL,
			Timeout:       cfg.Weather.Timeout,
		}, logger),
		weather.CacheOptions{
			MaxEntries: cfg.Weather.CacheSize,
			TTL:        cfg.Weather.CacheTTL,
			Lookups:    metrics.WeatherCache,
		},
	)

	agg := alerting.NewAggregator(store, source, notifier, alerting.Options{
		Policy:         &policy,
		ThrottleWindow: cfg.Alerts.ThrottleWindow,
		Concurrency:    cfg.Alerts.Concurrency,
		FetchTimeout:   cfg.Weather.Timeout,
		SendTimeout:    cfg.Notify.Timeout,
		Metrics:        metrics,
	}, logger)

	return &components{
		logger:         logger,
		store:          store,
		registry:       registry,
		metrics:        metrics,
		accounts:       account.NewService(store, logger),
		aggregator:     agg,
		closeNotifiers: closeNotifiers,
	}, nil
}

// Close releases the store and notifier connections.
func (c *components) Close() error {
	return errors.Join(c.closeNotifiers(), c.store.Close())
}

// withStore opens only the record store, for commands that never dispatch.
func withStore(ctx context.Context, fn func(*config.Config, *account.Service) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := initStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	return fn(cfg, account.NewService(store, newLogger(cfg)))
}
