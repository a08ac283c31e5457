package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/rewired-gh/econoracle/internal/gate"
	"github.com/rewired-gh/econoracle/internal/monitor"
)

// Config represents the complete application configuration
type Config struct {
	Calendar      CalendarConfig      `mapstructure:"calendar"`
	Monitor       MonitorConfig       `mapstructure:"monitor"`
	Gate          gate.Config         `mapstructure:"gate"`
	CooldownStore CooldownStoreConfig `mapstructure:"cooldown_store"`
	Telegram      TelegramConfig      `mapstructure:"telegram"`
	Discord       DiscordConfig       `mapstructure:"discord"`
	Notify        NotifyConfig        `mapstructure:"notify"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// CalendarConfig holds the economic calendar source and the job schedules
type CalendarConfig struct {
	APIBaseURL     string        `mapstructure:"api_base_url"`
	File           string        `mapstructure:"file"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
	Daily          JobConfig     `mapstructure:"daily"`
	Weekly         JobConfig     `mapstructure:"weekly"`
}

// JobConfig describes one scheduled detection cycle
type JobConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Schedule string        `mapstructure:"schedule"`
	Lookback time.Duration `mapstructure:"lookback"`
	Horizon  time.Duration `mapstructure:"horizon"`
}

// MonitorConfig holds detection thresholds
type MonitorConfig struct {
	ChangeThreshold   float64 `mapstructure:"significant_change_threshold"`
	SurpriseThreshold float64 `mapstructure:"surprise_threshold"`
	Workers           int     `mapstructure:"workers"`
	TopK              int     `mapstructure:"top_k"`
}

// CooldownStoreConfig selects where the cooldown ledger lives
type CooldownStoreConfig struct {
	Backend       string `mapstructure:"backend"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisPrefix   string `mapstructure:"redis_prefix"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// DiscordConfig holds Discord webhook configuration
type DiscordConfig struct {
	WebhookURL     string        `mapstructure:"webhook_url"`
	Username       string        `mapstructure:"username"`
	Enabled        bool          `mapstructure:"enabled"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// NotifyConfig bounds the outbound send rate
type NotifyConfig struct {
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	Burst         int     `mapstructure:"burst"`
}

// StorageConfig holds storage and persistence configuration
type StorageConfig struct {
	DBPath             string        `mapstructure:"db_path"`
	MaxSnapshotsPerJob int           `mapstructure:"max_snapshots_per_job"`
	AuditRetention     time.Duration `mapstructure:"audit_retention"`
}

// MetricsConfig holds the Prometheus endpoint configuration
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables. A .env file
// in the working directory, if present, is loaded into the environment first.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	// ECONORACLE_TELEGRAM_BOT_TOKEN overrides telegram.bot_token
	v.SetEnvPrefix("ECONORACLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	hooks := mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(hooks)); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options.
//
// Every key needs a default, even an empty one, or AutomaticEnv cannot
// override it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("calendar.api_base_url", "")
	v.SetDefault("calendar.file", "")
	v.SetDefault("calendar.timeout", "30s")
	v.SetDefault("calendar.max_retries", 3)
	v.SetDefault("calendar.retry_delay_base", "2s")
	v.SetDefault("calendar.daily.enabled", true)
	v.SetDefault("calendar.daily.schedule", "*/15 * * * *")
	v.SetDefault("calendar.daily.lookback", "24h")
	v.SetDefault("calendar.daily.horizon", "48h")
	v.SetDefault("calendar.weekly.enabled", true)
	v.SetDefault("calendar.weekly.schedule", "0 6 * * *")
	v.SetDefault("calendar.weekly.lookback", "0s")
	v.SetDefault("calendar.weekly.horizon", "168h")

	v.SetDefault("monitor.significant_change_threshold", monitor.DefaultChangeThreshold)
	v.SetDefault("monitor.surprise_threshold", monitor.DefaultSurpriseThreshold)
	v.SetDefault("monitor.workers", 0)
	v.SetDefault("monitor.top_k", 5)

	g := gate.DefaultConfig()
	v.SetDefault("gate.importance_threshold", g.ImportanceThreshold.String())
	v.SetDefault("gate.countries_filter", g.CountriesFilter)
	v.SetDefault("gate.categories_filter", g.CategoriesFilter)
	v.SetDefault("gate.forecast_change_threshold", g.ForecastChangeThreshold)
	v.SetDefault("gate.surprise_threshold", g.SurpriseThreshold)
	for kind, d := range g.CooldownPeriodByKind {
		v.SetDefault("gate.cooldown_period_by_kind."+string(kind), d.String())
	}
	v.SetDefault("gate.ai_report_importance_threshold", g.AIReportImportanceThreshold)
	v.SetDefault("gate.ai_report_min_importance", g.AIReportMinImportance.String())
	v.SetDefault("gate.reservation_timeout", g.ReservationTimeout.String())
	v.SetDefault("gate.max_retention", g.MaxRetention.String())
	v.SetDefault("gate.sweep_interval", g.SweepInterval.String())

	v.SetDefault("cooldown_store.backend", "memory")
	v.SetDefault("cooldown_store.redis_addr", "")
	v.SetDefault("cooldown_store.redis_password", "")
	v.SetDefault("cooldown_store.redis_db", 0)
	v.SetDefault("cooldown_store.redis_prefix", gate.DefaultRedisPrefix)

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	v.SetDefault("discord.enabled", false)
	v.SetDefault("discord.webhook_url", "")
	v.SetDefault("discord.username", "econoracle")
	v.SetDefault("discord.timeout", "10s")
	v.SetDefault("discord.max_retries", 3)
	v.SetDefault("discord.retry_delay_base", "1s")

	v.SetDefault("notify.rate_per_second", 1.0)
	v.SetDefault("notify.burst", 5)

	v.SetDefault("storage.db_path", "./data/econoracle.db")
	v.SetDefault("storage.max_snapshots_per_job", 50)
	v.SetDefault("storage.audit_retention", "720h")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.listen_addr", ":9090")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Calendar
	if c.Calendar.APIBaseURL == "" && c.Calendar.File == "" {
		return fmt.Errorf("calendar.api_base_url or calendar.file is required")
	}
	if c.Calendar.File == "" && c.Calendar.Timeout <= 0 {
		return fmt.Errorf("calendar.timeout must be positive")
	}
	if c.Calendar.MaxRetries < 1 {
		return fmt.Errorf("calendar.max_retries must be at least 1")
	}
	if !c.Calendar.Daily.Enabled && !c.Calendar.Weekly.Enabled {
		return fmt.Errorf("at least one of calendar.daily and calendar.weekly must be enabled")
	}
	for name, job := range map[string]JobConfig{"daily": c.Calendar.Daily, "weekly": c.Calendar.Weekly} {
		if !job.Enabled {
			continue
		}
		if job.Schedule == "" {
			return fmt.Errorf("calendar.%s.schedule is required", name)
		}
		if job.Horizon <= 0 {
			return fmt.Errorf("calendar.%s.horizon must be positive", name)
		}
		if job.Lookback < 0 {
			return fmt.Errorf("calendar.%s.lookback must not be negative", name)
		}
	}

	// Monitor
	if c.Monitor.ChangeThreshold < 0 {
		return fmt.Errorf("monitor.significant_change_threshold must not be negative")
	}
	if c.Monitor.SurpriseThreshold < 0 {
		return fmt.Errorf("monitor.surprise_threshold must not be negative")
	}
	if c.Monitor.Workers < 0 {
		return fmt.Errorf("monitor.workers must not be negative")
	}
	if c.Monitor.TopK < 0 {
		return fmt.Errorf("monitor.top_k must not be negative")
	}

	// Gate
	if err := c.Gate.Validate(); err != nil {
		return fmt.Errorf("gate: %w", err)
	}

	// Cooldown store
	switch c.CooldownStore.Backend {
	case "memory":
	case "redis":
		if c.CooldownStore.RedisAddr == "" {
			return fmt.Errorf("cooldown_store.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("cooldown_store.backend must be one of: memory, redis")
	}

	// Telegram
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Discord
	if c.Discord.Enabled && c.Discord.WebhookURL == "" {
		return fmt.Errorf("discord.webhook_url is required when discord is enabled")
	}

	// Notify
	if c.Notify.RatePerSecond < 0 {
		return fmt.Errorf("notify.rate_per_second must not be negative")
	}
	if c.Notify.Burst < 1 {
		return fmt.Errorf("notify.burst must be at least 1")
	}

	// Storage
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}
	if c.Storage.MaxSnapshotsPerJob < 1 {
		return fmt.Errorf("storage.max_snapshots_per_job must be at least 1")
	}
	if c.Storage.AuditRetention < 0 {
		return fmt.Errorf("storage.audit_retention must not be negative")
	}

	// Metrics
	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		return fmt.Errorf("metrics.listen_addr is required when metrics are enabled")
	}

	// Logging
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
