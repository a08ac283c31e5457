package gate

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/rewired-gh/econoracle/internal/classifier"
	"github.com/rewired-gh/econoracle/internal/models"
)

// ErrInvalidConfig wraps every configuration failure reported by Validate and New.
var ErrInvalidConfig = errors.New("invalid gate configuration")

// Wildcard as the only filter entry admits every country or category.
const Wildcard = "*"

// Config holds the gate's rule thresholds and cooldown windows.
type Config struct {
	ImportanceThreshold         models.Importance                         `mapstructure:"importance_threshold" validate:"gte=1,lte=3"`
	CountriesFilter             []string                                  `mapstructure:"countries_filter" validate:"required,min=1,dive,required"`
	CategoriesFilter            []string                                  `mapstructure:"categories_filter" validate:"required,min=1,dive,required"`
	ForecastChangeThreshold     float64                                   `mapstructure:"forecast_change_threshold" validate:"gte=0"`
	SurpriseThreshold           float64                                   `mapstructure:"surprise_threshold" validate:"gte=0"`
	CooldownPeriodByKind        map[models.NotificationKind]time.Duration `mapstructure:"cooldown_period_by_kind"`
	AIReportImportanceThreshold float64                                   `mapstructure:"ai_report_importance_threshold" validate:"gte=0,lte=1"`
	AIReportMinImportance       models.Importance                         `mapstructure:"ai_report_min_importance" validate:"gte=1,lte=3"`
	ReservationTimeout          time.Duration                             `mapstructure:"reservation_timeout" validate:"gt=0"`
	MaxRetention                time.Duration                             `mapstructure:"max_retention" validate:"gt=0"`
	SweepInterval               time.Duration                             `mapstructure:"sweep_interval" validate:"gt=0"`
}

// DefaultCooldowns are the per-kind windows used when none are configured.
var DefaultCooldowns = map[models.NotificationKind]time.Duration{
	models.KindNewEvent:           2 * time.Hour,
	models.KindForecastChange:     time.Hour,
	models.KindActualAnnouncement: 30 * time.Minute,
	models.KindAIReport:           2 * time.Hour,
}

var defaultCategories = []string{
	classifier.CategoryInflation,
	classifier.CategoryEmployment,
	classifier.CategoryInterestRate,
	classifier.CategoryGDP,
	classifier.CategoryTrade,
}

// DefaultConfig returns the stock gate configuration.
func DefaultConfig() Config {
	cooldowns := make(map[models.NotificationKind]time.Duration, len(DefaultCooldowns))
	for k, v := range DefaultCooldowns {
		cooldowns[k] = v
	}
	return Config{
		ImportanceThreshold:         models.ImportanceMedium,
		CountriesFilter:             []string{"US", "EU", "CN", "JP", "GB", "DE", "FR", "CA", "AU", "CH"},
		CategoriesFilter:            append([]string(nil), defaultCategories...),
		ForecastChangeThreshold:     10,
		SurpriseThreshold:           20,
		CooldownPeriodByKind:        cooldowns,
		AIReportImportanceThreshold: 0.7,
		AIReportMinImportance:       models.ImportanceHigh,
		ReservationTimeout:          5 * time.Minute,
		MaxRetention:                7 * 24 * time.Hour,
		SweepInterval:               time.Hour,
	}
}

// Cooldown returns the window for kind, falling back to DefaultCooldowns.
func (c *Config) Cooldown(kind models.NotificationKind) time.Duration {
	if d, ok := c.CooldownPeriodByKind[kind]; ok {
		return d
	}
	return DefaultCooldowns[kind]
}

// Validate checks the configuration. Every error wraps ErrInvalidConfig.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	for kind, d := range c.CooldownPeriodByKind {
		if !kind.Valid() {
			return fmt.Errorf("%w: unknown notification kind %q in cooldown_period_by_kind", ErrInvalidConfig, kind)
		}
		if d < 0 {
			return fmt.Errorf("%w: cooldown for %s must be non-negative, got %s", ErrInvalidConfig, kind, d)
		}
	}

	for _, kind := range models.NotificationKinds {
		if c.Cooldown(kind) > c.MaxRetention {
			return fmt.Errorf("%w: max_retention %s is shorter than the %s cooldown %s",
				ErrInvalidConfig, c.MaxRetention, kind, c.Cooldown(kind))
		}
	}

	return nil
}
