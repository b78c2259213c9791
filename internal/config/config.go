package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the runtime configuration of the balance integrity core.
type Config struct {
	LogLevel    string
	MetricsAddr string

	Audit struct {
		MaxEventsPerCustomer int
		RetentionDays        int
	}

	Notification struct {
		TemplatesFile   string
		WebhookURL      string
		DispatchTimeout time.Duration
	}
}

// Load reads configuration from an optional config.yaml and the
// environment, with environment variables taking precedence.
func Load() (*Config, error) {
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("METRICS_ADDR", ":9102")
	viper.SetDefault("AUDIT_MAX_EVENTS_PER_CUSTOMER", 1000)
	viper.SetDefault("AUDIT_RETENTION_DAYS", 90)
	viper.SetDefault("NOTIFICATION_TEMPLATES_FILE", "")
	viper.SetDefault("NOTIFICATION_WEBHOOK_URL", "")
	viper.SetDefault("NOTIFICATION_DISPATCH_TIMEOUT", "10s")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		LogLevel:    viper.GetString("LOG_LEVEL"),
		MetricsAddr: viper.GetString("METRICS_ADDR"),
	}
	cfg.Audit.MaxEventsPerCustomer = viper.GetInt("AUDIT_MAX_EVENTS_PER_CUSTOMER")
	cfg.Audit.RetentionDays = viper.GetInt("AUDIT_RETENTION_DAYS")
	cfg.Notification.TemplatesFile = viper.GetString("NOTIFICATION_TEMPLATES_FILE")
	cfg.Notification.WebhookURL = viper.GetString("NOTIFICATION_WEBHOOK_URL")
	cfg.Notification.DispatchTimeout = viper.GetDuration("NOTIFICATION_DISPATCH_TIMEOUT")

	if cfg.Audit.MaxEventsPerCustomer <= 0 {
		return nil, fmt.Errorf("AUDIT_MAX_EVENTS_PER_CUSTOMER must be positive")
	}
	if cfg.Audit.RetentionDays <= 0 {
		return nil, fmt.Errorf("AUDIT_RETENTION_DAYS must be positive")
	}

	return cfg, nil
}
