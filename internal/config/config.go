package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config carries every knob the worker needs. It is built once in main and
// handed to constructors by reference; nothing reads the environment after
// Load returns.
type Config struct {
	LogLevel string

	ReportURL string
	Username  string
	Password  string

	DBPath     string
	ReportsDir string

	WebhookURL      string
	ErrorWebhookURL string

	NtfyServerURL string
	NtfyTopic     string
	NtfyIcon      string
}

func Load() (*Config, error) {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("STORMWATER_LOG_LEVEL", "info")
	v.SetDefault("STORMWATER_DB_PATH", "reports.db")
	v.SetDefault("STORMWATER_REPORTS_DIR", "downloads")
	v.SetDefault("NTFY_TOPIC", "stormwater")

	cfg := &Config{
		LogLevel:        v.GetString("STORMWATER_LOG_LEVEL"),
		ReportURL:       v.GetString("STORMWATER_REPORT_URL"),
		Username:        v.GetString("STORMWATER_USERNAME"),
		Password:        v.GetString("STORMWATER_PASSWORD"),
		DBPath:          v.GetString("STORMWATER_DB_PATH"),
		ReportsDir:      v.GetString("STORMWATER_REPORTS_DIR"),
		WebhookURL:      v.GetString("N8N_WEBHOOK_URL"),
		ErrorWebhookURL: v.GetString("N8N_ERROR_WEBHOOK_URL"),
		NtfyServerURL:   v.GetString("NTFY_SERVER_URL"),
		NtfyTopic:       v.GetString("NTFY_TOPIC"),
		NtfyIcon:        v.GetString("NTFY_ICON"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DBPath resolves just the database location, for read-only tooling that
// has no business requiring portal credentials.
func DBPath() string {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("STORMWATER_DB_PATH", "reports.db")
	return v.GetString("STORMWATER_DB_PATH")
}

func (c *Config) Validate() error {
	if c.ReportURL == "" {
		return fmt.Errorf("STORMWATER_REPORT_URL is required")
	}
	if c.Username == "" {
		return fmt.Errorf("STORMWATER_USERNAME is required")
	}
	if c.Password == "" {
		return fmt.Errorf("STORMWATER_PASSWORD is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("STORMWATER_DB_PATH cannot be empty")
	}
	if c.ReportsDir == "" {
		return fmt.Errorf("STORMWATER_REPORTS_DIR cannot be empty")
	}
	return nil
}
