package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrNotConfigured marks an operation whose required settings are absent.
var ErrNotConfigured = errors.New("not configured")

type Config struct {
	Port     string `mapstructure:"PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	StoreBackend      string `mapstructure:"STORE_BACKEND"`
	XLSXPath          string `mapstructure:"XLSX_PATH"`
	SheetName         string `mapstructure:"SHEET_NAME"`
	GoogleSheetsEmail string `mapstructure:"GOOGLE_SHEETS_CLIENT_EMAIL"`
	GoogleSheetsKey   string `mapstructure:"GOOGLE_SHEETS_PRIVATE_KEY"`
	GoogleSheetID     string `mapstructure:"GOOGLE_SHEET_ID"`

	AdminPasswordHash string        `mapstructure:"ADMIN_PASSWORD_HASH"`
	SessionSecret     string        `mapstructure:"SESSION_SECRET"`
	SessionTTL        time.Duration `mapstructure:"SESSION_TTL"`
	RedisURL          string        `mapstructure:"REDIS_URL"`

	SendGridAPIKey string `mapstructure:"SENDGRID_API_KEY"`
	EmailFrom      string `mapstructure:"EMAIL_FROM"`
	EmailFromName  string `mapstructure:"EMAIL_FROM_NAME"`
	EmailTo        string `mapstructure:"EMAIL_TO"`
	SiteURL        string `mapstructure:"SITE_URL"`

	DatabaseURL        string `mapstructure:"DATABASE_URL"`
	DBMaxConns         int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns         int32  `mapstructure:"DB_MIN_CONNS"`
	HIPAAEncryptionKey string `mapstructure:"HIPAA_ENCRYPTION_KEY"`

	OutboxWorkers   int `mapstructure:"OUTBOX_WORKERS"`
	OutboxQueueSize int `mapstructure:"OUTBOX_QUEUE_SIZE"`

	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST"`
	BodyLimit      string   `mapstructure:"BODY_LIMIT"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL",
	"STORE_BACKEND", "XLSX_PATH", "SHEET_NAME",
	"GOOGLE_SHEETS_CLIENT_EMAIL", "GOOGLE_SHEETS_PRIVATE_KEY", "GOOGLE_SHEET_ID",
	"ADMIN_PASSWORD_HASH", "SESSION_SECRET", "SESSION_TTL", "REDIS_URL",
	"SENDGRID_API_KEY", "EMAIL_FROM", "EMAIL_FROM_NAME", "EMAIL_TO", "SITE_URL",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "HIPAA_ENCRYPTION_KEY",
	"OUTBOX_WORKERS", "OUTBOX_QUEUE_SIZE",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "BODY_LIMIT",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE_BACKEND", "xlsx")
	v.SetDefault("XLSX_PATH", "./data/submissions.xlsx")
	v.SetDefault("SHEET_NAME", "Submissions")
	v.SetDefault("SESSION_TTL", "24h")
	v.SetDefault("EMAIL_FROM_NAME", "Redmond Dental Smiles")
	v.SetDefault("EMAIL_TO", "info@redmonddentalsmiles.com")
	v.SetDefault("SITE_URL", "http://localhost:3000")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("OUTBOX_WORKERS", 2)
	v.SetDefault("OUTBOX_QUEUE_SIZE", 64)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("BODY_LIMIT", "10M")

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if origins := v.GetString("CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = splitList(origins)
	}
	// PEM keys pasted into env files usually carry literal \n sequences.
	cfg.GoogleSheetsKey = strings.ReplaceAll(cfg.GoogleSheetsKey, `\n`, "\n")
	cfg.SiteURL = strings.TrimRight(cfg.SiteURL, "/")

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks settings the server cannot start without. Settings that
// only a single operation depends on are checked by that operation instead.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case "xlsx", "sheets", "memory":
	default:
		return fmt.Errorf("STORE_BACKEND must be \"xlsx\", \"sheets\", or \"memory\", got %q", c.StoreBackend)
	}
	if c.StoreBackend == "xlsx" && c.XLSXPath == "" {
		return fmt.Errorf("XLSX_PATH is required when STORE_BACKEND is \"xlsx\"")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}
	if c.IsProduction() && len(c.SessionSecret) < 32 {
		return fmt.Errorf("SESSION_SECRET must be at least 32 characters in production")
	}
	if c.HIPAAEncryptionKey != "" {
		if _, err := c.EncryptionKey(); err != nil {
			return err
		}
	}
	if c.OutboxWorkers < 1 {
		return fmt.Errorf("OUTBOX_WORKERS must be at least 1, got %d", c.OutboxWorkers)
	}
	return nil
}

// EncryptionKey decodes HIPAA_ENCRYPTION_KEY. It returns nil, nil when unset.
func (c *Config) EncryptionKey() ([]byte, error) {
	if c.HIPAAEncryptionKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.HIPAAEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("HIPAA_ENCRYPTION_KEY is not valid hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("HIPAA_ENCRYPTION_KEY must be 32 bytes (64 hex chars), got %d bytes", len(key))
	}
	return key, nil
}

// SheetsCredentials holds what the Google Sheets backend needs.
type SheetsCredentials struct {
	ClientEmail   string
	PrivateKey    string
	SpreadsheetID string
	SheetName     string
}

func (c *Config) SheetsCredentials() (SheetsCredentials, error) {
	var missing []string
	if c.GoogleSheetsEmail == "" {
		missing = append(missing, "GOOGLE_SHEETS_CLIENT_EMAIL")
	}
	if c.GoogleSheetsKey == "" {
		missing = append(missing, "GOOGLE_SHEETS_PRIVATE_KEY")
	}
	if c.GoogleSheetID == "" {
		missing = append(missing, "GOOGLE_SHEET_ID")
	}
	if len(missing) > 0 {
		return SheetsCredentials{}, fmt.Errorf("google sheets store %w: missing %s", ErrNotConfigured, strings.Join(missing, ", "))
	}
	return SheetsCredentials{
		ClientEmail:   c.GoogleSheetsEmail,
		PrivateKey:    c.GoogleSheetsKey,
		SpreadsheetID: c.GoogleSheetID,
		SheetName:     c.SheetName,
	}, nil
}

// EmailSettings holds what outbound notification email needs.
type EmailSettings struct {
	APIKey   string
	From     string
	FromName string
	To       string
	SiteURL  string
}

func (c *Config) EmailSettings() (EmailSettings, error) {
	var missing []string
	if c.SendGridAPIKey == "" {
		missing = append(missing, "SENDGRID_API_KEY")
	}
	if c.EmailFrom == "" {
		missing = append(missing, "EMAIL_FROM")
	}
	if c.EmailTo == "" {
		missing = append(missing, "EMAIL_TO")
	}
	if len(missing) > 0 {
		return EmailSettings{}, fmt.Errorf("notification email %w: missing %s", ErrNotConfigured, strings.Join(missing, ", "))
	}
	return EmailSettings{
		APIKey:   c.SendGridAPIKey,
		From:     c.EmailFrom,
		FromName: c.EmailFromName,
		To:       c.EmailTo,
		SiteURL:  c.SiteURL,
	}, nil
}
