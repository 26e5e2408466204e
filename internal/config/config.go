package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	BackendGitHub = "github"
	BackendSheets = "sheets"
	BackendMemory = "memory"
)

// Config represents the full application configuration surface.
type Config struct {
	Server    ServerConfig
	Admin     AdminConfig
	Store     StoreConfig
	GitHub    GitHubConfig
	Sheets    SheetsConfig
	Reporting ReportingConfig
	WhatsApp  WhatsAppConfig
	MongoDB   MongoDBConfig
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port     string
	LogLevel string
}

// AdminConfig holds the shared admin secret. PasswordHash is a bcrypt hash;
// Password is accepted for local setups and hashed at startup.
type AdminConfig struct {
	Password           string
	PasswordHash       string
	FailedLoginsPerMin int
}

// StoreConfig selects the dataset backend and the read cache.
type StoreConfig struct {
	Backend          string
	InventoryFile    string
	TransactionsFile string
	OrdersFile       string
	CacheTTL         time.Duration
	RedisAddr        string
	RedisPassword    string
	RedisPrefix      string
}

// GitHubConfig points at the repository holding the CSV datasets.
type GitHubConfig struct {
	Token   string
	Repo    string
	Branch  string
	BaseURL string
}

// SheetsConfig contains configuration required to interact with Google Sheets.
type SheetsConfig struct {
	CredentialsPath string
	SpreadsheetID   string
}

// ReportingConfig holds report policy and scheduler settings.
type ReportingConfig struct {
	AlertSchedule        string
	ArchiveSchedule      string
	Timezone             string
	CancelIncreasePolicy string
}

// WhatsAppConfig contains credentials for the Meta WhatsApp Cloud API used
// for operator alerts. Alerts are disabled when AccessToken is empty.
type WhatsAppConfig struct {
	AccessToken    string
	PhoneNumberID  string
	BaseURL        string
	APIVersion     string
	AlertRecipient string
}

// MongoDBConfig holds settings for the report archive. The archive is
// disabled when URI is empty.
type MongoDBConfig struct {
	URI    string
	DBName string
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// Missing .env files are fine when configuration comes from the environment.
		_ = godotenv.Load()
	}

	cacheTTL, err := time.ParseDuration(getenvWithDefault("STORE_CACHE_TTL", "60s"))
	if err != nil {
		return nil, fmt.Errorf("STORE_CACHE_TTL: %w", err)
	}

	failedLogins, err := strconv.Atoi(getenvWithDefault("ADMIN_FAILED_LOGINS_PER_MINUTE", "5"))
	if err != nil {
		return nil, fmt.Errorf("ADMIN_FAILED_LOGINS_PER_MINUTE: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:     getenvWithDefault("APP_PORT", "8080"),
			LogLevel: getenvWithDefault("LOG_LEVEL", "info"),
		},
		Admin: AdminConfig{
			Password:           os.Getenv("ADMIN_PASSWORD"),
			PasswordHash:       os.Getenv("ADMIN_PASSWORD_HASH"),
			FailedLoginsPerMin: failedLogins,
		},
		Store: StoreConfig{
			Backend:          strings.ToLower(getenvWithDefault("STORE_BACKEND", BackendGitHub)),
			InventoryFile:    getenvWithDefault("INVENTORY_FILE", "inventory.csv"),
			TransactionsFile: getenvWithDefault("TRANSACTIONS_FILE", "transactions.csv"),
			OrdersFile:       getenvWithDefault("ORDERS_FILE", "orders.csv"),
			CacheTTL:         cacheTTL,
			RedisAddr:        os.Getenv("REDIS_ADDR"),
			RedisPassword:    os.Getenv("REDIS_PASSWORD"),
			RedisPrefix:      getenvWithDefault("REDIS_PREFIX", "stockledger:"),
		},
		GitHub: GitHubConfig{
			Token:   os.Getenv("GITHUB_TOKEN"),
			Repo:    os.Getenv("GITHUB_REPO"),
			Branch:  os.Getenv("GITHUB_BRANCH"),
			BaseURL: getenvWithDefault("GITHUB_API_URL", "https://api.github.com"),
		},
		Sheets: SheetsConfig{
			CredentialsPath: os.Getenv("GOOGLE_SHEETS_CREDENTIALS_PATH"),
			SpreadsheetID:   os.Getenv("GOOGLE_SHEET_DATABASE_ID"),
		},
		Reporting: ReportingConfig{
			AlertSchedule:        getenvWithDefault("ALERT_CRON_SCHEDULE", "0 9 * * 1-5"),
			ArchiveSchedule:      getenvWithDefault("ARCHIVE_CRON_SCHEDULE", "10 0 1 * *"),
			Timezone:             getenvWithDefault("TIMEZONE", "Asia/Seoul"),
			CancelIncreasePolicy: getenvWithDefault("CANCEL_INCREASE_POLICY", "cost"),
		},
		WhatsApp: WhatsAppConfig{
			AccessToken:    os.Getenv("WHATSAPP_TOKEN"),
			PhoneNumberID:  os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
			BaseURL:        getenvWithDefault("WHATSAPP_BASE_URL", "https://graph.facebook.com"),
			APIVersion:     getenvWithDefault("WHATSAPP_API_VERSION", "v20.0"),
			AlertRecipient: os.Getenv("WHATSAPP_ALERT_RECIPIENT"),
		},
		MongoDB: MongoDBConfig{
			URI:    os.Getenv("MONGODB_URI"),
			DBName: getenvWithDefault("MONGODB_DB_NAME", "stockledger"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures that required configuration fields are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Port == "" {
		return errors.New("APP_PORT must be provided")
	}

	if c.Admin.Password == "" && c.Admin.PasswordHash == "" {
		return errors.New("ADMIN_PASSWORD or ADMIN_PASSWORD_HASH must be provided")
	}
	if c.Admin.FailedLoginsPerMin <= 0 {
		return errors.New("ADMIN_FAILED_LOGINS_PER_MINUTE must be positive")
	}

	switch c.Store.Backend {
	case BackendGitHub:
		if c.GitHub.Token == "" {
			return errors.New("GITHUB_TOKEN must be provided")
		}
		if c.GitHub.Repo == "" || !strings.Contains(c.GitHub.Repo, "/") {
			return errors.New("GITHUB_REPO must be provided as owner/name")
		}
	case BackendSheets:
		if c.Sheets.CredentialsPath == "" {
			return errors.New("GOOGLE_SHEETS_CREDENTIALS_PATH must be provided")
		}
		if c.Sheets.SpreadsheetID == "" {
			return errors.New("GOOGLE_SHEET_DATABASE_ID must be provided")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("STORE_BACKEND %q is not supported", c.Store.Backend)
	}

	if c.Store.InventoryFile == "" || c.Store.TransactionsFile == "" || c.Store.OrdersFile == "" {
		return errors.New("INVENTORY_FILE, TRANSACTIONS_FILE and ORDERS_FILE must not be empty")
	}

	if c.Reporting.Timezone == "" {
		return errors.New("TIMEZONE must be provided")
	}
	if _, err := time.LoadLocation(c.Reporting.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE %q: %w", c.Reporting.Timezone, err)
	}

	switch strings.ToLower(c.Reporting.CancelIncreasePolicy) {
	case "cost", "revenue":
	default:
		return fmt.Errorf("CANCEL_INCREASE_POLICY %q must be cost or revenue", c.Reporting.CancelIncreasePolicy)
	}

	if c.WhatsApp.AccessToken != "" {
		switch {
		case c.WhatsApp.PhoneNumberID == "":
			return errors.New("WHATSAPP_PHONE_NUMBER_ID must be provided")
		case c.WhatsApp.AlertRecipient == "":
			return errors.New("WHATSAPP_ALERT_RECIPIENT must be provided")
		}
	}

	return nil
}

// Location returns the configured reporting timezone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Reporting.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
