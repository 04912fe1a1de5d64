package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the full application configuration surface.
type Config struct {
	Server    ServerConfig
	Counting  CountingConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	Sheets    SheetsConfig
	Evidence  EvidenceConfig
	WhatsApp  WhatsAppConfig
	Reporting ReportingConfig
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port string
	// MaxUploadBytes caps multipart catalog uploads.
	MaxUploadBytes int64
	LogLevel       string
}

// CountingConfig holds the reconciliation policies.
type CountingConfig struct {
	// EvidencePolicy is "photo" or "notes": what a significant discrepancy
	// must be justified with before it can be saved.
	EvidencePolicy string
	// ScanDateOrder is "YMD" or "DMY", the digit order of packed expiry
	// dates in scanned codes.
	ScanDateOrder     string
	DefaultTeamMember string
	// StoreTimeout bounds every call to the primary store.
	StoreTimeout time.Duration
}

// MongoDBConfig holds settings for MongoDB.
type MongoDBConfig struct {
	URI    string
	DBName string
}

// RedisConfig configures the local fallback cache. An empty Addr keeps the
// fallback in process memory.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// SheetsConfig contains configuration required to interact with Google Sheets.
type SheetsConfig struct {
	CredentialsPath string
	SpreadsheetID   string
	CatalogRange    string
	LocationsRange  string
	ExportRange     string
}

// Enabled reports whether the Sheets integration is configured.
func (c SheetsConfig) Enabled() bool {
	return c.CredentialsPath != "" && c.SpreadsheetID != ""
}

// EvidenceConfig selects where photos are stored. With no bucket photos
// stay inline on the records.
type EvidenceConfig struct {
	Bucket          string
	CredentialsJSON string
}

// WhatsAppConfig contains credentials and options for the Meta WhatsApp Cloud API.
type WhatsAppConfig struct {
	AccessToken   string
	PhoneNumberID string
	VerifyToken   string
	BaseURL       string
	APIVersion    string
	// SupervisorID receives discrepancy alerts and progress summaries.
	SupervisorID string
}

// Enabled reports whether WhatsApp messaging is configured.
func (c WhatsAppConfig) Enabled() bool {
	return c.AccessToken != "" && c.PhoneNumberID != ""
}

// ReportingConfig holds scheduler-related settings.
type ReportingConfig struct {
	SummarySchedule string
	SyncSchedule    string
	Timezone        string
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
		_ = godotenv.Load()
	}

	redisDB, err := getenvInt("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}
	maxUpload, err := getenvInt("MAX_UPLOAD_BYTES", 10<<20)
	if err != nil {
		return nil, err
	}
	storeTimeout, err := time.ParseDuration(getenvWithDefault("STORE_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("STORE_TIMEOUT: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           getenvWithDefault("APP_PORT", "8080"),
			MaxUploadBytes: int64(maxUpload),
			LogLevel:       getenvWithDefault("LOG_LEVEL", "info"),
		},
		Counting: CountingConfig{
			EvidencePolicy:    strings.ToLower(getenvWithDefault("EVIDENCE_POLICY", "photo")),
			ScanDateOrder:     strings.ToUpper(getenvWithDefault("SCAN_DATE_ORDER", "YMD")),
			DefaultTeamMember: getenvWithDefault("DEFAULT_TEAM_MEMBER", "Auditor"),
			StoreTimeout:      storeTimeout,
		},
		MongoDB: MongoDBConfig{
			URI:    os.Getenv("MONGODB_URI"),
			DBName: getenvWithDefault("MONGODB_DB_NAME", "stockcount"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
			Prefix:   getenvWithDefault("REDIS_PREFIX", "stockcount"),
		},
		Sheets: SheetsConfig{
			CredentialsPath: os.Getenv("GOOGLE_SHEETS_CREDENTIALS_PATH"),
			SpreadsheetID:   os.Getenv("GOOGLE_SHEET_DATABASE_ID"),
			CatalogRange:    getenvWithDefault("SHEET_CATALOG_RANGE", "Master!A1:G"),
			LocationsRange:  getenvWithDefault("SHEET_LOCATIONS_RANGE", "Locations!A1:C"),
			ExportRange:     getenvWithDefault("SHEET_EXPORT_RANGE", "Export!A1"),
		},
		Evidence: EvidenceConfig{
			Bucket:          os.Getenv("GCS_BUCKET"),
			CredentialsJSON: os.Getenv("GCS_CREDENTIALS_JSON"),
		},
		WhatsApp: WhatsAppConfig{
			AccessToken:   os.Getenv("WHATSAPP_TOKEN"),
			PhoneNumberID: os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
			VerifyToken:   os.Getenv("META_VERIFY_TOKEN"),
			BaseURL:       getenvWithDefault("WHATSAPP_BASE_URL", "https://graph.facebook.com"),
			APIVersion:    getenvWithDefault("WHATSAPP_API_VERSION", "v20.0"),
			SupervisorID:  os.Getenv("WHATSAPP_SUPERVISOR_ID"),
		},
		Reporting: ReportingConfig{
			SummarySchedule: getenvWithDefault("SUMMARY_CRON_SCHEDULE", "0 18 * * *"),
			SyncSchedule:    getenvWithDefault("SYNC_CRON_SCHEDULE", "*/5 * * * *"),
			Timezone:        getenvWithDefault("TIMEZONE", "UTC"),
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

	if c.MongoDB.URI == "" {
		return errors.New("MONGODB_URI must be provided")
	}
	if c.MongoDB.DBName == "" {
		return errors.New("MONGODB_DB_NAME must not be empty")
	}

	switch c.Counting.EvidencePolicy {
	case "photo", "notes":
	default:
		return fmt.Errorf("EVIDENCE_POLICY must be photo or notes, got %q", c.Counting.EvidencePolicy)
	}

	switch c.Counting.ScanDateOrder {
	case "YMD", "DMY":
	default:
		return fmt.Errorf("SCAN_DATE_ORDER must be YMD or DMY, got %q", c.Counting.ScanDateOrder)
	}

	if c.Counting.StoreTimeout <= 0 {
		return errors.New("STORE_TIMEOUT must be positive")
	}

	if (c.Sheets.CredentialsPath == "") != (c.Sheets.SpreadsheetID == "") {
		return errors.New("GOOGLE_SHEETS_CREDENTIALS_PATH and GOOGLE_SHEET_DATABASE_ID must be provided together")
	}

	if c.WhatsApp.Enabled() {
		if c.WhatsApp.VerifyToken == "" {
			return errors.New("META_VERIFY_TOKEN must be provided")
		}
		if c.WhatsApp.BaseURL == "" {
			return errors.New("WHATSAPP_BASE_URL must not be empty")
		}
		if c.WhatsApp.APIVersion == "" {
			return errors.New("WHATSAPP_API_VERSION must not be empty")
		}
	}

	if c.Reporting.SyncSchedule == "" {
		return errors.New("SYNC_CRON_SCHEDULE must be provided")
	}

	if _, err := time.LoadLocation(c.Reporting.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE: %w", err)
	}

	return nil
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}
