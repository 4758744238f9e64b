package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration. It is built once at process start
// and passed by value into every component constructor.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Redis     RedisConfig
	Billing   BillingConfig
	Tenancy   TenancyConfig
	Scheduler SchedulerConfig

	// OperatorToken authenticates the operator API; empty disables it.
	OperatorToken string
	// PlanSeedsPath is seeded into the plan catalogue at startup when set.
	PlanSeedsPath string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type BillingConfig struct {
	Mode           string
	SecretKey      string
	WebhookSecret  string
	SuccessURL     string
	CancelURL      string
	RequestTimeout time.Duration
}

type TenancyConfig struct {
	BaseDomain       string
	LoginURLTemplate string
	HostCacheTTL     time.Duration
}

type SchedulerConfig struct {
	Enabled     bool
	RunInterval time.Duration
	BatchSize   int
}

const (
	BillingModeLive      = "live"
	BillingModeTest      = "test"
	BillingModeSimulated = "simulated"
)

var (
	ErrLiveModeWithoutSecret = errors.New("billing live mode requires STRIPE_WEBHOOK_SECRET")
	ErrLiveModeWithoutAPIKey = errors.New("billing live mode requires STRIPE_SECRET_KEY")
	ErrTestModeWithoutAPIKey = errors.New("billing test mode requires STRIPE_SECRET_KEY")
)

// Load loads configuration from environment variables and .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "controlplane"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "controlplane"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),

		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Billing: BillingConfig{
			Mode:           normalizeBillingMode(getenv("BILLING_MODE", BillingModeSimulated)),
			SecretKey:      strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			WebhookSecret:  strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
			SuccessURL:     getenv("BILLING_SUCCESS_URL", "https://{host}/billing/success?session_id={CHECKOUT_SESSION_ID}"),
			CancelURL:      getenv("BILLING_CANCEL_URL", "https://{host}/billing/cancel"),
			RequestTimeout: time.Duration(getenvInt("BILLING_REQUEST_TIMEOUT_SECONDS", 15)) * time.Second,
		},
		Tenancy: TenancyConfig{
			BaseDomain:       strings.ToLower(strings.TrimSpace(getenv("TENANT_BASE_DOMAIN", ""))),
			LoginURLTemplate: getenv("TENANT_LOGIN_URL", "https://{host}/login"),
			HostCacheTTL:     time.Duration(getenvInt("TENANT_HOST_CACHE_TTL_SECONDS", 60)) * time.Second,
		},
		Scheduler: SchedulerConfig{
			Enabled:     getenvBool("SCHEDULER_ENABLED", true),
			RunInterval: time.Duration(getenvInt("SCHEDULER_INTERVAL_SECONDS", 60)) * time.Second,
			BatchSize:   getenvInt("SCHEDULER_BATCH_SIZE", 100),
		},
		OperatorToken: strings.TrimSpace(getenv("OPERATOR_TOKEN", "")),
		PlanSeedsPath: strings.TrimSpace(getenv("PLAN_SEEDS_PATH", "")),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the billing bridge cannot run safely with.
func (c Config) Validate() error {
	switch c.Billing.Mode {
	case BillingModeLive:
		if c.Billing.SecretKey == "" {
			return ErrLiveModeWithoutAPIKey
		}
		if c.Billing.WebhookSecret == "" {
			return ErrLiveModeWithoutSecret
		}
	case BillingModeTest:
		if c.Billing.SecretKey == "" {
			return ErrTestModeWithoutAPIKey
		}
	}
	return nil
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func normalizeBillingMode(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case BillingModeLive:
		return BillingModeLive
	case BillingModeTest:
		return BillingModeTest
	default:
		return BillingModeSimulated
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}
