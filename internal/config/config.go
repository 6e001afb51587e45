package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewRuntimeConfigHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	AuthJWTSecret string
	AuthJWTIssuer string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBAutoMigrate     bool

	Redis     RedisConfig
	RateLimit RateLimitConfig

	Gateway GatewayConfig
	Ledger  LedgerConfig
	Alert   AlertConfig
	Receipt ReceiptConfig

	MetricsPush MetricsPushConfig

	SchedulerEnabled     bool
	SeedRevenueSchedules bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RateLimitConfig struct {
	Enabled     bool
	VerifyRate  float64
	VerifyBurst int
}

type GatewayConfig struct {
	DefaultProvider   string
	Currency          string
	PaystackBaseURL   string
	PaystackSecretKey string
	// VerifyOnRecord re-queries the provider before recording a client-reported approval.
	VerifyOnRecord bool
}

type LedgerConfig struct {
	BaseURL string
	APIKey  string
}

type AlertConfig struct {
	SlackWebhookURL string
}

// MetricsPushConfig configures pushing Prometheus metrics from processes
// that are not scraped, such as the standalone scheduler.
type MetricsPushConfig struct {
	Exporter  string
	Endpoint  string
	AuthToken string
	Interval  time.Duration
}

type ReceiptConfig struct {
	IssuerName    string
	IssuerAddress string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "levy"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		AuthJWTSecret:     strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
		AuthJWTIssuer:     strings.TrimSpace(getenv("AUTH_JWT_ISSUER", "")),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "levy"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "levy.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		DBAutoMigrate:     getenvBool("DATABASE_AUTO_MIGRATE", true),
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       getenvInt("REDIS_DB", 0),
		},
		RateLimit: RateLimitConfig{
			Enabled:     getenvBool("RATE_LIMIT_ENABLED", false),
			VerifyRate:  getenvFloat("RATE_LIMIT_VERIFY_RATE", 2),
			VerifyBurst: getenvInt("RATE_LIMIT_VERIFY_BURST", 10),
		},
		Gateway: GatewayConfig{
			DefaultProvider:   strings.ToLower(getenv("GATEWAY_DEFAULT_PROVIDER", "paystack")),
			Currency:          strings.ToUpper(getenv("GATEWAY_CURRENCY", "NGN")),
			PaystackBaseURL:   strings.TrimRight(getenv("PAYSTACK_BASE_URL", "https://api.paystack.co"), "/"),
			PaystackSecretKey: strings.TrimSpace(getenv("PAYSTACK_SECRET_KEY", "")),
			VerifyOnRecord:    getenvBool("GATEWAY_VERIFY_ON_RECORD", true),
		},
		Ledger: LedgerConfig{
			BaseURL: strings.TrimRight(getenv("LEDGER_BASE_URL", "http://localhost:8545"), "/"),
			APIKey:  strings.TrimSpace(getenv("LEDGER_API_KEY", "")),
		},
		Alert: AlertConfig{
			SlackWebhookURL: strings.TrimSpace(getenv("ALERT_SLACK_WEBHOOK_URL", "")),
		},
		Receipt: ReceiptConfig{
			IssuerName:    getenv("RECEIPT_ISSUER_NAME", "Internally Generated Revenue Service"),
			IssuerAddress: getenv("RECEIPT_ISSUER_ADDRESS", ""),
		},
		MetricsPush: MetricsPushConfig{
			Exporter:  strings.ToLower(strings.TrimSpace(getenv("METRICS_PUSH_EXPORTER", ""))),
			Endpoint:  strings.TrimSpace(getenv("METRICS_PUSH_ENDPOINT", "")),
			AuthToken: strings.TrimSpace(getenv("METRICS_PUSH_AUTH_TOKEN", "")),
			Interval:  time.Duration(getenvInt("METRICS_PUSH_INTERVAL_SECONDS", 60)) * time.Second,
		},
		SchedulerEnabled:     getenvBool("SCHEDULER_ENABLED", true),
		SeedRevenueSchedules: getenvBool("SEED_REVENUE_SCHEDULES", false),
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
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

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}
