package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName       string
	AppVersion    string
	Environment   string
	HTTPAddr      string
	AuthJWTSecret string

	Telemetry TelemetryConfig

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
	Stripe    StripeConfig
	Bkash     BkashConfig
	SMTP      SMTPConfig
	Payment   PaymentConfig
	Scheduler SchedulerConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a redis endpoint was configured.
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	APIBase       string
}

type BkashConfig struct {
	Mode        string
	APIBase     string
	AppKey      string
	AppSecret   string
	Username    string
	Password    string
	CallbackURL string
}

// Enabled reports whether a bKash mode was chosen; an empty mode keeps the
// gateway off.
func (c BkashConfig) Enabled() bool {
	return c.Mode != ""
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type PaymentConfig struct {
	PendingTTL     time.Duration
	CheckoutRate   int
	CheckoutBurst  int
	DefaultListMax int
}

// TelemetryConfig drives logging and OpenTelemetry export.
type TelemetryConfig struct {
	LogLevel      string
	LogFormat     string
	OtelEnabled   bool
	OTLPEndpoint  string
	OTLPProtocol  string
	SamplingRatio float64
}

type SchedulerConfig struct {
	SweepSpec string
}

const (
	BkashModeSandbox = "sandbox"
	BkashModeLive    = "live"
)

var (
	ErrBkashSandboxInProduction = errors.New("bkash sandbox mode is not allowed in production")
	ErrBkashCredentialsMissing  = errors.New("bkash live mode requires api base, app key, app secret, username and password")
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:       getenv("APP_SERVICE", "learnpay"),
		AppVersion:    getenv("APP_VERSION", "0.1.0"),
		Environment:   getenv("ENVIRONMENT", "development"),
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		AuthJWTSecret: strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "learnpay"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Stripe: StripeConfig{
			SecretKey:     strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			WebhookSecret: strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
			APIBase:       strings.TrimRight(getenv("STRIPE_API_BASE", "https://api.stripe.com"), "/"),
		},
		Bkash: BkashConfig{
			Mode:        normalizeBkashMode(getenv("BKASH_MODE", "")),
			APIBase:     strings.TrimRight(getenv("BKASH_API_BASE", ""), "/"),
			AppKey:      strings.TrimSpace(getenv("BKASH_APP_KEY", "")),
			AppSecret:   strings.TrimSpace(getenv("BKASH_APP_SECRET", "")),
			Username:    strings.TrimSpace(getenv("BKASH_USERNAME", "")),
			Password:    getenv("BKASH_PASSWORD", ""),
			CallbackURL: strings.TrimSpace(getenv("BKASH_CALLBACK_URL", "")),
		},
		SMTP: SMTPConfig{
			Host:     strings.TrimSpace(getenv("SMTP_HOST", "")),
			Port:     getenvInt("SMTP_PORT", 587),
			Username: getenv("SMTP_USERNAME", ""),
			Password: getenv("SMTP_PASSWORD", ""),
			From:     getenv("SMTP_FROM", "no-reply@learnpay.local"),
		},
		Payment: PaymentConfig{
			PendingTTL:     getenvDuration("PAYMENT_PENDING_TTL", 24*time.Hour),
			CheckoutRate:   getenvInt("CHECKOUT_RATE", 5),
			CheckoutBurst:  getenvInt("CHECKOUT_BURST", 10),
			DefaultListMax: getenvInt("PAYMENT_LIST_MAX", 100),
		},
		Scheduler: SchedulerConfig{
			SweepSpec: getenv("SCHEDULER_SWEEP_SPEC", "@every 5m"),
		},
		Telemetry: TelemetryConfig{
			LogLevel:      strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:     strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			OtelEnabled:   getenvBool("OTEL_ENABLED", true),
			OTLPEndpoint:  strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")),
			OTLPProtocol:  otlpProtocol(),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},
	}
	if env := strings.TrimSpace(os.Getenv("DEPLOYMENT_ENV")); env != "" {
		cfg.Environment = env
	}

	return cfg
}

// Validate rejects configurations that would let checkouts settle without a
// real gateway behind them.
func (c Config) Validate() error {
	switch c.Bkash.Mode {
	case BkashModeSandbox:
		if c.IsProduction() {
			return ErrBkashSandboxInProduction
		}
	case BkashModeLive:
		b := c.Bkash
		if b.APIBase == "" || b.AppKey == "" || b.AppSecret == "" || b.Username == "" || b.Password == "" {
			return ErrBkashCredentialsMissing
		}
	}
	return nil
}

// IsProduction reports whether the service runs with production defaults.
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

// otlpProtocol prefers the traces-specific variable, as the OTel SDKs do.
func otlpProtocol() string {
	protocol := getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	if traces := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL")); traces != "" {
		protocol = traces
	}
	return strings.ToLower(strings.TrimSpace(protocol))
}

func normalizeBkashMode(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case BkashModeLive:
		return BkashModeLive
	case BkashModeSandbox:
		return BkashModeSandbox
	default:
		return ""
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

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
