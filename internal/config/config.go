package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/smallbiznis/identity/pkg/db"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	// CookieSecure marks session cookies Secure. Forced on in production.
	CookieSecure bool
	CookieDomain string

	LogLevel  string
	LogFormat string

	OtelEnabled       bool
	OTLPEndpoint      string
	OTLPProtocol      string
	OtelSamplingRatio float64

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBSQLitePath      string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBMetricsEnabled  bool
	DBTracingEnabled  bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// DevLogin exposes a login endpoint that trusts the submitted user id. Never on in production.
	DevLogin   bool
	LoginRate  float64
	LoginBurst int

	SnowflakeNode int64

	// SessionConfigPath overrides the search path of session.yml.
	SessionConfigPath string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")
	cookieSecure := environment == "production"
	if !cookieSecure {
		cookieSecure = getenvBool("SESSION_COOKIE_SECURE", false)
	}

	return Config{
		AppName:           getenv("APP_SERVICE", "identity"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       environment,
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		CookieSecure:      cookieSecure,
		CookieDomain:      strings.TrimSpace(getenv("SESSION_COOKIE_DOMAIN", "")),
		LogLevel:          strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
		LogFormat:         strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
		OtelEnabled:       getenvBool("OTEL_ENABLED", false),
		OTLPEndpoint:      getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317")),
		OTLPProtocol:      otlpProtocol(),
		OtelSamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "identity"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBSQLitePath:      getenv("DATABASE_SQLITE_PATH", "identity.db"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 10)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 50)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 60)),
		DBMetricsEnabled:  getenvBool("DATABASE_METRICS_ENABLED", true),
		DBTracingEnabled:  getenvBool("DATABASE_TRACING_ENABLED", true),
		RedisAddr:         strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword:     getenv("REDIS_PASSWORD", ""),
		RedisDB:           int(getenvInt64("REDIS_DB", 0)),
		DevLogin:          environment != "production" && getenvBool("AUTH_DEV_LOGIN", false),
		LoginRate:         getenvFloat("LOGIN_RATE_PER_SECOND", 0.2),
		LoginBurst:        int(getenvInt64("LOGIN_BURST", 5)),
		SnowflakeNode:     getenvInt64("SNOWFLAKE_NODE", 1),
		SessionConfigPath: strings.TrimSpace(getenv("SESSION_CONFIG_PATH", "")),
	}
}

// DB projects the database settings.
func (c Config) DB() db.Config {
	return db.Config{
		Type:              c.DBType,
		Host:              c.DBHost,
		Port:              c.DBPort,
		Name:              c.DBName,
		User:              c.DBUser,
		Password:          c.DBPassword,
		SSLMode:           c.DBSSLMode,
		SQLitePath:        c.DBSQLitePath,
		MaxIdleConn:       c.DBMaxIdleConn,
		MaxOpenConn:       c.DBMaxOpenConn,
		ConnMaxLifetime:   time.Duration(c.DBConnMaxLifetime) * time.Second,
		ConnMaxIdleTime:   time.Duration(c.DBConnMaxIdleTime) * time.Second,
		PrometheusEnabled: c.DBMetricsEnabled,
		TracingEnabled:    c.DBTracingEnabled,
	}
}

// otlpProtocol prefers the traces-specific protocol variable over the shared one.
func otlpProtocol() string {
	protocol := getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))
	return strings.ToLower(strings.TrimSpace(protocol))
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
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

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
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
