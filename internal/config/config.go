// Package config handles loading application configuration from environment
// variables. All config is centralized here so no other package reads env
// vars directly. Sensible defaults are provided for development.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
)

// Supported database drivers.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

// Config holds all application configuration. Populated from environment
// variables at startup. Passed to other packages via dependency injection.
type Config struct {
	// Env is the runtime environment: "development" or "production".
	Env string

	// Port is the HTTP listen port (default: 8080).
	Port int

	// LogLevel controls log verbosity: "debug", "info", "warn", "error".
	LogLevel string

	// MigrationsPath is the root of the per-dialect migration directories.
	MigrationsPath string

	// TrustedProxies lists CIDRs whose forwarding headers Echo trusts when
	// extracting c.RealIP().
	TrustedProxies []string

	// CORSOrigins lists browser origins allowed to call the API. Empty
	// disables CORS headers entirely.
	CORSOrigins []string

	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	GeoIP     GeoIPConfig
	RateLimit RateLimitConfig
}

// DatabaseConfig holds connection parameters for the relational store.
// If DATABASE_URL is set, it takes precedence over the individual fields.
type DatabaseConfig struct {
	// Driver is "mysql" (default) or "postgres".
	Driver string

	// Host is the server address in host:port format. A missing port is
	// filled in from the driver default.
	Host string

	User     string
	Password string
	Name     string

	// dsnOverride is set when DATABASE_URL is provided, bypassing individual fields.
	dsnOverride string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN returns the driver-specific connection string.
func (d DatabaseConfig) DSN() string {
	if d.dsnOverride != "" {
		return d.dsnOverride
	}

	if d.Driver == DriverPostgres {
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(d.User, d.Password),
			Host:     ensurePort(d.Host, "5432"),
			Path:     "/" + d.Name,
			RawQuery: "sslmode=disable",
		}
		return u.String()
	}

	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = ensurePort(d.Host, "3306")
	cfg.DBName = d.Name
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

// ensurePort appends the default port if the host string doesn't include one.
func ensurePort(host, defaultPort string) string {
	_, _, err := net.SplitHostPort(host)
	if err != nil {
		return net.JoinHostPort(host, defaultPort)
	}
	return host
}

// RedisConfig holds Redis connection parameters. An empty URL disables the
// geolocation cache.
type RedisConfig struct {
	URL string
}

// AuthConfig holds login and token settings.
type AuthConfig struct {
	// SecretKey is the HMAC key used to sign session tokens.
	SecretKey string

	// TokenTTL is the lifetime of an issued session token.
	TokenTTL time.Duration

	// MaxFailedAttempts is the failure count that triggers a lock.
	MaxFailedAttempts int

	// LockDuration is how long an account stays locked.
	LockDuration time.Duration

	// EnforceLockOnSuccess rejects a correct password while the lock is
	// still running. Off by default.
	EnforceLockOnSuccess bool

	// AtomicLockout switches the failure counter to a single SQL increment
	// and conditional lock write.
	AtomicLockout bool
}

// GeoIPConfig controls best-effort IP geolocation for audit details.
type GeoIPConfig struct {
	Enabled         bool
	ProviderTimeout time.Duration
	CacheTTL        time.Duration

	// Provider and public-IP endpoints, overridable for self-hosted mirrors.
	IPAPIURL   string
	IPAPICoURL string
	IPInfoURL  string
	IPifyURL   string
	HTTPBinURL string
}

// RateLimitConfig bounds login attempts per client IP.
type RateLimitConfig struct {
	LoginPerMinute int
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is loaded first when present; real
// environment variables always win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:            getEnv("ENV", "development"),
		Port:           getEnvInt("PORT", 8080),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "db/migrations"),
		TrustedProxies: getEnvList("TRUSTED_PROXIES"),
		CORSOrigins:    getEnvList("CORS_ALLOWED_ORIGINS"),

		Database: DatabaseConfig{
			Driver:          strings.ToLower(getEnv("DB_DRIVER", DriverMySQL)),
			Host:            getEnv("DB_HOST", "localhost"),
			User:            getEnv("DB_USER", "bizdir"),
			Password:        getEnv("DB_PASSWORD", "bizdir"),
			Name:            getEnv("DB_NAME", "bizdir"),
			dsnOverride:     getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},

		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},

		Auth: AuthConfig{
			SecretKey:            getEnv("JWT_SECRET", ""),
			TokenTTL:             getEnvDuration("JWT_EXPIRES_IN", time.Hour),
			MaxFailedAttempts:    getEnvInt("AUTH_MAX_FAILED_ATTEMPTS", 5),
			LockDuration:         getEnvDuration("AUTH_LOCK_DURATION", 15*time.Minute),
			EnforceLockOnSuccess: getEnvBool("AUTH_ENFORCE_LOCK_ON_SUCCESS", false),
			AtomicLockout:        getEnvBool("AUTH_ATOMIC_LOCKOUT", false),
		},

		GeoIP: GeoIPConfig{
			Enabled:         getEnvBool("GEOIP_ENABLED", true),
			ProviderTimeout: getEnvDuration("GEOIP_PROVIDER_TIMEOUT", 3*time.Second),
			CacheTTL:        getEnvDuration("GEOIP_CACHE_TTL", 24*time.Hour),
			IPAPIURL:        getEnv("GEOIP_IPAPI_URL", "http://ip-api.com"),
			IPAPICoURL:      getEnv("GEOIP_IPAPICO_URL", "https://ipapi.co"),
			IPInfoURL:       getEnv("GEOIP_IPINFO_URL", "https://ipinfo.io"),
			IPifyURL:        getEnv("GEOIP_IPIFY_URL", "https://api.ipify.org"),
			HTTPBinURL:      getEnv("GEOIP_HTTPBIN_URL", "https://httpbin.org"),
		},

		RateLimit: RateLimitConfig{
			LoginPerMinute: getEnvInt("RATE_LIMIT_LOGIN_PER_MINUTE", 20),
		},
	}

	// A postgres:// DATABASE_URL implies the postgres driver.
	if o := cfg.Database.dsnOverride; strings.HasPrefix(o, "postgres://") || strings.HasPrefix(o, "postgresql://") {
		cfg.Database.Driver = DriverPostgres
	}
	switch cfg.Database.Driver {
	case DriverMySQL, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Database.Driver)
	}

	if cfg.Auth.MaxFailedAttempts < 1 {
		return nil, fmt.Errorf("AUTH_MAX_FAILED_ATTEMPTS must be at least 1")
	}
	if cfg.Auth.LockDuration <= 0 {
		return nil, fmt.Errorf("AUTH_LOCK_DURATION must be positive")
	}

	envLower := strings.ToLower(cfg.Env)
	if envLower == "production" || envLower == "prod" {
		if cfg.Auth.SecretKey == "" {
			return nil, fmt.Errorf("JWT_SECRET is required in production")
		}
		if len(cfg.Auth.SecretKey) < 32 {
			return nil, fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
		}
	}

	// Provide a dev-only default secret so local dev works without .env.
	if cfg.Auth.SecretKey == "" {
		cfg.Auth.SecretKey = "dev-secret-key-do-not-use-in-production!!"
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Env)
	return env == "development" || env == "dev"
}

// MigrationsDir returns the migration directory for the configured driver.
func (c *Config) MigrationsDir() string {
	return strings.TrimRight(c.MigrationsPath, "/") + "/" + c.Database.Driver
}

// --- Helper functions for reading environment variables ---

// getEnv reads a string env var or returns the default.
func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvInt reads an integer env var or returns the default.
func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvBool reads a boolean env var ("true", "1", "false", ...) or returns the default.
func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvDuration reads a duration env var (e.g., "15m") or returns the default.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// getEnvList reads a comma-separated env var, dropping empty entries.
func getEnvList(key string) []string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
