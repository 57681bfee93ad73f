package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

// Placeholder secrets shipped by earlier deployments. Refused at startup.
var insecureSecrets = map[string]struct{}{
	"your-secret-key":  {},
	"change-me-secret": {},
	"secret":           {},
}

type Config struct {
	ServerPort              string
	ServerReadHeaderTimeout time.Duration
	ServerWriteTimeout      time.Duration
	ServerIdleTimeout       time.Duration
	RequestTimeout          time.Duration

	DBDriver          string
	DatabaseURL       string
	DBMaxConns        int32
	DBMinConns        int32
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration

	JWTSecret    string
	JWTAccessTTL time.Duration
	BcryptCost   int

	BootstrapAdminUsername string
	BootstrapAdminPassword string

	CORSOrigins       []string
	TrustedProxies    []netip.Prefix
	RateLimitRPM      int
	LoginRateLimitRPM int
	RedisURL          string

	LogLevel  string
	LogFormat string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := &envReader{}
	cfg := &Config{
		ServerPort:              env.str("SERVER_PORT", "5001"),
		ServerReadHeaderTimeout: env.duration("SERVER_READ_HEADER_TIMEOUT", 10*time.Second),
		ServerWriteTimeout:      env.duration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		ServerIdleTimeout:       env.duration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		RequestTimeout:          env.duration("REQUEST_TIMEOUT", 30*time.Second),
		DBDriver:                strings.ToLower(env.str("DB_DRIVER", DriverPostgres)),
		DatabaseURL:             strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:              int32(env.int("DB_MAX_CONNS", 15)),
		DBMinConns:              int32(env.int("DB_MIN_CONNS", 5)),
		DBConnMaxLifetime:       env.duration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		DBConnMaxIdleTime:       env.duration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
		JWTSecret:               strings.TrimSpace(os.Getenv("JWT_SECRET")),
		JWTAccessTTL:            env.duration("JWT_ACCESS_TTL", 30*time.Minute),
		BcryptCost:              env.int("BCRYPT_COST", 12),
		BootstrapAdminUsername:  env.str("BOOTSTRAP_ADMIN_USERNAME", "admin"),
		BootstrapAdminPassword:  env.raw("BOOTSTRAP_ADMIN_PASSWORD", "admin123"),
		CORSOrigins:             splitCSV(env.str("CORS_ORIGINS", "*")),
		TrustedProxies:          env.prefixes("TRUSTED_PROXIES"),
		RateLimitRPM:            env.int("RATE_LIMIT_RPM", 100),
		LoginRateLimitRPM:       env.int("LOGIN_RATE_LIMIT_RPM", 10),
		RedisURL:                strings.TrimSpace(os.Getenv("REDIS_URL")),
		LogLevel:                strings.ToLower(env.str("LOG_LEVEL", "info")),
		LogFormat:               strings.ToLower(env.str("LOG_FORMAT", "pretty")),
	}

	if err := errors.Join(env.errs...); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	secret := strings.TrimSpace(c.JWTSecret)
	if secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if _, insecure := insecureSecrets[strings.ToLower(secret)]; insecure {
		return fmt.Errorf("JWT_SECRET uses a known placeholder value; set a real secret")
	}

	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT cannot be empty")
	}

	switch c.DBDriver {
	case DriverPostgres, DriverMySQL, DriverSQLite:
	default:
		return fmt.Errorf("DB_DRIVER must be one of postgres, mysql, sqlite (got %q)", c.DBDriver)
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.DBMaxConns <= 0 {
		return fmt.Errorf("DB_MAX_CONNS must be positive")
	}

	if c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS must be between 0 and DB_MAX_CONNS")
	}

	if c.JWTAccessTTL <= 0 {
		return fmt.Errorf("JWT_ACCESS_TTL must be positive")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	if strings.TrimSpace(c.BootstrapAdminUsername) == "" || c.BootstrapAdminPassword == "" {
		return fmt.Errorf("BOOTSTRAP_ADMIN_USERNAME and BOOTSTRAP_ADMIN_PASSWORD cannot be empty")
	}

	if c.LogFormat != "pretty" && c.LogFormat != "json" {
		return fmt.Errorf("LOG_FORMAT must be pretty or json")
	}

	return nil
}

// envReader reads typed settings and collects every malformed value.
type envReader struct {
	errs []error
}

func (e *envReader) str(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

// raw returns the value untrimmed. Used for secrets where whitespace counts.
func (e *envReader) raw(key string, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	return v
}

func (e *envReader) int(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s must be an integer (got %q)", key, raw))
		return fallback
	}

	return v
}

func (e *envReader) duration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s must be a duration such as 30m (got %q)", key, raw))
		return fallback
	}

	return v
}

// prefixes parses a comma separated list of CIDRs or bare addresses.
func (e *envReader) prefixes(key string) []netip.Prefix {
	var out []netip.Prefix
	for _, item := range splitCSV(os.Getenv(key)) {
		if prefix, err := netip.ParsePrefix(item); err == nil {
			out = append(out, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(item)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s entry %q is not an IP or CIDR", key, item))
			continue
		}
		out = append(out, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}

	return out
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}

	return out
}
