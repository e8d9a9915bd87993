// Package config loads the auditd settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Keksclan/goRawrAudit/security"
)

// Config is the runtime configuration of auditd.
type Config struct {
	HTTPAddr string
	GRPCAddr string

	DBDriver string
	DBDSN    string

	LogLevel  string
	LogFormat string

	RequestLogFile    string
	RequestLogDB      bool
	RequestLogMethods []string
	RequestLogExclude []string
	RequestLogSkipIPs []string

	TrustedProxies []string
	IPHeaders      []string

	// TokensFile is a JSON object mapping bearer tokens to actors.
	TokensFile string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	IdentityCacheSize int64
	IdentityCacheTTL  time.Duration

	AdminScope string
	ExportRate int

	OtelEnabled      bool
	OtelServiceName  string
	OtelSamplingRate float64
}

// Load reads .env (when present, without overriding the environment) and
// then the AUDIT_* environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the environment only.
func FromEnv() (*Config, error) {
	var errs []error

	cfg := &Config{
		HTTPAddr:          getEnv("AUDIT_HTTP_ADDR", ":8080"),
		GRPCAddr:          getEnv("AUDIT_GRPC_ADDR", ":9090"),
		DBDriver:          strings.ToLower(getEnv("AUDIT_DB_DRIVER", "sqlite")),
		DBDSN:             getEnv("AUDIT_DB_DSN", "audit.db"),
		LogLevel:          getEnv("AUDIT_LOG_LEVEL", "INFO"),
		LogFormat:         strings.ToLower(getEnv("AUDIT_LOG_FORMAT", "json")),
		RequestLogFile:    os.Getenv("AUDIT_REQUEST_LOG_FILE"),
		RequestLogMethods: getList("AUDIT_REQUEST_LOG_METHODS", "GET"),
		RequestLogExclude: getList("AUDIT_REQUEST_LOG_EXCLUDE", "/login,/logout,/admin,/static"),
		RequestLogSkipIPs: getList("AUDIT_REQUEST_LOG_SKIP_IPS", ""),
		TrustedProxies:    getList("AUDIT_TRUSTED_PROXIES", ""),
		IPHeaders:         getList("AUDIT_IP_HEADERS", "x-forwarded-for,x-real-ip"),
		TokensFile:        os.Getenv("AUDIT_TOKENS_FILE"),
		RedisAddr:         os.Getenv("AUDIT_REDIS_ADDR"),
		RedisPassword:     os.Getenv("AUDIT_REDIS_PASSWORD"),
		AdminScope:        getEnv("AUDIT_ADMIN_SCOPE", "audit:read"),
		OtelServiceName:   getEnv("AUDIT_OTEL_SERVICE_NAME", "auditd"),
	}

	var err error
	if cfg.RequestLogDB, err = getBool("AUDIT_REQUEST_LOG_DB", true); err != nil {
		errs = append(errs, err)
	}
	if cfg.RedisDB, err = getInt("AUDIT_REDIS_DB", 0); err != nil {
		errs = append(errs, err)
	}
	size, err := getInt("AUDIT_IDENTITY_CACHE_SIZE", 10000)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.IdentityCacheSize = int64(size)
	if cfg.IdentityCacheTTL, err = getDuration("AUDIT_IDENTITY_CACHE_TTL", 5*time.Minute); err != nil {
		errs = append(errs, err)
	}
	if cfg.ExportRate, err = getInt("AUDIT_EXPORT_RATE", 6); err != nil {
		errs = append(errs, err)
	}
	if cfg.OtelEnabled, err = getBool("AUDIT_OTEL_ENABLED", false); err != nil {
		errs = append(errs, err)
	}
	if cfg.OtelSamplingRate, err = getFloat("AUDIT_OTEL_SAMPLING_RATE", 1.0); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	var errs []error
	switch c.DBDriver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Errorf("AUDIT_DB_DRIVER: unsupported driver %q", c.DBDriver))
	}
	if c.DBDSN == "" {
		errs = append(errs, errors.New("AUDIT_DB_DSN: must not be empty"))
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("AUDIT_LOG_FORMAT: unsupported format %q", c.LogFormat))
	}
	if _, err := security.ParsePrefixes(c.TrustedProxies); err != nil {
		errs = append(errs, fmt.Errorf("AUDIT_TRUSTED_PROXIES: %w", err))
	}
	if _, err := security.ParsePrefixes(c.RequestLogSkipIPs); err != nil {
		errs = append(errs, fmt.Errorf("AUDIT_REQUEST_LOG_SKIP_IPS: %w", err))
	}
	if c.IdentityCacheSize <= 0 {
		errs = append(errs, errors.New("AUDIT_IDENTITY_CACHE_SIZE: must be positive"))
	}
	if c.ExportRate <= 0 {
		errs = append(errs, errors.New("AUDIT_EXPORT_RATE: must be positive"))
	}
	if c.OtelSamplingRate < 0 || c.OtelSamplingRate > 1 {
		errs = append(errs, errors.New("AUDIT_OTEL_SAMPLING_RATE: must be within [0, 1]"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getList splits a comma-separated value, dropping blank items.
func getList(key, defaultVal string) []string {
	var out []string
	for item := range strings.SplitSeq(getEnv(key, defaultVal), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getFloat(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
