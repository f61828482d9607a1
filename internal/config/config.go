// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, storage locations, authentication, rate
// limiting, and observability.
//
// A dotenv file (ENV_FILE, default ".env") is read first when present. Values
// already set in the process environment always win over the file.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Supported values for APP_ENV.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// AuthConfig holds token signing and password hashing settings.
type AuthConfig struct {
	JWTSecret     string        // JWT_SECRET; empty disables token issuance
	JWTExpiration time.Duration // JWT_EXPIRATION, e.g. "1h"
	BcryptCost    int           // BCRYPT_SALT_ROUNDS in [4,31]

	// Bootstrap administrator, created at startup when AdminEmail is set.
	AdminEmail    string // ADMIN_EMAIL
	AdminUsername string // ADMIN_USERNAME
	AdminPassword string // ADMIN_PASSWORD
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-clinic-api")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config holds all configuration values for the application.
type Config struct {
	// Environment
	Env   string // development|production|test
	Debug bool   // true only in development; exposes error details

	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	BodyLimit         int64         // max request body bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	LogHeaders     bool   // include redacted request headers in access logs
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Storage
	DatabaseURL string // PostgreSQL DSN; empty selects SQLite
	DBPath      string // SQLite path
	UsersFile   string // JSON file backing /users

	// Authentication
	Auth AuthConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	if err := loadEnvFile(getenv("ENV_FILE", ".env")); err != nil {
		return Config{}, err
	}

	cfg := Config{
		Env: strings.ToLower(strings.TrimSpace(getenv("APP_ENV", EnvProduction))),

		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		BodyLimit:         int64(getint("BODY_LIMIT", 1<<20)),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		LogHeaders:     getbool("LOG_HEADERS", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Storage
		DatabaseURL: strings.TrimSpace(getenv("DATABASE_URL", "")),
		DBPath:      getenv("DB_PATH", "data/clinic.db"),
		UsersFile:   getenv("USERS_FILE", "data/users.json"),

		// Authentication
		Auth: AuthConfig{
			JWTSecret:     getenv("JWT_SECRET", ""),
			JWTExpiration: getdur("JWT_EXPIRATION", time.Hour),
			BcryptCost:    getint("BCRYPT_SALT_ROUNDS", 10),
			AdminEmail:    strings.TrimSpace(getenv("ADMIN_EMAIL", "")),
			AdminUsername: getenv("ADMIN_USERNAME", "admin"),
			AdminPassword: getenv("ADMIN_PASSWORD", ""),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-clinic-api"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	cfg.Debug = cfg.Env == EnvDevelopment

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// validate reports every invalid setting at once, one line per key.
func (cfg Config) validate() error {
	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}

	switch cfg.Env {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		check(false, "APP_ENV must be one of: development, production, test")
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		check(false, "LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	check(strings.TrimSpace(cfg.Port) != "", "PORT must not be empty")
	check(cfg.ReadTimeout > 0 && cfg.ReadHeaderTimeout > 0 && cfg.WriteTimeout > 0 && cfg.IdleTimeout > 0,
		"timeouts must be positive durations")
	check(cfg.MaxHeaderBytes > 0, "MAX_HEADER_BYTES must be > 0")
	check(cfg.BodyLimit > 0, "BODY_LIMIT must be > 0")
	check(cfg.DatabaseURL != "" || strings.TrimSpace(cfg.DBPath) != "", "DB_PATH must not be empty")
	check(strings.TrimSpace(cfg.UsersFile) != "", "USERS_FILE must not be empty")
	check(cfg.Auth.JWTExpiration > 0, "JWT_EXPIRATION must be a positive duration")
	check(cfg.Auth.BcryptCost >= 4 && cfg.Auth.BcryptCost <= 31, "BCRYPT_SALT_ROUNDS must be between 4 and 31")
	check(cfg.Auth.AdminEmail == "" || cfg.Auth.AdminPassword != "", "ADMIN_PASSWORD is required when ADMIN_EMAIL is set")
	check(cfg.RateRPS >= 0, "RATE_RPS must be >= 0")
	check(cfg.RateBurst >= 1, "RATE_BURST must be >= 1")
	check(cfg.Security.HSTSMaxAge >= 0, "HSTS_MAX_AGE must be >= 0")
	check(cfg.OTEL.SampleRatio >= 0 && cfg.OTEL.SampleRatio <= 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]")

	return errors.Join(errs...)
}

// loadEnvFile merges a dotenv file into the process environment without
// overriding variables that are already set. A missing file is not an error.
func loadEnvFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

// ---- helpers ----

var errUnknownBool = errors.New("not a boolean")

// lookup returns parse(value) for a set, non-empty variable k, and def when
// k is unset, empty or unparsable.
func lookup[T any](k string, def T, parse func(string) (T, error)) T {
	v, ok := os.LookupEnv(k)
	if !ok || v == "" {
		return def
	}
	out, err := parse(v)
	if err != nil {
		return def
	}
	return out
}

func getenv(k, def string) string {
	return lookup(k, def, func(v string) (string, error) { return v, nil })
}

func getint(k string, def int) int { return lookup(k, def, strconv.Atoi) }

func getfloat(k string, def float64) float64 {
	return lookup(k, def, func(v string) (float64, error) { return strconv.ParseFloat(v, 64) })
}

func getbool(k string, def bool) bool { return lookup(k, def, parseBool) }

func getdur(k string, def time.Duration) time.Duration { return lookup(k, def, parseDuration) }

func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	}
	return false, errUnknownBool
}

// parseDuration accepts Go durations ("90m"), whole days ("7d") and bare
// seconds ("3600").
func parseDuration(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	if days, found := strings.CutSuffix(v, "d"); found {
		n, err := strconv.Atoi(days)
		return time.Duration(n) * 24 * time.Hour, err
	}
	n, err := strconv.Atoi(v)
	return time.Duration(n) * time.Second, err
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
