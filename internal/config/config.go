package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kyudori/er-scout/internal/platform/logging"
)

const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"
)

// Config stores runtime configuration for the service.
type Config struct {
	AppEnv         string
	ServiceName    string
	ServiceVersion string
	HTTPAddr       string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	LogLevel       logging.Level

	CORSAllowedOrigins []string
	MetricsEnabled     bool

	CacheTTL time.Duration

	CompareMaxWorkers int

	BserBaseURL               string
	BserAPIKey                string
	BserTimeout               time.Duration
	BserMaxRetries            int
	BserBackoffBase           time.Duration
	BserCircuitEnabled        bool
	BserCircuitFailureCount   int
	BserCircuitOpenTimeout    time.Duration
	BserCircuitHalfOpenMaxReq int

	UptraceEnabled     bool
	UptraceDSN         string
	UptraceLogsEnabled bool

	PyroscopeEnabled           bool
	PyroscopeServerAddress     string
	PyroscopeAppName           string
	PyroscopeAuthToken         string
	PyroscopeBasicAuthUser     string
	PyroscopeBasicAuthPassword string
	PyroscopeUploadRate        time.Duration
}

func Load() (Config, error) {
	appEnv, err := parseAppEnv(getEnv("APP_ENV", EnvDev))
	if err != nil {
		return Config{}, err
	}

	readTimeout, err := time.ParseDuration(getEnv("APP_READ_TIMEOUT", "10s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse APP_READ_TIMEOUT: %w", err)
	}
	writeTimeout, err := time.ParseDuration(getEnv("APP_WRITE_TIMEOUT", "15s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse APP_WRITE_TIMEOUT: %w", err)
	}

	metricsEnabled, err := strconv.ParseBool(getEnv("METRICS_ENABLED", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("parse METRICS_ENABLED: %w", err)
	}

	cacheTTL, err := time.ParseDuration(getEnv("CACHE_TTL", "300s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse CACHE_TTL: %w", err)
	}
	if cacheTTL <= 0 {
		return Config{}, fmt.Errorf("CACHE_TTL must be > 0")
	}

	compareMaxWorkers, err := getEnvAsInt("COMPARE_MAX_WORKERS", 2)
	if err != nil {
		return Config{}, fmt.Errorf("parse COMPARE_MAX_WORKERS: %w", err)
	}
	if compareMaxWorkers < 1 {
		return Config{}, fmt.Errorf("COMPARE_MAX_WORKERS must be >= 1")
	}

	bserTimeout, err := time.ParseDuration(getEnv("BSER_TIMEOUT", "6s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse BSER_TIMEOUT: %w", err)
	}
	if bserTimeout <= 0 {
		return Config{}, fmt.Errorf("BSER_TIMEOUT must be > 0")
	}
	bserMaxRetries, err := getEnvAsInt("BSER_MAX_RETRIES", 3)
	if err != nil {
		return Config{}, fmt.Errorf("parse BSER_MAX_RETRIES: %w", err)
	}
	if bserMaxRetries < 1 {
		return Config{}, fmt.Errorf("BSER_MAX_RETRIES must be >= 1")
	}
	bserBackoffBase, err := time.ParseDuration(getEnv("BSER_BACKOFF_BASE", "1s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse BSER_BACKOFF_BASE: %w", err)
	}
	if bserBackoffBase <= 0 {
		return Config{}, fmt.Errorf("BSER_BACKOFF_BASE must be > 0")
	}
	bserCircuitEnabled, err := strconv.ParseBool(getEnv("BSER_CIRCUIT_ENABLED", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("parse BSER_CIRCUIT_ENABLED: %w", err)
	}
	bserCircuitFailureCount, err := getEnvAsInt("BSER_CIRCUIT_FAILURE_COUNT", 5)
	if err != nil {
		return Config{}, fmt.Errorf("parse BSER_CIRCUIT_FAILURE_COUNT: %w", err)
	}
	if bserCircuitFailureCount < 1 {
		return Config{}, fmt.Errorf("BSER_CIRCUIT_FAILURE_COUNT must be >= 1")
	}
	bserCircuitOpenTimeout, err := time.ParseDuration(getEnv("BSER_CIRCUIT_OPEN_TIMEOUT", "15s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse BSER_CIRCUIT_OPEN_TIMEOUT: %w", err)
	}
	if bserCircuitOpenTimeout <= 0 {
		return Config{}, fmt.Errorf("BSER_CIRCUIT_OPEN_TIMEOUT must be > 0")
	}
	bserCircuitHalfOpenMaxReq, err := getEnvAsInt("BSER_CIRCUIT_HALF_OPEN_MAX_REQ", 2)
	if err != nil {
		return Config{}, fmt.Errorf("parse BSER_CIRCUIT_HALF_OPEN_MAX_REQ: %w", err)
	}
	if bserCircuitHalfOpenMaxReq < 1 {
		return Config{}, fmt.Errorf("BSER_CIRCUIT_HALF_OPEN_MAX_REQ must be >= 1")
	}

	uptraceEnabled, err := strconv.ParseBool(getEnv("UPTRACE_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse UPTRACE_ENABLED: %w", err)
	}
	uptraceDSN := strings.TrimSpace(getEnv("UPTRACE_DSN", ""))
	if uptraceEnabled && uptraceDSN == "" {
		return Config{}, fmt.Errorf("UPTRACE_DSN is required when UPTRACE_ENABLED=true")
	}
	uptraceLogsEnabled, err := strconv.ParseBool(getEnv("UPTRACE_LOGS_ENABLED", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("parse UPTRACE_LOGS_ENABLED: %w", err)
	}

	pyroscopeEnabled, err := strconv.ParseBool(getEnv("PYROSCOPE_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse PYROSCOPE_ENABLED: %w", err)
	}
	pyroscopeServerAddress := strings.TrimSpace(getEnv("PYROSCOPE_SERVER_ADDRESS", ""))
	if pyroscopeEnabled && pyroscopeServerAddress == "" {
		return Config{}, fmt.Errorf("PYROSCOPE_SERVER_ADDRESS is required when PYROSCOPE_ENABLED=true")
	}
	pyroscopeUploadRate, err := time.ParseDuration(getEnv("PYROSCOPE_UPLOAD_RATE", "15s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse PYROSCOPE_UPLOAD_RATE: %w", err)
	}
	if pyroscopeUploadRate <= 0 {
		return Config{}, fmt.Errorf("PYROSCOPE_UPLOAD_RATE must be > 0")
	}

	cfg := Config{
		AppEnv:         appEnv,
		ServiceName:    getEnv("APP_SERVICE_NAME", "er-scout-api"),
		ServiceVersion: getEnv("APP_SERVICE_VERSION", "dev"),
		HTTPAddr:       getEnv("APP_HTTP_ADDR", ":8080"),
		ReadTimeout:    readTimeout,
		WriteTimeout:   writeTimeout,
		LogLevel:       parseLogLevel(getEnv("APP_LOG_LEVEL", "info")),

		CORSAllowedOrigins: splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		MetricsEnabled:     metricsEnabled,

		CacheTTL: cacheTTL,

		CompareMaxWorkers: compareMaxWorkers,

		BserBaseURL:               strings.TrimSpace(getEnv("BSER_BASE_URL", "https://open-api.bser.io")),
		BserAPIKey:                strings.TrimSpace(getEnv("BSER_API_KEY", "")),
		BserTimeout:               bserTimeout,
		BserMaxRetries:            bserMaxRetries,
		BserBackoffBase:           bserBackoffBase,
		BserCircuitEnabled:        bserCircuitEnabled,
		BserCircuitFailureCount:   bserCircuitFailureCount,
		BserCircuitOpenTimeout:    bserCircuitOpenTimeout,
		BserCircuitHalfOpenMaxReq: bserCircuitHalfOpenMaxReq,

		UptraceEnabled:     uptraceEnabled,
		UptraceDSN:         uptraceDSN,
		UptraceLogsEnabled: uptraceLogsEnabled,

		PyroscopeEnabled:           pyroscopeEnabled,
		PyroscopeServerAddress:     pyroscopeServerAddress,
		PyroscopeAuthToken:         strings.TrimSpace(getEnv("PYROSCOPE_AUTH_TOKEN", "")),
		PyroscopeBasicAuthUser:     strings.TrimSpace(getEnv("PYROSCOPE_BASIC_AUTH_USER", "")),
		PyroscopeBasicAuthPassword: strings.TrimSpace(getEnv("PYROSCOPE_BASIC_AUTH_PASSWORD", "")),
		PyroscopeUploadRate:        pyroscopeUploadRate,
	}

	cfg.PyroscopeAppName = strings.TrimSpace(getEnv("PYROSCOPE_APP_NAME", cfg.ServiceName))
	if cfg.PyroscopeEnabled && cfg.PyroscopeAppName == "" {
		return Config{}, fmt.Errorf("PYROSCOPE_APP_NAME cannot be empty when PYROSCOPE_ENABLED=true")
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		return Config{}, fmt.Errorf("CORS_ALLOWED_ORIGINS cannot be empty")
	}

	return cfg, nil
}

func parseLogLevel(v string) logging.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return logging.LevelDebug
	case "warn", "warning":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}

func getEnvAsInt(key string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	out, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}

	return out, nil
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		item := strings.TrimSpace(part)
		if item == "" {
			continue
		}
		out = append(out, item)
	}

	return out
}

func parseAppEnv(v string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(v))
	switch value {
	case EnvDev, EnvStage, EnvProd:
		return value, nil
	default:
		return "", fmt.Errorf("invalid APP_ENV %q: valid values are %s, %s, %s", v, EnvDev, EnvStage, EnvProd)
	}
}
