package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries all runtime configuration, sourced from the environment.
type Config struct {
	AppEnv           string
	LogLevel         string
	HTTPListenAddr   string
	PublicBaseURL    string
	PublicBasePath   string
	MetricsNamespace string
	StoreName        string

	DatabaseURL    string
	DatabaseSchema string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTLS      bool

	WebhookUsername string
	WebhookPassword string

	GatewayBaseURL       string
	GatewayAuthURL       string
	GatewayClientID      string
	GatewayClientSecret  string
	GatewayClientVersion string
	GatewayTimeout       time.Duration

	FCMEndpoint  string
	FCMServerKey string
	PushTimeout  time.Duration

	AuditDBPath string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:           getenv("APP_ENV", "development"),
		LogLevel:         getenv("LOG_LEVEL", "info"),
		HTTPListenAddr:   getenv("HTTP_LISTEN_ADDR", ":8080"),
		PublicBaseURL:    getenv("PUBLIC_BASE_URL", ""),
		PublicBasePath:   getenv("PUBLIC_BASE_PATH", ""),
		MetricsNamespace: getenv("METRICS_NAMESPACE", "topup_store"),
		StoreName:        getenv("STORE_NAME", "Top-up Store"),

		DatabaseURL:    os.Getenv("DATABASE_URL"),
		DatabaseSchema: getenv("DATABASE_SCHEMA", ""),

		RedisAddr:     getenv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: getenv("REDIS_PASSWORD", ""),

		WebhookUsername: os.Getenv("GATEWAY_WEBHOOK_USERNAME"),
		WebhookPassword: os.Getenv("GATEWAY_WEBHOOK_PASSWORD"),

		GatewayBaseURL:       getenv("GATEWAY_BASE_URL", "https://api.phonepe.com/apis/pg"),
		GatewayAuthURL:       getenv("GATEWAY_AUTH_URL", "https://api.phonepe.com/apis/identity-manager/v1/oauth/token"),
		GatewayClientID:      os.Getenv("GATEWAY_CLIENT_ID"),
		GatewayClientSecret:  os.Getenv("GATEWAY_CLIENT_SECRET"),
		GatewayClientVersion: getenv("GATEWAY_CLIENT_VERSION", "1"),

		FCMEndpoint:  getenv("FCM_ENDPOINT", "https://fcm.googleapis.com/fcm/send"),
		FCMServerKey: os.Getenv("FCM_SERVER_KEY"),

		AuditDBPath: getenv("AUDIT_DB_PATH", "data/webhook-audit.db"),
	}

	var err error
	if cfg.RedisDB, err = intEnv("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.RedisTLS, err = boolEnv("REDIS_TLS", false); err != nil {
		return nil, err
	}
	if cfg.GatewayTimeout, err = durationEnv("GATEWAY_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.PushTimeout, err = durationEnv("PUSH_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}

func boolEnv(key string, fallback bool) (bool, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}
