package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64
	AllowedOrigin  string

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
	ExportAuditDB    bool

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	QueryCacheTTL time.Duration

	// Kafka
	KafkaBrokers     []string
	KafkaExportTopic string
	KafkaGroupID     string

	// Export auditor
	AuditorPort string

	// OIDC / identity provider
	OIDCIssuer       string
	OIDCClientID     string
	OIDCClientSecret string
	OIDCRedirectURL  string
	TokenPublicKey   string
	TokenCookieName  string

	// Upstream GraphQL gateway
	GatewayGraphQLURL     string
	GatewayRequestTimeout time.Duration
	GatewayRetryAttempts  int
	GatewayRateLimitRPS   int
	GatewayRateLimitBurst int

	// Entity dictionary
	DictionaryPath string
}

func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 4*1024*1024)),
		AllowedOrigin:  getEnv("ALLOWED_ORIGIN", "*"),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "portal"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "portal"),
		PostgresDB:       getEnv("POSTGRES_DB", "portal"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		ExportAuditDB:    getBoolEnv("EXPORT_AUDIT_DB", false),

		RedisHost:     getEnv("REDIS_HOST", ""),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),
		QueryCacheTTL: getDuration("QUERY_CACHE_TTL", 30*time.Second),

		KafkaBrokers:     getStringSliceEnv("KAFKA_BROKERS", nil),
		KafkaExportTopic: getEnv("KAFKA_EXPORT_TOPIC", "portal.exports"),
		KafkaGroupID:     getEnv("KAFKA_GROUP_ID", "export-auditor"),

		AuditorPort: getEnv("AUDITOR_PORT", "8081"),

		OIDCIssuer:       getEnv("OIDC_ISSUER", ""),
		OIDCClientID:     getEnv("OIDC_CLIENT_ID", ""),
		OIDCClientSecret: getEnv("OIDC_CLIENT_SECRET", ""),
		OIDCRedirectURL:  getEnv("OIDC_REDIRECT_URL", "http://localhost:8080/auth/callback"),
		TokenPublicKey:   getEnv("TOKEN_PUBLIC_KEY", ""),
		TokenCookieName:  getEnv("TOKEN_COOKIE_NAME", "portal_token"),

		GatewayGraphQLURL:     getEnv("GATEWAY_GRAPHQL_URL", "http://localhost:9000/graphql"),
		GatewayRequestTimeout: getDuration("GATEWAY_REQUEST_TIMEOUT", 10*time.Second),
		GatewayRetryAttempts:  getIntEnv("GATEWAY_RETRY_ATTEMPTS", 3),
		GatewayRateLimitRPS:   getIntEnv("GATEWAY_RATE_LIMIT_RPS", 50),
		GatewayRateLimitBurst: getIntEnv("GATEWAY_RATE_LIMIT_BURST", 100),

		DictionaryPath: getEnv("DICTIONARY_PATH", ""),
	}
}

// LoadDotEnv copies KEY=VALUE pairs from the given files into the process
// environment. Variables already set win; missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
