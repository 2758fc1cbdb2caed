package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds runtime configuration loaded from environment variables.
type Config struct {
	Port               string
	DatabaseURL        string
	JWTSecret          string
	JWTIssuer          string
	AccessTTLSeconds   int64
	RefreshTTLSeconds  int64
	RecoveryTTLSeconds int64
	CorsOrigins        []string
	RedisAddr          string
	RedisChannel       string
	LogDir             string
	LogRetentionDays   int
	LogMode            string
}

func Load() Config {
	return Config{
		Port:               envOr("PORT", "8080"),
		DatabaseURL:        mustEnv("DATABASE_URL"),
		JWTSecret:          mustEnv("JWT_SECRET"),
		JWTIssuer:          envOr("JWT_ISSUER", "linova"),
		AccessTTLSeconds:   int64(envOrInt("ACCESS_TTL_SECONDS", 3600)),
		RefreshTTLSeconds:  int64(envOrInt("REFRESH_TTL_SECONDS", 1209600)),
		RecoveryTTLSeconds: int64(envOrInt("RECOVERY_TTL_SECONDS", 3600)),
		CorsOrigins:        parseCSV(envOr("CORS_ORIGINS", "")),
		RedisAddr:          envOr("REDIS_ADDR", ""),
		RedisChannel:       envOr("REDIS_CHANNEL", "linova:changes"),
		LogDir:             envOr("LOG_DIR", "logs"),
		LogRetentionDays:   envOrInt("LOG_RETENTION_DAYS", 7),
		LogMode:            envOr("LOG_MODE", "production"),
	}
}

// DevMode reports whether verbose development behaviour is enabled.
func (c Config) DevMode() bool {
	return strings.EqualFold(c.LogMode, "development")
}

func mustEnv(key string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		panic("missing env var: " + key)
	}
	return value
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		value := strings.TrimSpace(part)
		if value != "" {
			items = append(items, value)
		}
	}
	return items
}
