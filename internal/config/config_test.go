package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/linova")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("CORS_ORIGINS", " http://a.test , ,http://b.test")
	t.Setenv("ACCESS_TTL_SECONDS", "not-a-number")

	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "linova", cfg.JWTIssuer)
	assert.Equal(t, int64(3600), cfg.AccessTTLSeconds)
	assert.Equal(t, int64(3600), cfg.RecoveryTTLSeconds)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CorsOrigins)
	assert.Equal(t, "linova:changes", cfg.RedisChannel)
	assert.Empty(t, cfg.RedisAddr)
	assert.False(t, cfg.DevMode())
}

func TestLoadPanicsWithoutSecret(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/linova")
	t.Setenv("JWT_SECRET", "")
	assert.PanicsWithValue(t, "missing env var: JWT_SECRET", func() { Load() })
}

func TestDevMode(t *testing.T) {
	assert.True(t, Config{LogMode: "Development"}.DevMode())
}
