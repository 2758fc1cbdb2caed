package logger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeKVsRedactsSensitiveKeys(t *testing.T) {
	out := sanitizeKVs([]interface{}{
		"user_id", "u-1",
		"access_token", "abc",
		"Email", "jane@x.com",
		"recovery_code", "123",
		"dangling",
	})
	assert.Equal(t, []interface{}{
		"user_id", "u-1",
		"access_token", "[REDACTED]",
		"Email", "[REDACTED]",
		"recovery_code", "[REDACTED]",
		"dangling",
	}, out)
}

func TestSanitizeKVsRedactsJWTValues(t *testing.T) {
	jwt := "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiJ1LTEiLCJ0eXAiOiJhY2Nlc3MifQ.sig"
	out := sanitizeKVs([]interface{}{"header", jwt})
	assert.Equal(t, "[REDACTED]", out[1])
}

func TestDailyWriterRotatesAndPrunes(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "app-2000-01-01.log")
	require.NoError(t, os.WriteFile(stale, []byte("old\n"), 0o644))

	day := time.Date(2024, 3, 1, 23, 59, 0, 0, time.UTC)
	w, err := newDailyWriter(dir, 3)
	require.NoError(t, err)
	defer w.Close()
	w.now = func() time.Time { return day }
	w.currentDate = day.Format("2006-01-02")

	_, err = w.Write([]byte("first\n"))
	require.NoError(t, err)

	day = day.Add(2 * time.Minute)
	_, err = w.Write([]byte("second\n"))
	require.NoError(t, err)

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))

	content, err := os.ReadFile(filepath.Join(dir, "app-2024-03-02.log"))
	require.NoError(t, err)
	assert.Equal(t, "second\n", string(content))
}

func TestNewWithOptionsWritesFile(t *testing.T) {
	dir := t.TempDir()
	log, err := NewWithOptions(Options{Mode: "production", Dir: dir, RetentionDays: 2})
	require.NoError(t, err)
	log.Info("hello", "component", "test")
	log.Sync()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
