package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"linova-go/internal/models"
	"linova-go/internal/progress"
	"linova-go/internal/syncer"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("base-url", "", "")
	cmd.Flags().String("cache", "", "")
	cmd.Flags().String("log-mode", "", "")
	cmd.Flags().Duration("timeout", 0, "")
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestLoadConfigLayers(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "linova.yaml")
	require.NoError(t, os.WriteFile(file, []byte("base_url: http://file.test\ntimeout: 5s\nlog_mode: development\n"), 0o644))

	t.Setenv("LINOVA_LOG_MODE", "production")
	cfg, err := loadConfig(testCommand(t, "--cache", "/tmp/c.db"), file)
	require.NoError(t, err)
	assert.Equal(t, "http://file.test", cfg.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, "production", cfg.LogMode)
	assert.Equal(t, "/tmp/c.db", cfg.CachePath)
	assert.Equal(t, "linova://reset-password", cfg.RedirectTo)

	cfg, err = loadConfig(testCommand(t, "--base-url", "http://flag.test"), file)
	require.NoError(t, err)
	assert.Equal(t, "http://flag.test", cfg.BaseURL)
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	_, err := loadConfig(testCommand(t), filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestPrintState(t *testing.T) {
	level := "beginner"
	state := syncer.State{
		Phase:          syncer.PhaseLive,
		UserID:         "u-1",
		Email:          "ada@example.com",
		Name:           "Ada",
		Level:          &level,
		Modules:        []models.Module{{ID: "m-2", Title: "Second", Order: 1}, {ID: "m-1", Title: "First", Order: 0}},
		LessonCounts:   map[string]int{"m-1": 2},
		LessonModule:   map[string]string{"l-1": "m-1", "l-2": "m-1"},
		Progress:       map[string]models.LessonProgress{"l-1": {LessonID: "l-1", Completed: true}},
		Unlocks:        map[string]models.ModuleUnlock{"m-1": {ModuleID: "m-1", Status: models.UnlockStatusUnlocked}},
		Summary:        progress.Summary{Days: 1, Lessons: 1, Activities: 1, XP: 10},
		SelectedModule: nil,
	}
	var buf bytes.Buffer
	printState(&buf, state)
	out := buf.String()
	assert.Contains(t, out, "Signed in as Ada (ada@example.com)")
	assert.Contains(t, out, "Level: beginner  Current module: -")
	assert.Contains(t, out, "XP: 10")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("First")), bytes.Index(buf.Bytes(), []byte("Second")))
	assert.Contains(t, out, "[x] First")

	buf.Reset()
	printState(&buf, syncer.State{Phase: syncer.PhaseLive})
	assert.Contains(t, buf.String(), "Not signed in.")
}
