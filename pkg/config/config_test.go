package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ProviderAnthropic, cfg.Provider)
	assert.Equal(t, float32(0.2), cfg.Temperature)
	assert.Equal(t, 200_000, cfg.NominalContextWindow)
	assert.Equal(t, 500*time.Millisecond, cfg.WatcherPollInterval)
	assert.Equal(t, time.Second, cfg.WatcherQuietInterval)
	assert.Equal(t, 1, cfg.WatcherWorkers)
	assert.Equal(t, 120*time.Second, cfg.StageTimeout)
	assert.Equal(t, 4, cfg.RPCConcurrency)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("PROVIDER", "openai")
	t.Setenv("MODEL", "openai/gpt-4o-mini")
	t.Setenv("TEMPERATURE", "0.7")
	t.Setenv("WATCHER_WORKERS", "4")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ProviderOpenAI, cfg.Provider)
	assert.Equal(t, "openai/gpt-4o-mini", cfg.Model)
	assert.InDelta(t, 0.7, float64(cfg.Temperature), 1e-6)
	assert.Equal(t, 4, cfg.WatcherWorkers)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	t.Run("unknown provider", func(t *testing.T) {
		t.Setenv("PROVIDER", "gemini")
		_, err := FromEnv()
		assert.Error(t, err)
	})
	t.Run("non-numeric interval", func(t *testing.T) {
		t.Setenv("WATCHER_POLL_INTERVAL_MS", "fast")
		_, err := FromEnv()
		assert.Error(t, err)
	})
	t.Run("bad log level", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "verbose")
		_, err := FromEnv()
		assert.Error(t, err)
	})
	t.Run("azure without endpoint", func(t *testing.T) {
		t.Setenv("PROVIDER", "azure")
		_, err := FromEnv()
		assert.Error(t, err)
	})
}

func TestEnsureDirs(t *testing.T) {
	root := t.TempDir()
	t.Setenv("INGRESS_DIR", root+"/work/ingress")
	t.Setenv("PROCESSED_DIR", root+"/work/processed")
	t.Setenv("POISONED_DIR", root+"/work/poisoned")
	t.Setenv("OUTPUT_DIR", root+"/work/output")
	t.Setenv("RUN_INDEX_PATH", root+"/work/data/pipeline.db")

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.NoError(t, cfg.EnsureDirs())

	for _, dir := range []string{cfg.IngressDir, cfg.ProcessedDir, cfg.PoisonedDir, cfg.OutputDir, cfg.StagingDir()} {
		assert.DirExists(t, dir)
	}
}
