package main

import (
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, k := range []string{
		"DAVINCI_DB_PATH", "DAVINCI_LOG_LEVEL", "DAVINCI_DEPTH_BOUND", "DAVINCI_STEP_BUDGET",
		"DAVINCI_PREDICATE_TIMEOUT", "DAVINCI_WORKERS", "DAVINCI_SECURITY_VOCABULARY", "DAVINCI_WATCH_PATTERNS",
	} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
	return home
}

func TestLoadConfig_Defaults(t *testing.T) {
	home := isolateHome(t)

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".davinci", "davinci.db"), cfg.DBPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 10, cfg.DepthBound)
	assert.Equal(t, "5s", cfg.PredicateTimeout)
}

func TestLoadConfig_Layering(t *testing.T) {
	home := isolateHome(t)
	dir := filepath.Join(home, ".davinci")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.json"), []byte(`{
		"log_level": "debug",
		"depth_bound": 4,
		"step_budget": 500,
		"schedule": [{"name": "nightly", "cron": "@daily", "root": "/specs"}]
	}`), 0o600))
	t.Setenv("DAVINCI_DEPTH_BOUND", "6")
	t.Setenv("DAVINCI_SECURITY_VOCABULARY", "login, mfa ,,token")
	t.Setenv("DAVINCI_DB_PATH", "")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)          // settings.json
	assert.Equal(t, 6, cfg.DepthBound)              // env beats settings.json
	assert.Equal(t, 500, cfg.StepBudget)            // settings.json
	assert.Equal(t, "", cfg.DBPath)                 // set-but-empty env disables history
	assert.Equal(t, []string{"login", "mfa", "token"}, cfg.SecurityVocabulary)
	require.Len(t, cfg.Schedule, 1)
	assert.Equal(t, "@daily", cfg.Schedule[0].Cron)

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	bindFlags(fs, &cfg)
	require.NoError(t, fs.Parse([]string{"-depth-bound", "8", "-patterns", "**/*.yaml"}))
	assert.Equal(t, 8, cfg.DepthBound) // flag beats env
	assert.Equal(t, 500, cfg.StepBudget)
	assert.Equal(t, []string{"**/*.yaml"}, cfg.WatchPatterns)
}

func TestLoadConfig_BadSettings(t *testing.T) {
	home := isolateHome(t)
	dir := filepath.Join(home, ".davinci")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.json"), []byte(`{`), 0o600))

	_, err := loadConfig()
	assert.Error(t, err)
}

func TestVerifierConfig(t *testing.T) {
	cfg := defaultConfig()
	cfg.PredicateTimeout = "250ms"
	cfg.Workers = 3

	vc, err := cfg.verifierConfig()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, vc.Timeout)
	assert.Equal(t, 3, vc.Workers)

	cfg.PredicateTimeout = "soon"
	_, err = cfg.pipelineOptions()
	assert.Error(t, err)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a ,b,"))
	assert.Nil(t, splitList(""))
}
