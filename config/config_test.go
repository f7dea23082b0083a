package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bidcoef.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigFileDefaults(t *testing.T) {
	for _, key := range []string{"DATABASE_PATH", "LOG_LEVEL", "DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS", "DB_CONN_MAX_LIFETIME"} {
		t.Setenv(key, "")
	}

	cfg, err := LoadConfigFile("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigFilePrecedence(t *testing.T) {
	path := writeConfigFile(t, `
matching:
  threshold: 0.7
  suggestion_limit: 3
solver:
  timeout: 5s
database:
  path: history.db
  conn_max_lifetime: 1m
logging:
  level: debug
unit_aliases:
  куб: м3
`)

	t.Setenv("BIDCOEF_MATCH_THRESHOLD", "0.8")
	t.Setenv("DATABASE_PATH", "override.db")
	t.Setenv("BIDCOEF_UNIT_ALIASES", "палет=пал, ,бала=бр")

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)

	assert.Equal(t, 0.8, cfg.MatchThreshold, "env overrides file")
	assert.Equal(t, 3, cfg.SuggestionLimit, "file overrides default")
	assert.Equal(t, 3, cfg.TopN, "default kept")
	assert.Equal(t, 5*time.Second, cfg.SolverTimeout)
	assert.Equal(t, "override.db", cfg.DatabasePath)
	assert.Equal(t, time.Minute, cfg.ConnMaxLifetime)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, map[string]string{"куб": "м3", "палет": "пал", "бала": "бр"}, cfg.UnitAliases)
}

func TestLoadConfigFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"Неверный YAML", "matching: [1, 2"},
		{"Неверная длительность", "solver:\n  timeout: быстро\n"},
		{"Порог вне диапазона", "matching:\n  threshold: 1.5\n"},
		{"Неизвестный уровень логирования", "logging:\n  level: verbose\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfigFile(writeConfigFile(t, tt.content))
			assert.Error(t, err)
		})
	}

	_, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigUsesConfigFileEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(ConfigFileEnv, writeConfigFile(t, "matching:\n  top_n: 4\n"))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.TopN)
}

func TestEnvParseFallback(t *testing.T) {
	t.Setenv("BIDCOEF_TOP_N", "много")
	t.Setenv("BIDCOEF_SOLVER_TIMEOUT", "100ms")

	cfg, err := LoadConfigFile("")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.TopN, "unparsable value falls back")
	assert.Equal(t, 100*time.Millisecond, cfg.SolverTimeout)
}
