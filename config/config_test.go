package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 6, cfg.Lab.MaxTargets)
	assert.Equal(t, 6, cfg.Lab.MaxConcurrency)
	assert.Equal(t, 45000, cfg.Lab.DefaultTimeoutMs)
	assert.Equal(t, 30, cfg.Lab.StaleAfterMinutes)
	assert.Equal(t, 0, cfg.Lab.RetentionDays)
	assert.Equal(t, "lab_runs", cfg.Lab.Queue)
	assert.Equal(t, 45000, cfg.AIProvider.TimeoutMs)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.yaml", `
server:
  port: 9090
database:
  host: db.internal
  port: 3306
ai_provider:
  url: https://provider.example.com/v1/chat/completions
lab:
  max_concurrency: 3
  retention_days: 30
  models:
    - name: gpt-4o-mini
      display_name: GPT-4o mini
      input_tokens_per_million: 0.15
      output_tokens_per_million: 0.6
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host, "defaults fill unset keys")
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "https://provider.example.com/v1/chat/completions", cfg.AIProvider.URL)
	assert.Equal(t, 3, cfg.Lab.MaxConcurrency)
	assert.Equal(t, 6, cfg.Lab.MaxTargets)
	assert.Equal(t, 30, cfg.Lab.RetentionDays)
	require.Len(t, cfg.Lab.Models, 1)
	assert.Equal(t, "GPT-4o mini", cfg.Lab.Models[0].DisplayName)
	assert.InDelta(t, 0.6, cfg.Lab.Models[0].OutputTokensPerMillion, 1e-9)
}

func TestLoad_PrefersLocalConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.yaml", "server:\n  port: 9090\n")
	writeConfig(t, dir, "config.local.yaml", "server:\n  port: 9191\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	assert.Error(t, err)
}
