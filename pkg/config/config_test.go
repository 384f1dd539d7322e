package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 20, cfg.Server.BodyLimitMB)
	assert.Equal(t, 180*time.Second, cfg.Server.SessionTTL)
	assert.Equal(t, "gpt-4o", cfg.LLM.OpenAI.Model)
	assert.Equal(t, "llama-3.1-8b-instant", cfg.LLM.Groq.Model)
	assert.Equal(t, int32(5), cfg.Retry.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Retry.InitialInterval)
	assert.Equal(t, 0.7, cfg.Moderation.Threshold)
	assert.Equal(t, 3*time.Second, cfg.Moderation.Timeout)
	assert.False(t, cfg.Database.Enabled())
	assert.Same(t, cfg, Get())
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`
server:
  port: 9000
  app_key: secret
llm:
  openai:
    model: gpt-4o-mini
database:
  host: db.local
memory:
  backend: redis
  ttl: 1h
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), content, 0o600))

	t.Setenv("GROQ_API_KEY", "groq-key")
	t.Setenv("LLM_OPENAI_API_KEY", "openai-key")
	t.Setenv("LOGGING_LEVEL", "debug")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "secret", cfg.Server.AppKey)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.OpenAI.Model)
	assert.Equal(t, "openai-key", cfg.LLM.OpenAI.APIKey)
	assert.Equal(t, "groq-key", cfg.LLM.Groq.APIKey)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "redis", cfg.Memory.Backend)
	assert.Equal(t, time.Hour, cfg.Memory.TTL)
	assert.True(t, cfg.Database.Enabled())
	assert.Contains(t, cfg.Database.DSN(), "host=db.local port=5432")
}

func TestLoadInvalidFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server: [unclosed"), 0o600))

	_, err := Load(dir)
	assert.Error(t, err)
}
