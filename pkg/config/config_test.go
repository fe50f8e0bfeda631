package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, 2, cfg.Vector.TopK)
	assert.Equal(t, "insights_channel", cfg.Redis.Channel)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Knowledge.Root, cfg.Knowledge.Root)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
llm:
  provider: anthropic
  model_id: claude-3-haiku
  api_key: test-key
knowledge:
  root: /tmp/kg
vector:
  private_path: /tmp/kg/vector.db
  public_url: https://vectors.example.com
  top_k: 5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "/tmp/kg", cfg.Knowledge.Root)
	assert.Equal(t, 5, cfg.Vector.TopK)
	// Untouched sections keep their defaults.
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CORTEX_LLM_MODEL_ID", "mistral")
	t.Setenv("CORTEX_REDIS_ADDR", "redis:6379")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "mistral", cfg.LLM.ModelID)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	cfg := Default()
	cfg.LLM.Provider = "carrier-pigeon"
	assert.Error(t, cfg.Validate())
}
