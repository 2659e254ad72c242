package config

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"LLM_PROVIDER", "OPENAI_API_KEY", "GOOGLE_API_KEY", "OPENAI_MODEL_NAME", "API_BASE_URL",
		"PARTNERLENS_MAX_AGENT_STEPS", "PARTNERLENS_MODEL_RPS", "PARTNERLENS_DATA_DIR",
		"PARTNERLENS_UPLOAD_DIR", "PARTNERLENS_ALLOWED_DIRS", "PARTNERLENS_HTTP_ADDR",
		"PARTNERLENS_ENABLE_INGEST", "PARTNERLENS_MAX_REQUESTS", "PARTNERLENS_MAX_DATASETS",
		"PARTNERLENS_DATASET_TTL", "PARTNERLENS_MAINTENANCE", "LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
	// Keep a stray .env in the package directory from leaking in.
	t.Chdir(t.TempDir())
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ProviderOpenAI, cfg.Provider)
	require.Equal(t, "gpt-4.1", cfg.ModelName)
	require.Equal(t, "processed_data", cfg.DataDir)
	require.Equal(t, "uploads", cfg.UploadDir)
	require.Equal(t, ":5000", cfg.HTTPAddr)
	require.Equal(t, 15, cfg.MaxAgentStep)
	require.False(t, cfg.EnableIngest)
	require.False(t, cfg.HasModelKey())
	require.Empty(t, cfg.AllowedDirs)
	require.Equal(t, zerolog.InfoLevel, cfg.Level())
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLM_PROVIDER", "GoogleAI")
	t.Setenv("GOOGLE_API_KEY", "g-key")
	t.Setenv("PARTNERLENS_MAX_AGENT_STEPS", "4")
	t.Setenv("PARTNERLENS_MODEL_RPS", "0.5")
	t.Setenv("PARTNERLENS_ENABLE_INGEST", "yes")
	t.Setenv("PARTNERLENS_DATASET_TTL", "90s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ProviderGoogleAI, cfg.Provider)
	require.True(t, cfg.HasModelKey())
	require.Equal(t, 4, cfg.MaxAgentStep)
	require.Equal(t, 0.5, cfg.ModelRPS)
	require.True(t, cfg.EnableIngest)
	require.Equal(t, 90*time.Second, cfg.DatasetIdleTTL)
	require.Equal(t, zerolog.DebugLevel, cfg.Level())
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	clearEnv(t)
	t.Setenv("PARTNERLENS_MAX_AGENT_STEPS", "many")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 15, cfg.MaxAgentStep)
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	require.NoError(t, err)

	bad := *cfg
	bad.Provider = "anthropic"
	require.ErrorContains(t, bad.Validate(), "LLM_PROVIDER")

	bad = *cfg
	bad.MaxAgentStep = 0
	require.ErrorContains(t, bad.Validate(), "PARTNERLENS_MAX_AGENT_STEPS")

	bad = *cfg
	bad.DataDir = " "
	require.ErrorContains(t, bad.Validate(), "PARTNERLENS_DATA_DIR")

	bad = *cfg
	bad.LogLevel = "loud"
	require.ErrorContains(t, bad.Validate(), "LOG_LEVEL")
}
