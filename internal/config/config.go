// Package config loads runtime settings from the environment and an optional .env file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	defaults "github.com/vinodismyname/partnerlens/config"
)

// Providers accepted in LLM_PROVIDER.
const (
	ProviderOpenAI   = "openai"
	ProviderGoogleAI = "googleai"
)

// Config holds process configuration.
type Config struct {
	// Model access
	Provider     string
	OpenAIKey    string
	GoogleAIKey  string
	ModelName    string
	APIBaseURL   string
	MaxAgentStep int
	ModelRPS     float64

	// Storage
	DataDir     string
	UploadDir   string
	AllowedDirs []string

	// Serving
	HTTPAddr              string
	EnableIngest          bool
	MaxConcurrentRequests int
	MaxLoadedDatasets     int
	DatasetIdleTTL        time.Duration
	MaintenanceSchedule   string

	LogLevel string
}

// Load reads configuration from environment variables, after merging a .env
// file from the working directory when one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Provider:     strings.ToLower(getEnv("LLM_PROVIDER", ProviderOpenAI)),
		OpenAIKey:    getEnv("OPENAI_API_KEY", ""),
		GoogleAIKey:  getEnv("GOOGLE_API_KEY", ""),
		ModelName:    getEnv("OPENAI_MODEL_NAME", defaults.DefaultModelName),
		APIBaseURL:   getEnv("API_BASE_URL", ""),
		MaxAgentStep: getEnvAsInt("PARTNERLENS_MAX_AGENT_STEPS", defaults.DefaultAgentMaxSteps),
		ModelRPS:     getEnvAsFloat("PARTNERLENS_MODEL_RPS", defaults.DefaultModelRequestsPerSec),

		DataDir:     getEnv("PARTNERLENS_DATA_DIR", "processed_data"),
		UploadDir:   getEnv("PARTNERLENS_UPLOAD_DIR", "uploads"),
		AllowedDirs: filepath.SplitList(os.Getenv("PARTNERLENS_ALLOWED_DIRS")),

		HTTPAddr:              getEnv("PARTNERLENS_HTTP_ADDR", ":5000"),
		EnableIngest:          getEnvAsBool("PARTNERLENS_ENABLE_INGEST", false),
		MaxConcurrentRequests: getEnvAsInt("PARTNERLENS_MAX_REQUESTS", defaults.DefaultMaxConcurrentRequests),
		MaxLoadedDatasets:     getEnvAsInt("PARTNERLENS_MAX_DATASETS", defaults.DefaultMaxLoadedDatasets),
		DatasetIdleTTL:        getEnvAsDuration("PARTNERLENS_DATASET_TTL", defaults.DefaultDatasetIdleTTL),
		MaintenanceSchedule:   getEnv("PARTNERLENS_MAINTENANCE", defaults.DefaultMaintenanceSchedule),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings and limits.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("PARTNERLENS_DATA_DIR is required")
	}
	if strings.TrimSpace(c.UploadDir) == "" {
		return fmt.Errorf("PARTNERLENS_UPLOAD_DIR is required")
	}
	switch c.Provider {
	case ProviderOpenAI, ProviderGoogleAI:
	default:
		return fmt.Errorf("LLM_PROVIDER must be %q or %q, got %q", ProviderOpenAI, ProviderGoogleAI, c.Provider)
	}
	if c.MaxAgentStep <= 0 {
		return fmt.Errorf("PARTNERLENS_MAX_AGENT_STEPS must be positive")
	}
	if c.ModelRPS <= 0 {
		return fmt.Errorf("PARTNERLENS_MODEL_RPS must be positive")
	}
	if c.MaxConcurrentRequests <= 0 || c.MaxLoadedDatasets <= 0 {
		return fmt.Errorf("request and dataset limits must be positive")
	}
	if c.DatasetIdleTTL <= 0 {
		return fmt.Errorf("PARTNERLENS_DATASET_TTL must be positive")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return nil
}

// HasModelKey reports whether credentials for the selected provider are set.
func (c *Config) HasModelKey() bool {
	if c.Provider == ProviderGoogleAI {
		return c.GoogleAIKey != ""
	}
	return c.OpenAIKey != ""
}

// Level returns the parsed log level, defaulting to info.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "":
		return defaultValue
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return defaultValue
}
