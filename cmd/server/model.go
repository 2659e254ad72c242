package main

import (
	"context"
	"errors"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"

	defaults "github.com/vinodismyname/partnerlens/config"
	"github.com/vinodismyname/partnerlens/internal/config"
)

var errNoModelKey = errors.New("no API key configured for the selected provider")

// newModel builds the chat model for the configured provider. The returned
// model is nil whenever err is non-nil.
func newModel(ctx context.Context, cfg *config.Config) (llms.Model, error) {
	if !cfg.HasModelKey() {
		return nil, errNoModelKey
	}

	switch cfg.Provider {
	case config.ProviderGoogleAI:
		opts := []googleai.Option{googleai.WithAPIKey(cfg.GoogleAIKey)}
		// the OpenAI default name means no model was chosen
		if cfg.ModelName != "" && cfg.ModelName != defaults.DefaultModelName {
			opts = append(opts, googleai.WithDefaultModel(cfg.ModelName))
		}
		m, err := googleai.New(ctx, opts...)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		opts := []openai.Option{openai.WithToken(cfg.OpenAIKey), openai.WithModel(cfg.ModelName)}
		if cfg.APIBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.APIBaseURL))
		}
		m, err := openai.New(opts...)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
}
