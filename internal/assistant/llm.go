package assistant

import (
	"fmt"

	"coffeenet/internal/config"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// NewModel builds the chat model from configuration. It returns nil without
// error when no API key is configured, meaning replies come from templates.
func NewModel(cfg config.AssistantConfig) (llms.Model, error) {
	if cfg.APIKey == "" {
		return nil, nil
	}
	opts := []openai.Option{
		openai.WithModel(cfg.Model),
		openai.WithToken(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenAI model: %w", err)
	}
	return llm, nil
}
