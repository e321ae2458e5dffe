package provider

import (
	"context"

	"github.com/mohammad-safakhou/ragserve/config"
	openai_provider "github.com/mohammad-safakhou/ragserve/provider/openai"
)

// Provider is the interface the pipeline needs from a hosted model API:
// text generation for answers and embeddings for retrieval.
type Provider interface {
	Generate(ctx context.Context, prompt string) (string, error)
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// NewProvider builds the OpenAI-backed provider from config.
func NewProvider(cfg config.LLMConfig, embeddingModel string) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return openai_provider.NewClient(
		cfg.APIKey,
		cfg.BaseURL,
		cfg.Model,
		embeddingModel,
		cfg.Temperature,
		cfg.MaxTokens,
		cfg.Timeout,
	), nil
}
