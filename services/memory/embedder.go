package memory

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// EmbeddingConfig selects the OpenAI embedding model used for memory vectors.
type EmbeddingConfig struct {
	APIKey  string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"` // Override for OpenAI-compatible servers.
	Model   string `json:"model,omitempty" yaml:"model,omitempty"`
}

// OpenAIEmbedder embeds memory content with the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

func NewOpenAIEmbedder(config EmbeddingConfig) (*OpenAIEmbedder, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("embedder: OpenAI API key is required")
	}
	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	model := openai.SmallEmbedding3
	if config.Model != "" {
		model = openai.EmbeddingModel(config.Model)
	}
	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
	}, nil
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedder: empty response")
	}
	return resp.Data[0].Embedding, nil
}
