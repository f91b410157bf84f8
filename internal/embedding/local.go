package embedding

import (
	"context"
	"net/http"
	"strings"
)

// LocalProvider implements Provider using an Ollama-compatible embeddings API.
type LocalProvider struct {
	endpoint string
	model    string
	client   *http.Client
	dim      dimension
}

// NewLocalProvider creates a new LocalProvider from the given Config.
func NewLocalProvider(cfg Config) *LocalProvider {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	p := &LocalProvider{
		endpoint: endpoint,
		model:    cfg.Model,
		client:   newHTTPClient(cfg.Timeout),
	}
	p.dim.configured = cfg.Dimension
	return p
}

type localRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type localResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed calls the endpoint once per text; Ollama's legacy API has no batching.
func (p *LocalProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	embeddings := make([][]float32, 0, len(texts))
	for _, text := range texts {
		var result localResponse
		err := postJSON(ctx, p.client, p.endpoint+"/api/embeddings", "", localRequest{
			Model:  p.model,
			Prompt: text,
		}, &result)
		if err != nil {
			return nil, err
		}
		if len(result.Embedding) == 0 {
			return nil, ErrEmptyEmbedding
		}
		embeddings = append(embeddings, result.Embedding)
	}
	p.dim.observe(embeddings)
	return embeddings, nil
}

// Dimension returns the width of returned vectors, or the configured width
// before the first successful call.
func (p *LocalProvider) Dimension() int {
	return p.dim.get()
}
