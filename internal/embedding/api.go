package embedding

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// APIProvider implements Provider using an OpenAI-compatible embeddings API.
type APIProvider struct {
	endpoint string
	model    string
	apiKey   string
	client   *http.Client
	dim      dimension
}

// NewAPIProvider creates a new APIProvider from the given Config.
func NewAPIProvider(cfg Config) *APIProvider {
	p := &APIProvider{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		client:   newHTTPClient(cfg.Timeout),
	}
	p.dim.configured = cfg.Dimension
	return p
}

type apiRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type apiEmbeddingData struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

type apiResponse struct {
	Data []apiEmbeddingData `json:"data"`
}

// Embed sends texts to the OpenAI-compatible endpoint and returns one vector
// per input, in input order.
func (p *APIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var result apiResponse
	err := postJSON(ctx, p.client, p.endpoint+"/embeddings", p.apiKey, apiRequest{
		Model:      p.model,
		Input:      texts,
		Dimensions: p.dim.configured,
	}, &result)
	if err != nil {
		return nil, err
	}
	if len(result.Data) != len(texts) {
		return nil, fmt.Errorf("embedding: got %d vectors for %d inputs", len(result.Data), len(texts))
	}

	sort.Slice(result.Data, func(i, j int) bool { return result.Data[i].Index < result.Data[j].Index })
	embeddings := make([][]float32, len(result.Data))
	for i, d := range result.Data {
		embeddings[i] = d.Embedding
	}
	p.dim.observe(embeddings)
	return embeddings, nil
}

// Dimension returns the width of returned vectors, or the configured width
// before the first successful call.
func (p *APIProvider) Dimension() int {
	return p.dim.get()
}
