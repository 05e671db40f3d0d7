package docindex

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"google.golang.org/genai"
)

const (
	DefaultGenAIEmbeddingModel = "gemini-embedding-001"
	genaiBatchLimit            = 100
)

type EmbedderConfig struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

// NewEmbedder picks the embedding backend named by cfg.Provider.
func NewEmbedder(ctx context.Context, cfg EmbedderConfig) (embeddings.Embedder, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "gemini", "genai":
		return NewGenAIEmbedder(ctx, cfg.APIKey, cfg.Model)
	case "openai", "":
		return NewOpenAIEmbedder(cfg.BaseURL, cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", cfg.Provider)
	}
}

// NewOpenAIEmbedder works against OpenAI or any compatible local server.
func NewOpenAIEmbedder(baseURL, token, model string) (embeddings.Embedder, error) {
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("embedding model is required")
	}
	if strings.TrimSpace(token) == "" {
		token = "none"
	}
	opts := []openai.Option{openai.WithToken(token), openai.WithEmbeddingModel(model)}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, err
	}
	return embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
}

type GenAIEmbedModels interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// GenAIEmbedder adapts the Gemini embedding API to embeddings.Embedder.
type GenAIEmbedder struct {
	models GenAIEmbedModels
	model  string
}

var _ embeddings.Embedder = (*GenAIEmbedder)(nil)

func NewGenAIEmbedder(ctx context.Context, apiKey, model string) (*GenAIEmbedder, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("GenAI API key is required")
	}
	if model == "" {
		model = DefaultGenAIEmbeddingModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GenAIEmbedder{models: client.Models, model: model}, nil
}

func (e *GenAIEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += genaiBatchLimit {
		end := min(start+genaiBatchLimit, len(texts))
		vecs, err := e.embed(ctx, texts[start:end], &genai.EmbedContentConfig{TaskType: "RETRIEVAL_DOCUMENT"})
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *GenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embed(ctx, []string{text}, &genai.EmbedContentConfig{TaskType: "RETRIEVAL_QUERY"})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *GenAIEmbedder) embed(ctx context.Context, texts []string, config *genai.EmbedContentConfig) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}
	result, err := e.models.EmbedContent(ctx, e.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("GenAI embed failed: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("GenAI returned %d embeddings for %d texts", len(result.Embeddings), len(texts))
	}
	out := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		out[i] = emb.Values
	}
	return out, nil
}
