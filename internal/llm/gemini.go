package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

type GeminiModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type GeminiCompleter struct {
	models GeminiModels
	spec   Spec
}

func NewGeminiCompleter(ctx context.Context, spec Spec) (*GeminiCompleter, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  spec.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiCompleter{models: client.Models, spec: spec}, nil
}

func (g *GeminiCompleter) ModelName() string { return g.spec.Model }

func (g *GeminiCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := g.models.GenerateContent(ctx, g.spec.Model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(g.spec.Temperature)),
		MaxOutputTokens: int32(g.spec.MaxTokens),
	})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
