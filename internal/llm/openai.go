package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// ChatModel is the part of llms.Model the completer uses.
type ChatModel interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// OpenAICompleter talks to any OpenAI-compatible chat endpoint.
type OpenAICompleter struct {
	client ChatModel
	spec   Spec
}

func NewOpenAICompleter(spec Spec) (*OpenAICompleter, error) {
	token := strings.TrimSpace(spec.APIKey)
	if token == "" {
		// Local OpenAI-compatible servers accept any token.
		token = "none"
	}
	opts := []openai.Option{openai.WithToken(token), openai.WithModel(spec.Model)}
	if spec.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(spec.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, err
	}
	return &OpenAICompleter{client: client, spec: spec}, nil
}

func (o *OpenAICompleter) ModelName() string { return o.spec.Model }

func (o *OpenAICompleter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := o.client.GenerateContent(ctx,
		[]llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)},
		llms.WithTemperature(o.spec.Temperature),
		llms.WithMaxTokens(o.spec.MaxTokens),
	)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: response has no choices")
	}
	return resp.Choices[0].Content, nil
}
