package llm

import (
	"context"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

type AnthropicClientCreator func(apiKey, baseURL string) AnthropicMessager

func defaultAnthropicCreator(apiKey, baseURL string) AnthropicMessager {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	c := anthropic.NewClient(opts...)
	return &c.Messages
}

var newAnthropicClient AnthropicClientCreator = defaultAnthropicCreator

type AnthropicCompleter struct {
	messages AnthropicMessager
	spec     Spec
}

func NewAnthropicCompleter(spec Spec) *AnthropicCompleter {
	return &AnthropicCompleter{messages: newAnthropicClient(spec.APIKey, spec.BaseURL), spec: spec}
}

func (a *AnthropicCompleter) ModelName() string { return a.spec.Model }

func (a *AnthropicCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := a.messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(a.spec.Model),
		MaxTokens:   int64(a.spec.MaxTokens),
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		Temperature: anthropic.Float(a.spec.Temperature),
	})
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String(), nil
}
