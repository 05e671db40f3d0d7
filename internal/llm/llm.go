package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/joelkehle/patent-assistant/internal/patentqa"
)

type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
	ProviderOpenAI    Provider = "openai"
)

const DefaultMaxTokens = 8192

var ErrUnknownModel = errors.New("unknown model")

// Spec describes one selectable model. Name is what users pick; Model is the
// provider's identifier.
type Spec struct {
	Name        string
	Provider    Provider
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
	MaxTokens   int
}

func (s Spec) validate() error {
	if strings.TrimSpace(s.Model) == "" {
		return fmt.Errorf("model %q: provider model id is required", s.Name)
	}
	switch s.Provider {
	case ProviderAnthropic, ProviderGemini:
		if strings.TrimSpace(s.APIKey) == "" {
			return fmt.Errorf("model %q: %s api key not configured", s.Name, s.Provider)
		}
	case ProviderOpenAI:
	default:
		return fmt.Errorf("model %q: unsupported provider %q", s.Name, s.Provider)
	}
	return nil
}

// New builds the completer for spec.
func New(ctx context.Context, spec Spec) (patentqa.Completer, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}
	if spec.MaxTokens <= 0 {
		spec.MaxTokens = DefaultMaxTokens
	}
	switch spec.Provider {
	case ProviderAnthropic:
		return NewAnthropicCompleter(spec), nil
	case ProviderGemini:
		return NewGeminiCompleter(ctx, spec)
	default:
		return NewOpenAICompleter(spec)
	}
}

type Factory func(ctx context.Context, spec Spec) (patentqa.Completer, error)

// Registry hands out completers by name, building each on first use.
type Registry struct {
	mu      sync.Mutex
	order   []string
	specs   map[string]Spec
	built   map[string]patentqa.Completer
	factory Factory
}

func NewRegistry(specs []Spec, factory Factory) (*Registry, error) {
	if factory == nil {
		factory = New
	}
	r := &Registry{specs: map[string]Spec{}, built: map[string]patentqa.Completer{}, factory: factory}
	for _, s := range specs {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return nil, errors.New("model name is required")
		}
		if _, dup := r.specs[name]; dup {
			return nil, fmt.Errorf("duplicate model %q", name)
		}
		if err := s.validate(); err != nil {
			return nil, err
		}
		r.specs[name] = s
		r.order = append(r.order, name)
	}
	if len(r.order) == 0 {
		return nil, errors.New("no models configured")
	}
	return r, nil
}

func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) Default() string { return r.order[0] }

func (r *Registry) Has(name string) bool {
	_, ok := r.specs[name]
	return ok
}

func (r *Registry) Get(ctx context.Context, name string) (patentqa.Completer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.built[name]; ok {
		return c, nil
	}
	spec, ok := r.specs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, name)
	}
	c, err := r.factory(ctx, spec)
	if err != nil {
		return nil, err
	}
	r.built[name] = c
	return c, nil
}
