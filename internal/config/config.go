package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/joelkehle/patent-assistant/internal/llm"
)

type Config struct {
	Assistant   AssistantConfig   `yaml:"assistant"`
	IndexServer IndexServerConfig `yaml:"index_server"`
	LLM         LLMConfig         `yaml:"llm"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Logging     LoggingConfig     `yaml:"logging"`
	Tracing     TracingConfig     `yaml:"tracing"`
}

type AssistantConfig struct {
	Addr string `yaml:"addr"`
	// IndexServerURL empty means search the local index in-process.
	IndexServerURL string        `yaml:"index_server_url"`
	SearchTimeout  string        `yaml:"search_timeout"`
	KPerKeyword    int           `yaml:"k_per_keyword"`
	Indexes        []IndexOption `yaml:"indexes"`
	StyleDir       string        `yaml:"style_dir"`
	// StatePath, when set, persists sessions across restarts.
	StatePath      string        `yaml:"state_path"`
}

// IndexOption is one entry of the index picker: display name to index id.
type IndexOption struct {
	Name string `yaml:"name" json:"name"`
	ID   string `yaml:"id" json:"id"`
}

type IndexServerConfig struct {
	Addr          string       `yaml:"addr"`
	DBPath        string       `yaml:"db_path"`
	FanoutWorkers int          `yaml:"fanout_workers"`
	Indexes       []IndexEntry `yaml:"indexes"`
}

type IndexEntry struct {
	ID          string `yaml:"id"`
	Description string `yaml:"description"`
}

type LLMConfig struct {
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Models      []ModelConfig `yaml:"models"`
}

type ModelConfig struct {
	Name      string `yaml:"name"`
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
}

type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
}

func DefaultConfig() *Config {
	return &Config{
		Assistant: AssistantConfig{
			Addr:           ":8501",
			IndexServerURL: "http://localhost:8000",
			SearchTimeout:  "60s",
			KPerKeyword:    5,
			Indexes: []IndexOption{
				{Name: "Core patents", ID: "core_patents"},
				{Name: "3D DRAM patents", ID: "3d_dram"},
			},
		},
		IndexServer: IndexServerConfig{
			Addr:   ":8000",
			DBPath: "patents.db",
			Indexes: []IndexEntry{
				{ID: "core_patents", Description: "Core patents"},
				{ID: "3d_dram", Description: "3D DRAM patents"},
			},
		},
		LLM: LLMConfig{
			Temperature: 0,
			MaxTokens:   llm.DefaultMaxTokens,
			Models: []ModelConfig{
				{Name: "gemini-2.5-pro", Provider: "gemini", Model: "gemini-2.5-pro"},
				{Name: "gemini-2.5-flash", Provider: "gemini", Model: "gemini-2.5-flash"},
			},
		},
		Embedding: EmbeddingConfig{
			Provider: "gemini",
			Model:    "gemini-embedding-001",
		},
		Logging: LoggingConfig{Level: "info", Format: "console"},
		Tracing: TracingConfig{Endpoint: "localhost:4318"},
	}
}

// Load reads .env (when present), then path (when present), then applies
// environment overrides on top of the defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}
	cfg := DefaultConfig()
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := strings.TrimSpace(os.Getenv("PATENT_ASSISTANT_ADDR")); v != "" {
		c.Assistant.Addr = v
	}
	if v, ok := os.LookupEnv("INDEX_SERVER_URL"); ok {
		c.Assistant.IndexServerURL = strings.TrimSpace(v)
	}
	if v := strings.TrimSpace(os.Getenv("PATENT_ASSISTANT_STATE")); v != "" {
		c.Assistant.StatePath = v
	}
	c.Assistant.KPerKeyword = envInt("K_PER_KEYWORD", c.Assistant.KPerKeyword)
	if v := strings.TrimSpace(os.Getenv("INDEX_SERVER_ADDR")); v != "" {
		c.IndexServer.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv("INDEX_DB_PATH")); v != "" {
		c.IndexServer.DBPath = v
	}
	c.IndexServer.FanoutWorkers = envInt("INDEX_FANOUT_WORKERS", c.IndexServer.FanoutWorkers)
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		c.Logging.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_FILE")); v != "" {
		c.Logging.File = v
	}
	if envEnabled("OTEL_ENABLED") {
		c.Tracing.Enabled = true
	}
	if v := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); v != "" {
		c.Tracing.Endpoint = v
	}
}

func (c *Config) SearchTimeout() time.Duration {
	d, err := time.ParseDuration(c.Assistant.SearchTimeout)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

// ModelSpecs resolves configured models into completer specs, reading each
// API key from its environment variable.
func (c *Config) ModelSpecs() []llm.Spec {
	out := make([]llm.Spec, 0, len(c.LLM.Models))
	for _, m := range c.LLM.Models {
		name := m.Name
		if name == "" {
			name = m.Model
		}
		out = append(out, llm.Spec{
			Name:        name,
			Provider:    llm.Provider(strings.ToLower(m.Provider)),
			Model:       m.Model,
			APIKey:      apiKey(m.Provider, m.APIKeyEnv),
			BaseURL:     m.BaseURL,
			Temperature: c.LLM.Temperature,
			MaxTokens:   c.LLM.MaxTokens,
		})
	}
	return out
}

func (c *Config) EmbeddingAPIKey() string {
	return apiKey(c.Embedding.Provider, c.Embedding.APIKeyEnv)
}

func apiKey(provider, keyEnv string) string {
	if keyEnv != "" {
		return strings.TrimSpace(os.Getenv(keyEnv))
	}
	switch strings.ToLower(provider) {
	case "anthropic":
		return strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	case "gemini", "genai":
		if v := strings.TrimSpace(os.Getenv("GEMINI_API_KEY")); v != "" {
			return v
		}
		return strings.TrimSpace(os.Getenv("GOOGLE_API_KEY"))
	case "openai":
		return strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	}
	return ""
}

// ValidateAssistant checks what the front end needs before it can answer:
// a way to search and at least one usable model.
func (c *Config) ValidateAssistant() error {
	if strings.TrimSpace(c.Assistant.IndexServerURL) == "" && strings.TrimSpace(c.IndexServer.DBPath) == "" {
		return errors.New("no index configured: set assistant.index_server_url or index_server.db_path")
	}
	if len(c.Assistant.Indexes) == 0 {
		return errors.New("assistant.indexes must list at least one index")
	}
	for _, idx := range c.Assistant.Indexes {
		if strings.TrimSpace(idx.ID) == "" || strings.TrimSpace(idx.Name) == "" {
			return fmt.Errorf("assistant index %+v needs both name and id", idx)
		}
	}
	if c.Assistant.KPerKeyword < 1 {
		return fmt.Errorf("assistant.k_per_keyword must be >= 1, got %d", c.Assistant.KPerKeyword)
	}
	if len(c.LLM.Models) == 0 {
		return errors.New("llm.models must list at least one model")
	}
	usable := 0
	for _, s := range c.ModelSpecs() {
		if s.APIKey != "" || s.Provider == llm.ProviderOpenAI {
			usable++
		}
	}
	if usable == 0 {
		return errors.New("no model credentials configured (set GEMINI_API_KEY, ANTHROPIC_API_KEY or OPENAI_API_KEY)")
	}
	return c.validateLogging()
}

func (c *Config) ValidateIndexServer() error {
	if strings.TrimSpace(c.IndexServer.DBPath) == "" {
		return errors.New("index_server.db_path is required")
	}
	if c.IndexServer.FanoutWorkers < 0 {
		return fmt.Errorf("index_server.fanout_workers must be >= 0, got %d", c.IndexServer.FanoutWorkers)
	}
	if strings.TrimSpace(c.Embedding.Model) == "" {
		return errors.New("embedding.model is required")
	}
	return c.validateLogging()
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "console", "json", "":
	default:
		return fmt.Errorf("invalid logging.format %q", c.Logging.Format)
	}
	return nil
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	if n <= 0 {
		return fallback
	}
	return n
}

func envEnabled(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
