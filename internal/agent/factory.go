package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/signalnine/srebench/internal/docker"
)

// Adapter kinds.
const (
	AdapterLLM       = "llm"
	AdapterContainer = "container"
	AdapterReplay    = "replay"
)

// LLM providers.
const (
	ProviderGoogleAI = "googleai"
	ProviderOpenAI   = "openai"
	ProviderOllama   = "ollama"
)

// Config describes one agent.
type Config struct {
	Name        string            `yaml:"name"`
	Adapter     string            `yaml:"adapter"`
	Provider    string            `yaml:"provider"`
	Model       string            `yaml:"model"`
	BaseURL     string            `yaml:"base_url"`
	APIKey      string            `yaml:"api_key"`
	Temperature float64           `yaml:"temperature"`
	MaxTokens   int               `yaml:"max_tokens"`
	Image       string            `yaml:"image"`
	Command     []string          `yaml:"command"`
	Env         map[string]string `yaml:"env"`
	Dir         string            `yaml:"dir"`
	Timeout     time.Duration     `yaml:"timeout"`
}

// New builds the capability described by cfg.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (Capability, error) {
	switch cfg.Adapter {
	case AdapterLLM:
		m, err := newModel(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", cfg.Name, err)
		}
		opts := []llms.CallOption{llms.WithTemperature(cfg.Temperature)}
		if cfg.MaxTokens > 0 {
			opts = append(opts, llms.WithMaxTokens(cfg.MaxTokens))
		}
		return NewLLM(cfg.Name, cfg.Model, m, opts...), nil
	case AdapterContainer:
		if cfg.Image == "" {
			return nil, fmt.Errorf("agent %s: image is required", cfg.Name)
		}
		return NewContainer(cfg.Name, cfg.Image, cfg.Command, cfg.Env, docker.NewRunner(logger)), nil
	case AdapterReplay:
		if cfg.Dir == "" {
			return nil, fmt.Errorf("agent %s: dir is required", cfg.Name)
		}
		return NewReplay(cfg.Name, cfg.Dir), nil
	default:
		return nil, fmt.Errorf("agent %s: unknown adapter %q", cfg.Name, cfg.Adapter)
	}
}

func newModel(ctx context.Context, cfg Config) (llms.Model, error) {
	switch cfg.Provider {
	case ProviderGoogleAI, "":
		key := firstNonEmpty(cfg.APIKey, os.Getenv("GEMINI_API_KEY"), os.Getenv("GOOGLE_API_KEY"))
		if key == "" {
			return nil, errors.New("googleai: set api_key, GEMINI_API_KEY or GOOGLE_API_KEY")
		}
		opts := []googleai.Option{googleai.WithAPIKey(key)}
		if cfg.Model != "" {
			opts = append(opts, googleai.WithDefaultModel(cfg.Model))
		}
		m, err := googleai.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("googleai: %w", err)
		}
		return m, nil
	case ProviderOpenAI:
		key := firstNonEmpty(cfg.APIKey, os.Getenv("OPENAI_API_KEY"))
		if key == "" {
			return nil, errors.New("openai: set api_key or OPENAI_API_KEY")
		}
		opts := []openai.Option{openai.WithToken(key)}
		if cfg.Model != "" {
			opts = append(opts, openai.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		m, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("openai: %w", err)
		}
		return m, nil
	case ProviderOllama:
		opts := []ollama.Option{}
		if url := firstNonEmpty(cfg.BaseURL, os.Getenv("OLLAMA_URL")); url != "" {
			opts = append(opts, ollama.WithServerURL(url))
		}
		if cfg.Model != "" {
			opts = append(opts, ollama.WithModel(cfg.Model))
		}
		m, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("ollama: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
