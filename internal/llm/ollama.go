package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kalambet/semagent/internal/ollama"
)

const schemaSystemPrompt = "You answer with a single JSON document and nothing else."

// Ollama calls a local Ollama server in JSON mode.
type Ollama struct {
	client *ollama.Client
	model  string
	logger *slog.Logger
}

// NewOllama creates an Ollama-backed client.
func NewOllama(cfg Config) (*Ollama, error) {
	if cfg.BaseURL == "" || cfg.Model == "" {
		return nil, fmt.Errorf("%w: ollama needs a base URL and a model", ErrNotConfigured)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Ollama{client: ollama.New(cfg.BaseURL), model: cfg.Model, logger: logger}, nil
}

// Capabilities reports schema generation: every reply is constrained to JSON.
func (o *Ollama) Capabilities() Capability { return CapSchemaGeneration }

// Call sends prompt as a single user turn.
func (o *Ollama) Call(ctx context.Context, prompt string) (string, error) {
	o.logger.Debug("llm call", "provider", ProviderOllama, "model", o.model, "prompt_chars", len(prompt))
	out, err := o.client.Chat(ctx, ollama.ChatRequest{
		Model: o.model,
		Messages: []ollama.Message{
			{Role: "system", Content: schemaSystemPrompt},
			{Role: "user", Content: prompt},
		},
		Format:  ollama.FormatJSON,
		Options: map[string]any{"temperature": 0},
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	return out, nil
}

// Client exposes the underlying HTTP client for embeddings and model setup.
func (o *Ollama) Client() *ollama.Client { return o.client }
