// Package llm defines the language-model port used by agents and its
// provider-backed implementations.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrNotConfigured is returned when a client lacks the settings it needs
// (model, endpoint, credentials) to make a call.
var ErrNotConfigured = errors.New("language model not configured")

// Capability is a bit set of features a client guarantees.
type Capability uint8

const (
	// CapSchemaGeneration marks clients that return machine-readable JSON
	// when asked for a schema, rather than free-form prose.
	CapSchemaGeneration Capability = 1 << iota
)

func (c Capability) String() string {
	if c&CapSchemaGeneration != 0 {
		return "schema-generation"
	}
	return "none"
}

// Client sends a prompt and returns the model's textual answer.
type Client interface {
	Call(ctx context.Context, prompt string) (string, error)
	Capabilities() Capability
}

// StructuredClient is implemented by clients that can hand back an already
// decoded reply (map[string]any, []any, or a typed value) instead of text.
type StructuredClient interface {
	Client
	CallStructured(ctx context.Context, prompt string) (any, error)
}

// Supports reports whether c is non-nil and advertises every bit in want.
func Supports(c Client, want Capability) bool {
	if c == nil {
		return false
	}
	return c.Capabilities()&want == want
}

// Provider names accepted by New.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Config selects and configures a provider.
type Config struct {
	Provider string
	BaseURL  string
	Model    string
	APIKey   string
	Logger   *slog.Logger
}

// New builds the client for cfg.Provider.
func New(cfg Config) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderOllama, "":
		return NewOllama(cfg)
	case ProviderOpenAI:
		return NewOpenAI(cfg)
	}
	return nil, fmt.Errorf("%w: unknown provider %q", ErrNotConfigured, cfg.Provider)
}
