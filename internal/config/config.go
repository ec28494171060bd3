package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	LLM       LLMConfig
	Agent     AgentConfig
	Storage   StorageConfig
	Log       LogConfig
	Retrieval RetrievalConfig
}

type ServerConfig struct {
	Port int
	// APIToken enables bearer auth on the HTTP API when set.
	APIToken string
}

type LLMConfig struct {
	Provider   string
	BaseURL    string
	Model      string
	EmbedModel string
	APIKey     string
}

type AgentConfig struct {
	EnableCache         bool
	DataframeSerializer string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

type RetrievalConfig struct {
	TopK int
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		LLM: LLMConfig{
			Provider:   "ollama",
			BaseURL:    "http://localhost:11434",
			Model:      "qwen2.5-coder",
			EmbedModel: "nomic-embed-text",
		},
		Agent: AgentConfig{
			EnableCache:         true,
			DataframeSerializer: "csv",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
		Retrieval: RetrievalConfig{
			TopK: 3,
		},
	}
}

// Load reads configuration in layers: defaults, the JSON file at
// $XDG_CONFIG_HOME/semagent/config.json, then SEMAGENT_* environment
// variables. A .env file in the working directory is loaded into the
// environment first; variables already set win over it.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()), ".env")
}

func loadWith(b ConfigBackend, envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("could not load env file", "path", envFile, "error", err)
		}
	}

	cfg := defaults()
	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	switch strings.ToLower(cfg.LLM.Provider) {
	case "ollama":
	case "openai":
		if cfg.LLM.APIKey == "" {
			return fmt.Errorf("missing required config: API key for provider %q. "+
				"Set it via environment variable SEMAGENT_LLM_API_KEY", cfg.LLM.Provider)
		}
	default:
		return fmt.Errorf("invalid llm.provider %q: want ollama or openai", cfg.LLM.Provider)
	}
	switch strings.ToLower(cfg.Agent.DataframeSerializer) {
	case "csv", "json", "yaml":
	default:
		return fmt.Errorf("invalid agent.dataframe_serializer %q: want csv, json or yaml", cfg.Agent.DataframeSerializer)
	}
	if cfg.Retrieval.TopK <= 0 {
		return fmt.Errorf("invalid retrieval.top_k %d: must be positive", cfg.Retrieval.TopK)
	}
	return nil
}

// SlogLevel maps Log.Level to a slog level. Unknown values mean info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
