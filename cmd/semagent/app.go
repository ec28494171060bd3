package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kalambet/semagent/internal/agent"
	"github.com/kalambet/semagent/internal/cache"
	"github.com/kalambet/semagent/internal/config"
	"github.com/kalambet/semagent/internal/dataset"
	"github.com/kalambet/semagent/internal/llm"
	"github.com/kalambet/semagent/internal/retrieval"
	"github.com/kalambet/semagent/internal/storage"
)

// app bundles the long-lived collaborators every command needs.
type app struct {
	cfg      config.Config
	store    *storage.Store
	client   llm.Client
	schemas  *cache.Tiered
	training *retrieval.TrainingStore // nil when the provider cannot embed
}

// memoryCacheTTL bounds how long a schema read from disk is served from
// process memory.
const memoryCacheTTL = 10 * time.Minute

// newLLMClient is swapped in tests.
var newLLMClient = llm.New

func openApp(cfg config.Config) (*app, error) {
	client, err := newLLMClient(llm.Config{
		Provider: cfg.LLM.Provider,
		BaseURL:  cfg.LLM.BaseURL,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("creating language model client: %w", err)
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	a := &app{
		cfg:     cfg,
		store:   store,
		client:  client,
		schemas: cache.NewTiered(cache.NewMemory(memoryCacheTTL), store.SchemaCache()),
	}
	if backend := embeddingBackend(client); backend != nil {
		embedder := retrieval.NewEmbedder(backend, cfg.LLM.EmbedModel)
		a.training = retrieval.NewTrainingStore(embedder, retrieval.NewSQLiteStore(store.DB()), nil)
	} else {
		slog.Debug("language model client cannot embed, training disabled", "provider", cfg.LLM.Provider)
	}
	return a, nil
}

func embeddingBackend(c llm.Client) retrieval.EmbeddingModel {
	switch v := c.(type) {
	case *llm.Ollama:
		return v.Client()
	case retrieval.EmbeddingModel:
		return v
	}
	return nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		printWarning("closing storage: %v", err)
	}
}

// vectorStore returns the training store as an agent.VectorStore, or a nil
// interface when training is unavailable.
func (a *app) vectorStore() agent.VectorStore {
	if a.training == nil {
		return nil
	}
	return a.training
}

// newAgent loads the CSV at path and resolves its semantic schema through
// the schema cache. refresh drops any cached schema first so the language
// model is asked again.
func (a *app) newAgent(ctx context.Context, path, name string, refresh bool) (*agent.SemanticAgent, error) {
	ds, err := loadDataset(path, name)
	if err != nil {
		return nil, err
	}
	ser, err := dataset.ParseSerializer(a.cfg.Agent.DataframeSerializer)
	if err != nil {
		return nil, err
	}
	if refresh {
		if err := a.schemas.Delete(ctx, cache.SchemaKey(ds, ser)); err != nil {
			return nil, fmt.Errorf("dropping cached schema: %w", err)
		}
		slog.Debug("cached schema dropped", "dataset", ds.Name())
	}

	cfg := agent.NewConfig(a.client, agent.WithCache(a.cfg.Agent.EnableCache), agent.WithSerializer(ser))
	return agent.NewSemantic(ctx, ds, cfg, a.vectorStore(),
		agent.WithSchemaCache(a.schemas),
		agent.WithQueryLogStore(a.store),
	)
}

func loadDataset(path, name string) (*dataset.Dataset, error) {
	if path == "" {
		return nil, fmt.Errorf("--data is required")
	}
	if name == "" {
		name = datasetName(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dataset: %w", err)
	}
	defer f.Close()
	ds, err := dataset.FromCSV(name, f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return ds, nil
}

// datasetName derives a table name from a file path: "data/Sales 2024.csv"
// becomes "sales_2024".
func datasetName(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	var sb strings.Builder
	for _, r := range strings.ToLower(base) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	if sb.Len() == 0 {
		return dataset.DefaultName
	}
	return sb.String()
}
