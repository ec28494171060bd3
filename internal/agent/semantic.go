package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kalambet/semagent/internal/cache"
	"github.com/kalambet/semagent/internal/dataset"
	"github.com/kalambet/semagent/internal/llm"
	"github.com/kalambet/semagent/internal/semantic"
)

// SemanticAgent resolves a semantic schema for its dataset at construction
// and can then be trained and queried.
type SemanticAgent struct {
	*Agent

	schema semantic.Schema
	cache  cache.Cache
	logs   QueryLogStore

	engineMu sync.Mutex
	engine   *queryEngine
}

// NewSemantic builds a SemanticAgent. cfg.LLM must advertise
// llm.CapSchemaGeneration. When caching is enabled and the schema cache
// holds an entry for the dataset, the language model is not called.
func NewSemantic(ctx context.Context, ds *dataset.Dataset, cfg Config, vs VectorStore, opts ...Option) (*SemanticAgent, error) {
	if !llm.Supports(cfg.LLM, llm.CapSchemaGeneration) {
		return nil, fmt.Errorf("%w: the language model client must support schema generation", ErrConfiguration)
	}
	if cfg.Serializer == "" {
		cfg.Serializer = dataset.SerializerCSV
	}

	base, err := New(ds, cfg, vs, opts...)
	if err != nil {
		return nil, err
	}
	o := buildOptions(opts)

	a := &SemanticAgent{Agent: base, cache: o.cache, logs: o.logs}
	a.tracker = &queryTracker{}

	schema, err := a.resolveSchema(ctx)
	if err != nil {
		return nil, err
	}
	a.schema = schema
	return a, nil
}

// Schema returns the resolved schema.
func (a *SemanticAgent) Schema() semantic.Schema { return a.schema }

// SchemaKey returns the key under which this agent's schema is cached.
func (a *SemanticAgent) SchemaKey() string {
	return cache.SchemaKey(a.dataset, a.config.Serializer)
}

func (a *SemanticAgent) cacheEnabled() bool {
	return a.config.EnableCache && a.cache != nil
}

func (a *SemanticAgent) resolveSchema(ctx context.Context) (semantic.Schema, error) {
	key := a.SchemaKey()

	if a.cacheEnabled() {
		cached, ok, err := a.cache.Get(ctx, key)
		switch {
		case err != nil:
			a.logger.Warn("schema cache read failed", "key", key, "error", err)
		case ok:
			s, err := semantic.Parse(semantic.Raw(cached))
			if err == nil {
				a.logger.Debug("schema cache hit", "dataset", a.dataset.Name(), "key", key)
				return s, nil
			}
			a.logger.Warn("ignoring unparsable cached schema", "key", key, "error", err)
		}
	}

	prompt, err := semantic.BuildSchemaPrompt(a.dataset, a.config.Serializer)
	if err != nil {
		return nil, err
	}

	var src semantic.Source
	if sc, ok := a.config.LLM.(llm.StructuredClient); ok {
		v, err := sc.CallStructured(ctx, prompt)
		if err != nil {
			return nil, err
		}
		src = semantic.Structured(v)
	} else {
		reply, err := a.config.LLM.Call(ctx, prompt)
		if err != nil {
			return nil, err
		}
		src = semantic.Raw(reply)
	}

	schema, err := semantic.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parsing schema from language model: %w", err)
	}
	a.logger.Info("schema generated", "dataset", a.dataset.Name(), "tables", len(schema))

	if a.cacheEnabled() {
		if err := a.cache.Set(ctx, key, schema.String()); err != nil {
			a.logger.Warn("schema cache write failed", "key", key, "error", err)
		}
	}
	return schema, nil
}

// Train hands training data to the vector store. Queries and jsons are
// paired answers and must come together with equal lengths; every json must
// be valid JSON. All arguments are checked before the store is called.
func (a *SemanticAgent) Train(ctx context.Context, queries, jsons, docs []string) error {
	switch {
	case len(queries) > 0 && len(jsons) == 0:
		return fmt.Errorf("%w: queries need matching jsons", ErrInvalidArgument)
	case len(jsons) > 0 && len(queries) == 0:
		return fmt.Errorf("%w: jsons were given without queries", ErrInvalidTrainJSON)
	case len(queries) != len(jsons):
		return fmt.Errorf("%w: got %d queries and %d jsons", ErrInvalidArgument, len(queries), len(jsons))
	case len(queries) == 0 && len(docs) == 0:
		return fmt.Errorf("%w: nothing to train on", ErrInvalidArgument)
	}
	for i, j := range jsons {
		if !json.Valid([]byte(j)) {
			return fmt.Errorf("%w: answer %d is not valid JSON", ErrInvalidTrainJSON, i)
		}
	}
	if a.vectors == nil {
		return ErrMissingVectorStore
	}

	if len(docs) > 0 {
		if err := a.vectors.AddDocs(ctx, docs); err != nil {
			return err
		}
	}
	if len(queries) > 0 {
		if err := a.vectors.AddQuestionAnswer(ctx, queries, jsons); err != nil {
			return err
		}
	}
	a.logger.Info("training data stored", "pairs", len(queries), "docs", len(docs))
	return nil
}
