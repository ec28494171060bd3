// Package agent implements the agent façade: a dataset, a language-model
// client and a vector store behind schema resolution, training and local
// query execution.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kalambet/semagent/internal/cache"
	"github.com/kalambet/semagent/internal/dataset"
	"github.com/kalambet/semagent/internal/llm"
	"github.com/kalambet/semagent/internal/storage"
)

// VectorStore receives training data.
type VectorStore interface {
	AddQuestionAnswer(ctx context.Context, queries, answers []string) error
	AddDocs(ctx context.Context, docs []string) error
}

// QueryLogStore persists a record of every executed query.
type QueryLogStore interface {
	SaveQueryLog(ctx context.Context, l storage.QueryLog) error
}

// Config is fixed at construction; agents keep their own copy.
type Config struct {
	LLM         llm.Client
	EnableCache bool
	Serializer  dataset.Serializer
}

// ConfigOption adjusts a Config built by NewConfig.
type ConfigOption func(*Config)

// WithCache turns schema caching on or off.
func WithCache(enabled bool) ConfigOption {
	return func(c *Config) { c.EnableCache = enabled }
}

// WithSerializer sets how dataset samples are rendered into prompts.
func WithSerializer(s dataset.Serializer) ConfigOption {
	return func(c *Config) { c.Serializer = s }
}

// NewConfig returns a Config for client with caching enabled and CSV
// serialization.
func NewConfig(client llm.Client, opts ...ConfigOption) Config {
	cfg := Config{LLM: client, EnableCache: true, Serializer: dataset.SerializerCSV}
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

// Option configures collaborators that are not part of Config.
type Option func(*options)

type options struct {
	cache  cache.Cache
	logger *slog.Logger
	logs   QueryLogStore
}

// WithSchemaCache sets the cache consulted before asking the language model.
func WithSchemaCache(c cache.Cache) Option {
	return func(o *options) { o.cache = c }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithQueryLogStore persists a QueryLog for every RunQuery call.
func WithQueryLogStore(s QueryLogStore) Option {
	return func(o *options) { o.logs = s }
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// queryTracker holds the outcome of the most recent query.
type queryTracker struct {
	mu     sync.Mutex
	lastID string
	err    error
}

func (t *queryTracker) record(id string, err error) {
	t.mu.Lock()
	t.lastID, t.err = id, err
	t.mu.Unlock()
}

// Agent holds a dataset, its configuration and a vector store. It never
// contacts the language model and does not track queries.
type Agent struct {
	dataset *dataset.Dataset
	config  Config
	vectors VectorStore
	logger  *slog.Logger
	tracker *queryTracker
}

// New creates a base agent.
func New(ds *dataset.Dataset, cfg Config, vs VectorStore, opts ...Option) (*Agent, error) {
	if ds == nil {
		return nil, fmt.Errorf("%w: dataset is required", ErrInvalidArgument)
	}
	o := buildOptions(opts)
	return &Agent{dataset: ds, config: cfg, vectors: vs, logger: o.logger}, nil
}

// Dataset returns the dataset the agent was built with.
func (a *Agent) Dataset() *dataset.Dataset { return a.dataset }

// Config returns a copy of the agent configuration.
func (a *Agent) Config() Config { return a.config }

// VectorStore returns the training store, possibly nil.
func (a *Agent) VectorStore() VectorStore { return a.vectors }

// LastQueryLogID returns the log id of the most recent query, "" if none has
// run. Agents without query tracking return ErrAccess.
func (a *Agent) LastQueryLogID() (string, error) {
	if a.tracker == nil {
		return "", ErrAccess
	}
	a.tracker.mu.Lock()
	defer a.tracker.mu.Unlock()
	return a.tracker.lastID, nil
}

// LastError returns the error of the most recent query, nil if it
// succeeded or no query has run.
func (a *Agent) LastError() error {
	if a.tracker == nil {
		return nil
	}
	a.tracker.mu.Lock()
	defer a.tracker.mu.Unlock()
	return a.tracker.err
}
