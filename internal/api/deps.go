// Package api exposes a semantic agent over HTTP and MCP.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/kalambet/semagent/internal/agent"
	"github.com/kalambet/semagent/internal/retrieval"
	"github.com/kalambet/semagent/internal/semantic"
)

// Agent is the part of agent.SemanticAgent the transports use.
type Agent interface {
	Schema() semantic.Schema
	Train(ctx context.Context, queries, jsons, docs []string) error
	BuildSQL(queryJSON string, d semantic.Dialect) (string, error)
	RunQuery(ctx context.Context, queryJSON string) (*agent.Result, error)
}

// Recaller searches stored training data.
type Recaller interface {
	RelevantQA(ctx context.Context, query string, k int) ([]retrieval.QA, error)
	RelevantDocs(ctx context.Context, query string, k int) ([]retrieval.Doc, error)
}

// Deps holds what both transports need.
type Deps struct {
	Agent  Agent
	Recall Recaller // optional; recall is unavailable when nil
	TopK   int      // default result count for recall
	Token  string   // bearer token for the HTTP API; empty disables auth
}

const (
	defaultTopK = 3
	maxTopK     = 50
)

func (d Deps) limit(requested int) int {
	if requested <= 0 {
		requested = d.TopK
	}
	if requested <= 0 {
		requested = defaultTopK
	}
	return min(requested, maxTopK)
}

// RecallResult is the answer to a recall request.
type RecallResult struct {
	QA   []retrieval.QA  `json:"qa"`
	Docs []retrieval.Doc `json:"docs"`
}

func recall(ctx context.Context, r Recaller, query string, k int) (RecallResult, error) {
	qa, err := r.RelevantQA(ctx, query, k)
	if err != nil {
		return RecallResult{}, err
	}
	docs, err := r.RelevantDocs(ctx, query, k)
	if err != nil {
		return RecallResult{}, err
	}
	if qa == nil {
		qa = []retrieval.QA{}
	}
	if docs == nil {
		docs = []retrieval.Doc{}
	}
	return RecallResult{QA: qa, Docs: docs}, nil
}

// classify maps agent and query errors to an HTTP status and error type.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, agent.ErrInvalidArgument),
		errors.Is(err, agent.ErrInvalidTrainJSON),
		errors.Is(err, semantic.ErrInvalidQuery):
		return http.StatusBadRequest, "invalid_request_error"
	case errors.Is(err, agent.ErrMissingVectorStore):
		return http.StatusServiceUnavailable, "unavailable_error"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout_error"
	}
	return http.StatusInternalServerError, "api_error"
}
