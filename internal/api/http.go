package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/semagent/internal/semantic"
)

const maxRequestBodySize = 1 << 20 // 1MB

// TrainRequest is the body of POST /train.
type TrainRequest struct {
	Queries []string `json:"queries"`
	JSONs   []string `json:"jsons"`
	Docs    []string `json:"docs"`
}

// QueryRequest is the body of POST /query. Query may be a JSON object or a
// string holding one.
type QueryRequest struct {
	Query   json.RawMessage `json:"query"`
	SQLOnly bool            `json:"sql_only"`
	Dialect string          `json:"dialect"`
}

// NewHTTPHandler returns the REST API. /health is always public; the other
// routes require the bearer token when deps.Token is set.
func NewHTTPHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}
		r.Get("/schema", handleSchema(deps))
		r.Post("/train", handleTrain(deps))
		r.Post("/query", handleQuery(deps))
		r.Get("/recall", handleRecall(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleSchema(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Agent.Schema())
	}
}

func handleTrain(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req TrainRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		if err := deps.Agent.Train(r.Context(), req.Queries, req.JSONs, req.Docs); err != nil {
			code, typ := classify(err)
			httpError(w, code, typ, "training failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{
			"pairs": len(req.Queries),
			"docs":  len(req.Docs),
		})
	}
}

func handleQuery(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req QueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		query, err := queryText(req.Query)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		if req.SQLOnly {
			d, err := ParseDialect(req.Dialect)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
				return
			}
			sql, err := deps.Agent.BuildSQL(query, d)
			if err != nil {
				code, typ := classify(err)
				httpError(w, code, typ, "building query: %v", err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"sql": sql, "dialect": d.String()})
			return
		}

		res, err := deps.Agent.RunQuery(r.Context(), query)
		if err != nil {
			code, typ := classify(err)
			httpError(w, code, typ, "query failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleRecall(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Recall == nil {
			httpError(w, http.StatusServiceUnavailable, "unavailable_error", "recall not available: no vector store configured")
			return
		}
		q := r.URL.Query().Get("q")
		if q == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "q is required")
			return
		}
		limit := 0
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid limit: %v", err)
				return
			}
			limit = n
		}

		res, err := recall(r.Context(), deps.Recall, q, deps.limit(limit))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "recall failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// queryText accepts either a JSON object or a JSON string wrapping one.
func queryText(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", fmt.Errorf("query is required")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("invalid query: %w", err)
		}
		return s, nil
	}
	return string(raw), nil
}

// ParseDialect maps "postgres" (default) or "sqlite" to a semantic.Dialect.
func ParseDialect(s string) (semantic.Dialect, error) {
	switch s {
	case "", "postgres", "postgresql":
		return semantic.DialectPostgres, nil
	case "sqlite":
		return semantic.DialectSQLite, nil
	}
	return 0, fmt.Errorf("unknown dialect %q: want postgres or sqlite", s)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("writing response failed", "error", err)
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
