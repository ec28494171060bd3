package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func tagsJSON(names ...string) []byte {
	var r tagsResponse
	for _, n := range names {
		r.Models = append(r.Models, struct {
			Name string `json:"name"`
		}{Name: n})
	}
	b, _ := json.Marshal(r)
	return b
}

func closedServerURL() string {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()
	return srv.URL
}

func TestIsRunning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(tagsJSON("qwen2.5-coder:latest"))
	}))
	defer srv.Close()

	if !New(srv.URL).IsRunning(context.Background()) {
		t.Error("IsRunning() = false, want true")
	}
	if New(closedServerURL()).IsRunning(context.Background()) {
		t.Error("IsRunning() on a closed server = true, want false")
	}
}

func TestHasModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(tagsJSON("qwen2.5-coder:latest", "nomic-embed-text:latest"))
	}))
	defer srv.Close()

	c := New(srv.URL + "/")
	if !c.HasModel(context.Background(), "qwen2.5-coder") {
		t.Error("bare name should match tagged model")
	}
	if !c.HasModel(context.Background(), "nomic-embed-text:latest") {
		t.Error("exact name should match")
	}
	if c.HasModel(context.Background(), "qwen2.5") {
		t.Error("prefix without tag separator should not match")
	}
}

func TestChat_JSONFormat(t *testing.T) {
	var got ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(chatResponse{Message: Message{Role: "assistant", Content: `[{"name":"Orders"}]`}})
	}))
	defer srv.Close()

	out, err := New(srv.URL).Chat(context.Background(), ChatRequest{
		Model:    "qwen2.5-coder",
		Messages: []Message{{Role: "user", Content: "describe"}},
		Format:   FormatJSON,
		Stream:   true,
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if out != `[{"name":"Orders"}]` {
		t.Errorf("content = %q", out)
	}
	if got.Format != FormatJSON {
		t.Errorf("format = %v, want %q", got.Format, FormatJSON)
	}
	if got.Stream {
		t.Error("chat must not stream")
	}
}

func TestChat_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Chat(context.Background(), ChatRequest{Model: "missing"})
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *StatusError", err)
	}
	if se.Code != http.StatusNotFound || !strings.Contains(se.Body, "model not found") {
		t.Errorf("status error = %+v", se)
	}
}

func TestChat_Unavailable(t *testing.T) {
	_, err := New(closedServerURL()).Chat(context.Background(), ChatRequest{Model: "m"})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestEmbed(t *testing.T) {
	var got embedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{0.1, 0.2, 0.3}}})
	}))
	defer srv.Close()

	vec, err := New(srv.URL).Embed(context.Background(), "nomic-embed-text", "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 || vec[2] != 0.3 {
		t.Errorf("vec = %v", vec)
	}
	if got.Model != "nomic-embed-text" || got.Input != "hello" {
		t.Errorf("request = %+v", got)
	}
}

func TestEmbed_Empty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"embeddings":[]}`))
	}))
	defer srv.Close()

	if _, err := New(srv.URL).Embed(context.Background(), "m", "x"); err == nil {
		t.Error("expected error for empty embeddings")
	}
}

func TestPullModel_Progress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["name"] != "qwen2.5-coder" {
			t.Errorf("pull name = %v", body["name"])
		}
		enc := json.NewEncoder(w)
		enc.Encode(PullProgress{Status: "downloading", Total: 10, Completed: 5})
		enc.Encode(PullProgress{Status: "success"})
	}))
	defer srv.Close()

	var n int
	if err := New(srv.URL).PullModel(context.Background(), "qwen2.5-coder", func(PullProgress) { n++ }); err != nil {
		t.Fatalf("PullModel: %v", err)
	}
	if n != 2 {
		t.Errorf("progress callbacks = %d, want 2", n)
	}
}

func TestEnsureModels_PullsMissing(t *testing.T) {
	var pulled []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			w.Write(tagsJSON("qwen2.5-coder:latest"))
		case "/api/pull":
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			pulled = append(pulled, body["name"].(string))
			json.NewEncoder(w).Encode(PullProgress{Status: "success"})
		case "/api/chat":
			json.NewEncoder(w).Encode(chatResponse{Message: Message{Content: "pong"}})
		}
	}))
	defer srv.Close()

	var out bytes.Buffer
	err := EnsureModels(context.Background(), New(srv.URL), []string{"qwen2.5-coder", "nomic-embed-text"}, &out)
	if err != nil {
		t.Fatalf("EnsureModels: %v", err)
	}
	if len(pulled) != 1 || pulled[0] != "nomic-embed-text" {
		t.Errorf("pulled = %v, want only the missing model", pulled)
	}
	if !strings.Contains(out.String(), "model qwen2.5-coder: ready") {
		t.Errorf("output = %q", out.String())
	}
}

func TestEnsureModels_Down(t *testing.T) {
	err := EnsureModels(context.Background(), New(closedServerURL()), []string{"m"}, io.Discard)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}
