package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// mapBackend is an in-memory ConfigBackend.
type mapBackend struct {
	strs map[string]string
	ints map[string]int
}

func newMapBackend() *mapBackend {
	return &mapBackend{strs: map[string]string{}, ints: map[string]int{}}
}

func (m *mapBackend) GetString(key string) (string, bool, error) {
	v, ok := m.strs[key]
	return v, ok, nil
}

func (m *mapBackend) GetInt(key string) (int, bool, error) {
	v, ok := m.ints[key]
	return v, ok, nil
}

func (m *mapBackend) SetString(key, val string) error { m.strs[key] = val; return nil }
func (m *mapBackend) SetInt(key string, val int) error { m.ints[key] = val; return nil }
func (m *mapBackend) Delete(key string) error {
	delete(m.strs, key)
	delete(m.ints, key)
	return nil
}

// clearEnv unsets every SEMAGENT_* variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestDefaults verifies all default values apply when nothing is configured.
func TestDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("XDG_DATA_HOME", "/tmp/xdg-data")

	cfg, err := loadWith(newMapBackend(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want 4100", cfg.Server.Port)
	}
	if cfg.LLM.Provider != "ollama" {
		t.Errorf("LLM.Provider = %q, want ollama", cfg.LLM.Provider)
	}
	if cfg.LLM.BaseURL != "http://localhost:11434" {
		t.Errorf("LLM.BaseURL = %q", cfg.LLM.BaseURL)
	}
	if cfg.LLM.Model != "qwen2.5-coder" || cfg.LLM.EmbedModel != "nomic-embed-text" {
		t.Errorf("LLM models = %q, %q", cfg.LLM.Model, cfg.LLM.EmbedModel)
	}
	if !cfg.Agent.EnableCache || cfg.Agent.DataframeSerializer != "csv" {
		t.Errorf("Agent = %+v", cfg.Agent)
	}
	if cfg.Storage.DataDir != "/tmp/xdg-data/semagent" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Retrieval.TopK != 3 || cfg.Log.Level != "info" {
		t.Errorf("Retrieval.TopK = %d, Log.Level = %q", cfg.Retrieval.TopK, cfg.Log.Level)
	}
}

// TestFileBackend verifies values are read from the JSON config file.
func TestFileBackend(t *testing.T) {
	clearEnv(t)
	path := writeTempFile(t, "config.json", `{
  "server.port": 5000,
  "llm.model": "llama3.1",
  "agent.enable_cache": false,
  "agent.dataframe_serializer": "yaml",
  "retrieval.top_k": 5
}`)

	cfg, err := loadWith(newFileBackend(path), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.LLM.Model != "llama3.1" {
		t.Errorf("LLM.Model = %q", cfg.LLM.Model)
	}
	if cfg.Agent.EnableCache {
		t.Error("Agent.EnableCache = true, want false")
	}
	if cfg.Agent.DataframeSerializer != "yaml" || cfg.Retrieval.TopK != 5 {
		t.Errorf("Agent = %+v, TopK = %d", cfg.Agent, cfg.Retrieval.TopK)
	}
}

// TestEnvOverride verifies environment variables win over file values.
func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	b := newMapBackend()
	b.ints["server.port"] = 5000
	b.strs["llm.model"] = "file-model"

	t.Setenv("SEMAGENT_SERVER_PORT", "6000")
	t.Setenv("SEMAGENT_LLM_MODEL", "env-model")
	t.Setenv("SEMAGENT_AGENT_ENABLE_CACHE", "false")
	t.Setenv("SEMAGENT_API_TOKEN", "s3cret")

	cfg, err := loadWith(b, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 6000 || cfg.LLM.Model != "env-model" {
		t.Errorf("Server.Port = %d, LLM.Model = %q", cfg.Server.Port, cfg.LLM.Model)
	}
	if cfg.Agent.EnableCache {
		t.Error("Agent.EnableCache = true, want false")
	}
	if cfg.Server.APIToken != "s3cret" {
		t.Errorf("Server.APIToken = %q", cfg.Server.APIToken)
	}
}

// TestBadEnvValueKeepsDefault verifies unparsable env values are ignored.
func TestBadEnvValueKeepsDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("SEMAGENT_SERVER_PORT", "not-a-port")

	cfg, err := loadWith(newMapBackend(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want 4100", cfg.Server.Port)
	}
}

// TestDotEnvFile verifies .env values load but do not override the environment.
func TestDotEnvFile(t *testing.T) {
	clearEnv(t)
	path := writeTempFile(t, ".env", "SEMAGENT_LLM_PROVIDER=openai\nSEMAGENT_LLM_API_KEY=from-dotenv\nSEMAGENT_LLM_MODEL=gpt-4o-mini\n")
	t.Setenv("SEMAGENT_LLM_MODEL", "from-env")
	// godotenv only fills variables that are unset, and t.Setenv("") leaves them set.
	os.Unsetenv("SEMAGENT_LLM_PROVIDER")
	os.Unsetenv("SEMAGENT_LLM_API_KEY")
	t.Cleanup(func() {
		os.Unsetenv("SEMAGENT_LLM_PROVIDER")
		os.Unsetenv("SEMAGENT_LLM_API_KEY")
	})

	cfg, err := loadWith(newMapBackend(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.Provider != "openai" || cfg.LLM.APIKey != "from-dotenv" {
		t.Errorf("LLM = %+v", cfg.LLM)
	}
	if cfg.LLM.Model != "from-env" {
		t.Errorf("LLM.Model = %q, want from-env", cfg.LLM.Model)
	}
}

// TestMissingAPIKey verifies a clear error when openai has no key.
func TestMissingAPIKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("SEMAGENT_LLM_PROVIDER", "openai")

	_, err := loadWith(newMapBackend(), "")
	if err == nil {
		t.Fatal("expected error for missing API key, got nil")
	}
	if !strings.Contains(err.Error(), "missing required config") {
		t.Errorf("error = %q", err)
	}
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	tests := map[string]string{
		"SEMAGENT_LLM_PROVIDER":               "anthropic",
		"SEMAGENT_AGENT_DATAFRAME_SERIALIZER": "parquet",
		"SEMAGENT_RETRIEVAL_TOP_K":            "0",
	}
	for env, val := range tests {
		t.Run(env, func(t *testing.T) {
			t.Setenv(env, val)
			if _, err := loadWith(newMapBackend(), ""); err == nil {
				t.Errorf("%s=%s: expected error", env, val)
			}
		})
	}
}

func TestValidate_RejectsFakeProvider(t *testing.T) {
	clearEnv(t)
	t.Setenv("SEMAGENT_LLM_PROVIDER", "fake")
	_, err := loadWith(newMapBackend(), "")
	if err == nil || !strings.Contains(err.Error(), "want ollama or openai") {
		t.Fatalf("err = %v, want provider hint", err)
	}
}

func TestSlogLevel(t *testing.T) {
	for level, want := range map[string]string{"debug": "DEBUG", "WARN": "WARN", "error": "ERROR", "": "INFO", "chatty": "INFO"} {
		cfg := Config{Log: LogConfig{Level: level}}
		if got := cfg.SlogLevel().String(); got != want {
			t.Errorf("SlogLevel(%q) = %s, want %s", level, got, want)
		}
	}
}

func TestShowAllHidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.LLM.APIKey = "sk-hidden"
	cfg.Server.APIToken = "tok-hidden"

	for _, ki := range ShowAll(cfg) {
		if ki.Key == "llm.api_key" || ki.Key == "server.api_token" {
			t.Errorf("secret key %s listed", ki.Key)
		}
		if strings.Contains(ki.Value, "hidden") {
			t.Errorf("secret value leaked via %s", ki.Key)
		}
	}
	if len(ShowAll(cfg)) != len(ValidKeys()) {
		t.Errorf("ShowAll lists %d keys, ValidKeys %d", len(ShowAll(cfg)), len(ValidKeys()))
	}
}

func TestSetKey(t *testing.T) {
	b := newMapBackend()

	if err := setKeyWith(b, "server.port", "4200"); err != nil {
		t.Fatalf("set int: %v", err)
	}
	if b.ints["server.port"] != 4200 {
		t.Errorf("server.port = %d", b.ints["server.port"])
	}
	if err := setKeyWith(b, "agent.enable_cache", "no"); err == nil {
		t.Error("expected error for invalid bool")
	}
	if err := setKeyWith(b, "agent.enable_cache", "false"); err != nil || b.strs["agent.enable_cache"] != "false" {
		t.Errorf("set bool: %v, stored %q", err, b.strs["agent.enable_cache"])
	}
	if err := setKeyWith(b, "server.port", "abc"); err == nil {
		t.Error("expected error for invalid integer")
	}
	if err := setKeyWith(b, "llm.api_key", "sk"); err == nil || !strings.Contains(err.Error(), "SEMAGENT_LLM_API_KEY") {
		t.Errorf("secret key error = %v", err)
	}
	if err := setKeyWith(b, "no.such.key", "x"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestFileBackendRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "semagent", "config.json")
	b := newFileBackend(path)
	if err := setKeyWith(b, "llm.model", "mistral"); err != nil {
		t.Fatalf("SetString: %v", err)
	}
	if err := setKeyWith(b, "retrieval.top_k", "7"); err != nil {
		t.Fatalf("SetInt: %v", err)
	}

	reloaded := newFileBackend(path)
	if v, ok, _ := reloaded.GetString("llm.model"); !ok || v != "mistral" {
		t.Errorf("llm.model = %q, %v", v, ok)
	}
	if v, ok, err := reloaded.GetInt("retrieval.top_k"); !ok || err != nil || v != 7 {
		t.Errorf("retrieval.top_k = %d, %v, %v", v, ok, err)
	}
	if err := reloaded.Delete("llm.model"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := newFileBackend(path).GetString("llm.model"); ok {
		t.Error("llm.model still present after Delete")
	}
}
