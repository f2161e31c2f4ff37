package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validConfig() Config {
	cfg := Config{HTTP: HTTPConfig{Port: 8080}}
	cfg.ApplyDefaults()
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	if cfg.Database.Driver != DriverSQLite {
		t.Errorf("expected sqlite driver by default, got %q", cfg.Database.Driver)
	}
	if cfg.Embedding.Provider != ProviderNone || cfg.Embedding.Dimensions != 384 {
		t.Errorf("unexpected embedding defaults: %+v", cfg.Embedding)
	}
	if cfg.Retrieval.DefaultWeights != (WeightsConfig{Semantic: 0.7, Fulltext: 0.3}) {
		t.Errorf("unexpected default weights: %+v", cfg.Retrieval.DefaultWeights)
	}
	if cfg.Retrieval.DefaultPlaceWeights != (WeightsConfig{Semantic: 0.4, Fulltext: 0.2, Distance: 0.4}) {
		t.Errorf("unexpected place weights: %+v", cfg.Retrieval.DefaultPlaceWeights)
	}
	if len(cfg.Usage.Sinks) != 1 || cfg.Usage.Sinks[0] != SinkLog {
		t.Errorf("unexpected sinks %v", cfg.Usage.Sinks)
	}
	if cfg.Embedding.Timeout().Seconds() != 5 {
		t.Errorf("unexpected timeout %v", cfg.Embedding.Timeout())
	}
}

func TestValidate_InvalidBudgetAction(t *testing.T) {
	cfg := validConfig()
	cfg.Embedding.Budget.Action = "invalid_action"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for invalid budget action")
	}

	expected := `embedding.budget.action must be "warn" or "reject", got "invalid_action"`
	if err.Error() != expected {
		t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), expected)
	}
}

func TestValidate_ValidBudgetActions(t *testing.T) {
	for _, action := range []string{"", "warn", "reject"} {
		t.Run("action="+action, func(t *testing.T) {
			cfg := validConfig()
			cfg.Embedding.Budget.Action = action
			if err := cfg.Validate(); err != nil {
				t.Fatalf("unexpected error for valid action %q: %v", action, err)
			}
		})
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = 70000

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_RedisRequiresAddrs(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Driver = DriverRedis

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "database.addrs") {
		t.Fatalf("expected addrs error, got %v", err)
	}

	cfg.Database.Addrs = []string{"localhost:6379"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_Table(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Database.Driver = "valkey" }},
		{"unknown provider", func(c *Config) { c.Embedding.Provider = "cohere" }},
		{"openai without model", func(c *Config) { c.Embedding.Provider = ProviderOpenAI }},
		{"negative weight", func(c *Config) { c.Retrieval.DefaultWeights.Fulltext = -1 }},
		{"unknown sink", func(c *Config) { c.Usage.Sinks = []string{"kafka"} }},
		{"redis sink on sqlite", func(c *Config) { c.Usage.Sinks = []string{SinkRedis} }},
		{"negative price", func(c *Config) { c.Pricing = map[string]float64{"m": -0.1} }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestParse_ExpandsEnv(t *testing.T) {
	t.Setenv("CTXDEX_TEST_PORT", "9090")
	t.Setenv("CTXDEX_TEST_MODEL", "nomic-embed-text")

	cfg, err := Parse([]byte(`
http:
  port: ${CTXDEX_TEST_PORT}
embedding:
  provider: ollama
  model: ${CTXDEX_TEST_MODEL}
  base_url: ${CTXDEX_TEST_UNSET:-http://localhost:11434}
pricing:
  nomic-embed-text: 0
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.HTTP.Port)
	}
	if cfg.Embedding.Model != "nomic-embed-text" {
		t.Errorf("unexpected model %q", cfg.Embedding.Model)
	}
	if cfg.Embedding.BaseURL != "http://localhost:11434" {
		t.Errorf("default not applied: %q", cfg.Embedding.BaseURL)
	}
	if _, ok := cfg.Pricing["nomic-embed-text"]; !ok {
		t.Error("pricing entry missing")
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	if _, err := Parse([]byte("http: [")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoad_ReadsEnvFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatal(err)
	}
	yml := "http:\n  port: ${CTXDEX_DOTENV_PORT}\n"
	if err := os.WriteFile(filepath.Join(dir, "config", "unittest.yaml"), []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("CTXDEX_DOTENV_PORT=7070\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)
	t.Cleanup(func() { _ = os.Unsetenv("CTXDEX_DOTENV_PORT") })

	cfg, err := Load("unittest")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port != 7070 {
		t.Errorf("expected port from .env, got %d", cfg.HTTP.Port)
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("ENV", "")
	if GetEnv() != "local" {
		t.Errorf("expected local, got %q", GetEnv())
	}
	t.Setenv("ENV", "prod")
	if GetEnv() != "prod" {
		t.Errorf("expected prod, got %q", GetEnv())
	}
}
