package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Pipeline.Debounce() != 450*time.Millisecond {
		t.Fatalf("Debounce = %v", cfg.Pipeline.Debounce())
	}
	if cfg.Pipeline.DedupeTTL() != time.Minute {
		t.Fatalf("DedupeTTL = %v", cfg.Pipeline.DedupeTTL())
	}
	if cfg.Funnel.SessionTTL() != 30*time.Minute {
		t.Fatalf("SessionTTL = %v", cfg.Funnel.SessionTTL())
	}
	if cfg.Provider.Groq.Model == "" {
		t.Fatal("default model missing")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json5"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Pipeline.DebounceMS != 450 {
		t.Fatalf("DebounceMS = %d", cfg.Pipeline.DebounceMS)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vendo.json5")
	body := `{
		// tighter pipeline for tests
		pipeline: { debounce_ms: 200, workers: 2 },
		provider: { groq: { model: "llama-3.3-70b-versatile" } },
	}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Pipeline.DebounceMS != 200 || cfg.Pipeline.Workers != 2 {
		t.Fatalf("pipeline = %+v", cfg.Pipeline)
	}
	if cfg.Provider.Groq.Model != "llama-3.3-70b-versatile" {
		t.Fatalf("model = %q", cfg.Provider.Groq.Model)
	}
	// Untouched sections keep their defaults.
	if cfg.Pipeline.RateWindowMS != 2000 {
		t.Fatalf("RateWindowMS = %d", cfg.Pipeline.RateWindowMS)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vendo.json5")
	body := `{ provider: { groq: { api_key: "from-file" } } }`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("VENDO_GROQ_API_KEY", "from-env")
	t.Setenv("VENDO_DEBOUNCE_MS", "123")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider.Groq.APIKey != "from-env" {
		t.Fatalf("APIKey = %q", cfg.Provider.Groq.APIKey)
	}
	if cfg.Pipeline.DebounceMS != 123 {
		t.Fatalf("DebounceMS = %d", cfg.Pipeline.DebounceMS)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Fatal("missing api key should fail validation")
	}

	cfg.Provider.Groq.APIKey = "sk-test"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	cfg.Delivery.TypingMaxMS = cfg.Delivery.TypingMinMS - 1
	if err := cfg.Validate(); err == nil {
		t.Fatal("inverted typing range should fail validation")
	}
}
