package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Provider: ProviderConfig{
			Groq: GroqConfig{
				Model:   "llama-3.1-8b-instant",
				BaseURL: "https://api.groq.com/openai/v1",
			},
		},
		Channel: ChannelConfig{
			WhatsApp: WhatsAppConfig{
				BridgeURL: "ws://127.0.0.1:18890/ws",
			},
		},
		Pipeline: PipelineConfig{
			DebounceMS:   450,
			DedupeTTLSec: 60,
			RateWindowMS: 2000,
			Workers:      1,
		},
		Funnel: FunnelConfig{
			SessionTTLMin: 30,
		},
		Delivery: DeliveryConfig{
			TypingMinMS: 800,
			TypingMaxMS: 2500,
			MinGapMS:    600,
		},
		Store: StoreConfig{
			Path: "~/.vendo/interactions.db",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error; defaults plus env apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	envStr("VENDO_GROQ_API_KEY", &c.Provider.Groq.APIKey)
	envStr("VENDO_GROQ_MODEL", &c.Provider.Groq.Model)
	envStr("VENDO_GROQ_BASE_URL", &c.Provider.Groq.BaseURL)
	envStr("VENDO_BRIDGE_URL", &c.Channel.WhatsApp.BridgeURL)
	envStr("VENDO_DB_PATH", &c.Store.Path)
	envStr("VENDO_OTLP_ENDPOINT", &c.Telemetry.Endpoint)

	envInt("VENDO_DEBOUNCE_MS", &c.Pipeline.DebounceMS)
	envInt("VENDO_RATE_WINDOW_MS", &c.Pipeline.RateWindowMS)

	if v := os.Getenv("VENDO_OTLP_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "1" || v == "true"
	}
}

// Validate checks the invariants the pipeline cannot run without.
func (c *Config) Validate() error {
	if c.Provider.Groq.APIKey == "" {
		return fmt.Errorf("provider.groq.api_key is required (or set VENDO_GROQ_API_KEY)")
	}
	if c.Channel.WhatsApp.BridgeURL == "" {
		return fmt.Errorf("channel.whatsapp.bridge_url is required")
	}
	if c.Pipeline.DebounceMS < 0 || c.Pipeline.RateWindowMS < 0 {
		return fmt.Errorf("pipeline durations must not be negative")
	}
	if c.Delivery.TypingMaxMS < c.Delivery.TypingMinMS {
		return fmt.Errorf("delivery.typing_max_ms must be >= typing_min_ms")
	}
	return nil
}
