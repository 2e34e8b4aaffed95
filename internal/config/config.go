// Package config holds the runtime configuration: defaults, JSON5
// config file, env var overrides, in that order of precedence
// (lowest to highest).
package config

import "time"

// Config is the root configuration.
type Config struct {
	Provider  ProviderConfig  `json:"provider"`
	Channel   ChannelConfig   `json:"channel"`
	Pipeline  PipelineConfig  `json:"pipeline"`
	Funnel    FunnelConfig    `json:"funnel"`
	Delivery  DeliveryConfig  `json:"delivery"`
	Store     StoreConfig     `json:"store"`
	Telemetry TelemetryConfig `json:"telemetry"`
}

// ProviderConfig selects and configures the LLM backend.
type ProviderConfig struct {
	Groq GroqConfig `json:"groq"`
}

// GroqConfig configures the Groq chat completions client.
type GroqConfig struct {
	APIKey  string `json:"api_key"`
	Model   string `json:"model"`
	BaseURL string `json:"base_url,omitempty"`
}

// ChannelConfig configures the messaging transport.
type ChannelConfig struct {
	WhatsApp WhatsAppConfig `json:"whatsapp"`
}

// WhatsAppConfig points at the websocket bridge in front of the
// WhatsApp session.
type WhatsAppConfig struct {
	BridgeURL string `json:"bridge_url"`
}

// PipelineConfig tunes the inbound message pipeline.
type PipelineConfig struct {
	DebounceMS   int `json:"debounce_ms"`
	DedupeTTLSec int `json:"dedupe_ttl_sec"`
	RateWindowMS int `json:"rate_window_ms"`
	Workers      int `json:"workers"`
}

// FunnelConfig tunes the sales funnel session store.
type FunnelConfig struct {
	SessionTTLMin int `json:"session_ttl_min"`
}

// DeliveryConfig tunes the humanized send pacing.
type DeliveryConfig struct {
	TypingMinMS int `json:"typing_min_ms"`
	TypingMaxMS int `json:"typing_max_ms"`
	MinGapMS    int `json:"min_gap_ms"`
}

// StoreConfig configures the interaction log.
type StoreConfig struct {
	Path string `json:"path"` // "" disables logging to disk
}

// TelemetryConfig configures trace export.
type TelemetryConfig struct {
	Endpoint string `json:"endpoint"` // "" disables tracing
	Insecure bool   `json:"insecure"`
}

// Debounce returns the burst quiet window as a duration.
func (p PipelineConfig) Debounce() time.Duration {
	return time.Duration(p.DebounceMS) * time.Millisecond
}

// DedupeTTL returns the dedupe retention as a duration.
func (p PipelineConfig) DedupeTTL() time.Duration {
	return time.Duration(p.DedupeTTLSec) * time.Second
}

// RateWindow returns the per-chat reply window as a duration.
func (p PipelineConfig) RateWindow() time.Duration {
	return time.Duration(p.RateWindowMS) * time.Millisecond
}

// SessionTTL returns the funnel memory span as a duration.
func (f FunnelConfig) SessionTTL() time.Duration {
	return time.Duration(f.SessionTTLMin) * time.Minute
}
