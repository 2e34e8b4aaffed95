// Package agent turns a bundled customer turn into one model
// completion: persona prompt plus short per-chat memory in, sanitized
// assistant text out.
package agent

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/superzylo/vendo/internal/providers"
)

var (
	// ErrEmptyUserText means the turn had nothing left after sanitizing.
	ErrEmptyUserText = errors.New("agent: user text empty after sanitization")
	// ErrEmptyCompletion means the model returned no usable text.
	ErrEmptyCompletion = errors.New("agent: model returned empty completion")
)

// Gateway mediates between the orchestrator and the LLM provider. Call
// deadlines live provider-side, per attempt, so a timed-out attempt is
// still retried.
type Gateway struct {
	provider    providers.Provider
	history     *HistoryStore
	temperature float64
	topP        float64
	tracer      trace.Tracer
}

func NewGateway(provider providers.Provider) *Gateway {
	return &Gateway{
		provider:    provider,
		history:     NewHistoryStore(),
		temperature: 0.6,
		topP:        0.9,
		tracer:      otel.Tracer("vendo/agent"),
	}
}

// History exposes the memory store so /reset can clear it.
func (g *Gateway) History() *HistoryStore { return g.history }

// Complete runs one turn through the model. Memory is appended only on
// success so a failed call never poisons the next one.
func (g *Gateway) Complete(ctx context.Context, chatID, userText, customerName, interest string) (string, error) {
	cleaned := sanitize(userText)
	if cleaned == "" {
		return "", ErrEmptyUserText
	}

	history := g.history.Snapshot(chatID)
	messages := make([]providers.Message, 0, len(history)+2)
	messages = append(messages, providers.Message{
		Role:    "system",
		Content: BuildSystemPrompt(customerName, interest),
	})
	messages = append(messages, history...)
	messages = append(messages, providers.Message{Role: "user", Content: cleaned})

	callCtx, span := g.tracer.Start(ctx, "llm.complete", trace.WithAttributes(
		attribute.String("chat.id", chatID),
		attribute.String("llm.provider", g.provider.Name()),
		attribute.String("llm.model", g.provider.DefaultModel()),
		attribute.Int("llm.history_messages", len(history)),
	))
	defer span.End()

	start := time.Now()
	resp, err := g.provider.Chat(callCtx, providers.ChatRequest{
		Messages:    messages,
		Temperature: g.temperature,
		TopP:        g.topP,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		if errors.Is(err, providers.ErrEmptyCompletion) {
			return "", ErrEmptyCompletion
		}
		return "", err
	}

	answer := sanitizeCompletion(resp.Content)
	if answer == "" {
		span.SetStatus(codes.Error, "empty completion")
		return "", ErrEmptyCompletion
	}

	g.history.AppendExchange(chatID, cleaned, answer)

	attrs := []attribute.KeyValue{
		attribute.Int64("llm.duration_ms", time.Since(start).Milliseconds()),
	}
	if resp.Usage != nil {
		attrs = append(attrs, attribute.Int("llm.tokens.total", resp.Usage.TotalTokens))
	}
	span.SetAttributes(attrs...)

	slog.Debug("completion served",
		"chat", chatID,
		"provider", g.provider.Name(),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return answer, nil
}

// sanitize collapses all whitespace runs to single spaces. The model
// sees one compact line per customer fragment.
func sanitize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// sanitizeCompletion trims the model's answer but keeps its internal
// line structure, which the formatter needs for message splitting.
func sanitizeCompletion(s string) string {
	return strings.TrimSpace(s)
}
