// Package orchestrator runs the conversation pipeline: inbound events
// are deduplicated, debounced into turn bundles, serialized through
// the scheduler, rate limited per chat, classified by the sales
// funnel, answered by the model (or the scripted fallback) and
// delivered at a human pace.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/superzylo/vendo/internal/agent"
	"github.com/superzylo/vendo/internal/bus"
	"github.com/superzylo/vendo/internal/catalog"
	"github.com/superzylo/vendo/internal/channels"
	"github.com/superzylo/vendo/internal/format"
	"github.com/superzylo/vendo/internal/funnel"
	"github.com/superzylo/vendo/internal/providers"
	"github.com/superzylo/vendo/internal/scheduler"
	"github.com/superzylo/vendo/internal/store"
)

const (
	// catalogCooldown spaces the services overview per chat.
	catalogCooldown = 5 * time.Minute

	// fallback windows after provider auth/quota failures. While one
	// is active the scripted funnel answers alone.
	quotaFallback = 2 * time.Minute
	authFallback  = 10 * time.Minute
)

const (
	limitWarnText = "Voy con calma para atenderte bien, dame unos segundos ⏳"
	apologyText   = "Hubo un detalle técnico. Intentemos de nuevo en un momento ⚙️"
	catalogAsk    = "Te envío las opciones 😊 ¿Cuál deseas?"
)

// Deliverer sends a batch of messages to one chat.
type Deliverer interface {
	Deliver(ctx context.Context, chatID string, messages []string) error
}

// Options wire the orchestrator's collaborators.
type Options struct {
	Router   *bus.MessageBus
	Sched    *scheduler.Scheduler
	Limiter  *channels.TurnLimiter
	Sessions *funnel.Store
	Gateway  *agent.Gateway
	Sender   Deliverer
	Log      *store.DB // optional interaction log

	Debounce  time.Duration
	DedupeTTL time.Duration
}

// Orchestrator owns the inbound pipeline.
type Orchestrator struct {
	router   *bus.MessageBus
	dedupe   *bus.DedupeCache
	debounce *bus.InboundDebouncer
	sched    *scheduler.Scheduler
	limiter  *channels.TurnLimiter
	sessions *funnel.Store
	gateway  *agent.Gateway
	sender   Deliverer
	log      *store.DB
	tracer   trace.Tracer

	fallbackUntil atomic.Int64 // unix nanos; 0 = model active

	mu          sync.Mutex
	catalogSent map[string]time.Time
}

func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		router:      opts.Router,
		sched:       opts.Sched,
		limiter:     opts.Limiter,
		sessions:    opts.Sessions,
		gateway:     opts.Gateway,
		sender:      opts.Sender,
		log:         opts.Log,
		tracer:      otel.Tracer("vendo/orchestrator"),
		catalogSent: make(map[string]time.Time),
	}
	o.dedupe = bus.NewDedupeCache(opts.DedupeTTL, 0)
	o.debounce = bus.NewInboundDebouncer(opts.Debounce, o.enqueueTurn)
	return o
}

// Run consumes inbound events until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer o.debounce.Stop()

	for {
		ev, ok := o.router.ConsumeInbound(ctx)
		if !ok {
			return ctx.Err()
		}
		if !o.dedupe.Accept(ev.EventID, ev.ChatID) {
			slog.Debug("duplicate event dropped", "event", ev.EventID, "chat", ev.ChatID)
			continue
		}
		o.debounce.Push(ev)
	}
}

// enqueueTurn moves a flushed bundle onto the serialized queue.
func (o *Orchestrator) enqueueTurn(b bus.Bundle) {
	name := "turn:" + b.ChatID
	if !o.sched.Add(name, func(ctx context.Context) error {
		o.processTurn(ctx, b)
		return nil
	}) {
		slog.Warn("turn dropped, queue unavailable", "chat", b.ChatID)
	}
}

// processTurn handles one bundled customer turn end to end. It never
// returns an error upward: every failure path ends with either the
// scripted replies or the apology, and the pipeline moves on.
func (o *Orchestrator) processTurn(ctx context.Context, b bus.Bundle) {
	runID := uuid.NewString()
	ctx, span := o.tracer.Start(ctx, "turn", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.String("chat.id", b.ChatID),
		attribute.Int("turn.fragments", len(b.Fragments)),
	))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("turn panicked", "chat", b.ChatID, "run", runID, "panic", r)
			span.SetStatus(codes.Error, "panic")
			o.deliver(ctx, b.ChatID, []string{apologyText})
		}
	}()

	texts := cleanTexts(b.Texts())
	if len(texts) == 0 {
		return
	}

	cmd := o.handleCommands(b.ChatID, texts)
	if len(cmd.replies) > 0 {
		// Command replies bypass the window but still consume it, so a
		// /ping volley cannot double the outbound rate.
		o.limiter.MarkTriggered(b.ChatID)
		o.deliver(ctx, b.ChatID, cmd.replies)
	}
	if len(cmd.remaining) == 0 {
		return
	}
	texts = cmd.remaining

	if ok, wait := o.limiter.Acquire(b.ChatID); !ok {
		if o.limiter.MaybeWarn(b.ChatID) {
			o.deliver(ctx, b.ChatID, []string{limitWarnText})
		}
		o.reschedule(b, texts, wait)
		span.SetAttributes(attribute.Bool("turn.rescheduled", true))
		return
	}

	joined := strings.Join(texts, "\n")
	o.maybeSendCatalog(ctx, b.ChatID, joined)

	sess := o.sessions.GetOrCreate(b.ChatID)
	outcome := funnel.Apply(sess, joined)
	o.sessions.Touch(b.ChatID)
	o.recordInteraction(ctx, b.ChatID, sess, outcome)

	span.SetAttributes(
		attribute.String("funnel.intent", outcome.Intent),
		attribute.String("funnel.stage", sess.Stage.String()),
	)

	if outcome.Silent {
		return
	}

	replies := o.buildReplies(ctx, b.ChatID, sess, outcome, texts)
	if len(replies) == 0 {
		replies = []string{apologyText}
	}
	o.deliver(ctx, b.ChatID, replies)
}

// buildReplies prefers the model unless a fallback window is active;
// the scripted funnel lines cover every model failure.
func (o *Orchestrator) buildReplies(ctx context.Context, chatID string, sess *funnel.Session, outcome funnel.Outcome, texts []string) []string {
	if o.inFallback() {
		return outcome.Replies
	}

	answer, err := o.gateway.Complete(ctx, chatID, bundlePrompt(texts), sess.Name, sess.Interest)
	if err != nil {
		o.noteModelFailure(chatID, err)
		return outcome.Replies
	}
	return formatReply(answer)
}

// bundlePrompt numbers the customer's burst fragments so the model
// sees them as one turn.
func bundlePrompt(texts []string) string {
	var sb strings.Builder
	sb.WriteString("Mensaje(s) del cliente:\n")
	for i, t := range texts {
		fmt.Fprintf(&sb, "• (%d) %s\n", i+1, t)
	}
	return sb.String()
}

// formatReply shapes raw model output into sendable messages. Price
// and closing lines pass through untouched; everything else gets the
// list cap and the word budgets.
func formatReply(raw string) []string {
	parts := format.Split(raw)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if !format.HasSalesContext(p) {
			if strings.Contains(p, "\n") {
				p = format.Verticalize(p, 0)
			}
			p = format.LimitWords(p, 0)
			p = format.EnforceWordLimit(p, format.DefaultWordLimit)
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// maybeSendCatalog sends the services overview when the customer asks
// for options without naming a service, at most once per cooldown.
func (o *Orchestrator) maybeSendCatalog(ctx context.Context, chatID, text string) {
	if !catalog.WantsCatalog(text) {
		return
	}

	o.mu.Lock()
	last, seen := o.catalogSent[chatID]
	if seen && time.Since(last) < catalogCooldown {
		o.mu.Unlock()
		return
	}
	o.catalogSent[chatID] = time.Now()
	o.mu.Unlock()

	section, err := format.Section("Nuestros servicios", catalog.Labels())
	if err != nil {
		slog.Error("catalog section build failed", "error", err)
		return
	}
	o.deliver(ctx, chatID, []string{section, catalogAsk})
}

// reschedule re-queues a rate-limited turn once the window opens. The
// retry carries only the fragments still unanswered: command replies
// already went out, so replaying the original bundle would run them
// again on every window.
func (o *Orchestrator) reschedule(b bus.Bundle, texts []string, wait time.Duration) {
	if wait <= 0 {
		wait = 50 * time.Millisecond
	}
	retry := bus.Bundle{ChatID: b.ChatID, SenderID: b.SenderID}
	now := time.Now()
	for _, t := range texts {
		retry.Fragments = append(retry.Fragments, bus.Fragment{Text: t, ReceivedAt: now})
	}
	time.AfterFunc(wait, func() {
		if !o.sched.Add("turn-retry:"+retry.ChatID, func(ctx context.Context) error {
			o.processTurn(ctx, retry)
			return nil
		}) {
			slog.Warn("rescheduled turn dropped", "chat", retry.ChatID)
		}
	})
	slog.Debug("turn rescheduled", "chat", b.ChatID, "wait", wait.Round(time.Millisecond))
}

func (o *Orchestrator) inFallback() bool {
	until := o.fallbackUntil.Load()
	return until != 0 && time.Now().UnixNano() < until
}

// noteModelFailure opens a fallback window on auth and quota errors.
// Transient failures already exhausted their retries upstream and just
// fall back for this turn.
func (o *Orchestrator) noteModelFailure(chatID string, err error) {
	var httpErr *providers.HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.Status {
		case 401, 403:
			o.fallbackUntil.Store(time.Now().Add(authFallback).UnixNano())
			slog.Error("model auth failed, scripted replies only", "status", httpErr.Status, "until", authFallback)
			return
		case 429:
			window := quotaFallback
			if httpErr.RetryAfter > 0 {
				window = httpErr.RetryAfter
			}
			o.fallbackUntil.Store(time.Now().Add(window).UnixNano())
			slog.Warn("model quota exhausted, scripted replies only", "window", window)
			return
		}
	}
	if errors.Is(err, agent.ErrEmptyUserText) || errors.Is(err, agent.ErrEmptyCompletion) {
		slog.Warn("model produced no usable turn", "chat", chatID, "error", err)
		return
	}
	slog.Error("model call failed", "chat", chatID, "error", err)
}

func (o *Orchestrator) recordInteraction(ctx context.Context, chatID string, sess *funnel.Session, outcome funnel.Outcome) {
	if o.log == nil {
		return
	}
	it := store.Interaction{
		ChatID:  chatID,
		Intent:  outcome.Intent,
		Product: sess.Interest,
		Stage:   sess.Stage.String(),
	}
	if err := o.log.LogInteraction(ctx, it); err != nil {
		slog.Warn("interaction log write failed", "chat", chatID, "error", err)
	}
}

func (o *Orchestrator) deliver(ctx context.Context, chatID string, messages []string) {
	if err := o.sender.Deliver(ctx, chatID, messages); err != nil {
		slog.Error("delivery failed", "chat", chatID, "error", err)
	}
}

func cleanTexts(texts []string) []string {
	out := make([]string, 0, len(texts))
	for _, t := range texts {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
