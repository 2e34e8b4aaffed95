package orchestrator

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/superzylo/vendo/internal/agent"
	"github.com/superzylo/vendo/internal/bus"
	"github.com/superzylo/vendo/internal/channels"
	"github.com/superzylo/vendo/internal/funnel"
	"github.com/superzylo/vendo/internal/providers"
	"github.com/superzylo/vendo/internal/scheduler"
	"github.com/superzylo/vendo/internal/store"
)

type fakeSender struct {
	mu        sync.Mutex
	delivered [][]string
	chats     []string
}

func (f *fakeSender) Deliver(_ context.Context, chatID string, messages []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered = append(f.delivered, messages)
	f.chats = append(f.chats, chatID)
	return nil
}

func (f *fakeSender) batches() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.delivered))
	copy(out, f.delivered)
	return out
}

func (f *fakeSender) waitBatches(t *testing.T, n int) [][]string {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if got := f.batches(); len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d deliveries, got %d", n, len(f.batches()))
	return nil
}

type scriptedProvider struct {
	mu    sync.Mutex
	reply string
	err   error
	calls int
}

func (p *scriptedProvider) Chat(_ context.Context, _ providers.ChatRequest) (*providers.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &providers.ChatResponse{Content: p.reply, FinishReason: "stop"}, nil
}

func (p *scriptedProvider) DefaultModel() string { return "scripted" }
func (p *scriptedProvider) Name() string         { return "scripted" }

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type testRig struct {
	orch     *Orchestrator
	sender   *fakeSender
	provider *scriptedProvider
	router   *bus.MessageBus
	sessions *funnel.Store
	gateway  *agent.Gateway
}

func newTestRig(t *testing.T, window time.Duration) *testRig {
	t.Helper()

	provider := &scriptedProvider{reply: "Claro, te ayudo 😊"}
	sender := &fakeSender{}
	router := bus.NewMessageBus()
	sessions := funnel.NewStore(time.Minute)
	gateway := agent.NewGateway(provider)

	sched := scheduler.New(1)
	sched.Start()
	t.Cleanup(sched.Stop)

	orch := New(Options{
		Router:    router,
		Sched:     sched,
		Limiter:   channels.NewTurnLimiter(window),
		Sessions:  sessions,
		Gateway:   gateway,
		Sender:    sender,
		Debounce:  20 * time.Millisecond,
		DedupeTTL: time.Minute,
	})
	return &testRig{
		orch:     orch,
		sender:   sender,
		provider: provider,
		router:   router,
		sessions: sessions,
		gateway:  gateway,
	}
}

func bundle(chat string, texts ...string) bus.Bundle {
	b := bus.Bundle{ChatID: chat, SenderID: chat}
	for _, txt := range texts {
		b.Fragments = append(b.Fragments, bus.Fragment{Text: txt, ReceivedAt: time.Now()})
	}
	return b
}

func TestProcessTurnAnswersWithModel(t *testing.T) {
	rig := newTestRig(t, 10*time.Millisecond)
	rig.provider.reply = "Hola Ana 😊\n¶¶\nChatGPT cuesta S/10 con entrega inmediata."

	rig.orch.processTurn(context.Background(), bundle("chat-1", "quiero chatgpt"))

	batches := rig.sender.batches()
	if len(batches) != 1 {
		t.Fatalf("deliveries = %d", len(batches))
	}
	msgs := batches[0]
	if len(msgs) != 2 {
		t.Fatalf("messages = %q", msgs)
	}
	if !strings.Contains(msgs[1], "S/10") {
		t.Fatalf("price message mangled: %q", msgs[1])
	}
	if rig.provider.callCount() != 1 {
		t.Fatalf("provider calls = %d", rig.provider.callCount())
	}
}

func TestProcessTurnSilentBeforeIntent(t *testing.T) {
	rig := newTestRig(t, 10*time.Millisecond)

	rig.orch.processTurn(context.Background(), bundle("chat-1", "hola, qué tal"))

	if got := rig.sender.batches(); len(got) != 0 {
		t.Fatalf("idle chat got a reply: %q", got)
	}
	if rig.provider.callCount() != 0 {
		t.Fatal("model consulted for a silent turn")
	}
}

func TestPingCommand(t *testing.T) {
	rig := newTestRig(t, 10*time.Millisecond)

	rig.orch.processTurn(context.Background(), bundle("chat-1", "/ping"))

	batches := rig.sender.batches()
	if len(batches) != 1 || len(batches[0]) != 1 || !strings.Contains(batches[0][0], "Pong") {
		t.Fatalf("deliveries = %q", batches)
	}
	if rig.provider.callCount() != 0 {
		t.Fatal("commands must not reach the model")
	}
}

func TestUnknownCommandGetsHelp(t *testing.T) {
	rig := newTestRig(t, 10*time.Millisecond)

	rig.orch.processTurn(context.Background(), bundle("chat-1", "/ayuda"))

	batches := rig.sender.batches()
	if len(batches) != 1 || !strings.Contains(batches[0][0], "/reset") {
		t.Fatalf("deliveries = %q", batches)
	}
}

func TestResetCommandClearsState(t *testing.T) {
	rig := newTestRig(t, 10*time.Millisecond)
	ctx := context.Background()

	rig.orch.processTurn(ctx, bundle("chat-1", "me llamo Ana y quiero chatgpt"))
	if sess := rig.sessions.GetOrCreate("chat-1"); sess.Stage == funnel.StageStart {
		t.Fatal("setup turn did not advance the funnel")
	}
	if rig.gateway.History().Len() == 0 {
		t.Fatal("setup turn did not record history")
	}

	rig.orch.processTurn(ctx, bundle("chat-1", "/reset"))

	if sess := rig.sessions.GetOrCreate("chat-1"); sess.Stage != funnel.StageStart || sess.Name != "" {
		t.Fatalf("session survived reset: %+v", sess)
	}
	if rig.gateway.History().Len() != 0 {
		t.Fatal("model memory survived reset")
	}

	batches := rig.sender.batches()
	last := batches[len(batches)-1]
	if !strings.Contains(last[0], "reiniciada") {
		t.Fatalf("reset reply = %q", last)
	}
}

func TestCommandMixedWithTextStillAnswers(t *testing.T) {
	rig := newTestRig(t, time.Hour)

	rig.orch.processTurn(context.Background(), bundle("chat-1", "/ping", "quiero canva"))

	// Command reply consumed the window, so the remaining text is
	// rescheduled rather than answered inside the same window.
	batches := rig.sender.batches()
	if len(batches) == 0 || !strings.Contains(batches[0][0], "Pong") {
		t.Fatalf("deliveries = %q", batches)
	}
}

func TestRateLimitedCommandBundleAnswersOnce(t *testing.T) {
	rig := newTestRig(t, 60*time.Millisecond)

	rig.orch.processTurn(context.Background(), bundle("chat-1", "/ping", "quiero canva"))

	// Pong, throttle notice, then the rescheduled model answer. The
	// retry must carry only the leftover text, never the command.
	batches := rig.sender.waitBatches(t, 3)
	time.Sleep(150 * time.Millisecond)
	batches = rig.sender.batches()

	pongs := 0
	for _, b := range batches {
		for _, m := range b {
			if strings.Contains(m, "Pong") {
				pongs++
			}
		}
	}
	if pongs != 1 {
		t.Fatalf("pong replies = %d, want exactly 1: %q", pongs, batches)
	}
	if got := rig.provider.callCount(); got != 1 {
		t.Fatalf("provider calls = %d, want 1", got)
	}
}

func TestResetClearsDedupResidue(t *testing.T) {
	rig := newTestRig(t, 10*time.Millisecond)

	if !rig.orch.dedupe.Accept("ev-1", "chat-1") {
		t.Fatal("setup event rejected")
	}
	rig.orch.processTurn(context.Background(), bundle("chat-1", "/reset"))

	if !rig.orch.dedupe.Accept("ev-1", "chat-1") {
		t.Fatal("dedup residue survived /reset")
	}
}

func TestRateLimitWarnsOnceAndReschedules(t *testing.T) {
	rig := newTestRig(t, 80*time.Millisecond)
	ctx := context.Background()

	rig.orch.processTurn(ctx, bundle("chat-1", "quiero chatgpt"))
	rig.orch.processTurn(ctx, bundle("chat-1", "cuánto cuesta?"))

	batches := rig.sender.batches()
	if len(batches) != 2 {
		t.Fatalf("deliveries = %q", batches)
	}
	if batches[1][0] != limitWarnText {
		t.Fatalf("second delivery = %q, want rate warn", batches[1])
	}

	// The limited turn is answered once the window opens.
	batches = rig.sender.waitBatches(t, 3)
	if got := rig.provider.callCount(); got != 2 {
		t.Fatalf("provider calls = %d, want 2", got)
	}

	// Only one warn for the whole limited span.
	warns := 0
	for _, b := range batches {
		if b[0] == limitWarnText {
			warns++
		}
	}
	if warns != 1 {
		t.Fatalf("warns = %d", warns)
	}
}

func TestModelAuthFailureFallsBackToScript(t *testing.T) {
	rig := newTestRig(t, 5*time.Millisecond)
	rig.provider.err = &providers.HTTPError{Status: 401, Body: "bad key"}
	ctx := context.Background()

	rig.orch.processTurn(ctx, bundle("chat-1", "quiero chatgpt"))

	batches := rig.sender.batches()
	if len(batches) != 1 || len(batches[0]) == 0 {
		t.Fatalf("deliveries = %q", batches)
	}
	if !strings.Contains(strings.Join(batches[0], " "), "ChatGPT") {
		t.Fatalf("fallback should use the scripted funnel reply: %q", batches[0])
	}

	// The fallback window keeps later turns off the model entirely.
	time.Sleep(10 * time.Millisecond)
	rig.orch.processTurn(ctx, bundle("chat-1", "cuánto cuesta?"))
	if got := rig.provider.callCount(); got != 1 {
		t.Fatalf("provider calls = %d, want 1 (fallback active)", got)
	}
	if len(rig.sender.batches()) != 2 {
		t.Fatal("second turn got no scripted reply")
	}
}

func TestCatalogNudgeWithCooldown(t *testing.T) {
	rig := newTestRig(t, 5*time.Millisecond)
	ctx := context.Background()

	rig.orch.processTurn(ctx, bundle("chat-1", "muéstrame los servicios"))

	batches := rig.sender.batches()
	if len(batches) != 1 {
		t.Fatalf("deliveries = %d, want the catalog only", len(batches))
	}
	if !strings.Contains(batches[0][0], "*Nuestros servicios*") {
		t.Fatalf("catalog section = %q", batches[0][0])
	}
	if batches[0][1] != catalogAsk {
		t.Fatalf("catalog ask = %q", batches[0][1])
	}

	// Asking again inside the cooldown does not resend.
	time.Sleep(10 * time.Millisecond)
	rig.orch.processTurn(ctx, bundle("chat-1", "qué servicios ofrecen"))
	for _, b := range rig.sender.batches()[1:] {
		if strings.Contains(b[0], "*Nuestros servicios*") {
			t.Fatal("catalog resent inside cooldown")
		}
	}
}

func TestInteractionLogging(t *testing.T) {
	rig := newTestRig(t, 5*time.Millisecond)
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	rig.orch.log = db

	rig.orch.processTurn(context.Background(), bundle("chat-1", "quiero chatgpt"))

	rows, err := db.RecentInteractions(context.Background(), "chat-1", 10)
	if err != nil {
		t.Fatalf("RecentInteractions: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d", len(rows))
	}
	if rows[0].Intent != funnel.IntentPurchase || rows[0].Product != "ChatGPT" {
		t.Fatalf("row = %+v", rows[0])
	}
}

func TestRunDeduplicatesAndBundles(t *testing.T) {
	rig := newTestRig(t, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go rig.orch.Run(ctx)

	ev := bus.InboundEvent{
		EventID:   "ev-1",
		ChatID:    "chat-1",
		SenderID:  "chat-1",
		Text:      "quiero chatgpt",
		Timestamp: time.Now(),
	}
	rig.router.PublishInbound(ev)
	rig.router.PublishInbound(ev) // transport redelivery
	rig.router.PublishInbound(bus.InboundEvent{
		EventID:   "ev-2",
		ChatID:    "chat-1",
		SenderID:  "chat-1",
		Text:      "el plan mensual porfa",
		Timestamp: time.Now(),
	})

	batches := rig.sender.waitBatches(t, 1)
	if len(batches) != 1 {
		t.Fatalf("deliveries = %d, want one bundled turn", len(batches))
	}
	if rig.provider.callCount() != 1 {
		t.Fatalf("provider calls = %d", rig.provider.callCount())
	}

	hist := rig.gateway.History().Snapshot("chat-1")
	if len(hist) == 0 || !strings.Contains(hist[0].Content, "• (1)") || !strings.Contains(hist[0].Content, "• (2)") {
		t.Fatalf("bundle not numbered for the model: %q", hist)
	}
}
