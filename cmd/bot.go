package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/superzylo/vendo/internal/agent"
	"github.com/superzylo/vendo/internal/bus"
	"github.com/superzylo/vendo/internal/channels"
	"github.com/superzylo/vendo/internal/channels/whatsapp"
	"github.com/superzylo/vendo/internal/config"
	"github.com/superzylo/vendo/internal/delivery"
	"github.com/superzylo/vendo/internal/funnel"
	"github.com/superzylo/vendo/internal/orchestrator"
	"github.com/superzylo/vendo/internal/providers"
	"github.com/superzylo/vendo/internal/scheduler"
	"github.com/superzylo/vendo/internal/store"
	"github.com/superzylo/vendo/internal/telemetry"
)

func runBot() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Options{
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		ServiceName: "vendo",
		Version:     Version,
	})
	if err != nil {
		slog.Error("telemetry setup failed", "error", err)
		os.Exit(1)
	}
	defer shutdownTracing(context.Background())

	var db *store.DB
	if cfg.Store.Path != "" {
		db, err = store.Open(expandHome(cfg.Store.Path))
		if err != nil {
			slog.Error("interaction log unavailable", "error", err)
			os.Exit(1)
		}
		defer db.Close()
	}

	provider := providers.NewOpenAIProvider(
		"groq",
		cfg.Provider.Groq.APIKey,
		cfg.Provider.Groq.BaseURL,
		cfg.Provider.Groq.Model,
	)

	msgBus := bus.NewMessageBus()

	channel, err := whatsapp.New(cfg.Channel.WhatsApp.BridgeURL, msgBus)
	if err != nil {
		slog.Error("channel setup failed", "error", err)
		os.Exit(1)
	}

	sched := scheduler.New(cfg.Pipeline.Workers)
	sched.Start()
	defer sched.Stop()

	sessions := funnel.NewStore(cfg.Funnel.SessionTTL())
	sessions.StartSweeper(ctx, 5*time.Minute)

	sender := delivery.NewSender(channel, delivery.Options{
		TypingMin: time.Duration(cfg.Delivery.TypingMinMS) * time.Millisecond,
		TypingMax: time.Duration(cfg.Delivery.TypingMaxMS) * time.Millisecond,
		MinGap:    time.Duration(cfg.Delivery.MinGapMS) * time.Millisecond,
	})

	orch := orchestrator.New(orchestrator.Options{
		Router:    msgBus,
		Sched:     sched,
		Limiter:   channels.NewTurnLimiter(cfg.Pipeline.RateWindow()),
		Sessions:  sessions,
		Gateway:   agent.NewGateway(provider),
		Sender:    sender,
		Log:       db,
		Debounce:  cfg.Pipeline.Debounce(),
		DedupeTTL: cfg.Pipeline.DedupeTTL(),
	})

	if err := channel.Start(ctx); err != nil {
		slog.Error("channel start failed", "error", err)
		os.Exit(1)
	}
	defer channel.Stop(context.Background())

	slog.Info("vendo started",
		"version", Version,
		"bridge", cfg.Channel.WhatsApp.BridgeURL,
		"model", cfg.Provider.Groq.Model,
		"debounce", cfg.Pipeline.Debounce(),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return orch.Run(gctx)
	})
	g.Go(func() error {
		// TODO: swap limiter window and delivery pacing in place once
		// the orchestrator supports live reconfiguration.
		err := config.Watch(gctx, cfgPath, func(next *config.Config) {
			slog.Info("config change detected; restart to apply pipeline settings")
		})
		if err != nil && gctx.Err() == nil {
			slog.Warn("config watcher stopped", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		slog.Error("pipeline stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
