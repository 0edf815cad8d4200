package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"kotori/internal/api"
	"kotori/internal/config"
	"kotori/internal/convstore"
	"kotori/internal/flashcard"
	"kotori/internal/graph"
	"kotori/internal/llm"
	_ "kotori/internal/llm/gemini"
	_ "kotori/internal/llm/ollamalm"
	_ "kotori/internal/llm/openailm"
	"kotori/internal/monitor"
	"kotori/internal/pushgw"
	"kotori/internal/registry"
	"kotori/internal/tools"

	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, sysCfg, err := config.Load(); err == nil {
		monitor.Setup(sysCfg.LogLevel)
	} else {
		monitor.Setup("info")
	}

	reloadCh := config.WatchConfig(ctx, "config.json", "system.json")

	for {
		err := runRuntime(ctx, reloadCh)
		if err != nil {
			slog.Error("runtime crashed or failed to load config", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-reloadCh:
				slog.Info("configuration change detected while waiting, retrying immediately")
			case <-time.After(5 * time.Second):
			}
			continue
		}

		select {
		case <-ctx.Done():
			return
		default:
			slog.Info("==== configuration reloaded ====")
		}
	}
}

// runRuntime builds and serves a single generation of the tutor runtime; it
// returns nil on a clean shutdown or config-reload request, and an error on
// any setup failure (mirroring the teacher's single-lifecycle runAgent).
func runRuntime(ctx context.Context, reloadCh <-chan struct{}) error {
	cfg, sysCfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	monitor.Setup(sysCfg.LogLevel)
	slog.Info("==========================================")

	llmClient, err := llm.NewFromConfig(cfg.LLM, sysCfg)
	if err != nil {
		return fmt.Errorf("failed to init LLM client: %w", err)
	}

	fc := flashcard.New(cfg.FlashcardBaseURL, time.Duration(sysCfg.FlashcardTimeoutMs)*time.Millisecond)

	toolRegistry := tools.NewRegistry()
	tools.RegisterFlashcardTools(toolRegistry, fc)

	pool, err := ants.NewPool(256)
	if err != nil {
		return fmt.Errorf("failed to build session worker pool: %w", err)
	}
	defer pool.Release()

	rt := &graph.Runtime{
		Graph:        graph.New(),
		Checkpoints:  graph.NewMemoryCheckpointer(),
		LLM:          llmClient,
		Tools:        toolRegistry,
		Flashcard:    fc,
		SystemConfig: sysCfg,
	}

	turnMonitor := monitor.NewCLIObserver()
	if err := turnMonitor.Start(); err != nil {
		return fmt.Errorf("failed to start session monitor: %w", err)
	}
	defer turnMonitor.Stop()

	reg := registry.New(rt, pool, turnMonitor)
	history := convstore.New()

	sweeper := cron.New()
	if _, err := sweeper.AddFunc(sysCfg.ReapCronSpec, func() {
		maxAge := time.Duration(sysCfg.ReapMaxAgeHours) * time.Hour
		removed := reg.CleanupInactive(ctx, maxAge)
		if removed > 0 {
			slog.Info("idle session sweep complete", "removed", removed)
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule idle-session sweep: %w", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	mgmt := api.NewServer(reg, history, fc)
	push := pushgw.NewChannel(reg, history)

	mux := http.NewServeMux()
	mux.Handle("/", mgmt.Handler())
	mux.HandleFunc("/ws", push.Handler())
	mux.Handle("/metrics", promhttp.Handler())

	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		slog.Info("tutor runtime listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("received shutdown signal, stopping services")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		slog.Info("bye!")
		return nil
	case <-reloadCh:
		slog.Info("configuration changes detected, stopping services")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		time.Sleep(1 * time.Second)
		return nil
	}
}
