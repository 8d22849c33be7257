package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/storesleuth/api"
	"github.com/use-agent/storesleuth/cache"
	"github.com/use-agent/storesleuth/cleaner"
	"github.com/use-agent/storesleuth/config"
	"github.com/use-agent/storesleuth/extractor"
	"github.com/use-agent/storesleuth/fetcher"
	"github.com/use-agent/storesleuth/llm"
	"github.com/use-agent/storesleuth/orchestrator"
	"github.com/use-agent/storesleuth/renderer"
	"github.com/use-agent/storesleuth/session"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("storesleuth starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"maxSessions", cfg.Session.MaxSessions,
	)

	// ── 3. Launch the render backend and the session pool ───────────
	backend, err := renderer.NewRodBackend(cfg.Browser)
	if err != nil {
		slog.Error("failed to launch render backend", "error", err)
		os.Exit(1)
	}
	defer backend.Close()

	pool := session.New(backend, cfg.Session)
	defer pool.Close()

	// ── 4. Fetcher, cleaner, model backend, extraction engine ───────
	f := fetcher.New(pool, cfg.Fetch, cfg.Browser.DefaultProxy)
	defer f.Stop()

	cl := cleaner.New(cfg.LLM.MaxContentTokens)
	model := llm.NewOpenAIClient(cfg.LLM, nil)
	engine := extractor.New(model, cl)

	// ── 5. Cache and orchestrator ───────────────────────────────────
	cc := cache.New(cfg.Cache.TTL, cfg.Cache.MaxEntries, cfg.Cache.StripParams)
	defer cc.Close()

	orch := orchestrator.New(f, engine, cc, cfg.Orchestrator, cfg.Fetch)

	// ── 6. Router and HTTP server ───────────────────────────────────
	router := api.NewRouter(cfg, api.Deps{
		Orchestrator: orch,
		Pool:         pool,
		Cache:        cc,
		StartedAt:    time.Now(),
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 7. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// Give in-flight requests 5 seconds to complete.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// Stop background jobs before the pool and browser go away.
	orch.Close()

	slog.Info("storesleuth stopped")
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
