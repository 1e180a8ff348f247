package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/feshchenko/giftmarket-bot/internal/config"
	"github.com/feshchenko/giftmarket-bot/internal/market"
	"github.com/feshchenko/giftmarket-bot/internal/monitor"
	"github.com/feshchenko/giftmarket-bot/internal/storage"
	"github.com/feshchenko/giftmarket-bot/internal/telegram"
	"github.com/feshchenko/giftmarket-bot/internal/webapp"
)

func main() {
	// Setup logger
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(log)

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file found")
	}

	// Load config
	cfg := config.Load()

	if cfg.BotToken == "" {
		log.Error("BOT_TOKEN is required")
		os.Exit(1)
	}

	// Initialize storage
	store, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Error("init storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	log.Info("storage initialized", "path", cfg.DBPath)

	// Initialize marketplace service
	svc := market.New(store, log)

	// Initialize worker session registry
	registry := monitor.NewRegistry()

	// Initialize telegram bot
	bot, err := telegram.New(cfg, store, svc, registry, log)
	if err != nil {
		log.Error("init telegram bot", "error", err)
		os.Exit(1)
	}
	log.Info("telegram bot initialized")

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start web app API server
	apiServer := webapp.NewServer(store, log)
	go func() {
		if err := apiServer.Start(ctx, cfg.APIPort); err != nil && err != http.ErrServerClosed {
			log.Error("api server", "error", err)
		}
	}()

	// Start worker monitor
	mon := monitor.New(registry, svc, bot, cfg.MonitorBackoff, log)
	go mon.Start(ctx, cfg.MonitorInterval)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Info("shutting down...")
		cancel()
	}()

	// Start bot polling
	log.Info("starting bot polling...")
	bot.Start(ctx)
}
