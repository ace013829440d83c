package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sjoeboo/commander/internal/adapter"
	"github.com/sjoeboo/commander/internal/bot"
	"github.com/sjoeboo/commander/internal/config"
	"github.com/sjoeboo/commander/internal/logging"
	"github.com/sjoeboo/commander/internal/session"
	"github.com/sjoeboo/commander/internal/statusserver"
	"github.com/sjoeboo/commander/internal/summarize"
	"github.com/sjoeboo/commander/internal/tmux"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Telegram bridge",
	Long:  "Starts the long-running bridge: polls Telegram for commands, drives tmux sessions, and streams summarized output back to paired chats.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	// State-dir env file first, then the usual local overrides.
	_ = godotenv.Load(config.EnvFile())
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	if err := config.EnsureStateDir(); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	settings, err := config.LoadSettings()
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	logging.Init(logging.Config{
		LogDir:   config.LogDir(),
		Level:    settings.LogLevel,
		Format:   settings.LogFormat,
		Compress: true,
	})
	defer logging.Shutdown()
	log := logging.Logger()

	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is not set (put it in " + config.EnvFile() + " or the environment)")
	}

	orch, err := tmux.NewOrchestrator()
	if err != nil {
		return fmt.Errorf("tmux: %w", err)
	}

	sum := summarize.New(settings.SummarizerModel)
	if !sum.Available() {
		log.Warn("summarization disabled, raw output will be forwarded", "hint", "set OPENROUTER_API_KEY")
	}

	// History is best effort; a broken database must not stop the bridge.
	var history *session.History
	if h, err := session.OpenHistory(config.HistoryFile()); err != nil {
		log.Warn("history disabled", "error", err)
	} else {
		history = h
		defer history.Close()
	}

	registry := session.NewRegistry(session.Config{
		Mux:               orch,
		Summarizer:        sum,
		Adapters:          adapter.NewRegistry(),
		SessionsPath:      config.SessionsFile(),
		PairingsPath:      config.PairingsFile(),
		AuthorizedPath:    config.AuthorizedChatsFile(),
		GroupConfigsPath:  config.GroupConfigsFile(),
		ProjectsPath:      config.ProjectsFile(),
		NotificationsPath: config.NotificationsFile(),
		VersionPath:       config.VersionFile(),
		History:           history,
		CaptureLines:      settings.CaptureLines,
		IdleThreshold:     settings.IdleThreshold(),
	})

	svc, err := bot.New(token, registry, sum, settings)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	if settings.StatusPort > 0 {
		svc.Status = statusserver.New(settings.StatusPort, registry)
	}

	log.Info("commander starting", "version", Version, "bot", svc.BotName())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := svc.Run(ctx); err != nil {
		return fmt.Errorf("bridge: %w", err)
	}
	log.Info("commander stopped")
	return nil
}
