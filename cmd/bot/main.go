// Inspection checklist bot: Telegram long-poll worker plus ops API and web chat.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ashureev/inspectbot/internal/api"
	"github.com/ashureev/inspectbot/internal/archive"
	"github.com/ashureev/inspectbot/internal/checklist"
	"github.com/ashureev/inspectbot/internal/config"
	"github.com/ashureev/inspectbot/internal/convlog"
	"github.com/ashureev/inspectbot/internal/report"
	"github.com/ashureev/inspectbot/internal/session"
	"github.com/ashureev/inspectbot/internal/store"
	"github.com/ashureev/inspectbot/internal/telegram"
	"github.com/ashureev/inspectbot/internal/webchat"
	"github.com/ashureev/inspectbot/internal/workflow"
	"github.com/ashureev/inspectbot/web"
)

const (
	webChatRateLimit  = 30
	webChatRateWindow = 10 * time.Second
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting inspection bot",
		"telegram", cfg.Telegram.Enabled, "http", cfg.HTTP.Enabled, "db_driver", cfg.DBDriver)

	for _, dir := range []string{cfg.DataDir, cfg.PhotoDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.Error("Failed to create data directory", "dir", dir, "error", err)
			os.Exit(1)
		}
	}

	// Initialize dependencies.
	repo, err := store.New(cfg.DBDriver, cfg.DBPath, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	def, err := checklist.Load(cfg.ChecklistPath)
	if err != nil {
		slog.Error("Failed to load checklist", "error", err)
		os.Exit(1)
	}
	slog.Info("Checklist loaded", "title", def.Title, "questions", def.Len())

	convLog, err := convlog.New(convlog.Config{
		Enabled:      cfg.ConversationLog.Enabled,
		Dir:          cfg.ConversationLog.Dir,
		QueueSize:    cfg.ConversationLog.QueueSize,
		MaxOpenFiles: cfg.ConversationLog.MaxOpenFiles,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := convLog.Close(); closeErr != nil {
			slog.Warn("Failed to close conversation logger", "error", closeErr)
		}
	}()

	engineCfg := workflow.Config{
		Repo:      repo,
		Tracker:   session.NewTracker(cfg.SessionCapacity, cfg.SessionTTL),
		Renderer:  report.NewRenderer(cfg.TemplatePath, def.Title),
		Checklist: def,
		TempDir:   cfg.ReportTmpDir,
	}
	var archiveLister api.ArchiveLister
	if cfg.Archive.Enabled() {
		s3, err := archive.NewS3Store(archive.S3Config{
			Endpoint:  cfg.Archive.Endpoint,
			Region:    cfg.Archive.Region,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			Bucket:    cfg.Archive.Bucket,
			UseSSL:    cfg.Archive.UseSSL,
		})
		if err != nil {
			slog.Error("Failed to initialize report archive", "error", err)
			os.Exit(1)
		}
		engineCfg.Archive = s3
		archiveLister = s3
		slog.Info("Report archive enabled", "endpoint", cfg.Archive.Endpoint, "bucket", cfg.Archive.Bucket)
	}
	engine := workflow.New(engineCfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var srv *http.Server
	if cfg.HTTP.Enabled {
		chatHandler := webchat.NewHandler(engine, convLog,
			webchat.NewRateLimiter(ctx, webChatRateLimit, webChatRateWindow), cfg.HTTP.AllowedOrigins)

		srv = &http.Server{
			Addr: ":" + cfg.HTTP.Port,
			Handler: api.NewRouter(api.RouterConfig{
				Repo:           repo,
				Reports:        engine,
				Archive:        archiveLister,
				AllowedOrigins: cfg.HTTP.AllowedOrigins,
				APIToken:       cfg.HTTP.APIToken,
				Chat:           chatHandler,
				Static:         web.Handler(),
			}),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 0, // websocket connections are long-lived
			IdleTimeout:  120 * time.Second,
		}

		go func() {
			slog.Info("Server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Server failed", "error", err)
				os.Exit(1)
			}
		}()
	}

	var wg sync.WaitGroup
	if cfg.Telegram.Enabled {
		client := telegram.NewClient(cfg.Telegram.APIURL, cfg.Telegram.Token, cfg.Telegram.PollTimeout)
		gw := convlog.WrapGateway(client, convLog, "telegram")
		poller := telegram.NewPoller(client, cfg.Telegram.PollTimeout, logger)

		wg.Add(1)
		go func() {
			defer wg.Done()
			slog.Info("Telegram polling started")
			for ev := range poller.Events(ctx) {
				convLog.Log(convlog.FromEvent("telegram", ev))
				engine.Dispatch(ctx, gw, ev)
			}
			slog.Info("Telegram polling stopped", "offset", poller.Offset())
		}()
	}

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server forced to shutdown", "error", err)
		}
	}
	wg.Wait()

	slog.Info("Bot stopped successfully")
}
