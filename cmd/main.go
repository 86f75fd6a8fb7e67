package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/puppylog/pawbot/internal/bot"
	"github.com/puppylog/pawbot/internal/cache"
	"github.com/puppylog/pawbot/internal/config"
	"github.com/puppylog/pawbot/internal/database"
	"github.com/puppylog/pawbot/internal/line"
	"github.com/puppylog/pawbot/internal/member"
	"github.com/puppylog/pawbot/internal/reminder"
	"github.com/puppylog/pawbot/internal/retry"
	"github.com/puppylog/pawbot/internal/speech"
	"github.com/puppylog/pawbot/internal/web"
	"github.com/puppylog/pawbot/internal/webhook"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.WithError(err).Fatal("server failed")
	}
}

func run(ctx context.Context) error {
	// Load .env file (ignore error if file doesn't exist)
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	}
	logrus.WithFields(logrus.Fields{
		"port":    cfg.Port,
		"backend": cfg.StoreBackend,
	}).Info("starting 小汪記記")

	// Select the persistence backend
	var store database.RowStore
	switch cfg.StoreBackend {
	case config.BackendSupabase:
		store, err = database.NewSupabaseStore(database.SupabaseConfig{
			URL:    cfg.SupabaseURL,
			APIKey: cfg.SupabaseKey(),
		})
		if err != nil {
			return fmt.Errorf("failed to initialize store: %w", err)
		}
	case config.BackendMemory:
		logrus.Warn("using the in-memory store; data is lost on restart")
		store = database.NewMemoryStore()
	default:
		return fmt.Errorf("unsupported store backend: %s", cfg.StoreBackend)
	}

	policy := retry.DefaultPolicy()
	policy.MaxAttempts = cfg.RetryMaxAttempts
	policy.InitialDelay = cfg.RetryInitialDelay
	policy.MaxDelay = cfg.RetryMaxDelay
	policy.BackoffMultiplier = cfg.RetryBackoffMultiplier

	db := database.New(database.Config{
		Store: store,
		Cache: cache.New(cache.WithTTL(cfg.CacheTTL), cache.WithCapacity(cfg.CacheCapacity)),
		Retry: policy,
	})

	if err := db.TestConnection(ctx); err != nil {
		logrus.WithError(err).Warn("store connectivity check failed; continuing degraded")
	}

	// Messaging and command handling
	lineClient, err := line.NewClient(cfg.ChannelAccessToken)
	if err != nil {
		return fmt.Errorf("failed to initialize line client: %w", err)
	}
	members := member.NewService(db, cfg.JWTSecret)

	var transcriber speech.Transcriber
	if cfg.SpeechAPIKey != "" {
		transcriber = speech.NewGoogleTranscriber(cfg.SpeechAPIKey)
	} else {
		logrus.Info("speech-to-text disabled: GOOGLE_SPEECH_API_KEY not set")
	}

	taskBot := bot.New(db, lineClient, transcriber, members)
	webhookHandler := webhook.NewHandler(cfg.ChannelSecret, taskBot)

	// Reminder delivery
	if cfg.ReminderEnabled {
		scheduler := reminder.NewScheduler(db, lineClient, cfg.ReminderSchedule)
		if err := scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start reminder scheduler: %w", err)
		}
		defer scheduler.Stop()
	}

	// Setup router
	r := mux.NewRouter()
	r.Handle("/webhook", webhookHandler).Methods("POST")

	webHandler := web.NewHandler(db, members, web.EnvFlags{
		ChannelSecret: cfg.ChannelSecret != "",
		ChannelToken:  cfg.ChannelAccessToken != "",
		StoreURL:      cfg.SupabaseURL != "" || cfg.StoreBackend == config.BackendMemory,
	})
	webHandler.RegisterRoutes(r)

	// Start server with graceful shutdown
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.WithField("addr", server.Addr).Info("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed to start: %w", err)
	case <-ctx.Done():
	}

	logrus.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
