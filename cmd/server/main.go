/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the savings fund server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (optional) and environment configuration
  2. Configure structured logging
  3. Initialize SQLite store
  4. Wire the fund service, handler, and router
  5. Start the reminder scheduler (if SMTP is configured)
  6. Start server with graceful shutdown

CONFIGURATION (environment, see config/config.go):
  SERVER_PORT, SERVER_HOST, ENV
  DB_PATH                  SQLite database path (":memory:" works)
  JWT_SECRET               Required; signs session tokens
  LOG_LEVEL, LOG_FORMAT    logrus level and json/text
  SMTP_HOST, SMTP_PORT, SMTP_USERNAME, SMTP_PASSWORD, SMTP_FROM

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the reminder scheduler
  4. Close database connection
  5. Exit

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Environment configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/ahorra/fund-engine/api"
	"github.com/ahorra/fund-engine/config"
	"github.com/ahorra/fund-engine/fund"
	"github.com/ahorra/fund-engine/store/sqlite"
)

func main() {
	// Optional .env for local development; viper also reads it, but
	// loading it into the environment keeps os.Getenv consistent.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("failed to load configuration: %v", err)
	}

	log := newLogger(cfg)

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}
	defer store.Close()

	svc := fund.NewService(store, log)
	tokens := api.NewTokenManager(cfg.Auth.JWTSecret)
	handler := api.NewHandler(svc, store, tokens, log)
	router := api.NewRouter(handler)

	// Reminders only run when a mail relay is configured.
	var reminders *api.ReminderScheduler
	if cfg.RemindersConfigured() {
		mailer := &api.SMTPMailer{
			Addr:     cfg.SMTP.Host + ":" + cfg.SMTP.Port,
			Host:     cfg.SMTP.Host,
			From:     cfg.SMTP.From,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
		}
		reminders = api.NewReminderScheduler(svc, store, mailer, log)
		if err := reminders.Start(); err != nil {
			log.Fatalf("failed to start reminder scheduler: %v", err)
		}
	} else {
		log.Info("SMTP not configured, reminder mail disabled")
	}

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.Addr()).Info("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}
	if reminders != nil {
		reminders.Stop()
	}

	log.Info("server stopped")
}

func newLogger(cfg *config.Config) *logrus.Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Logging.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}
