package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	provideradapter "github.com/ezysend/dispatch/internal/adapter/driven/provider"
	"github.com/ezysend/dispatch/internal/adapter/driven/queue"
	sqliteadapter "github.com/ezysend/dispatch/internal/adapter/driven/sqlite"
	httphandler "github.com/ezysend/dispatch/internal/adapter/driving/http"
	"github.com/ezysend/dispatch/internal/application"
	"github.com/ezysend/dispatch/internal/config"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on missing required env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"partitions", cfg.Partitions,
		"consumer_group", cfg.ConsumerGroup,
		"retry_max", cfg.RetryMax,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode) and migrate.
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("database ready", "path", cfg.DBPath)

	// 4. Wire driven adapters.
	credentialStore := sqliteadapter.NewCredentialRepo(db)
	auditLogStore := sqliteadapter.NewAuditLogRepo(db)
	outcomeStore := sqliteadapter.NewOutcomeRepo(db)
	broker := queue.New(db, cfg.Partitions, cfg.PollInterval, slog.Default())
	providerClient := provideradapter.NewClient(
		cfg.ProviderEmailURL, cfg.ProviderSMSURL, cfg.ProviderToken, cfg.ProviderTimeout)

	// 5. Wire application services.
	authSvc := application.NewAuthService(credentialStore)
	ingestSvc := application.NewIngestService(authSvc, auditLogStore, broker, slog.Default())
	dispatchSvc := application.NewDispatchService(
		broker, auditLogStore, outcomeStore, providerClient,
		cfg.ConsumerGroup, cfg.RetryMax, cfg.RetryDelay, slog.Default())

	// 6. Start the dispatch worker.
	if err := dispatchSvc.Start(ctx); err != nil {
		return err
	}

	// 6b. Periodically drop fully acknowledged queue rows.
	go purgeLoop(ctx, broker)

	// 7. HTTP ingestion surface.
	handler := httphandler.NewHandler(ingestSvc, slog.Default())
	limiter := rate.NewLimiter(rate.Limit(cfg.IngestRPS), cfg.IngestBurst)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httphandler.NewServeMux(handler, slog.Default(), limiter),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	slog.Info("dispatchd started", "listen_addr", cfg.ListenAddr)

	// 8. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 9. Stop accepting requests, then drain the worker. Order matters: the
	// ingestion surface goes first so no new messages race the drain.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	if err := dispatchSvc.Close(); err != nil {
		slog.Error("dispatch worker shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

// purgeLoop deletes queue messages every consumer group has acknowledged.
func purgeLoop(ctx context.Context, broker *queue.Broker) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := broker.PurgeCommitted(ctx)
			if err != nil {
				slog.Error("queue purge failed", "error", err)
				continue
			}
			if purged > 0 {
				slog.Debug("queue purged", "messages", purged)
			}
		}
	}
}
