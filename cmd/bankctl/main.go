package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ferrao/bankctl-go/internal/config"
	"github.com/ferrao/bankctl-go/internal/handler"
	"github.com/ferrao/bankctl-go/internal/infra/credstore"
	"github.com/ferrao/bankctl-go/internal/infra/ledger"
	"github.com/ferrao/bankctl-go/internal/infra/lifecycle"
	"github.com/ferrao/bankctl-go/internal/infra/observability"
	"github.com/ferrao/bankctl-go/internal/infra/resilience"
	"github.com/ferrao/bankctl-go/internal/service"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.String("api_base_url", cfg.APIBaseURL),
		zap.String("log_level", cfg.LogLevel),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Int("ops_port", cfg.OpsPort),
	)

	// --- Tracing ---
	if cfg.TracingOn {
		shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "bankctl")
		if err != nil {
			logger.Fatal("failed to init tracer", zap.Error(err))
		}
		defer shutdown(context.Background())
	}

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	cb := resilience.NewCircuitBreaker("ledger")

	// --- Infra ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	ledgerClient := ledger.NewClient(httpClient, cfg.APIBaseURL, cfg.HTTPTimeout, cb, resilienceCfg, logger)
	store := credstore.New(cfg.SessionFile, cfg.SessionSecret, logger)
	tracker := lifecycle.NewTracker(metrics, logger)

	// --- Services ---
	engine := service.NewSyncEngine(ledgerClient, tracker, metrics, logger)
	session := service.NewSessionManager(ledgerClient, store, engine, tracker, logger)
	banking := service.NewBankingService(ledgerClient, engine, session, tracker, logger)

	// --- Local ops server ---
	router := handler.NewRouter(session, engine, ledgerClient, metrics, logger)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.OpsPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Connection check + session restore ---
	if err := ledgerClient.Ping(ctx); err != nil {
		logger.Warn("ledger unreachable at startup; commands will retry on demand", zap.Error(err))
	} else {
		logger.Info("ledger connected")
	}
	session.Restore(ctx)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("ops server starting", zap.Int("port", cfg.OpsPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		defer stop() // quitting the loop shuts everything down
		runLoop(gCtx, os.Stdin, session, engine, banking, ledgerClient, tracker)
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("shutdown with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("bankctl stopped")
}
