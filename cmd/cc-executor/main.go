package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/cc-executor/cc-executor/internal/common/config"
	"github.com/cc-executor/cc-executor/internal/common/logger"
	"github.com/cc-executor/cc-executor/internal/events"
	"github.com/cc-executor/cc-executor/internal/hooks"
	"github.com/cc-executor/cc-executor/internal/session"
	"github.com/cc-executor/cc-executor/internal/timing"
	"github.com/cc-executor/cc-executor/internal/timing/classifier"
	"github.com/cc-executor/cc-executor/internal/wsrpc"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting cc-executor service...")

	// 3. Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Connect to NATS event bus (optional, degrades to a no-op when unset)
	eventBus, err := events.Connect(cfg.NATS.URL, "cc-executor", log)
	if err != nil {
		log.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer eventBus.Close()
	if cfg.NATS.URL != "" {
		log.Info("Connected to NATS event bus", zap.String("url", cfg.NATS.URL))
	}

	// 5. Open the Timing Store
	timingStore := timing.Open(cfg.Timing.StoreDSN, timing.Options{
		TTL:           time.Duration(cfg.Timing.HistoryTTLS) * time.Second,
		SamplesCap:    cfg.Timing.HistorySamplesCap,
		StallFraction: cfg.Execution.StallFractionOfTotal,
		MinStallS:     cfg.Execution.DefaultStallTimeoutS,
		MaxStallS:     cfg.Execution.ExtremeStallTimeoutS,
	}, log)
	defer timingStore.Close()
	log.Info("Opened timing store", zap.String("dsn", cfg.Timing.StoreDSN))

	// 6. Load the Hook Runner's configuration
	hookCfg, err := hooks.LoadConfig(cfg.HookConfigPath, log)
	if err != nil {
		log.Fatal("Failed to load hook configuration", zap.Error(err))
	}
	hookRunner := hooks.NewRunner(hookCfg, log)
	log.Info("Loaded hook configuration", zap.Int("hook_points", len(hookCfg.Hooks)))

	// 7. Build the command classifier
	cmdClassifier := classifier.New(classifier.DefaultRules())

	// 8. Assemble the Session Registry
	deps := session.Deps{
		Hooks:      hookRunner,
		Timing:     timingStore,
		Classifier: cmdClassifier,
		Config:     cfg,
		Events:     eventBus,
		Log:        log,
	}
	registry := session.NewRegistry(cfg, deps, log)
	registry.Start(ctx)
	log.Info("Started session registry", zap.Int("max_sessions", cfg.Server.MaxSessions))

	// 9. Build the WebSocket JSON-RPC frontend
	frontend := wsrpc.New(cfg, registry, log)
	router := wsrpc.NewRouter(frontend, log)

	// 10. Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	// 11. Start server in goroutine
	go func() {
		log.Info("HTTP/WS server listening", zap.String("addr", cfg.Server.ListenAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Failed to start HTTP server", zap.Error(err))
			os.Exit(2)
		}
	}()

	// 12. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down cc-executor service...")

	// 13. Graceful shutdown
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.GracefulShutdownS)*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	// Terminate every live session's running process group before exiting.
	registry.Stop()

	log.Info("cc-executor service stopped")
}
