package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tendant/manual-asset-pipeline/internal/app"
	"github.com/tendant/manual-asset-pipeline/internal/dbosruntime"
	"github.com/tendant/manual-asset-pipeline/internal/handlers"
	"github.com/tendant/manual-asset-pipeline/internal/ledger"
	"github.com/tendant/manual-asset-pipeline/internal/logging"
	"github.com/tendant/manual-asset-pipeline/internal/metrics"
	"github.com/tendant/manual-asset-pipeline/internal/workflows"
)

// Runs manifest builds and verifications from the DBOS queue and accepts new
// ones over HTTP
func main() {
	cfg, err := app.LoadConfig(os.Getenv("ASSET_CONFIG"))
	if err != nil {
		fatal("failed to load config", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fatal("failed to initialize logger", err)
	}
	defer logger.Sync()

	httpAddr := os.Getenv("WORKER_HTTP_ADDR")
	if httpAddr == "" {
		httpAddr = ":8081"
	}

	concurrency := 1
	if v := os.Getenv("DBOS_QUEUE_CONCURRENCY"); v != "" {
		concurrency, err = strconv.Atoi(v)
		if err != nil {
			logger.Fatal("invalid DBOS_QUEUE_CONCURRENCY", zap.Error(err))
		}
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	p, err := app.NewPipeline(cfg, logger, m)
	if err != nil {
		logger.Fatal("failed to initialize pipeline", zap.Error(err))
	}
	defer p.Close()

	// Initialize DBOS runtime (required)
	rt, err := dbosruntime.NewRuntime(context.Background(), dbosruntime.Config{
		DatabaseURL: os.Getenv("DBOS_SYSTEM_DATABASE_URL"),
		AppName:     "asset-worker",
		QueueName:   os.Getenv("DBOS_QUEUE_NAME"),
		Concurrency: concurrency,
	}, logger)
	if err != nil {
		logger.Fatal("failed to initialize DBOS", zap.Error(err))
	}

	builds, err := ledger.New(context.Background(), rt.DB(), logger)
	if err != nil {
		logger.Fatal("failed to initialize build ledger", zap.Error(err))
	}

	// Workflows must be registered before launch
	runner := workflows.NewRunner(rt, logger)
	p.Register(runner, builds)

	if err := rt.Launch(); err != nil {
		logger.Fatal("failed to launch DBOS", zap.Error(err))
	}
	defer rt.Shutdown(10 * time.Second)

	asyncHandler := handlers.NewAsyncHandler(runner, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handlers.HandleHealth)
	mux.HandleFunc("/v1/build", asyncHandler.HandleBuild)
	mux.HandleFunc("/v1/verify", asyncHandler.HandleVerify)
	mux.HandleFunc("/v1/runs/", asyncHandler.HandleStatus)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              httpAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("asset worker starting",
			zap.String("addr", httpAddr),
			zap.String("site_root", cfg.SiteRoot),
			zap.String("queue", rt.QueueName()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func fatal(msg string, err error) {
	logger, _ := zap.NewProduction()
	logger.Fatal(msg, zap.Error(err))
}
