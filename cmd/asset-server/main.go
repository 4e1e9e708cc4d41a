package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tendant/manual-asset-pipeline/internal/app"
	"github.com/tendant/manual-asset-pipeline/internal/handlers"
	"github.com/tendant/manual-asset-pipeline/internal/logging"
	"github.com/tendant/manual-asset-pipeline/internal/metrics"
	"github.com/tendant/manual-asset-pipeline/internal/resolver"
	"github.com/tendant/manual-asset-pipeline/internal/storage"
)

// Serves the site tree together with the resolver API. The manifest is read
// from the site root, or from the deployed site at ASSET_SITE_URL when set.
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

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	site, err := storage.NewFilesystemStorage(cfg.SiteRoot)
	if err != nil {
		logger.Fatal("failed to open site root", zap.Error(err))
	}

	var manifestSource storage.Reader = site
	if cfg.Server.SiteURL != "" {
		manifestSource = storage.NewHTTPReader(cfg.Server.SiteURL)
	}

	res := resolver.New(cfg.Convention(), cfg.Sizes,
		resolver.WithLogger(logger),
		resolver.WithMetrics(m))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Lookups before the load finishes fall back to the convention
	res.LoadAsync(ctx, manifestSource, cfg.ManifestPath)

	resolveHandler := handlers.NewResolveHandler(res)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handlers.HandleHealth)
	mux.HandleFunc("/v1/resolve", resolveHandler.HandleResolve)
	mux.HandleFunc("/v1/picture", resolveHandler.HandlePicture)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/", http.FileServer(http.Dir(site.BaseDir())))

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("asset server ready",
			zap.String("addr", cfg.Server.Addr),
			zap.String("site_root", cfg.SiteRoot),
			zap.String("manifest", cfg.ManifestPath))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func fatal(msg string, err error) {
	logger, _ := zap.NewProduction()
	logger.Fatal(msg, zap.Error(err))
}
