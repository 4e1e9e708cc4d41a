// Package runner embeds the manifest pipeline and its DBOS build queue in
// another Go program. Programs that only trigger builds should use pkg/client
// against a running asset-worker instead.
package runner

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tendant/manual-asset-pipeline/internal/app"
	"github.com/tendant/manual-asset-pipeline/internal/config"
	"github.com/tendant/manual-asset-pipeline/internal/dbosruntime"
	"github.com/tendant/manual-asset-pipeline/internal/ledger"
	"github.com/tendant/manual-asset-pipeline/internal/workflows"
	"github.com/tendant/manual-asset-pipeline/pkg/pipeline"
)

// Config holds the configuration for initializing the runner
type Config struct {
	DatabaseURL        string // DBOS PostgreSQL connection string
	AppName            string // Application name for DBOS
	QueueName          string // DBOS queue name
	Concurrency        int    // Builds running at once across workers
	ApplicationVersion string // Optional: Override binary hash for version matching
	ConfigPath         string // Optional: YAML pipeline config, defaults otherwise
	SiteRoot           string // Optional: overrides the config's site root
	Logger             *zap.Logger
}

// Runner runs manifest jobs through DBOS
type Runner struct {
	runtime  *dbosruntime.Runtime
	runner   *workflows.Runner
	pipeline *app.Pipeline
}

// New creates a runner that registers and executes the manifest jobs
func New(ctx context.Context, cfg Config) (*Runner, error) {
	pcfg, err := loadConfig(cfg)
	if err != nil {
		return nil, err
	}

	rt, err := dbosruntime.NewRuntime(ctx, dbosruntime.Config{
		DatabaseURL:        cfg.DatabaseURL,
		AppName:            cfg.AppName,
		QueueName:          cfg.QueueName,
		Concurrency:        cfg.Concurrency,
		ApplicationVersion: cfg.ApplicationVersion,
	}, cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize DBOS: %w", err)
	}

	r := &Runner{
		runtime: rt,
		runner:  workflows.NewRunner(rt, cfg.Logger),
	}

	p, err := app.NewPipeline(pcfg, cfg.Logger, nil)
	if err != nil {
		_ = rt.Shutdown(time.Second)
		return nil, err
	}
	r.pipeline = p

	builds, err := ledger.New(ctx, rt.DB(), cfg.Logger)
	if err != nil {
		_ = rt.Shutdown(time.Second)
		r.close()
		return nil, err
	}
	p.Register(r.runner, builds)

	// Launch DBOS (must be after workflow registration)
	if err := rt.Launch(); err != nil {
		r.close()
		return nil, err
	}

	return r, nil
}

func loadConfig(cfg Config) (*config.Config, error) {
	pcfg, err := config.Load(cfg.ConfigPath)
	if err != nil {
		return nil, err
	}
	if cfg.SiteRoot != "" {
		pcfg.SiteRoot = cfg.SiteRoot
	}
	return pcfg, nil
}

// RunBuild enqueues a manifest build and returns its run ID
func (r *Runner) RunBuild(ctx context.Context, failOnError bool) (string, error) {
	return r.runner.RunAsync(ctx, pipeline.BuildRequest{
		Job:         pipeline.JobManifestBuild,
		FailOnError: failOnError,
	})
}

// RunVerify enqueues a manifest verification and returns its run ID
func (r *Runner) RunVerify(ctx context.Context, manifestPath string) (string, error) {
	return r.runner.RunAsync(ctx, pipeline.BuildRequest{
		Job:          pipeline.JobManifestVerify,
		ManifestPath: manifestPath,
	})
}

// Status returns the state of a run
func (r *Runner) Status(ctx context.Context, runID string) (*pipeline.RunStatus, error) {
	return r.runner.GetStatus(ctx, runID)
}

// Shutdown gracefully shuts down the runner
func (r *Runner) Shutdown(timeout time.Duration) error {
	err := r.runtime.Shutdown(timeout)
	r.close()
	return err
}

func (r *Runner) close() {
	if r.pipeline != nil {
		r.pipeline.Close()
	}
}
