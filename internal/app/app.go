// Package app wires configuration, storage and the build pipeline shared by
// the binaries and the embeddable runner.
package app

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/tendant/simple-content/pkg/simplecontent/presets"
	"go.uber.org/zap"

	"github.com/tendant/manual-asset-pipeline/internal/builder"
	"github.com/tendant/manual-asset-pipeline/internal/config"
	"github.com/tendant/manual-asset-pipeline/internal/metrics"
	"github.com/tendant/manual-asset-pipeline/internal/storage"
	"github.com/tendant/manual-asset-pipeline/internal/workflows"
	"github.com/tendant/manual-asset-pipeline/pkg/pipeline"
)

// contentNamespace derives stable owner and tenant IDs when none are configured
var contentNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("manual-asset-pipeline"))

// LoadConfig reads .env (if present), the YAML file at path (optional) and
// ASSET_* environment overrides, in that order
func LoadConfig(path string) (*config.Config, error) {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}
	return cfg, nil
}

// Pipeline is the build side of the system for one site tree
type Pipeline struct {
	Config  *config.Config
	Store   *storage.FilesystemStorage
	Builder *builder.Builder

	cleanup func()
}

// NewPipeline creates the site storage and builder. When content mirroring is
// enabled an embedded simple-content service receives every variant.
func NewPipeline(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := storage.NewFilesystemStorage(cfg.SiteRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to open site root: %w", err)
	}

	opts := []builder.Option{builder.WithLogger(logger), builder.WithMetrics(m)}
	cleanup := func() {}

	if cfg.Content.Enabled {
		publisher, closeFn, err := newPublisher(cfg.Content, store)
		if err != nil {
			return nil, err
		}
		opts = append(opts, builder.WithPublisher(publisher))
		cleanup = closeFn
		logger.Info("mirroring variants into simple-content", zap.String("storage_dir", cfg.Content.StorageDir))
	}

	return &Pipeline{
		Config:  cfg,
		Store:   store,
		Builder: builder.New(cfg, store, opts...),
		cleanup: cleanup,
	}, nil
}

// Register adds the build and verify jobs to runner. recorder may be nil.
func (p *Pipeline) Register(runner *workflows.Runner, recorder workflows.BuildRecorder) {
	runner.Register(pipeline.JobManifestBuild, workflows.NewManifestBuildJob(p.Builder, recorder, p.Config.ManifestPath))
	runner.Register(pipeline.JobManifestVerify, workflows.NewVerifyJob(p.Store, p.Config.ManifestPath))
}

// Close releases the content service, if any
func (p *Pipeline) Close() {
	p.cleanup()
}

func newPublisher(cfg config.ContentConfig, sources storage.Reader) (*storage.ContentPublisher, func(), error) {
	ownerID, err := parseID(cfg.OwnerID, "owner")
	if err != nil {
		return nil, nil, err
	}
	tenantID, err := parseID(cfg.TenantID, "tenant")
	if err != nil {
		return nil, nil, err
	}

	svc, cleanup, err := presets.NewDevelopment(presets.WithDevStorage(cfg.StorageDir))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize simple-content service: %w", err)
	}

	return storage.NewContentPublisher(svc, sources, ownerID, tenantID), cleanup, nil
}

func parseID(v, kind string) (uuid.UUID, error) {
	if v == "" {
		return uuid.NewSHA1(contentNamespace, []byte(kind)), nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid content %s_id: %w", kind, err)
	}
	return id, nil
}
