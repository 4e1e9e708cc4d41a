// Package builder implements the manifest build: it discovers source images,
// renders every configured size and format into the optimized directories and
// writes the manifest describing what was produced.
package builder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tendant/manual-asset-pipeline/internal/config"
	"github.com/tendant/manual-asset-pipeline/internal/convention"
	"github.com/tendant/manual-asset-pipeline/internal/imageproc"
	"github.com/tendant/manual-asset-pipeline/internal/manifest"
	"github.com/tendant/manual-asset-pipeline/internal/metrics"
	"github.com/tendant/manual-asset-pipeline/internal/storage"
)

// Publisher mirrors written variants somewhere else, e.g. a content store
type Publisher interface {
	PublishVariant(ctx context.Context, source, size, format string, data []byte) error
}

// Option configures a Builder
type Option func(*Builder)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMetrics records build metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Builder) {
		b.metrics = m
	}
}

// WithPublisher mirrors every written variant through p
func WithPublisher(p Publisher) Option {
	return func(b *Builder) {
		b.publisher = p
	}
}

// WithClock overrides the time source used for the manifest timestamp
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		b.now = now
	}
}

// Builder produces variants and the manifest for one site tree
type Builder struct {
	cfg       *config.Config
	conv      *convention.Convention
	store     *storage.FilesystemStorage
	proc      *imageproc.Processor
	logger    *zap.Logger
	metrics   *metrics.Metrics
	publisher Publisher
	now       func() time.Time
}

// New creates a builder over store, whose base directory is the site root
func New(cfg *config.Config, store *storage.FilesystemStorage, opts ...Option) *Builder {
	b := &Builder{
		cfg:    cfg,
		conv:   cfg.Convention(),
		store:  store,
		proc:   imageproc.New(cfg.Quality),
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Roots lists the source roots: the assets directory and every
// <manuals>/<name>/images directory. An unreadable manuals directory
// contributes no roots.
func (b *Builder) Roots() []string {
	roots := []string{b.conv.AssetsDir()}

	entries, err := b.store.ReadDir(b.conv.ManualsDir())
	switch {
	case errors.Is(err, storage.ErrNotFound):
		b.logger.Debug("manuals directory missing, skipping", zap.String("dir", b.conv.ManualsDir()))
	case err != nil:
		b.logger.Warn("manuals directory unreadable, skipping",
			zap.String("dir", b.conv.ManualsDir()), zap.Error(err))
	default:
		for _, e := range entries {
			if e.IsDir() {
				roots = append(roots, convention.Join(convention.Join(b.conv.ManualsDir(), e.Name()), "images"))
			}
		}
	}

	return roots
}

// Discover returns the source images under every root, sorted. Missing or
// unreadable roots and subdirectories are skipped with a warning; optimized
// subtrees are never descended into. Only cancellation fails discovery.
func (b *Builder) Discover(ctx context.Context) ([]string, error) {
	var sources []string
	for _, root := range b.Roots() {
		err := b.store.Walk(root, func(key string, d os.DirEntry, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err != nil {
				b.logger.Warn("unreadable source path, skipping", zap.String("path", key), zap.Error(err))
				if d != nil && d.IsDir() {
					return storage.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				if b.conv.IsOptimizedDir(key) {
					return storage.SkipDir
				}
				return nil
			}
			if convention.IsSourceImage(d.Name()) {
				sources = append(sources, key)
			}
			return nil
		})
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return nil, fmt.Errorf("failed to scan %s: %w", root, err)
		case errors.Is(err, storage.ErrNotFound):
			b.logger.Debug("source root missing, skipping", zap.String("root", root))
		default:
			b.logger.Warn("source root unreadable, skipping", zap.String("root", root), zap.Error(err))
		}
	}

	sort.Strings(sources)
	return sources, nil
}

// accumulator collects results from concurrent image workers
type accumulator struct {
	mu       sync.Mutex
	manifest *manifest.Manifest
	summary  *Summary
}

func (a *accumulator) addVariant(source, size, format, path string, n int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.manifest.Add(source, size, format, path)
	a.summary.Variants++
	a.summary.OptimizedBytes += n
}

func (a *accumulator) finishImage(source string, originalBytes int64, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.summary.OriginalBytes += originalBytes
	if err != nil {
		a.summary.Errors = append(a.summary.Errors, ImageError{Source: source, Err: err})
		return
	}
	a.summary.Processed++
}

// Run performs a full build. It always returns a summary; per-image failures
// are collected in Summary.Errors and the run continues. Summary.Err is set
// when the build as a whole could not complete.
func (b *Builder) Run(ctx context.Context) *Summary {
	start := time.Now()
	summary := &Summary{RunID: uuid.NewString()}
	logger := b.logger.With(zap.String("run_id", summary.RunID))

	defer func() {
		summary.Duration = time.Since(start)
		b.metrics.BuildFinished(summary.Duration, summary.Err != nil || len(summary.Errors) > 0)
	}()

	sources, err := b.Discover(ctx)
	if err != nil {
		summary.Err = err
		logger.Error("source discovery failed", zap.Error(err))
		return summary
	}
	logger.Info("building manifest",
		zap.Int("images", len(sources)),
		zap.Int("sizes", len(b.cfg.Sizes)),
		zap.Strings("formats", b.cfg.Formats),
		zap.Int("concurrency", b.cfg.Concurrency))

	acc := &accumulator{
		manifest: manifest.New(b.now(), b.cfg.Sizes, b.cfg.Formats),
		summary:  summary,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(b.cfg.Concurrency, 1))
	for _, source := range sources {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			n, err := b.processImage(gctx, logger, acc, source)
			if err != nil {
				b.metrics.ImageFailed()
				logger.Warn("image failed", zap.String("source", source), zap.Error(err))
			}
			acc.finishImage(source, n, err)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		summary.Err = fmt.Errorf("build interrupted: %w", err)
		logger.Warn("build interrupted, manifest not written", zap.Error(err))
		return summary
	}

	sort.Slice(summary.Errors, func(i, j int) bool {
		return summary.Errors[i].Source < summary.Errors[j].Source
	})

	m := acc.manifest
	m.Stats = manifest.Stats{
		Processed:      summary.Processed,
		Errors:         len(summary.Errors),
		OriginalBytes:  summary.OriginalBytes,
		OptimizedBytes: summary.OptimizedBytes,
	}
	if err := manifest.Save(ctx, b.store, b.cfg.ManifestPath, m); err != nil {
		summary.Err = err
		logger.Error("failed to write manifest", zap.String("path", b.cfg.ManifestPath), zap.Error(err))
		return summary
	}
	summary.Manifest = m

	logger.Info("manifest written",
		zap.String("path", b.cfg.ManifestPath),
		zap.Int("processed", summary.Processed),
		zap.Int("variants", summary.Variants),
		zap.Int("errors", len(summary.Errors)),
		zap.String("original_size", formatBytes(summary.OriginalBytes)),
		zap.String("optimized_size", formatBytes(summary.OptimizedBytes)),
		zap.Duration("duration", time.Since(start)))

	return summary
}

// processImage renders every variant of source. Variants written before a
// failure stay recorded. It returns the source size in bytes.
func (b *Builder) processImage(ctx context.Context, logger *zap.Logger, acc *accumulator, source string) (int64, error) {
	rc, err := b.store.GetReader(ctx, source)
	if err != nil {
		return 0, err
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return 0, fmt.Errorf("failed to read source: %w", err)
	}
	original := int64(len(data))

	img, err := b.proc.Decode(bytes.NewReader(data))
	if err != nil {
		return original, err
	}

	for _, size := range b.cfg.Sizes {
		for _, format := range b.cfg.Formats {
			if err := ctx.Err(); err != nil {
				return original, err
			}

			path, ok := b.conv.VariantPath(source, size.Name, format)
			if !ok {
				return original, fmt.Errorf("%w: %s", ErrOutsideRoots, source)
			}

			out, err := b.proc.Render(img, size, format)
			if err != nil {
				return original, fmt.Errorf("%s/%s: %w", size.Name, format, err)
			}

			n, err := b.store.Put(ctx, path, bytes.NewReader(out.Data))
			if err != nil {
				return original, fmt.Errorf("failed to write %s: %w", path, err)
			}
			acc.addVariant(source, size.Name, format, path, n)
			b.metrics.VariantWritten(size.Name, format)

			logger.Debug("variant written",
				zap.String("source", source),
				zap.String("variant", path),
				zap.Int("width", out.Width),
				zap.Int("height", out.Height))

			if b.publisher != nil {
				if err := b.publisher.PublishVariant(ctx, source, size.Name, format, out.Data); err != nil {
					logger.Warn("failed to mirror variant", zap.String("variant", path), zap.Error(err))
				}
			}
		}
	}

	return original, nil
}
