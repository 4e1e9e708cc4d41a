// Package resolver maps a logical image path, size and format to the physical
// variant path. The manifest is consulted first; the optimized-directory
// convention is the fallback. Resolution never performs I/O.
package resolver

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/tendant/manual-asset-pipeline/internal/config"
	"github.com/tendant/manual-asset-pipeline/internal/convention"
	"github.com/tendant/manual-asset-pipeline/internal/manifest"
	"github.com/tendant/manual-asset-pipeline/internal/metrics"
	"github.com/tendant/manual-asset-pipeline/internal/storage"
	"github.com/tendant/manual-asset-pipeline/pkg/pipeline"
)

// Defaults applied when size or format is empty
const (
	DefaultSize   = pipeline.SizeMedium
	DefaultFormat = pipeline.FormatWebP
)

// Source tells where a resolved path came from
type Source string

const (
	// SourceManifest means the manifest recorded the path
	SourceManifest Source = "manifest"
	// SourceConvention means the path was computed from the optimized-directory convention
	SourceConvention Source = "convention"
	// SourcePassthrough means the directory matched no convention root and was left unchanged
	SourcePassthrough Source = "passthrough"
)

// Resolution is a resolved path tagged with its source
type Resolution struct {
	Path   string `json:"path"`
	Source Source `json:"source"`
}

// Found reports whether the manifest confirmed the variant
func (r Resolution) Found() bool {
	return r.Source == SourceManifest
}

// Option configures a Resolver
type Option func(*Resolver)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics counts resolutions by source
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// Resolver resolves variant paths. The manifest is loaded at most once and is
// read-only afterwards; all methods are safe for concurrent use.
type Resolver struct {
	conv     *convention.Convention
	widths   map[string]int
	manifest atomic.Pointer[manifest.Manifest]
	loadOnce sync.Once
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// New creates a resolver. sizes supplies the nominal widths used in picture
// source sets.
func New(conv *convention.Convention, sizes []config.SizeSpec, opts ...Option) *Resolver {
	r := &Resolver{
		conv: conv,
		widths: map[string]int{
			pipeline.SizeSmall:  400,
			pipeline.SizeMedium: 800,
			pipeline.SizeLarge:  1200,
		},
		logger: zap.NewNop(),
	}
	for _, s := range sizes {
		if s.Width > 0 {
			r.widths[s.Name] = s.Width
		}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load fetches the manifest from key. Only the first call has any effect. On
// failure the resolver keeps working from the convention alone and the error
// is returned for reporting.
func (r *Resolver) Load(ctx context.Context, src storage.Reader, key string) error {
	var err error
	r.loadOnce.Do(func() {
		var m *manifest.Manifest
		m, err = manifest.Fetch(ctx, src, key)
		if err != nil {
			r.logger.Warn("manifest unavailable, using convention fallback",
				zap.String("manifest", key), zap.Error(err))
			return
		}
		r.manifest.Store(m)
		r.logger.Info("manifest loaded",
			zap.String("manifest", key),
			zap.Int("images", m.Len()),
			zap.Int("variants", m.VariantCount()))
	})
	return err
}

// LoadAsync runs Load in the background. The returned channel is closed when
// loading finishes; lookups before then use the convention.
func (r *Resolver) LoadAsync(ctx context.Context, src storage.Reader, key string) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Load(ctx, src, key)
	}()
	return done
}

// SetManifest installs an already loaded manifest. Like Load, only the first
// call has any effect.
func (r *Resolver) SetManifest(m *manifest.Manifest) {
	r.loadOnce.Do(func() {
		r.manifest.Store(m)
	})
}

// Manifest returns the loaded manifest, or nil
func (r *Resolver) Manifest() *manifest.Manifest {
	return r.manifest.Load()
}

// Resolve returns the best path for logical at size and format. Empty size
// and format default to medium and webp.
func (r *Resolver) Resolve(logical, size, format string) string {
	return r.Lookup(logical, size, format).Path
}

// Lookup resolves like Resolve and also reports where the path came from
func (r *Resolver) Lookup(logical, size, format string) Resolution {
	if size == "" {
		size = DefaultSize
	}
	if format == "" {
		format = DefaultFormat
	}

	res := r.lookup(logical, size, format)
	r.metrics.Resolved(string(res.Source))
	return res
}

func (r *Resolver) lookup(logical, size, format string) Resolution {
	m := r.manifest.Load()

	if p, ok := m.Lookup(logical, size, format); ok {
		return Resolution{Path: p, Source: SourceManifest}
	}

	// Site-absolute paths match the manifest's root-relative keys
	if rel := strings.TrimPrefix(logical, "/"); rel != logical && rel != "" {
		if p, ok := m.Lookup(rel, size, format); ok {
			if !strings.HasPrefix(p, "/") && !strings.Contains(p, "://") {
				p = "/" + p
			}
			return Resolution{Path: p, Source: SourceManifest}
		}
	}

	p, ok := r.conv.VariantPath(logical, size, format)
	if !ok {
		return Resolution{Path: p, Source: SourcePassthrough}
	}
	return Resolution{Path: p, Source: SourceConvention}
}
