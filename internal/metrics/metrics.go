// Package metrics exposes build and resolver counters for Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the pipeline collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	Variants      *prometheus.CounterVec
	ImageErrors   prometheus.Counter
	BuildDuration prometheus.Histogram
	Builds        *prometheus.CounterVec
	Resolutions   *prometheus.CounterVec
}

// New creates the collectors and registers them with reg when reg is non-nil
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Variants: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "asset",
			Name:      "variants_written_total",
			Help:      "Image variants written by the manifest builder.",
		}, []string{"size", "format"}),
		ImageErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "asset",
			Name:      "image_errors_total",
			Help:      "Source images that failed to process.",
		}),
		BuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "asset",
			Name:      "build_duration_seconds",
			Help:      "Wall time of manifest builds.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		Builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "asset",
			Name:      "builds_total",
			Help:      "Manifest builds by outcome.",
		}, []string{"outcome"}),
		Resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "asset",
			Name:      "resolutions_total",
			Help:      "Variant resolutions by source (manifest, convention, passthrough).",
		}, []string{"source"}),
	}

	if reg != nil {
		reg.MustRegister(m.Variants, m.ImageErrors, m.BuildDuration, m.Builds, m.Resolutions)
	}

	return m
}

// VariantWritten counts one written variant
func (m *Metrics) VariantWritten(size, format string) {
	if m == nil {
		return
	}
	m.Variants.WithLabelValues(size, format).Inc()
}

// ImageFailed counts one failed source image
func (m *Metrics) ImageFailed() {
	if m == nil {
		return
	}
	m.ImageErrors.Inc()
}

// BuildFinished records a build's duration and outcome
func (m *Metrics) BuildFinished(d time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.BuildDuration.Observe(d.Seconds())
	outcome := "ok"
	if failed {
		outcome = "failed"
	}
	m.Builds.WithLabelValues(outcome).Inc()
}

// Resolved counts one resolution by its source
func (m *Metrics) Resolved(source string) {
	if m == nil {
		return
	}
	m.Resolutions.WithLabelValues(source).Inc()
}
