package builder

import (
	"fmt"
	"time"

	"github.com/tendant/manual-asset-pipeline/internal/manifest"
)

// ImageError is a per-image failure recorded during a build
type ImageError struct {
	Source string
	Err    error
}

func (e ImageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

func (e ImageError) Unwrap() error {
	return e.Err
}

// Summary describes one build run
type Summary struct {
	RunID          string
	Manifest       *manifest.Manifest
	Processed      int
	Variants       int
	Errors         []ImageError
	OriginalBytes  int64
	OptimizedBytes int64
	Duration       time.Duration

	// Err is set when the build could not complete and no manifest was written
	Err error
}

// Failed reports whether the run should be treated as a failure. Per-image
// errors only count when failOnError is set.
func (s *Summary) Failed(failOnError bool) bool {
	if s.Err != nil {
		return true
	}
	return failOnError && len(s.Errors) > 0
}

// formatBytes renders n with a binary unit, e.g. "1.5 KB"
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %s", float64(n)/float64(div), []string{"KB", "MB", "GB", "TB", "PB", "EB"}[exp])
}
