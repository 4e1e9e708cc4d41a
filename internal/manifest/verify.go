package manifest

import (
	"context"
	"fmt"
	"sort"

	"github.com/tendant/manual-asset-pipeline/internal/storage"
)

// StaleEntry is a variant the manifest claims but storage no longer has
type StaleEntry struct {
	Source string `json:"source"`
	Size   string `json:"size"`
	Format string `json:"format"`
	Path   string `json:"path"`
}

// Report is the result of Verify
type Report struct {
	Checked int          `json:"checked"`
	Stale   []StaleEntry `json:"stale"`
}

// OK reports whether every claimed variant exists
func (r *Report) OK() bool {
	return len(r.Stale) == 0
}

// Verify checks every claimed variant against storage. It is an offline audit;
// resolution never calls it.
func Verify(ctx context.Context, m *Manifest, r storage.Reader) (*Report, error) {
	report := &Report{}

	for source, entry := range m.Images {
		for size, formats := range entry.Variants {
			for format, path := range formats {
				if err := ctx.Err(); err != nil {
					return report, err
				}

				report.Checked++
				ok, err := r.Exists(ctx, path)
				if err != nil {
					return report, fmt.Errorf("failed to check %s: %w", path, err)
				}
				if !ok {
					report.Stale = append(report.Stale, StaleEntry{
						Source: source,
						Size:   size,
						Format: format,
						Path:   path,
					})
				}
			}
		}
	}

	sort.Slice(report.Stale, func(i, j int) bool {
		return report.Stale[i].Path < report.Stale[j].Path
	})

	return report, nil
}
