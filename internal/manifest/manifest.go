// Package manifest reads and writes the image manifest: the build-time index
// of which variants exist for each source image and where.
package manifest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/tendant/manual-asset-pipeline/internal/config"
	"github.com/tendant/manual-asset-pipeline/internal/storage"
)

// Manifest maps source image paths to their generated variants
type Manifest struct {
	Generated time.Time         `json:"generated"`
	Stats     Stats             `json:"stats"`
	Formats   []string          `json:"formats"`
	Sizes     []config.SizeSpec `json:"sizes"`
	Images    map[string]Entry  `json:"images"`
}

// Stats summarizes the build that produced the manifest
type Stats struct {
	Processed      int   `json:"processed"`
	Errors         int   `json:"errors"`
	OriginalBytes  int64 `json:"original_size"`
	OptimizedBytes int64 `json:"optimized_size"`
}

// Entry lists the variants of one source image: size -> format -> path
type Entry struct {
	Original string                       `json:"original"`
	Variants map[string]map[string]string `json:"variants"`
}

// New creates an empty manifest
func New(generated time.Time, sizes []config.SizeSpec, formats []string) *Manifest {
	return &Manifest{
		Generated: generated.UTC(),
		Sizes:     sizes,
		Formats:   formats,
		Images:    make(map[string]Entry),
	}
}

// Add records a variant path for source
func (m *Manifest) Add(source, size, format, path string) {
	if m.Images == nil {
		m.Images = make(map[string]Entry)
	}

	entry, ok := m.Images[source]
	if !ok {
		entry = Entry{Original: source, Variants: make(map[string]map[string]string)}
	}
	if entry.Variants[size] == nil {
		entry.Variants[size] = make(map[string]string)
	}
	entry.Variants[size][format] = path
	m.Images[source] = entry
}

// Lookup returns the recorded path for (source, size, format)
func (m *Manifest) Lookup(source, size, format string) (string, bool) {
	if m == nil {
		return "", false
	}
	entry, ok := m.Images[source]
	if !ok {
		return "", false
	}
	p, ok := entry.Variants[size][format]
	return p, ok
}

// Len returns the number of source images
func (m *Manifest) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Images)
}

// VariantCount returns the number of recorded variants
func (m *Manifest) VariantCount() int {
	if m == nil {
		return 0
	}
	n := 0
	for _, e := range m.Images {
		for _, formats := range e.Variants {
			n += len(formats)
		}
	}
	return n
}

// Encode writes the manifest as indented JSON. Map keys are sorted, so two
// manifests with the same content encode identically apart from Generated.
func (m *Manifest) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	return nil
}

// Bytes returns the encoded manifest
func (m *Manifest) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := m.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads a manifest
func Decode(r io.Reader) (*Manifest, error) {
	var m Manifest
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if m.Images == nil {
		m.Images = make(map[string]Entry)
	}
	return &m, nil
}

// Save writes the manifest to key in storage. FilesystemStorage replaces the
// file atomically.
func Save(ctx context.Context, w storage.Writer, key string, m *Manifest) error {
	data, err := m.Bytes()
	if err != nil {
		return err
	}
	if _, err := w.Put(ctx, key, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// Fetch loads the manifest stored at key
func Fetch(ctx context.Context, r storage.Reader, key string) (*Manifest, error) {
	rc, err := r.GetReader(ctx, strings.TrimPrefix(key, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rc.Close()

	return Decode(rc)
}
