package resolver

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tendant/manual-asset-pipeline/internal/config"
	"github.com/tendant/manual-asset-pipeline/internal/convention"
	"github.com/tendant/manual-asset-pipeline/internal/manifest"
)

func TestPictureDefaults(t *testing.T) {
	r := newResolver()
	html := r.Picture(sox406)

	dir := "manuais/sox406/images/optimized/equipment/sox406-main"
	assert.True(t, strings.HasPrefix(html, `<picture class="responsive-image">`))
	assert.Contains(t, html, dir+"-small.webp 400w, "+dir+"-medium.webp 800w, "+dir+"-large.webp 1200w")
	assert.Contains(t, html, dir+"-small.jpg 400w, "+dir+"-medium.jpg 800w, "+dir+"-large.jpg 1200w")
	assert.Contains(t, html, `type="image/webp"`)
	assert.Contains(t, html, `type="image/jpeg"`)
	assert.Contains(t, html, `<img src="`+dir+`-medium.jpg" alt=""`)
	assert.Contains(t, html, `loading="lazy"`)
	assert.Contains(t, html, `class="optimized-image"`)
	assert.Equal(t, 2, strings.Count(html, `sizes="(max-width: 768px) 100vw, (max-width: 1200px) 50vw, 800px"`))
}

func TestPictureOptions(t *testing.T) {
	r := newResolver()
	html := r.Picture(sox406,
		WithAlt("Main unit"),
		WithSizes("100vw"),
		WithClass("hero"),
		WithLazy(false))

	assert.Contains(t, html, `<picture class="hero">`)
	assert.Contains(t, html, `alt="Main unit"`)
	assert.Contains(t, html, `sizes="100vw"`)
	assert.NotContains(t, html, "loading=")
}

func TestPictureEscapesAttributes(t *testing.T) {
	r := newResolver()
	html := r.Picture(sox406, WithAlt(`"><script>alert(1)</script>`))

	assert.NotContains(t, html, "<script>")
	assert.Contains(t, html, "&lt;script&gt;")
}

func TestPictureUsesManifestAndConfiguredWidths(t *testing.T) {
	m := manifest.New(time.Now(), nil, nil)
	m.Add(sox406, "medium", "jpg", "cdn/main-800.jpg")

	sizes := []config.SizeSpec{{Name: "small", Width: 320}, {Name: "medium", Width: 640}, {Name: "large", Width: 1024}}
	r := New(convention.Default(), sizes)
	r.SetManifest(m)

	html := r.Picture(sox406)
	assert.Contains(t, html, "cdn/main-800.jpg 640w")
	assert.Contains(t, html, `<img src="cdn/main-800.jpg"`)
	assert.Contains(t, html, "-small.webp 320w")
	assert.Contains(t, html, "-large.jpg 1024w")
}

func TestPictureUnboundedWidthKeepsNominalDescriptor(t *testing.T) {
	sizes := []config.SizeSpec{{Name: "small", Width: 320}, {Name: "medium", Height: 600}, {Name: "large"}}
	r := New(convention.Default(), sizes)

	html := r.Picture(sox406)
	assert.Contains(t, html, "-small.webp 320w")
	assert.Contains(t, html, "-medium.webp 800w")
	assert.Contains(t, html, "-large.jpg 1200w")
	assert.NotContains(t, html, ".webp,")
	assert.NotContains(t, html, ".jpg,")
}
