package resolver

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tendant/manual-asset-pipeline/internal/config"
	"github.com/tendant/manual-asset-pipeline/internal/convention"
	"github.com/tendant/manual-asset-pipeline/internal/manifest"
	"github.com/tendant/manual-asset-pipeline/internal/metrics"
	"github.com/tendant/manual-asset-pipeline/internal/storage"
)

const sox406 = "manuais/sox406/images/equipment/sox406-main.jpg"

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newResolver(opts ...Option) *Resolver {
	return New(convention.Default(), config.Default().Sizes, opts...)
}

func TestResolveConventionFallback(t *testing.T) {
	r := newResolver()

	res := r.Lookup(sox406, "medium", "webp")
	assert.Equal(t, "manuais/sox406/images/optimized/equipment/sox406-main-medium.webp", res.Path)
	assert.Equal(t, SourceConvention, res.Source)
	assert.False(t, res.Found())
}

func TestResolveDefaults(t *testing.T) {
	r := newResolver()
	assert.Equal(t, "manuais/sox406/images/optimized/equipment/sox406-main-medium.webp", r.Resolve(sox406, "", ""))
	assert.Equal(t, "assets/images/optimized/logo-small.webp", r.Resolve("assets/images/logo.png", "small", ""))
}

func TestResolveManifestWins(t *testing.T) {
	m := manifest.New(time.Now(), nil, nil)
	m.Add(sox406, "medium", "webp", "CUSTOM/PATH.webp")

	r := newResolver()
	r.SetManifest(m)

	res := r.Lookup(sox406, "medium", "webp")
	assert.Equal(t, "CUSTOM/PATH.webp", res.Path)
	assert.Equal(t, SourceManifest, res.Source)

	// pairs the manifest lacks still fall back
	res = r.Lookup(sox406, "large", "webp")
	assert.Equal(t, "manuais/sox406/images/optimized/equipment/sox406-main-large.webp", res.Path)
	assert.Equal(t, SourceConvention, res.Source)
}

func TestResolveSiteAbsolutePath(t *testing.T) {
	m := manifest.New(time.Now(), nil, nil)
	m.Add(sox406, "medium", "webp", "manuais/sox406/images/optimized/equipment/sox406-main-medium.webp")

	r := newResolver()
	r.SetManifest(m)

	res := r.Lookup("/"+sox406, "medium", "webp")
	assert.Equal(t, SourceManifest, res.Source)
	assert.Equal(t, "/manuais/sox406/images/optimized/equipment/sox406-main-medium.webp", res.Path)

	res = r.Lookup("/"+sox406, "small", "jpg")
	assert.Equal(t, SourceConvention, res.Source)
	assert.Equal(t, "/manuais/sox406/images/optimized/equipment/sox406-main-small.jpg", res.Path)
}

func TestResolvePassthrough(t *testing.T) {
	r := newResolver()

	res := r.Lookup("https://cdn.example.com/img/photo.jpg", "small", "webp")
	assert.Equal(t, SourcePassthrough, res.Source)
	assert.Equal(t, "https://cdn.example.com/img/photo-small.webp", res.Path)
}

func TestResolveIsTotal(t *testing.T) {
	r := newResolver()
	inputs := []string{
		"",
		"/",
		"noext",
		"assets/images/",
		"assets/images/a.b.c.png",
		"assets/images/pic.jpg/",
		"manuais//images/x.jpg",
		"../../etc/passwd",
		"assets/images/optimized/already-small.webp",
		"\x00\xff",
	}

	for _, in := range inputs {
		assert.NotPanics(t, func() {
			_ = r.Resolve(in, "medium", "webp")
			_ = r.Picture(in)
		}, "input %q", in)
	}

	assert.Equal(t, "assets/images/optimized/a.b.c-medium.webp", r.Resolve("assets/images/a.b.c.png", "", ""))
	assert.Equal(t, "assets/images/optimized/pic-medium.webp", r.Resolve("assets/images/pic.jpg/", "", ""))
	assert.Equal(t, "noext-medium.webp", r.Resolve("noext", "", ""))
}

func TestLoadSoftDegrades(t *testing.T) {
	store, err := storage.NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)

	r := newResolver()
	err = r.Load(context.Background(), store, "assets/images/manifest.json")
	assert.ErrorIs(t, err, manifest.ErrUnavailable)
	assert.Nil(t, r.Manifest())

	assert.Equal(t, "manuais/sox406/images/optimized/equipment/sox406-main-medium.webp", r.Resolve(sox406, "medium", "webp"))
}

func TestLoadAsync(t *testing.T) {
	store, err := storage.NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)

	m := manifest.New(time.Now(), nil, nil)
	m.Add(sox406, "medium", "webp", "CUSTOM/PATH.webp")
	require.NoError(t, manifest.Save(context.Background(), store, "assets/images/manifest.json", m))

	r := newResolver()
	<-r.LoadAsync(context.Background(), store, "/assets/images/manifest.json")

	require.NotNil(t, r.Manifest())
	assert.Equal(t, "CUSTOM/PATH.webp", r.Resolve(sox406, "medium", "webp"))

	// later loads are ignored
	r.SetManifest(manifest.New(time.Now(), nil, nil))
	assert.Equal(t, "CUSTOM/PATH.webp", r.Resolve(sox406, "medium", "webp"))
}

func TestLoadMalformed(t *testing.T) {
	store, err := storage.NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)
	_, err = store.Put(context.Background(), "assets/images/manifest.json", strings.NewReader("{not json"))
	require.NoError(t, err)

	r := newResolver()
	err = r.Load(context.Background(), store, "assets/images/manifest.json")
	assert.ErrorIs(t, err, manifest.ErrMalformed)
	assert.Equal(t, SourceConvention, r.Lookup(sox406, "", "").Source)
}

func TestLookupMetrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	r := newResolver(WithMetrics(m))

	r.Resolve(sox406, "", "")
	r.Resolve("elsewhere/a.png", "", "")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Resolutions.WithLabelValues("convention")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Resolutions.WithLabelValues("passthrough")))
}
