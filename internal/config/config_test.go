package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "assets.yaml")

	configContent := `
site_root: "site"
manifest_path: "assets/images/manifest.json"
sizes:
  - name: small
    width: 400
    height: 300
  - name: medium
    width: 800
    height: 600
formats: ["webp", "jpg"]
quality:
  webp: 70
concurrency: 4
fail_on_error: true
log:
  level: debug
`

	require.NoError(t, os.WriteFile(configFile, []byte(configContent), 0644))

	cfg, err := Load(configFile)
	require.NoError(t, err)

	assert.Equal(t, "site", cfg.SiteRoot)
	assert.Equal(t, "assets/images", cfg.AssetsDir, "unset fields keep defaults")
	assert.Len(t, cfg.Sizes, 2)
	assert.Equal(t, []string{"webp", "jpg"}, cfg.Formats)
	assert.Equal(t, 70, cfg.QualityFor("webp"))
	assert.Equal(t, 85, cfg.QualityFor("jpg"), "quality map merges with defaults")
	assert.Equal(t, 4, cfg.Concurrency)
	assert.True(t, cfg.FailOnError)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Len(t, cfg.Sizes, 5)
	assert.Equal(t, "thumbnail", cfg.Sizes[0].Name)
	assert.Equal(t, 150, cfg.Sizes[0].Width)
	assert.Equal(t, SizeSpec{Name: "original"}, cfg.Sizes[4])
	assert.Equal(t, []string{"webp", "jpg", "png"}, cfg.Formats)
	assert.Equal(t, 80, cfg.QualityFor("webp"))
	assert.Equal(t, 90, cfg.QualityFor("png"))
	assert.Equal(t, DefaultManifestPath, cfg.ManifestPath)
	assert.False(t, cfg.FailOnError)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"ASSET_SITE_ROOT":     "/srv/site",
		"ASSET_FORMATS":       "webp, png",
		"ASSET_CONCURRENCY":   "3",
		"ASSET_FAIL_ON_ERROR": "true",
		"ASSET_LOG_LEVEL":     "",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(lookup))

	assert.Equal(t, "/srv/site", cfg.SiteRoot)
	assert.Equal(t, []string{"webp", "png"}, cfg.Formats)
	assert.Equal(t, 3, cfg.Concurrency)
	assert.True(t, cfg.FailOnError)
	assert.Equal(t, "info", cfg.Log.Level, "empty values are ignored")
}

func TestApplyEnvRejectsBadNumbers(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(func(k string) (string, bool) {
		if k == "ASSET_CONCURRENCY" {
			return "many", true
		}
		return "", false
	})
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "missing site root", mutate: func(c *Config) { c.SiteRoot = "" }, wantErr: true},
		{name: "no sizes", mutate: func(c *Config) { c.Sizes = nil }, wantErr: true},
		{name: "duplicate size", mutate: func(c *Config) { c.Sizes = append(c.Sizes, SizeSpec{Name: "small", Width: 1}) }, wantErr: true},
		{name: "negative width", mutate: func(c *Config) { c.Sizes[0].Width = -1 }, wantErr: true},
		{name: "unknown format", mutate: func(c *Config) { c.Formats = []string{"avif"} }, wantErr: true},
		{name: "quality out of range", mutate: func(c *Config) { c.Quality["jpg"] = 101 }, wantErr: true},
		{name: "zero concurrency", mutate: func(c *Config) { c.Concurrency = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConventionFollowsConfig(t *testing.T) {
	cfg := Default()
	cfg.AssetsDir = "static/img"

	dir, ok := cfg.Convention().OptimizedDir("static/img/ui")
	assert.True(t, ok)
	assert.Equal(t, "static/img/optimized/ui", dir)
}

func TestSizeSpecJSONUsesNullForUnbounded(t *testing.T) {
	data, err := json.Marshal([]SizeSpec{
		{Name: "small", Width: 400, Height: 300},
		{Name: "wide", Width: 1600},
		{Name: "original"},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"name": "small", "width": 400, "height": 300},
		{"name": "wide", "width": 1600, "height": null},
		{"name": "original", "width": null, "height": null}
	]`, string(data))

	var back []SizeSpec
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, SizeSpec{Name: "original"}, back[2])
	assert.Equal(t, SizeSpec{Name: "wide", Width: 1600}, back[1])
}
