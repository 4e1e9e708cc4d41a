package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tendant/manual-asset-pipeline/internal/convention"
	"github.com/tendant/manual-asset-pipeline/pkg/pipeline"
)

// DefaultManifestPath is where the manifest is written, relative to the site root
const DefaultManifestPath = "assets/images/manifest.json"

// Config represents the asset pipeline configuration
type Config struct {
	SiteRoot     string         `yaml:"site_root"`
	AssetsDir    string         `yaml:"assets_dir"`
	ManualsDir   string         `yaml:"manuals_dir"`
	ManifestPath string         `yaml:"manifest_path"`
	Sizes        []SizeSpec     `yaml:"sizes"`
	Formats      []string       `yaml:"formats"`
	Quality      map[string]int `yaml:"quality"`
	Concurrency  int            `yaml:"concurrency"`
	FailOnError  bool           `yaml:"fail_on_error"`
	Log          LogConfig      `yaml:"log"`
	Server       ServerConfig   `yaml:"server"`
	Content      ContentConfig  `yaml:"content"`
}

// SizeSpec is one size class. A zero Width or Height means that dimension is
// unbounded; both zero keeps the source resolution. In JSON an unbounded
// dimension is null.
type SizeSpec struct {
	Name   string `yaml:"name"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

type sizeSpecJSON struct {
	Name   string `json:"name"`
	Width  *int   `json:"width"`
	Height *int   `json:"height"`
}

func (s SizeSpec) MarshalJSON() ([]byte, error) {
	return json.Marshal(sizeSpecJSON{Name: s.Name, Width: bound(s.Width), Height: bound(s.Height)})
}

func (s *SizeSpec) UnmarshalJSON(data []byte) error {
	var v sizeSpecJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = SizeSpec{Name: v.Name}
	if v.Width != nil {
		s.Width = *v.Width
	}
	if v.Height != nil {
		s.Height = *v.Height
	}
	return nil
}

func bound(n int) *int {
	if n == 0 {
		return nil
	}
	return &n
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
	// SiteURL is the base URL of a deployed site to read the manifest from
	SiteURL string `yaml:"site_url"`
}

// ContentConfig enables mirroring variants into a simple-content store
type ContentConfig struct {
	Enabled    bool   `yaml:"enabled"`
	StorageDir string `yaml:"storage_dir"`
	OwnerID    string `yaml:"owner_id"`
	TenantID   string `yaml:"tenant_id"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		SiteRoot:     ".",
		AssetsDir:    convention.DefaultAssetsDir,
		ManualsDir:   convention.DefaultManualsDir,
		ManifestPath: DefaultManifestPath,
		Sizes: []SizeSpec{
			{Name: pipeline.SizeThumbnail, Width: 150, Height: 150},
			{Name: pipeline.SizeSmall, Width: 400, Height: 300},
			{Name: pipeline.SizeMedium, Width: 800, Height: 600},
			{Name: pipeline.SizeLarge, Width: 1200, Height: 900},
			{Name: pipeline.SizeOriginal},
		},
		Formats: []string{pipeline.FormatWebP, pipeline.FormatJPG, pipeline.FormatPNG},
		Quality: map[string]int{
			pipeline.FormatWebP: 80,
			pipeline.FormatJPG:  85,
			pipeline.FormatPNG:  90,
		},
		Concurrency: 1,
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Content: ContentConfig{
			StorageDir: "./dev-data",
		},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides fields from ASSET_* variables. lookup is usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"ASSET_SITE_ROOT":     &c.SiteRoot,
		"ASSET_ASSETS_DIR":    &c.AssetsDir,
		"ASSET_MANUALS_DIR":   &c.ManualsDir,
		"ASSET_MANIFEST_PATH": &c.ManifestPath,
		"ASSET_LOG_LEVEL":     &c.Log.Level,
		"ASSET_LOG_FORMAT":    &c.Log.Format,
		"ASSET_HTTP_ADDR":     &c.Server.Addr,
		"ASSET_SITE_URL":      &c.Server.SiteURL,
		"CONTENT_STORAGE_DIR": &c.Content.StorageDir,
	}
	for key, field := range str {
		if v, ok := lookup(key); ok && v != "" {
			*field = v
		}
	}

	if v, ok := lookup("ASSET_FORMATS"); ok && v != "" {
		c.Formats = splitList(v)
	}

	if v, ok := lookup("ASSET_CONCURRENCY"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ASSET_CONCURRENCY: %w", err)
		}
		c.Concurrency = n
	}

	if v, ok := lookup("ASSET_FAIL_ON_ERROR"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ASSET_FAIL_ON_ERROR: %w", err)
		}
		c.FailOnError = b
	}

	if v, ok := lookup("CONTENT_MIRROR"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CONTENT_MIRROR: %w", err)
		}
		c.Content.Enabled = b
	}

	return c.Validate()
}

// Validate checks if required configuration fields are set
func (c *Config) Validate() error {
	if c.SiteRoot == "" {
		return errors.New("site_root is required")
	}
	if c.AssetsDir == "" {
		return errors.New("assets_dir is required")
	}
	if c.ManualsDir == "" {
		return errors.New("manuals_dir is required")
	}
	if c.ManifestPath == "" {
		return errors.New("manifest_path is required")
	}
	if len(c.Sizes) == 0 {
		return errors.New("at least one size is required")
	}
	if len(c.Formats) == 0 {
		return errors.New("at least one format is required")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be >= 1, got %d", c.Concurrency)
	}

	seen := make(map[string]bool, len(c.Sizes))
	for _, s := range c.Sizes {
		if s.Name == "" {
			return errors.New("size name is required")
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate size %q", s.Name)
		}
		seen[s.Name] = true
		if s.Width < 0 || s.Height < 0 {
			return fmt.Errorf("size %q has negative dimensions", s.Name)
		}
	}

	for _, f := range c.Formats {
		switch f {
		case pipeline.FormatWebP, pipeline.FormatJPG, pipeline.FormatPNG:
		default:
			return fmt.Errorf("unsupported format %q", f)
		}
	}

	for f, q := range c.Quality {
		if q < 0 || q > 100 {
			return fmt.Errorf("quality for %s must be within 0-100, got %d", f, q)
		}
	}

	return nil
}

// Convention builds the optimized-directory convention for this configuration.
// Builder and resolver must both obtain it here.
func (c *Config) Convention() *convention.Convention {
	return convention.New(c.AssetsDir, c.ManualsDir)
}

// Size returns the size spec with the given name
func (c *Config) Size(name string) (SizeSpec, bool) {
	for _, s := range c.Sizes {
		if s.Name == name {
			return s, true
		}
	}
	return SizeSpec{}, false
}

// QualityFor returns the configured quality for a format, falling back to 85
func (c *Config) QualityFor(format string) int {
	if q, ok := c.Quality[format]; ok {
		return q
	}
	return 85
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
