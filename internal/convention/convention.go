// Package convention holds the Optimized-Directory Convention shared by the
// manifest builder and the variant resolver. Both sides must construct it from
// the same configuration so that written and guessed paths never diverge.
package convention

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// OptimizedSegment is the directory inserted after a matched source prefix.
const OptimizedSegment = "optimized"

// Default source roots
const (
	DefaultAssetsDir  = "assets/images"
	DefaultManualsDir = "manuais"
)

var sourceExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".tiff": true,
	".tif":  true,
}

// Convention maps a source directory to its optimized sibling.
type Convention struct {
	assetsDir  string
	manualsDir string
	prefix     *regexp.Regexp
}

// New creates a convention for the given assets directory and manuals directory.
// Matching is anchored: "<assetsDir>" or "<manualsDir>/<name>/images", followed
// by a slash or the end of the directory.
func New(assetsDir, manualsDir string) *Convention {
	a := cleanRoot(assetsDir)
	m := cleanRoot(manualsDir)
	pattern := fmt.Sprintf(`^(%s|%s/[^/]+/images)(?:/|$)`, regexp.QuoteMeta(a), regexp.QuoteMeta(m))

	return &Convention{
		assetsDir:  a,
		manualsDir: m,
		prefix:     regexp.MustCompile(pattern),
	}
}

// Default returns the convention for assets/images and manuais/<name>/images.
func Default() *Convention {
	return New(DefaultAssetsDir, DefaultManualsDir)
}

// AssetsDir returns the top-level assets root.
func (c *Convention) AssetsDir() string {
	return c.assetsDir
}

// ManualsDir returns the directory holding one folder per manual.
func (c *Convention) ManualsDir() string {
	return c.manualsDir
}

// OptimizedDir returns the optimized directory for dir. The second result is
// false when dir is outside every source root; dir is then returned unchanged.
// A directory that is already optimized is returned as is.
func (c *Convention) OptimizedDir(dir string) (string, bool) {
	lead, rel := splitLead(dir)

	loc := c.prefix.FindStringSubmatchIndex(rel)
	if loc == nil {
		return dir, false
	}

	end := loc[3]
	prefix, rest := rel[:end], rel[end:]

	marker := "/" + OptimizedSegment
	if rest == marker || strings.HasPrefix(rest, marker+"/") {
		return dir, true
	}

	return lead + prefix + marker + rest, true
}

// IsOptimizedDir reports whether dir already sits inside an optimized tree.
func (c *Convention) IsOptimizedDir(dir string) bool {
	_, rel := splitLead(dir)
	loc := c.prefix.FindStringSubmatchIndex(rel)
	if loc == nil {
		return false
	}
	rest := rel[loc[3]:]
	marker := "/" + OptimizedSegment
	return rest == marker || strings.HasPrefix(rest, marker+"/")
}

// VariantPath computes <optimizedDir>/<base>-<size>.<format> for a logical path.
// The boolean mirrors OptimizedDir.
func (c *Convention) VariantPath(logical, size, format string) (string, bool) {
	parts := Split(logical)
	dir, ok := c.OptimizedDir(parts.Dir)
	return Join(dir, VariantName(parts.Base, size, format)), ok
}

// VariantName is the file name of one variant.
func VariantName(base, size, format string) string {
	return base + "-" + size + "." + format
}

// Parts is a logical path split into directory, base name and extension.
type Parts struct {
	Dir  string
	Base string
	Ext  string // without the dot
}

// Split breaks p into its parts. It accepts any string: trailing slashes are
// ignored, a leading dot is part of the base, and only the last dot starts the
// extension.
func Split(p string) Parts {
	trimmed := strings.TrimRight(p, "/")
	if trimmed == "" && strings.HasPrefix(p, "/") {
		return Parts{Dir: "/"}
	}

	dir, file := "", trimmed
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		dir, file = trimmed[:i], trimmed[i+1:]
		if dir == "" {
			dir = "/"
		}
	}

	base, ext := file, ""
	if i := strings.LastIndex(file, "."); i > 0 {
		base, ext = file[:i], file[i+1:]
	}

	return Parts{Dir: dir, Base: base, Ext: ext}
}

// Join joins a slash directory and a file name without cleaning either.
func Join(dir, name string) string {
	switch {
	case dir == "":
		return name
	case strings.HasSuffix(dir, "/"):
		return dir + name
	default:
		return dir + "/" + name
	}
}

// IsSourceImage reports whether name has a recognized source image extension.
func IsSourceImage(name string) bool {
	return sourceExtensions[strings.ToLower(path.Ext(name))]
}

func splitLead(dir string) (string, string) {
	if strings.HasPrefix(dir, "/") {
		return "/", dir[1:]
	}
	return "", dir
}

func cleanRoot(root string) string {
	root = strings.ReplaceAll(root, "\\", "/")
	root = strings.TrimPrefix(root, "./")
	return strings.Trim(root, "/")
}
