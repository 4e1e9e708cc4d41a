package resolver

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/tendant/manual-asset-pipeline/pkg/pipeline"
)

// Picture markup defaults
const (
	DefaultPictureSizes = "(max-width: 768px) 100vw, (max-width: 1200px) 50vw, 800px"
	DefaultPictureClass = "responsive-image"
)

var pictureSizes = []string{pipeline.SizeSmall, pipeline.SizeMedium, pipeline.SizeLarge}

var pictureTemplate = template.Must(template.New("picture").Parse(
	`<picture class="{{.Class}}">
  <source srcset="{{.WebP}}" type="image/webp" sizes="{{.Sizes}}">
  <source srcset="{{.JPEG}}" type="image/jpeg" sizes="{{.Sizes}}">
  <img src="{{.Fallback}}" alt="{{.Alt}}"{{if .Lazy}} loading="lazy"{{end}} class="optimized-image">
</picture>`))

type pictureOptions struct {
	alt   string
	sizes string
	class string
	lazy  bool
}

// PictureOption configures Picture
type PictureOption func(*pictureOptions)

// WithAlt sets the img alt text
func WithAlt(alt string) PictureOption {
	return func(o *pictureOptions) { o.alt = alt }
}

// WithSizes sets the sources' sizes attribute
func WithSizes(sizes string) PictureOption {
	return func(o *pictureOptions) { o.sizes = sizes }
}

// WithClass sets the picture element's class
func WithClass(class string) PictureOption {
	return func(o *pictureOptions) { o.class = class }
}

// WithLazy toggles loading="lazy" on the img
func WithLazy(lazy bool) PictureOption {
	return func(o *pictureOptions) { o.lazy = lazy }
}

// Picture builds a <picture> fragment for logical with webp and jpg source
// sets over small, medium and large, and a medium jpg fallback img. Attribute
// values are HTML-escaped.
func (r *Resolver) Picture(logical string, opts ...PictureOption) string {
	o := pictureOptions{
		sizes: DefaultPictureSizes,
		class: DefaultPictureClass,
		lazy:  true,
	}
	for _, opt := range opts {
		opt(&o)
	}

	data := struct {
		Class, Sizes, Alt string
		WebP, JPEG        string
		Fallback          string
		Lazy              bool
	}{
		Class:    o.class,
		Sizes:    o.sizes,
		Alt:      o.alt,
		WebP:     r.srcset(logical, pipeline.FormatWebP),
		JPEG:     r.srcset(logical, pipeline.FormatJPG),
		Fallback: r.Resolve(logical, pipeline.SizeMedium, pipeline.FormatJPG),
		Lazy:     o.lazy,
	}

	var buf bytes.Buffer
	if err := pictureTemplate.Execute(&buf, data); err != nil {
		// Only reachable on writer failure, which bytes.Buffer never reports
		return ""
	}
	return buf.String()
}

func (r *Resolver) srcset(logical, format string) string {
	candidates := make([]string, 0, len(pictureSizes))
	for _, size := range pictureSizes {
		candidates = append(candidates, fmt.Sprintf("%s %dw", r.Resolve(logical, size, format), r.widths[size]))
	}
	return strings.Join(candidates, ", ")
}
