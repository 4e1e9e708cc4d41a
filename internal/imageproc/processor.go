// Package imageproc decodes source images, resizes them without upscaling and
// re-encodes them as webp, jpg or png.
package imageproc

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"io"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"  // Register BMP decoder
	_ "golang.org/x/image/tiff" // Register TIFF decoder
	_ "golang.org/x/image/webp" // Register WebP decoder

	"github.com/tendant/manual-asset-pipeline/internal/config"
	"github.com/tendant/manual-asset-pipeline/pkg/pipeline"
)

// Processor renders variants with per-format quality settings
type Processor struct {
	quality map[string]int
}

// New creates a processor. Formats missing from quality encode at 85.
func New(quality map[string]int) *Processor {
	q := make(map[string]int, len(quality))
	for k, v := range quality {
		q[k] = v
	}
	return &Processor{quality: q}
}

// Rendered is one encoded variant
type Rendered struct {
	Data   []byte
	Width  int
	Height int
}

// Decode reads a source image, applying EXIF orientation
func (p *Processor) Decode(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, nil
}

// Render resizes img to size and encodes it as format
func (p *Processor) Render(img image.Image, size config.SizeSpec, format string) (*Rendered, error) {
	resized := Resize(img, size)

	var buf bytes.Buffer
	if err := p.Encode(&buf, resized, format); err != nil {
		return nil, err
	}

	b := resized.Bounds()
	return &Rendered{
		Data:   buf.Bytes(),
		Width:  b.Dx(),
		Height: b.Dy(),
	}, nil
}

// Encode writes img in the given format at its configured quality
func (p *Processor) Encode(w io.Writer, img image.Image, format string) error {
	quality := p.Quality(format)

	var err error
	switch format {
	case pipeline.FormatWebP:
		err = webp.Encode(w, img, &webp.Options{Quality: float32(quality)})
	case pipeline.FormatJPG:
		err = imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
	case pipeline.FormatPNG:
		err = imaging.Encode(w, img, imaging.PNG, imaging.PNGCompressionLevel(pngLevel(quality)))
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrEncode, format, err)
	}
	return nil
}

// Quality returns the quality used for format
func (p *Processor) Quality(format string) int {
	if q, ok := p.quality[format]; ok {
		return q
	}
	return 85
}

// Resize scales img to fit size, preserving aspect ratio. Images already
// within bounds are returned at their own resolution; nothing is upscaled.
func Resize(img image.Image, size config.SizeSpec) image.Image {
	b := img.Bounds()
	w, h := size.Width, size.Height

	switch {
	case w <= 0 && h <= 0:
		return img
	case w > 0 && h > 0:
		return imaging.Fit(img, w, h, imaging.Lanczos)
	case w > 0:
		if b.Dx() <= w {
			return img
		}
		return imaging.Resize(img, w, 0, imaging.Lanczos)
	default:
		if b.Dy() <= h {
			return img
		}
		return imaging.Resize(img, 0, h, imaging.Lanczos)
	}
}

// png is lossless, so quality picks the compression effort instead
func pngLevel(quality int) png.CompressionLevel {
	switch {
	case quality >= 90:
		return png.BestCompression
	case quality >= 50:
		return png.DefaultCompression
	default:
		return png.BestSpeed
	}
}
