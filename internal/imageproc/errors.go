package imageproc

import "errors"

var (
	// ErrDecode is returned when a source image cannot be decoded
	ErrDecode = errors.New("image decode failed")

	// ErrEncode is returned when a variant cannot be encoded
	ErrEncode = errors.New("image encode failed")

	// ErrUnsupportedFormat is returned for unknown output formats
	ErrUnsupportedFormat = errors.New("unsupported output format")
)
