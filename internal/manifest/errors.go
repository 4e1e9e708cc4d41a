package manifest

import "errors"

var (
	// ErrUnavailable is returned when the manifest cannot be read
	ErrUnavailable = errors.New("manifest unavailable")

	// ErrMalformed is returned when the manifest cannot be parsed
	ErrMalformed = errors.New("malformed manifest")
)
