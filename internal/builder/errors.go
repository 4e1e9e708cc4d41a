package builder

import "errors"

// ErrOutsideRoots is returned for a source image outside every convention root
var ErrOutsideRoots = errors.New("source is outside the optimized-directory roots")
