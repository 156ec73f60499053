package mosaic

import (
	"errors"
	"fmt"
)

// ErrNoMosaic is wrapped by every expected failure, so callers can treat
// "no mosaic produced" uniformly with errors.Is.
var ErrNoMosaic = errors.New("no mosaic produced")

var (
	ErrDecode       = fmt.Errorf("%w: source image could not be decoded", ErrNoMosaic)
	ErrEmptyImage   = fmt.Errorf("%w: source image has no pixels", ErrNoMosaic)
	ErrEmptyPalette = fmt.Errorf("%w: palette has no usable glyphs", ErrNoMosaic)
	ErrCanceled     = fmt.Errorf("%w: canceled", ErrNoMosaic)
)
