// Package render draws emoji glyphs onto rasters. A single Renderer
// instance is meant to be shared by profiling and mosaic drawing so both
// observe the same rendering surface.
package render

import (
	"errors"
	"image/draw"
)

// ErrGlyphUnavailable is returned when a renderer has no artwork for a glyph.
var ErrGlyphUnavailable = errors.New("glyph unavailable")

// Renderer draws a glyph centered at (cx, cy) using Over compositing.
// size is the font size in pixels, which for square artwork is the edge
// length of the drawn glyph.
type Renderer interface {
	DrawGlyph(dst draw.Image, glyph string, cx float64, cy float64, size float64) error
}
