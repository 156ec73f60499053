package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/vector"
)

const (
	// circleKappa places cubic control points for a one-segment quarter circle.
	circleKappa = 0.5522847498

	cornerRatio = 0.2
)

// Swatches renders every known glyph as a flat anti-aliased rounded tile of
// a fixed color, size pixels wide. Output is fully deterministic, which makes
// it the surface used for previews and tests.
type Swatches struct {
	colors map[string]color.NRGBA
}

func NewSwatches(colors map[string]color.NRGBA) *Swatches {
	copied := make(map[string]color.NRGBA, len(colors))
	for glyph, fill := range colors {
		copied[glyph] = fill
	}
	return &Swatches{colors: copied}
}

func (s *Swatches) DrawGlyph(dst draw.Image, glyph string, cx float64, cy float64, size float64) error {
	fill, ok := s.colors[glyph]
	if !ok {
		return fmt.Errorf("%w: %q", ErrGlyphUnavailable, glyph)
	}
	if size <= 0 {
		return nil
	}

	half := size / 2
	box := image.Rect(
		int(math.Floor(cx-half)),
		int(math.Floor(cy-half)),
		int(math.Ceil(cx+half)),
		int(math.Ceil(cy+half)),
	)
	if box.Empty() || !box.Overlaps(dst.Bounds()) {
		return nil
	}

	mask := image.NewAlpha(image.Rect(0, 0, box.Dx(), box.Dy()))
	rasterizer := vector.NewRasterizer(box.Dx(), box.Dy())
	left := float32(cx - half - float64(box.Min.X))
	top := float32(cy - half - float64(box.Min.Y))
	traceRoundedSquare(rasterizer, left, top, float32(size), float32(size*cornerRatio))
	rasterizer.Draw(mask, mask.Bounds(), image.Opaque, image.Point{})

	target := box.Intersect(dst.Bounds())
	draw.DrawMask(dst, target, image.NewUniform(fill), image.Point{}, mask, target.Min.Sub(box.Min), draw.Over)
	return nil
}

// Color returns the fill configured for glyph.
func (s *Swatches) Color(glyph string) (color.NRGBA, bool) {
	fill, ok := s.colors[glyph]
	return fill, ok
}

func traceRoundedSquare(z *vector.Rasterizer, x float32, y float32, edge float32, r float32) {
	k := float32(circleKappa) * r
	right := x + edge
	bottom := y + edge

	z.MoveTo(x+r, y)
	z.LineTo(right-r, y)
	z.CubeTo(right-r+k, y, right, y+r-k, right, y+r)
	z.LineTo(right, bottom-r)
	z.CubeTo(right, bottom-r+k, right-r+k, bottom, right-r, bottom)
	z.LineTo(x+r, bottom)
	z.CubeTo(x+r-k, bottom, x, bottom-r+k, x, bottom-r)
	z.LineTo(x, y+r)
	z.CubeTo(x, y+r-k, x+r-k, y, x+r, y)
	z.ClosePath()
}
