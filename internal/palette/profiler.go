package palette

import (
	"emojimosaic/internal/colorspace"
	"emojimosaic/internal/logging"
	"emojimosaic/internal/render"
	"image"
	"log/slog"
	"math"

	"github.com/samber/lo"
)

const (
	DefaultSampleSize = 32

	minSampleSize  = 8
	alphaThreshold = 50
	glyphScale     = 0.8
)

var fallbackRGB = [3]uint8{255, 255, 255}

// Profile is the representative color of one glyph. RGB is the averaged
// sRGB the OKLCH value was computed from.
type Profile struct {
	Glyph string
	OKLCH colorspace.OKLCH
	RGB   [3]uint8
}

type Profiler struct {
	renderer   render.Renderer
	sampleSize int
	logger     *slog.Logger
}

func NewProfiler(renderer render.Renderer, sampleSize int, logger *slog.Logger) *Profiler {
	if sampleSize < minSampleSize {
		sampleSize = DefaultSampleSize
	}
	return &Profiler{
		renderer:   renderer,
		sampleSize: sampleSize,
		logger:     logging.OrDiscard(logger),
	}
}

// Profile renders glyph on a transparent raster and averages a 3x3 grid of
// samples at the quarter points. Samples with alpha at or below the
// threshold are ignored. A glyph with no opaque samples profiles as white.
func (p *Profiler) Profile(glyph string) Profile {
	profile, _ := p.profile(glyph)
	return profile
}

func (p *Profiler) ProfileAll(glyphs []string) []Profile {
	profiles, _ := p.ProfileGlyphs(glyphs)
	return profiles
}

// ProfileGlyphs profiles every glyph and also reports how many of them were
// actually drawn rather than falling back to white.
func (p *Profiler) ProfileGlyphs(glyphs []string) ([]Profile, int) {
	rendered := 0
	profiles := lo.Map(glyphs, func(glyph string, _ int) Profile {
		profile, ok := p.profile(glyph)
		if ok {
			rendered++
		}
		return profile
	})
	return profiles, rendered
}

func (p *Profiler) profile(glyph string) (Profile, bool) {
	size := p.sampleSize
	canvas := image.NewNRGBA(image.Rect(0, 0, size, size))
	center := float64(size) / 2

	drawn := true
	if err := p.renderer.DrawGlyph(canvas, glyph, center, center, float64(size)*glyphScale); err != nil {
		p.logger.Debug("glyph render failed", "glyph", glyph, "error", err)
		drawn = false
	}

	rgb, ok := sampleGrid(canvas)
	if !ok {
		p.logger.Debug("glyph has no opaque samples", "glyph", glyph)
		rgb = fallbackRGB
		drawn = false
	}

	return Profile{
		Glyph: glyph,
		OKLCH: colorspace.ToOKLCH(rgb[0], rgb[1], rgb[2]),
		RGB:   rgb,
	}, drawn
}

func sampleGrid(canvas *image.NRGBA) ([3]uint8, bool) {
	size := canvas.Bounds().Dx()
	positions := []int{size / 4, size / 2, size * 3 / 4}

	var sumR, sumG, sumB, count int
	for _, y := range positions {
		for _, x := range positions {
			offset := canvas.PixOffset(x, y)
			if canvas.Pix[offset+3] <= alphaThreshold {
				continue
			}
			sumR += int(canvas.Pix[offset])
			sumG += int(canvas.Pix[offset+1])
			sumB += int(canvas.Pix[offset+2])
			count++
		}
	}
	if count == 0 {
		return [3]uint8{}, false
	}

	return [3]uint8{
		averageChannel(sumR, count),
		averageChannel(sumG, count),
		averageChannel(sumB, count),
	}, true
}

func averageChannel(sum int, count int) uint8 {
	return uint8(math.Round(float64(sum) / float64(count)))
}
