package render

import (
	"fmt"
	"image/color"
	"image/draw"
	"sync"

	"github.com/gogpu/gg/text"
)

const zeroWidthJoiner = 0x200D

// FontRenderer draws glyphs with a TTF/OTF font. Color tables are used when
// the font parser exposes them, otherwise outlines are filled with the ink
// color.
type FontRenderer struct {
	mu     sync.Mutex
	source *text.FontSource
	ink    color.Color
}

func NewFontRenderer(path string, ink color.Color) (*FontRenderer, error) {
	source, err := text.NewFontSourceFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load font %s: %w", path, err)
	}

	return NewFontRendererFromSource(source, ink), nil
}

func NewFontRendererFromSource(source *text.FontSource, ink color.Color) *FontRenderer {
	if ink == nil {
		ink = color.White
	}
	return &FontRenderer{source: source, ink: ink}
}

// DrawGlyph follows the canvas convention of center alignment with a middle
// baseline: half the advance to the left, baseline half the em box below cy.
func (f *FontRenderer) DrawGlyph(dst draw.Image, glyph string, cx float64, cy float64, size float64) error {
	if glyph == "" || size <= 0 {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	face := f.source.Face(size)
	for _, r := range glyph {
		if r == variationSelector16 || r == zeroWidthJoiner {
			continue
		}
		if !face.HasGlyph(r) {
			return fmt.Errorf("%w: %q has no glyph for %U", ErrGlyphUnavailable, glyph, r)
		}
	}

	advance := face.Advance(glyph)
	metrics := face.Metrics()
	x := cx - advance/2
	y := cy + (metrics.Ascent-metrics.Descent)/2

	text.DrawWithEmoji(dst, glyph, face, x, y, f.ink)
	return nil
}

func (f *FontRenderer) Name() string {
	return f.source.Name()
}

func (f *FontRenderer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.source.Close()
}
