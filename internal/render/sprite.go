package render

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	xdraw "golang.org/x/image/draw"
)

const variationSelector16 = 0xFE0F

// SpriteRenderer draws glyphs from a directory of per-emoji images named by
// their code points, either twemoji style ("1f525.png", "1f468-200d-1f373.png")
// or noto style ("emoji_u1f525.png").
type SpriteRenderer struct {
	dir     string
	mu      sync.Mutex
	sprites map[string]image.Image
	missing map[string]struct{}
}

func NewSpriteRenderer(dir string) (*SpriteRenderer, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil, errors.New("sprite directory is required")
	}

	info, err := os.Stat(trimmed)
	if err != nil {
		return nil, fmt.Errorf("stat sprite directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("sprite path %s is not a directory", trimmed)
	}

	return &SpriteRenderer{
		dir:     trimmed,
		sprites: make(map[string]image.Image),
		missing: make(map[string]struct{}),
	}, nil
}

func (s *SpriteRenderer) DrawGlyph(dst draw.Image, glyph string, cx float64, cy float64, size float64) error {
	sprite, err := s.sprite(glyph)
	if err != nil {
		return err
	}

	edge := int(math.Round(size))
	if edge <= 0 {
		return nil
	}

	minX := int(math.Round(cx - size/2))
	minY := int(math.Round(cy - size/2))
	target := image.Rect(minX, minY, minX+edge, minY+edge)

	xdraw.CatmullRom.Scale(dst, target, sprite, sprite.Bounds(), xdraw.Over, nil)
	return nil
}

func (s *SpriteRenderer) sprite(glyph string) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sprite, ok := s.sprites[glyph]; ok {
		return sprite, nil
	}
	if _, ok := s.missing[glyph]; ok {
		return nil, fmt.Errorf("%w: %q", ErrGlyphUnavailable, glyph)
	}

	for _, name := range SpriteFileNames(glyph) {
		sprite, err := decodeSprite(filepath.Join(s.dir, name))
		if err != nil {
			continue
		}
		s.sprites[glyph] = sprite
		return sprite, nil
	}

	s.missing[glyph] = struct{}{}
	return nil, fmt.Errorf("%w: %q in %s", ErrGlyphUnavailable, glyph, s.dir)
}

func decodeSprite(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decoded, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode sprite %s: %w", path, err)
	}
	return decoded, nil
}

// SpriteFileNames lists candidate file names for glyph in lookup order.
func SpriteFileNames(glyph string) []string {
	full := codePoints(glyph, false)
	stripped := codePoints(glyph, true)
	if len(full) == 0 {
		return nil
	}

	variants := [][]string{full}
	if len(stripped) > 0 && len(stripped) != len(full) {
		variants = append(variants, stripped)
	}

	names := make([]string, 0, len(variants)*2)
	for _, points := range variants {
		names = append(names, strings.Join(points, "-")+".png")
	}
	for _, points := range variants {
		names = append(names, "emoji_u"+strings.Join(points, "_")+".png")
	}
	return names
}

func codePoints(glyph string, stripVariation bool) []string {
	points := make([]string, 0, len(glyph))
	for _, r := range glyph {
		if stripVariation && r == variationSelector16 {
			continue
		}
		points = append(points, fmt.Sprintf("%x", r))
	}
	return points
}
