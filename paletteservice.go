package main

import (
	"context"
	"emojimosaic/internal/palette"
	"strings"
)

type PaletteSummary struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Glyphs int    `json:"glyphs"`
	Cached bool   `json:"cached"`
}

type PaletteService struct {
	cache *palette.Cache
}

func NewPaletteService(cache *palette.Cache) *PaletteService {
	return &PaletteService{cache: cache}
}

// ListPalettes reports every palette and whether a valid persisted record
// exists for it.
func (s *PaletteService) ListPalettes(ctx context.Context) []PaletteSummary {
	definitions := s.cache.Registry().Definitions()
	summaries := make([]PaletteSummary, 0, len(definitions))
	for _, definition := range definitions {
		_, err := s.cache.Persisted(ctx, definition.ID)
		summaries = append(summaries, PaletteSummary{
			ID:     definition.ID,
			Label:  definition.Label,
			Glyphs: len(definition.Glyphs),
			Cached: err == nil,
		})
	}
	return summaries
}

func (s *PaletteService) Profiles(ctx context.Context, paletteID string) ([]palette.Profile, error) {
	return s.cache.Load(ctx, paletteID)
}

// ClearCache drops one palette, or every palette when paletteID is empty.
func (s *PaletteService) ClearCache(ctx context.Context, paletteID string) error {
	if strings.TrimSpace(paletteID) == "" {
		return s.cache.ClearAll(ctx)
	}
	return s.cache.Clear(ctx, paletteID)
}
