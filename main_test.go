package main

import (
	"bytes"
	"context"
	"emojimosaic/internal/cachestore"
	"emojimosaic/internal/mosaic"
	"emojimosaic/internal/palette"
	"emojimosaic/internal/render"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestCache(t *testing.T, store cachestore.Store) *palette.Cache {
	t.Helper()

	registry, err := palette.NewRegistry(palette.Definition{ID: "duo", Label: "Duo", Glyphs: []string{"🔥", "💧"}})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	renderer := render.NewSwatches(map[string]color.NRGBA{
		"🔥": {R: 235, G: 80, B: 25, A: 255},
		"💧": {R: 45, G: 120, B: 235, A: 255},
	})
	return palette.NewCache(store, palette.NewProfiler(renderer, palette.DefaultSampleSize, nil), registry, nil)
}

func writeSource(t *testing.T, path string) {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, 60, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 60; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 250, G: 70, B: 20, A: 255})
		}
	}
	var encoded bytes.Buffer
	if err := png.Encode(&encoded, img); err != nil {
		t.Fatalf("encode source: %v", err)
	}
	if err := os.WriteFile(path, encoded.Bytes(), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
}

func TestRenderFileWritesIntoDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sourcePath := filepath.Join(dir, "photo.png")
	writeSource(t, sourcePath)

	cache := newTestCache(t, nil)
	renderer := render.NewSwatches(nil)
	mosaics := mosaic.NewService(cache, mosaic.NewAssembler(renderer, nil), nil)
	service := NewMosaicService(mosaics)

	outDir := filepath.Join(dir, "out")
	if err := os.Mkdir(outDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	var last int
	summary, err := service.RenderFile(context.Background(), RenderRequest{
		SourcePath: sourcePath,
		OutputPath: outDir,
		PaletteID:  "duo",
		Density:    50,
		OnProgress: func(percent int) { last = percent },
	})
	if err != nil {
		t.Fatalf("render file: %v", err)
	}
	if last != 100 {
		t.Fatalf("expected progress to finish at 100, got %d", last)
	}
	if filepath.Dir(summary.OutputPath) != outDir || !strings.HasPrefix(filepath.Base(summary.OutputPath), "emoji-mosaic-") {
		t.Fatalf("unexpected output path %s", summary.OutputPath)
	}
	if summary.Width != 60 || summary.Height != 40 || summary.BlockSize != 10 || summary.Tiles != 24 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if !summary.Lossless {
		t.Fatal("expected default png output to be lossless")
	}
	if summary.Distinct != 1 {
		t.Fatalf("expected a single glyph for a uniform red source, got %d", summary.Distinct)
	}

	info, err := os.Stat(summary.OutputPath)
	if err != nil {
		t.Fatalf("stat output: %v", err)
	}
	if info.Size() != summary.Bytes {
		t.Fatalf("expected %d bytes on disk, got %d", summary.Bytes, info.Size())
	}
	if state := mosaics.LastState(); state.Phase != mosaic.PhaseComplete {
		t.Fatalf("expected complete state, got %+v", state)
	}
}

func TestRenderFileMissingSource(t *testing.T) {
	t.Parallel()

	cache := newTestCache(t, nil)
	service := NewMosaicService(mosaic.NewService(cache, mosaic.NewAssembler(render.NewSwatches(nil), nil), nil))

	_, err := service.RenderFile(context.Background(), RenderRequest{
		SourcePath: filepath.Join(t.TempDir(), "missing.png"),
		PaletteID:  "duo",
	})
	if err == nil {
		t.Fatal("expected missing source to fail")
	}
}

func TestPaletteServiceCacheState(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := cachestore.NewMemory()
	service := NewPaletteService(newTestCache(t, store))

	summaries := service.ListPalettes(ctx)
	duo := findSummary(t, summaries, "duo")
	if duo.Cached || duo.Glyphs != 2 || duo.Label != "Duo" {
		t.Fatalf("unexpected summary before load %+v", duo)
	}

	profiles, err := service.Profiles(ctx, "duo")
	if err != nil {
		t.Fatalf("profiles: %v", err)
	}
	if len(profiles) != 2 || profiles[0].Glyph != "🔥" {
		t.Fatalf("unexpected profiles %+v", profiles)
	}
	if duo := findSummary(t, service.ListPalettes(ctx), "duo"); !duo.Cached {
		t.Fatal("expected duo to be cached after load")
	}

	if err := service.ClearCache(ctx, "DUO"); err != nil {
		t.Fatalf("clear duo: %v", err)
	}
	if duo := findSummary(t, service.ListPalettes(ctx), "duo"); duo.Cached {
		t.Fatal("expected duo cache to be cleared")
	}

	if err := service.ClearCache(ctx, "nope"); err == nil {
		t.Fatal("expected unknown palette to fail")
	}
	if err := service.ClearCache(ctx, ""); err != nil {
		t.Fatalf("clear all: %v", err)
	}
}

func findSummary(t *testing.T, summaries []PaletteSummary, id string) PaletteSummary {
	t.Helper()

	for _, summary := range summaries {
		if summary.ID == id {
			return summary
		}
	}
	t.Fatalf("palette %s not listed", id)
	return PaletteSummary{}
}

func TestWriteProfiles(t *testing.T) {
	t.Parallel()

	profiles, err := newTestCache(t, nil).Load(context.Background(), "duo")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	var out bytes.Buffer
	if err := writeProfiles(&out, profiles); err != nil {
		t.Fatalf("write profiles: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[0], "GLYPH") {
		t.Fatalf("unexpected table:\n%s", out.String())
	}
	if !strings.Contains(lines[1], "🔥") || !strings.Contains(lines[1], "#eb5019") {
		t.Fatalf("unexpected fire row %q", lines[1])
	}
}

func TestParseBackground(t *testing.T) {
	t.Parallel()

	if bg, err := parseBackground(" "); err != nil || bg != nil {
		t.Fatalf("expected empty background to be nil, got %v %v", bg, err)
	}
	bg, err := parseBackground("#102030")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if bg != (color.NRGBA{R: 0x10, G: 0x20, B: 0x30, A: 0xff}) {
		t.Fatalf("unexpected background %v", bg)
	}
	if _, err := parseBackground("#12"); err == nil {
		t.Fatal("expected invalid background to fail")
	}
}

func TestRunWithoutCommandPrintsUsage(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	if code := run(nil, &stdout, &stderr); code != 2 {
		t.Fatalf("expected exit code 2, got %d", code)
	}
	if !strings.Contains(stderr.String(), "commands:") {
		t.Fatalf("expected usage, got %q", stderr.String())
	}
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	if code := run([]string{"paint"}, &stdout, &stderr); code != 2 {
		t.Fatalf("expected exit code 2, got %d", code)
	}
	if !strings.Contains(stderr.String(), `unknown command "paint"`) {
		t.Fatalf("expected unknown command message, got %q", stderr.String())
	}
}
