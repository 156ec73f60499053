package scanner

import (
	"context"
	"emojimosaic/internal/db"
	"emojimosaic/internal/mosaic"
	"emojimosaic/internal/palette"
	"emojimosaic/internal/render"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func newGenerator(t *testing.T) *mosaic.Service {
	t.Helper()

	registry, err := palette.NewRegistry(palette.Definition{ID: "duo", Glyphs: []string{"🔥", "💧"}})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	renderer := render.NewSwatches(map[string]color.NRGBA{
		"🔥": {R: 235, G: 80, B: 25, A: 255},
		"💧": {R: 45, G: 120, B: 235, A: 255},
	})
	cache := palette.NewCache(nil, palette.NewProfiler(renderer, palette.DefaultSampleSize, nil), registry, nil)
	return mosaic.NewService(cache, mosaic.NewAssembler(renderer, nil), nil)
}

func writePNG(t *testing.T, path string, size int, fill color.NRGBA) {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetNRGBA(x, y, fill)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("create dir: %v", err)
	}
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer file.Close()
	if err := png.Encode(file, img); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}

func TestScanOnceRendersAndTracksRevisions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	root := t.TempDir()
	inbox := filepath.Join(root, "inbox")
	output := filepath.Join(root, "out")

	database, err := db.Bootstrap(ctx, filepath.Join(root, "state.db"))
	if err != nil {
		t.Fatalf("bootstrap db: %v", err)
	}
	defer database.Close()

	writePNG(t, filepath.Join(inbox, "red.png"), 30, color.NRGBA{R: 255, A: 255})
	writePNG(t, filepath.Join(inbox, "nested", "blue.png"), 30, color.NRGBA{B: 255, A: 255})
	if err := os.WriteFile(filepath.Join(inbox, "broken.png"), []byte("not a png"), 0o644); err != nil {
		t.Fatalf("write broken file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(inbox, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatalf("write text file: %v", err)
	}

	service := NewService(database, newGenerator(t), Options{
		InboxDir:  inbox,
		OutputDir: output,
		PaletteID: "duo",
		Density:   40,
	}, nil)

	var mu sync.Mutex
	var phases []string
	service.SetEmitter(func(eventName string, payload any) {
		mu.Lock()
		defer mu.Unlock()
		phases = append(phases, payload.(Progress).Phase)
	})

	totals, err := service.ScanOnce(ctx)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if totals.FilesSeen != 3 || totals.Rendered != 2 || totals.Failed != 1 || totals.Skipped != 0 {
		t.Fatalf("unexpected totals %+v", totals)
	}
	for _, name := range []string{"red__duo-d40.png", "blue__duo-d40.png"} {
		if _, err := os.Stat(filepath.Join(output, name)); err != nil {
			t.Fatalf("expected artifact %s: %v", name, err)
		}
	}

	mu.Lock()
	if phases[0] != "start" || phases[len(phases)-1] != "done" {
		t.Fatalf("unexpected phases %v", phases)
	}
	mu.Unlock()

	again, err := service.ScanOnce(ctx)
	if err != nil {
		t.Fatalf("rescan: %v", err)
	}
	if again.Rendered != 0 || again.Skipped != 2 || again.Failed != 1 {
		t.Fatalf("expected unchanged images to be skipped, got %+v", again)
	}

	writePNG(t, filepath.Join(inbox, "red.png"), 40, color.NRGBA{R: 200, A: 255})
	changed, err := service.ScanOnce(ctx)
	if err != nil {
		t.Fatalf("scan after change: %v", err)
	}
	if changed.Rendered != 1 || changed.Skipped != 1 {
		t.Fatalf("expected modified image to be rendered again, got %+v", changed)
	}

	count, err := service.Tracked(ctx)
	if err != nil {
		t.Fatalf("count processed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 processed rows, got %d", count)
	}

	status := service.GetStatus()
	if status.Running || status.LastRunAt == "" || status.LastRendered != 1 {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestScanOnceWithoutDatabaseSkipsExistingArtifacts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	inbox := t.TempDir()
	writePNG(t, filepath.Join(inbox, "photo.png"), 20, color.NRGBA{G: 255, A: 255})

	service := NewService(nil, newGenerator(t), Options{InboxDir: inbox, PaletteID: "duo"}, nil)

	first, err := service.ScanOnce(ctx)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if first.Rendered != 1 {
		t.Fatalf("expected one render, got %+v", first)
	}
	if _, err := os.Stat(filepath.Join(inbox, "photo__duo-d30.png")); err != nil {
		t.Fatalf("expected artifact next to source: %v", err)
	}
	if tracked, err := service.Tracked(ctx); err != nil || tracked != 0 {
		t.Fatalf("expected nothing tracked without a database, got %d %v", tracked, err)
	}

	second, err := service.ScanOnce(ctx)
	if err != nil {
		t.Fatalf("rescan: %v", err)
	}
	if second.FilesSeen != 1 || second.Skipped != 1 || second.Rendered != 0 {
		t.Fatalf("expected artifacts to be ignored as inputs and source skipped, got %+v", second)
	}
}

func TestScanOnceRequiresInbox(t *testing.T) {
	t.Parallel()

	service := NewService(nil, newGenerator(t), Options{PaletteID: "duo"}, nil)
	if _, err := service.ScanOnce(context.Background()); err == nil {
		t.Fatal("expected missing inbox to fail")
	}
	if status := service.GetStatus(); status.LastError == "" {
		t.Fatalf("expected last error to be recorded, got %+v", status)
	}

	missing := NewService(nil, newGenerator(t), Options{InboxDir: filepath.Join(t.TempDir(), "absent"), PaletteID: "duo"}, nil)
	if _, err := missing.ScanOnce(context.Background()); err == nil {
		t.Fatal("expected absent inbox to fail")
	}
}

func TestWatchingRendersNewImages(t *testing.T) {
	t.Parallel()

	inbox := t.TempDir()
	output := filepath.Join(t.TempDir(), "out")
	service := NewService(nil, newGenerator(t), Options{
		InboxDir:  inbox,
		OutputDir: output,
		PaletteID: "duo",
		Debounce:  20 * time.Millisecond,
	}, nil)

	if err := service.StartWatching(); err != nil {
		t.Fatalf("start watching: %v", err)
	}
	defer service.StopWatching()

	if err := service.StartWatching(); err == nil {
		t.Fatal("expected second StartWatching to fail")
	}
	if !service.GetStatus().Watching {
		t.Fatal("expected watching status")
	}

	writePNG(t, filepath.Join(inbox, "drop.png"), 24, color.NRGBA{R: 255, A: 255})

	artifactPath := filepath.Join(output, "drop__duo-d30.png")
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := os.Stat(artifactPath); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("artifact %s never appeared", artifactPath)
		}
		time.Sleep(20 * time.Millisecond)
	}

	service.StopWatching()
	if service.GetStatus().Watching {
		t.Fatal("expected watching to stop")
	}
	service.StopWatching()
}

func TestCanceledWatchBatchLeavesStatusUntouched(t *testing.T) {
	t.Parallel()

	inbox := t.TempDir()
	path := filepath.Join(inbox, "late.png")
	writePNG(t, path, 20, color.NRGBA{R: 255, A: 255})

	service := NewService(nil, newGenerator(t), Options{InboxDir: inbox, PaletteID: "duo"}, nil)
	events := 0
	service.SetEmitter(func(string, any) { events++ })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	service.processBatch(ctx, []string{path})

	status := service.GetStatus()
	if status.LastRunAt != "" || status.LastRendered != 0 || status.LastFailed != 0 {
		t.Fatalf("expected untouched status, got %+v", status)
	}
	if events != 0 {
		t.Fatalf("expected no events for a canceled batch, got %d", events)
	}
	if _, err := os.Stat(filepath.Join(inbox, "late__duo-d30.png")); !os.IsNotExist(err) {
		t.Fatalf("expected no artifact for a canceled batch, got %v", err)
	}
}
