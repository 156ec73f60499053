package artifact

import (
	"bytes"
	"context"
	"emojimosaic/internal/mosaic"
	"emojimosaic/internal/palette"
	"emojimosaic/internal/render"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPathForAndParse(t *testing.T) {
	t.Parallel()

	path := PathFor("/out", "/photos/Summer__trip.JPG", "fire", 30, "")
	if path != filepath.Join("/out", "Summer__trip__fire-d30.png") {
		t.Fatalf("unexpected path %s", path)
	}

	name, ok := Parse(path)
	if !ok {
		t.Fatalf("expected %s to parse", path)
	}
	want := Name{Base: "Summer__trip", PaletteID: "fire", Density: 30, Format: FormatPNG}
	if name != want {
		t.Fatalf("expected %+v, got %+v", want, name)
	}
	if name.Filename() != filepath.Base(path) {
		t.Fatalf("filename round trip mismatch: %s", name.Filename())
	}
}

func TestParseRejectsForeignNames(t *testing.T) {
	t.Parallel()

	for _, filename := range []string{
		"photo.png",
		"photo__fire.png",
		"photo__fire-d30.jpg",
		"__fire-d30.png",
		"photo__Fire-d30.png",
		"photo__fire-d300.png",
		"photo__fire-d30",
	} {
		if IsArtifact(filename) {
			t.Fatalf("expected %q to be rejected", filename)
		}
	}

	if name, ok := Parse("cat__ocean-d12.AVIF"); !ok || name.Format != FormatAVIF {
		t.Fatalf("expected avif artifact, got %+v %v", name, ok)
	}
}

func TestNormalizeFormat(t *testing.T) {
	t.Parallel()

	cases := map[string]string{"": FormatPNG, "PNG": FormatPNG, ".avif": FormatAVIF, " Avif ": FormatAVIF, "gif": FormatPNG}
	for input, want := range cases {
		if got := NormalizeFormat(input); got != want {
			t.Fatalf("NormalizeFormat(%q) = %q, want %q", input, got, want)
		}
	}
	if FormatFromPath("out/mosaic.avif") != FormatAVIF {
		t.Fatal("expected avif from extension")
	}
}

func TestLossless(t *testing.T) {
	t.Parallel()

	if !Lossless("png") || !Lossless("") {
		t.Fatal("expected png artifacts to be lossless")
	}
	if Lossless("AVIF") {
		t.Fatal("expected avif artifacts to be reported lossy")
	}
}

func TestDefaultFilename(t *testing.T) {
	t.Parallel()

	if got := DefaultFilename(time.UnixMilli(1700000000123), ""); got != "emoji-mosaic-1700000000123.png" {
		t.Fatalf("unexpected default filename %s", got)
	}
}

func TestWriteFilePNG(t *testing.T) {
	t.Parallel()

	renderer := render.NewSwatches(map[string]color.NRGBA{"🔥": {R: 240, G: 70, B: 20, A: 255}})
	profiles := palette.NewProfiler(renderer, palette.DefaultSampleSize, nil).ProfileAll([]string{"🔥"})

	src := image.NewNRGBA(image.Rect(0, 0, 20, 20))
	result, err := mosaic.NewAssembler(renderer, nil).Assemble(context.Background(), src, profiles, mosaic.Options{Density: 50})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	path := filepath.Join(t.TempDir(), "nested", "out__fire-d50.png")
	size, err := WriteFile(path, result, FormatPNG)
	if err != nil {
		t.Fatalf("write file: %v", err)
	}

	written, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if int64(len(written)) != size || !bytes.Equal(written, result.PNG) {
		t.Fatalf("expected written file to match assembler png")
	}
	if _, err := png.Decode(bytes.NewReader(written)); err != nil {
		t.Fatalf("output is not a png: %v", err)
	}

	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(path), ".mosaic-*"))
	if len(leftovers) != 0 {
		t.Fatalf("expected temp files to be cleaned up, got %v", leftovers)
	}
}
