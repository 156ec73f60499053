package artifact

import (
	"bytes"
	"emojimosaic/internal/mosaic"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gen2brain/avif"
)

const avifQuality = 80

// Encode writes result to w in format. PNG output reuses the bytes the
// assembler already produced; AVIF trades exactness for size.
func Encode(w io.Writer, result *mosaic.Mosaic, format string) error {
	switch NormalizeFormat(format) {
	case FormatAVIF:
		if err := avif.Encode(w, result.Image, avif.Options{Quality: avifQuality, Speed: 8}); err != nil {
			return fmt.Errorf("encode avif: %w", err)
		}
		return nil
	default:
		if _, err := io.Copy(w, bytes.NewReader(result.PNG)); err != nil {
			return fmt.Errorf("write png: %w", err)
		}
		return nil
	}
}

// WriteFile encodes result into path atomically, creating parent
// directories as needed. It returns the number of bytes written.
func WriteFile(path string, result *mosaic.Mosaic, format string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("create output directory: %w", err)
	}

	temp, err := os.CreateTemp(filepath.Dir(path), ".mosaic-*")
	if err != nil {
		return 0, fmt.Errorf("create temp output: %w", err)
	}
	tempPath := temp.Name()
	defer os.Remove(tempPath)

	if err := Encode(temp, result, format); err != nil {
		temp.Close()
		return 0, err
	}

	info, err := temp.Stat()
	if err != nil {
		temp.Close()
		return 0, fmt.Errorf("stat temp output: %w", err)
	}
	if err := temp.Close(); err != nil {
		return 0, fmt.Errorf("close temp output: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return 0, fmt.Errorf("move output into place: %w", err)
	}
	return info.Size(), nil
}
