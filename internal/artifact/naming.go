package artifact

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const FormatPNG = "png"

const FormatAVIF = "avif"

const separator = "__"

var suffixPattern = regexp.MustCompile(`^([a-z0-9][a-z0-9-]*)-d(\d{1,2})$`)

// Name identifies a mosaic artifact derived from a source image.
type Name struct {
	Base      string
	PaletteID string
	Density   int
	Format    string
}

func NormalizeFormat(value string) string {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(value), ".")) {
	case FormatAVIF:
		return FormatAVIF
	default:
		return FormatPNG
	}
}

// Lossless reports whether artifacts in format keep every pixel. PNG is
// lossless; AVIF is encoded lossy at avifQuality.
func Lossless(format string) bool {
	return NormalizeFormat(format) == FormatPNG
}

// FormatFromPath picks the output format from a file extension.
func FormatFromPath(path string) string {
	return NormalizeFormat(filepath.Ext(path))
}

func (n Name) Filename() string {
	return fmt.Sprintf("%s%s%s-d%d.%s", n.Base, separator, n.PaletteID, n.Density, NormalizeFormat(n.Format))
}

// PathFor returns where the mosaic of sourcePath belongs inside outputDir.
func PathFor(outputDir string, sourcePath string, paletteID string, density int, format string) string {
	base := filepath.Base(sourcePath)
	name := Name{
		Base:      strings.TrimSuffix(base, filepath.Ext(base)),
		PaletteID: paletteID,
		Density:   density,
		Format:    format,
	}
	return filepath.Join(outputDir, name.Filename())
}

// Parse reads a filename produced by Filename back into its parts.
func Parse(filename string) (Name, bool) {
	trimmed := strings.TrimSpace(filepath.Base(filename))
	extension := filepath.Ext(trimmed)
	if extension == "" {
		return Name{}, false
	}
	format := strings.ToLower(strings.TrimPrefix(extension, "."))
	if format != FormatPNG && format != FormatAVIF {
		return Name{}, false
	}

	stem := strings.TrimSuffix(trimmed, extension)
	index := strings.LastIndex(stem, separator)
	if index <= 0 {
		return Name{}, false
	}

	match := suffixPattern.FindStringSubmatch(stem[index+len(separator):])
	if match == nil {
		return Name{}, false
	}
	density, err := strconv.Atoi(match[2])
	if err != nil {
		return Name{}, false
	}

	return Name{Base: stem[:index], PaletteID: match[1], Density: density, Format: format}, true
}

func IsArtifact(filename string) bool {
	_, ok := Parse(filename)
	return ok
}

// DefaultFilename names a one-off render that has no source path.
func DefaultFilename(at time.Time, format string) string {
	return fmt.Sprintf("emoji-mosaic-%d.%s", at.UnixMilli(), NormalizeFormat(format))
}
