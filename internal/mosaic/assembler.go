package mosaic

import (
	"bytes"
	"context"
	"emojimosaic/internal/colorspace"
	"emojimosaic/internal/logging"
	"emojimosaic/internal/palette"
	"emojimosaic/internal/render"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"log/slog"
	"math"
	"runtime"
)

const (
	MaxSourceWidth = 1200

	// UsagePenalty is added to a candidate's score per prior use.
	UsagePenalty = 0.02
	// DiversityMargin bounds how far above the best raw distance a
	// candidate may be and still win through the usage penalty.
	DiversityMargin = 0.02

	underlayAlpha  = 64
	glyphScale     = 1.1
	checkpointRows = 5
	maxWorkerCap   = 8
)

type ProgressFunc func(percent int)

type Options struct {
	Density    int
	OnProgress ProgressFunc
	// Background, when set, is painted under the underlay. The default
	// leaves uncovered pixels translucent.
	Background color.Color
}

type Mosaic struct {
	PNG       []byte
	Width     int
	Height    int
	BlockSize int
	Columns   int
	Rows      int
	// Tiles holds the chosen glyph per block in row-major order.
	Tiles []string
	Usage map[string]int
	Image *image.NRGBA
}

// Assembler turns images into emoji mosaics. The renderer should be the
// same one the profiles were computed with.
type Assembler struct {
	renderer render.Renderer
	logger   *slog.Logger
	workers  int
}

func NewAssembler(renderer render.Renderer, logger *slog.Logger) *Assembler {
	return &Assembler{
		renderer: renderer,
		logger:   logging.OrDiscard(logger),
		workers:  clampInt(runtime.GOMAXPROCS(0), 1, maxWorkerCap),
	}
}

// Assemble covers src in glyph tiles matched by OKLCH distance. Blocks are
// scanned row-major; each row reports progress and every fifth row is a
// cancellation checkpoint.
func (a *Assembler) Assemble(ctx context.Context, src image.Image, profiles []palette.Profile, options Options) (*Mosaic, error) {
	if len(profiles) == 0 {
		return nil, ErrEmptyPalette
	}
	if src == nil {
		return nil, ErrEmptyImage
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCanceled, err)
	}

	source := toNRGBA(src)
	width, height := fitWidth(source.Bounds().Dx(), source.Bounds().Dy(), MaxSourceWidth)
	if width <= 0 || height <= 0 {
		return nil, ErrEmptyImage
	}
	working := downscaleNRGBA(source, width, height, a.workers)

	density := NormalizeDensity(options.Density)
	blockSize := BlockSize(density)
	columns := (width + blockSize - 1) / blockSize
	rows := (height + blockSize - 1) / blockSize
	totalBlocks := columns * rows

	canvas := image.NewNRGBA(image.Rect(0, 0, width, height))
	if options.Background != nil {
		draw.Draw(canvas, canvas.Bounds(), image.NewUniform(options.Background), image.Point{}, draw.Src)
	}
	draw.DrawMask(canvas, canvas.Bounds(), grayscaleNRGBA(working), image.Point{}, image.NewUniform(color.Alpha{A: underlayAlpha}), image.Point{}, draw.Over)

	result := &Mosaic{
		Width:     width,
		Height:    height,
		BlockSize: blockSize,
		Columns:   columns,
		Rows:      rows,
		Tiles:     make([]string, 0, totalBlocks),
		Usage:     make(map[string]int, len(profiles)),
		Image:     canvas,
	}

	usage := make([]int, len(profiles))
	distances := make([]float64, len(profiles))
	glyphSize := float64(blockSize) * glyphScale
	drawFailures := 0

	for row := 0; row < rows; row++ {
		y := row * blockSize
		for column := 0; column < columns; column++ {
			x := column * blockSize
			block := image.Rect(x, y, minInt(x+blockSize, width), minInt(y+blockSize, height))

			red, green, blue := averageBlock(working, block)
			target := colorspace.ToOKLCH(red, green, blue)
			chosen := selectProfile(target, profiles, usage, distances)
			glyph := profiles[chosen].Glyph

			half := float64(blockSize) / 2
			if err := a.renderer.DrawGlyph(canvas, glyph, float64(x)+half, float64(y)+half, glyphSize); err != nil {
				drawFailures++
			}

			usage[chosen]++
			result.Usage[glyph]++
			result.Tiles = append(result.Tiles, glyph)
		}

		if options.OnProgress != nil {
			processed := (row + 1) * columns
			options.OnProgress(int(math.Round(float64(processed) / float64(totalBlocks) * 100)))
		}

		if row%checkpointRows == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrCanceled, err)
			}
			runtime.Gosched()
		}
	}

	if drawFailures > 0 {
		a.logger.Warn("some tiles could not be drawn", "failed", drawFailures, "total", totalBlocks)
	}

	var encoded bytes.Buffer
	if err := (&png.Encoder{CompressionLevel: png.BestSpeed}).Encode(&encoded, canvas); err != nil {
		return nil, fmt.Errorf("encode mosaic png: %w", err)
	}
	result.PNG = encoded.Bytes()

	return result, nil
}

// selectProfile returns the index of the profile with the lowest score
// among those within DiversityMargin of the closest raw distance. Ties keep
// the earliest profile.
func selectProfile(target colorspace.OKLCH, profiles []palette.Profile, usage []int, distances []float64) int {
	closest := math.Inf(1)
	for index, profile := range profiles {
		distances[index] = colorspace.Distance(target, profile.OKLCH)
		if distances[index] < closest {
			closest = distances[index]
		}
	}

	chosen := 0
	bestScore := math.Inf(1)
	for index, distance := range distances {
		if distance > closest+DiversityMargin {
			continue
		}
		score := distance + float64(usage[index])*UsagePenalty
		if score < bestScore {
			bestScore = score
			chosen = index
		}
	}
	return chosen
}

// averageBlock returns the rounded mean RGB of every pixel in block,
// ignoring alpha.
func averageBlock(img *image.NRGBA, block image.Rectangle) (uint8, uint8, uint8) {
	var sumR, sumG, sumB int
	for y := block.Min.Y; y < block.Max.Y; y++ {
		offset := img.PixOffset(block.Min.X, y)
		for x := block.Min.X; x < block.Max.X; x++ {
			sumR += int(img.Pix[offset])
			sumG += int(img.Pix[offset+1])
			sumB += int(img.Pix[offset+2])
			offset += 4
		}
	}

	count := float64(block.Dx() * block.Dy())
	return uint8(math.Round(float64(sumR) / count)), uint8(math.Round(float64(sumG) / count)), uint8(math.Round(float64(sumB) / count))
}
