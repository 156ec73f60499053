package mosaic

import (
	"image"
	"image/draw"
	"math"
	"sync"
)

func toNRGBA(img image.Image) *image.NRGBA {
	if nrgba, ok := img.(*image.NRGBA); ok && nrgba.Bounds().Min == (image.Point{}) {
		return nrgba
	}

	bounds := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Src)
	return dst
}

// fitWidth returns the working size for a source of the given size: sources
// wider than maxWidth are scaled to exactly maxWidth, height truncated.
func fitWidth(width int, height int, maxWidth int) (int, int) {
	if width <= maxWidth || width <= 0 {
		return width, height
	}
	scaledHeight := int(float64(height) * float64(maxWidth) / float64(width))
	return maxWidth, maxInt(scaledHeight, 1)
}

// downscaleNRGBA resamples src to targetWidth x targetHeight with bilinear
// filtering, splitting rows across workers.
func downscaleNRGBA(src *image.NRGBA, targetWidth int, targetHeight int, workerCount int) *image.NRGBA {
	bounds := src.Bounds()
	sourceWidth := bounds.Dx()
	sourceHeight := bounds.Dy()
	if sourceWidth <= 0 || sourceHeight <= 0 {
		return src
	}
	if targetWidth == sourceWidth && targetHeight == sourceHeight {
		return src
	}

	dst := image.NewNRGBA(image.Rect(0, 0, targetWidth, targetHeight))
	workers := clampInt(workerCount, 1, targetHeight)
	xScale := float64(sourceWidth) / float64(targetWidth)
	yScale := float64(sourceHeight) / float64(targetHeight)

	var wg sync.WaitGroup
	for worker := 0; worker < workers; worker++ {
		startY, endY := splitRange(targetHeight, workers, worker)
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for y := start; y < end; y++ {
				sampleY := (float64(y)+0.5)*yScale - 0.5
				rowOffset := y * dst.Stride
				for x := 0; x < targetWidth; x++ {
					sampleX := (float64(x)+0.5)*xScale - 0.5
					offset := rowOffset + x*4
					px := dst.Pix[offset : offset+4 : offset+4]
					px[0], px[1], px[2], px[3] = bilinearSample(src, sampleX, sampleY)
				}
			}
		}(startY, endY)
	}

	wg.Wait()
	return dst
}

func bilinearSample(src *image.NRGBA, x float64, y float64) (uint8, uint8, uint8, uint8) {
	width := src.Bounds().Dx()
	height := src.Bounds().Dy()

	x = math.Max(0, math.Min(x, float64(width-1)))
	y = math.Max(0, math.Min(y, float64(height-1)))

	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	x1 := minInt(x0+1, width-1)
	y1 := minInt(y0+1, height-1)

	tx := x - float64(x0)
	ty := y - float64(y0)

	corners := [4]int{
		y0*src.Stride + x0*4,
		y0*src.Stride + x1*4,
		y1*src.Stride + x0*4,
		y1*src.Stride + x1*4,
	}
	weights := [4]float64{
		(1 - tx) * (1 - ty),
		tx * (1 - ty),
		(1 - tx) * ty,
		tx * ty,
	}

	var channels [4]float64
	for corner, offset := range corners {
		for channel := 0; channel < 4; channel++ {
			channels[channel] += weights[corner] * float64(src.Pix[offset+channel])
		}
	}

	return uint8(math.Round(channels[0])), uint8(math.Round(channels[1])), uint8(math.Round(channels[2])), uint8(math.Round(channels[3]))
}

func splitRange(length int, workers int, workerIndex int) (int, int) {
	chunkSize := length / workers
	remainder := length % workers
	start := workerIndex*chunkSize + minInt(workerIndex, remainder)
	end := start + chunkSize
	if workerIndex < remainder {
		end++
	}
	return start, end
}

// grayscaleNRGBA converts src with Rec. 601 luma, keeping alpha.
func grayscaleNRGBA(src *image.NRGBA) *image.NRGBA {
	dst := image.NewNRGBA(src.Bounds())
	for offset := 0; offset+3 < len(src.Pix); offset += 4 {
		luma := 0.299*float64(src.Pix[offset]) + 0.587*float64(src.Pix[offset+1]) + 0.114*float64(src.Pix[offset+2])
		value := uint8(math.Round(math.Min(luma, 255)))
		dst.Pix[offset] = value
		dst.Pix[offset+1] = value
		dst.Pix[offset+2] = value
		dst.Pix[offset+3] = src.Pix[offset+3]
	}
	return dst
}
