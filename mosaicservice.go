package main

import (
	"context"
	"emojimosaic/internal/artifact"
	"emojimosaic/internal/mosaic"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type RenderRequest struct {
	SourcePath string
	OutputPath string
	PaletteID  string
	Density    int
	Format     string
	Background color.Color
	OnProgress mosaic.ProgressFunc
}

type RenderSummary struct {
	JobID      string
	OutputPath string
	Bytes      int64
	Width      int
	Height     int
	BlockSize  int
	Tiles      int
	Distinct   int
	Lossless   bool
	Elapsed    time.Duration
}

type MosaicService struct {
	mosaics *mosaic.Service
}

func NewMosaicService(mosaics *mosaic.Service) *MosaicService {
	return &MosaicService{mosaics: mosaics}
}

// RenderFile renders one image file. An empty output path saves
// in the working directory under a timestamped default name; an output
// path naming a directory saves inside it.
func (s *MosaicService) RenderFile(ctx context.Context, request RenderRequest) (RenderSummary, error) {
	source, err := os.Open(request.SourcePath)
	if err != nil {
		return RenderSummary{}, fmt.Errorf("open source: %w", err)
	}
	defer source.Close()

	result, err := s.mosaics.Generate(ctx, mosaic.Request{
		Source:     source,
		PaletteID:  request.PaletteID,
		Density:    request.Density,
		Background: request.Background,
		OnProgress: request.OnProgress,
	})
	if err != nil {
		return RenderSummary{}, err
	}

	format := request.Format
	outputPath := strings.TrimSpace(request.OutputPath)
	if outputPath != "" && format == "" {
		format = artifact.FormatFromPath(outputPath)
	}
	format = artifact.NormalizeFormat(format)

	switch {
	case outputPath == "":
		outputPath = artifact.DefaultFilename(time.Now(), format)
	case isDirectory(outputPath):
		outputPath = filepath.Join(outputPath, artifact.DefaultFilename(time.Now(), format))
	}

	written, err := artifact.WriteFile(outputPath, result.Mosaic, format)
	if err != nil {
		return RenderSummary{}, err
	}

	return RenderSummary{
		JobID:      result.JobID,
		OutputPath: outputPath,
		Bytes:      written,
		Width:      result.Width,
		Height:     result.Height,
		BlockSize:  result.BlockSize,
		Tiles:      len(result.Tiles),
		Distinct:   len(result.Usage),
		Lossless:   artifact.Lossless(format),
		Elapsed:    result.Elapsed,
	}, nil
}

func isDirectory(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
