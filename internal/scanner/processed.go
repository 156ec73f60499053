package scanner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrNotProcessed = errors.New("image not processed")

// ProcessedImage records which source file state produced an artifact.
type ProcessedImage struct {
	Path        string
	PaletteID   string
	Density     int
	Size        int64
	ModTimeNano int64
	OutputPath  string
	ProcessedAt string
}

type ProcessedRepository struct {
	db *sql.DB
}

func NewProcessedRepository(database *sql.DB) *ProcessedRepository {
	return &ProcessedRepository{db: database}
}

func (r *ProcessedRepository) Get(ctx context.Context, path string, paletteID string, density int) (ProcessedImage, error) {
	image := ProcessedImage{Path: path, PaletteID: paletteID, Density: density}
	err := r.db.QueryRowContext(
		ctx,
		`SELECT file_size, file_mtime_ns, output_path, processed_at
		 FROM processed_images WHERE path = ? AND palette_id = ? AND density = ?`,
		path,
		paletteID,
		density,
	).Scan(&image.Size, &image.ModTimeNano, &image.OutputPath, &image.ProcessedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ProcessedImage{}, ErrNotProcessed
		}
		return ProcessedImage{}, fmt.Errorf("get processed image %s: %w", path, err)
	}

	return image, nil
}

func (r *ProcessedRepository) Upsert(ctx context.Context, image ProcessedImage) error {
	if image.ProcessedAt == "" {
		image.ProcessedAt = time.Now().UTC().Format(time.RFC3339)
	}

	if _, err := r.db.ExecContext(
		ctx,
		`INSERT INTO processed_images(path, palette_id, density, file_size, file_mtime_ns, output_path, processed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(path, palette_id, density) DO UPDATE SET
			file_size = excluded.file_size,
			file_mtime_ns = excluded.file_mtime_ns,
			output_path = excluded.output_path,
			processed_at = excluded.processed_at`,
		image.Path,
		image.PaletteID,
		image.Density,
		image.Size,
		image.ModTimeNano,
		image.OutputPath,
		image.ProcessedAt,
	); err != nil {
		return fmt.Errorf("upsert processed image %s: %w", image.Path, err)
	}
	return nil
}

func (r *ProcessedRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM processed_images").Scan(&count); err != nil {
		return 0, fmt.Errorf("count processed images: %w", err)
	}
	return count, nil
}
