package scanner

import (
	"context"
	"database/sql"
	"emojimosaic/internal/artifact"
	"emojimosaic/internal/logging"
	"emojimosaic/internal/mosaic"
	"errors"
	"fmt"
	"image/color"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const EventProgress = "scanner:progress"

const defaultDebounce = 750 * time.Millisecond

type Progress struct {
	Phase   string `json:"phase"`
	Message string `json:"message"`
	Percent int    `json:"percent"`
	Status  string `json:"status"`
	At      string `json:"at"`
}

type Status struct {
	Running       bool   `json:"running"`
	Watching      bool   `json:"watching"`
	LastRunAt     string `json:"lastRunAt"`
	LastError     string `json:"lastError,omitempty"`
	LastFilesSeen int    `json:"lastFilesSeen"`
	LastRendered  int    `json:"lastRendered"`
	LastSkipped   int    `json:"lastSkipped"`
	LastFailed    int    `json:"lastFailed"`
}

type Emitter func(eventName string, payload any)

// Generator produces mosaics; *mosaic.Service satisfies it.
type Generator interface {
	Generate(ctx context.Context, request mosaic.Request) (mosaic.Result, error)
}

type Options struct {
	InboxDir   string
	OutputDir  string
	PaletteID  string
	Density    int
	Format     string
	Background color.Color
	Debounce   time.Duration
}

type Totals struct {
	FilesSeen int
	Rendered  int
	Skipped   int
	Failed    int
}

// Service turns every image in an inbox folder into a mosaic artifact in
// an output folder, remembering which file revisions it already rendered.
type Service struct {
	mu        sync.Mutex
	running   bool
	lastRun   time.Time
	lastError string
	last      Totals
	emit      Emitter

	// work serializes scans and watch flushes.
	work sync.Mutex

	watcher     *fsnotify.Watcher
	watchCancel context.CancelFunc
	watchDone   chan struct{}

	generator Generator
	processed *ProcessedRepository
	options   Options
	logger    *slog.Logger
}

// NewService builds a scanner. A nil database disables revision tracking;
// existing artifacts are then the only skip signal.
func NewService(database *sql.DB, generator Generator, options Options, logger *slog.Logger) *Service {
	options.Density = mosaic.NormalizeDensity(options.Density)
	options.Format = artifact.NormalizeFormat(options.Format)
	if options.Debounce <= 0 {
		options.Debounce = defaultDebounce
	}
	if strings.TrimSpace(options.OutputDir) == "" {
		options.OutputDir = options.InboxDir
	}

	service := &Service{
		generator: generator,
		options:   options,
		logger:    logging.OrDiscard(logger),
	}
	if database != nil {
		service.processed = NewProcessedRepository(database)
	}
	return service
}

func (s *Service) SetEmitter(emitter Emitter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emit = emitter
}

func (s *Service) GetStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{
		Running:       s.running,
		Watching:      s.watcher != nil,
		LastError:     s.lastError,
		LastFilesSeen: s.last.FilesSeen,
		LastRendered:  s.last.Rendered,
		LastSkipped:   s.last.Skipped,
		LastFailed:    s.last.Failed,
	}
	if !s.lastRun.IsZero() {
		status.LastRunAt = s.lastRun.UTC().Format(time.RFC3339)
	}

	return status
}

// ScanOnce renders every supported image under the inbox that has no
// current artifact. Per-file failures are counted, not returned.
func (s *Service) ScanOnce(ctx context.Context) (Totals, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return Totals{}, errors.New("scan already in progress")
	}
	s.running = true
	s.lastError = ""
	s.mu.Unlock()

	totals, err := s.performScan(ctx)

	s.mu.Lock()
	s.running = false
	if err != nil {
		s.lastError = err.Error()
	} else {
		s.lastRun = time.Now().UTC()
		s.last = totals
	}
	s.mu.Unlock()

	if err != nil {
		s.emitProgress(Progress{Phase: "failed", Message: err.Error(), Percent: 100, Status: "failed"})
		return totals, err
	}

	s.emitProgress(Progress{
		Phase: "done",
		Message: fmt.Sprintf(
			"Scan complete: %d images seen, %d rendered, %d skipped, %d failed",
			totals.FilesSeen,
			totals.Rendered,
			totals.Skipped,
			totals.Failed,
		),
		Percent: 100,
		Status:  "completed",
	})
	return totals, nil
}

// Tracked reports how many rendered images are recorded. Without a
// database it is always zero.
func (s *Service) Tracked(ctx context.Context) (int, error) {
	if s.processed == nil {
		return 0, nil
	}
	return s.processed.Count(ctx)
}

func (s *Service) performScan(ctx context.Context) (Totals, error) {
	s.work.Lock()
	defer s.work.Unlock()

	s.emitProgress(Progress{Phase: "start", Message: "Listing inbox", Percent: 5, Status: "running"})

	paths, err := s.listImages()
	if err != nil {
		return Totals{}, err
	}
	if len(paths) == 0 {
		return Totals{}, nil
	}

	totals := Totals{}
	for index, path := range paths {
		if err := ctx.Err(); err != nil {
			return totals, err
		}

		s.emitProgress(Progress{
			Phase:   "render",
			Message: fmt.Sprintf("Rendering %s", filepath.Base(path)),
			Percent: 10 + (index*85)/len(paths),
			Status:  "running",
		})
		s.processFile(ctx, path, &totals)
	}

	return totals, nil
}

func (s *Service) listImages() ([]string, error) {
	inbox := filepath.Clean(s.options.InboxDir)
	output := filepath.Clean(s.options.OutputDir)
	if strings.TrimSpace(s.options.InboxDir) == "" {
		return nil, errors.New("inbox directory is required")
	}

	paths := make([]string, 0)
	err := filepath.WalkDir(inbox, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == inbox {
				return walkErr
			}
			return nil
		}
		if entry.IsDir() {
			if path != inbox && (path == output || strings.HasPrefix(entry.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if s.wantsFile(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk inbox %s: %w", inbox, err)
	}

	sort.Strings(paths)
	return paths, nil
}

func (s *Service) wantsFile(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || artifact.IsArtifact(name) {
		return false
	}
	return mosaic.IsSupportedPath(path)
}

func (s *Service) processFile(ctx context.Context, path string, totals *Totals) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}
	totals.FilesSeen++

	outputPath := artifact.PathFor(s.options.OutputDir, path, s.options.PaletteID, s.options.Density, s.options.Format)
	if s.upToDate(ctx, path, info, outputPath) {
		totals.Skipped++
		return
	}

	size, err := s.render(ctx, path, outputPath)
	if err != nil {
		totals.Failed++
		s.logger.Warn("render failed", "path", path, "error", err)
		return
	}
	totals.Rendered++
	s.logger.Info("rendered mosaic", "source", path, "output", outputPath, "bytes", size)

	if s.processed == nil {
		return
	}
	if err := s.processed.Upsert(ctx, ProcessedImage{
		Path:        path,
		PaletteID:   s.options.PaletteID,
		Density:     s.options.Density,
		Size:        info.Size(),
		ModTimeNano: info.ModTime().UnixNano(),
		OutputPath:  outputPath,
	}); err != nil {
		s.logger.Warn("record processed image failed", "path", path, "error", err)
	}
}

func (s *Service) upToDate(ctx context.Context, path string, info fs.FileInfo, outputPath string) bool {
	if _, err := os.Stat(outputPath); err != nil {
		return false
	}
	if s.processed == nil {
		return true
	}

	record, err := s.processed.Get(ctx, path, s.options.PaletteID, s.options.Density)
	if err != nil {
		return false
	}
	return record.Size == info.Size() && record.ModTimeNano == info.ModTime().UnixNano() && record.OutputPath == outputPath
}

func (s *Service) render(ctx context.Context, path string, outputPath string) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	result, err := s.generator.Generate(ctx, mosaic.Request{
		Source:     file,
		PaletteID:  s.options.PaletteID,
		Density:    s.options.Density,
		Background: s.options.Background,
	})
	if err != nil {
		return 0, err
	}

	return artifact.WriteFile(outputPath, result.Mosaic, s.options.Format)
}

func (s *Service) emitProgress(progress Progress) {
	if progress.At == "" {
		progress.At = time.Now().UTC().Format(time.RFC3339)
	}

	s.mu.Lock()
	emitter := s.emit
	s.mu.Unlock()

	if emitter != nil {
		emitter(EventProgress, progress)
	}
}
