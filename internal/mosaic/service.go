package mosaic

import (
	"context"
	"emojimosaic/internal/logging"
	"emojimosaic/internal/palette"
	"errors"
	"fmt"
	"image/color"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const EventState = "mosaic:state"

type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseLoading  Phase = "loading"
	PhaseScanning Phase = "scanning"
	PhaseComplete Phase = "complete"
	PhaseFailed   Phase = "failed"
)

type State struct {
	JobID   string `json:"jobId"`
	Phase   Phase  `json:"phase"`
	Message string `json:"message"`
	Percent int    `json:"percent"`
	Error   string `json:"error,omitempty"`
	At      string `json:"at"`
}

type Emitter func(eventName string, payload any)

type Request struct {
	Source     io.Reader
	PaletteID  string
	Density    int
	Background color.Color
	OnProgress ProgressFunc
}

type Result struct {
	JobID        string
	PaletteID    string
	Density      int
	SourceFormat string
	Elapsed      time.Duration
	*Mosaic
}

// Service runs mosaic jobs. Each Generate call is one job that moves
// Idle -> Loading -> Scanning -> Complete, dropping to Failed from Loading
// or Scanning. A failed job is not retried.
type Service struct {
	cache     *palette.Cache
	assembler *Assembler
	logger    *slog.Logger

	mu   sync.Mutex
	emit Emitter
	last State
}

func NewService(cache *palette.Cache, assembler *Assembler, logger *slog.Logger) *Service {
	return &Service{
		cache:     cache,
		assembler: assembler,
		logger:    logging.OrDiscard(logger),
		last:      State{Phase: PhaseIdle},
	}
}

func (s *Service) SetEmitter(emitter Emitter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emit = emitter
}

// LastState returns the most recent state emitted by any job.
func (s *Service) LastState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Generate runs one job. Every expected failure wraps ErrNoMosaic.
func (s *Service) Generate(ctx context.Context, request Request) (Result, error) {
	jobID := uuid.NewString()
	startedAt := time.Now()
	density := NormalizeDensity(request.Density)
	logger := s.logger.With("job", jobID, "palette", request.PaletteID, "density", density)

	s.transition(State{JobID: jobID, Phase: PhaseIdle, Message: "Queued"})
	s.transition(State{JobID: jobID, Phase: PhaseLoading, Message: "Decoding source image"})

	if request.Source == nil {
		return Result{}, s.fail(logger, jobID, fmt.Errorf("%w: no source provided", ErrDecode))
	}
	img, format, err := Decode(request.Source)
	if err != nil {
		return Result{}, s.fail(logger, jobID, err)
	}

	profiles, err := s.cache.Load(ctx, request.PaletteID)
	if err != nil {
		return Result{}, s.fail(logger, jobID, fmt.Errorf("%w: %w", ErrNoMosaic, err))
	}

	s.transition(State{JobID: jobID, Phase: PhaseScanning, Message: "Matching blocks"})

	lastPercent := -1
	mosaic, err := s.assembler.Assemble(ctx, img, profiles, Options{
		Density:    density,
		Background: request.Background,
		OnProgress: func(percent int) {
			if request.OnProgress != nil {
				request.OnProgress(percent)
			}
			if percent != lastPercent {
				lastPercent = percent
				s.transition(State{JobID: jobID, Phase: PhaseScanning, Message: "Matching blocks", Percent: percent})
			}
		},
	})
	if err != nil {
		return Result{}, s.fail(logger, jobID, err)
	}

	elapsed := time.Since(startedAt)
	s.transition(State{
		JobID:   jobID,
		Phase:   PhaseComplete,
		Message: fmt.Sprintf("Placed %d tiles", len(mosaic.Tiles)),
		Percent: 100,
	})
	logger.Info("mosaic complete",
		"width", mosaic.Width,
		"height", mosaic.Height,
		"blocks", len(mosaic.Tiles),
		"elapsed", elapsed.Round(time.Millisecond),
	)

	return Result{
		JobID:        jobID,
		PaletteID:    request.PaletteID,
		Density:      density,
		SourceFormat: format,
		Elapsed:      elapsed,
		Mosaic:       mosaic,
	}, nil
}

func (s *Service) fail(logger *slog.Logger, jobID string, err error) error {
	if !errors.Is(err, ErrNoMosaic) {
		err = fmt.Errorf("%w: %w", ErrNoMosaic, err)
	}

	s.transition(State{
		JobID:   jobID,
		Phase:   PhaseFailed,
		Message: "No mosaic produced",
		Percent: 100,
		Error:   err.Error(),
	})
	logger.Warn("mosaic failed", "error", err)
	return err
}

func (s *Service) transition(state State) {
	state.At = time.Now().UTC().Format(time.RFC3339)

	s.mu.Lock()
	s.last = state
	emitter := s.emit
	s.mu.Unlock()

	if emitter != nil {
		emitter(EventState, state)
	}
}
