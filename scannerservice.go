package main

import (
	"context"
	"emojimosaic/internal/scanner"
)

type ScannerService struct {
	scanner *scanner.Service
}

func NewScannerService(scanService *scanner.Service) *ScannerService {
	return &ScannerService{scanner: scanService}
}

func (s *ScannerService) ScanOnce(ctx context.Context) (scanner.Totals, error) {
	return s.scanner.ScanOnce(ctx)
}

// Watch scans once, then renders new inbox images until ctx is done.
func (s *ScannerService) Watch(ctx context.Context) error {
	if _, err := s.scanner.ScanOnce(ctx); err != nil {
		return err
	}
	if err := s.scanner.StartWatching(); err != nil {
		return err
	}
	defer s.scanner.StopWatching()

	<-ctx.Done()
	return nil
}

func (s *ScannerService) Tracked(ctx context.Context) (int, error) {
	return s.scanner.Tracked(ctx)
}

func (s *ScannerService) GetStatus() scanner.Status {
	return s.scanner.GetStatus()
}
