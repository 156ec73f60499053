package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
)

// StartWatching renders images as they land in the inbox. Bursts of events
// are collapsed by the configured debounce window.
func (s *Service) StartWatching() error {
	s.mu.Lock()
	if s.watcher != nil {
		s.mu.Unlock()
		return errors.New("already watching")
	}
	s.mu.Unlock()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := s.addWatchDirs(watcher); err != nil {
		watcher.Close()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	s.watcher = watcher
	s.watchCancel = cancel
	s.watchDone = done
	s.mu.Unlock()

	go s.watchLoop(ctx, watcher, done)
	s.logger.Info("watching inbox", "dir", s.options.InboxDir, "debounce", s.options.Debounce)
	return nil
}

func (s *Service) StopWatching() {
	s.mu.Lock()
	watcher := s.watcher
	cancel := s.watchCancel
	done := s.watchDone
	s.watcher = nil
	s.watchCancel = nil
	s.watchDone = nil
	s.mu.Unlock()

	if watcher == nil {
		return
	}

	cancel()
	watcher.Close()
	<-done

	// Wait out a batch that was already rendering.
	s.work.Lock()
	s.work.Unlock()
}

func (s *Service) addWatchDirs(watcher *fsnotify.Watcher) error {
	inbox := filepath.Clean(s.options.InboxDir)
	output := filepath.Clean(s.options.OutputDir)

	return filepath.WalkDir(inbox, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == inbox {
				return fmt.Errorf("watch inbox %s: %w", inbox, walkErr)
			}
			return nil
		}
		if !entry.IsDir() {
			return nil
		}
		if path != inbox && (path == output || strings.HasPrefix(entry.Name(), ".")) {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func (s *Service) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, done chan struct{}) {
	defer close(done)

	var (
		pendingMu sync.Mutex
		pending   = make(map[string]struct{})
	)
	debounced := debounce.New(s.options.Debounce)

	flush := func() {
		pendingMu.Lock()
		paths := make([]string, 0, len(pending))
		for path := range pending {
			paths = append(paths, path)
		}
		pending = make(map[string]struct{})
		pendingMu.Unlock()

		if len(paths) == 0 || ctx.Err() != nil {
			return
		}

		sort.Strings(paths)
		s.processBatch(ctx, paths)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = s.addWatchDirs(watcher)
					continue
				}
			}
			if !s.wantsFile(event.Name) {
				continue
			}

			pendingMu.Lock()
			pending[event.Name] = struct{}{}
			pendingMu.Unlock()
			debounced(flush)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("watcher error", "error", err)
		}
	}
}

func (s *Service) processBatch(ctx context.Context, paths []string) {
	s.work.Lock()
	defer s.work.Unlock()

	totals := Totals{}
	for _, path := range paths {
		if ctx.Err() != nil {
			return
		}
		s.processFile(ctx, path, &totals)
	}
	// A batch interrupted by StopWatching leaves status untouched.
	if ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	s.lastRun = time.Now().UTC()
	s.last = totals
	s.mu.Unlock()

	s.emitProgress(Progress{
		Phase:   "done",
		Message: fmt.Sprintf("Watch batch: %d rendered, %d skipped, %d failed", totals.Rendered, totals.Skipped, totals.Failed),
		Percent: 100,
		Status:  "completed",
	})
}
