// Package cleanup periodically removes stale uploads, renders and preview
// sessions from the server's working directory.
package cleanup

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mgpai22/capsync/internal/logging"
)

// Hook runs after each sweep with the same age limit, e.g. to expire
// in-memory preview sessions.
type Hook func(maxAge time.Duration)

// Keep reports whether a path under the temp dir is still in use. Kept
// directories are not descended into.
type Keep func(path string) bool

// Scheduler handles cleanup of temporary files
type Scheduler struct {
	// Keep, when set, protects live files regardless of their age.
	Keep Keep

	tempDir  string
	interval time.Duration
	maxAge   time.Duration
	hooks    []Hook
	logger   *logging.Logger

	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
}

func NewScheduler(tempDir string, interval, maxAge time.Duration, logger *logging.Logger, hooks ...Hook) *Scheduler {
	return &Scheduler{
		tempDir:  tempDir,
		interval: interval,
		maxAge:   maxAge,
		hooks:    hooks,
		logger:   logging.OrNop(logger),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs one sweep immediately, then one per interval until Stop.
func (s *Scheduler) Start() {
	s.Sweep()

	if s.interval <= 0 {
		close(s.done)
		return
	}

	ticker := time.NewTicker(s.interval)
	go func() {
		defer close(s.done)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep()
			case <-s.stopChan:
				return
			}
		}
	}()

	s.logger.Infow("cleanup scheduler started", "interval", s.interval, "max_age", s.maxAge)
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		<-s.done
		s.logger.Debugw("cleanup scheduler stopped")
	})
}

// Sweep runs the hooks, then deletes files older than maxAge that Keep does
// not claim, then empty directories. It returns the number of files removed.
func (s *Scheduler) Sweep() int {
	// hooks first so files of sessions they expire are swept in this pass
	for _, h := range s.hooks {
		h(s.maxAge)
	}

	now := time.Now()
	var (
		deletedCount int
		deletedSize  int64
		dirs         []string
	)

	err := filepath.Walk(s.tempDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip files we can't access
		}
		if path != s.tempDir && s.Keep != nil && s.Keep(path) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			if path != s.tempDir {
				dirs = append(dirs, path)
			}
			return nil
		}

		age := now.Sub(info.ModTime())
		if age <= s.maxAge {
			return nil
		}
		if err := os.Remove(path); err != nil {
			s.logger.Warnw("failed to delete old file", "path", path, "error", err)
			return nil
		}
		deletedCount++
		deletedSize += info.Size()
		s.logger.Debugw("deleted old temp file", "file", filepath.Base(path), "age", age.Round(time.Second))
		return nil
	})
	if err != nil {
		s.logger.Warnw("error during cleanup", "error", err)
	}

	// deepest first so parents empty out
	for i := len(dirs) - 1; i >= 0; i-- {
		if entries, err := os.ReadDir(dirs[i]); err == nil && len(entries) == 0 {
			_ = os.Remove(dirs[i])
		}
	}

	if deletedCount > 0 {
		s.logger.Infow("cleanup complete", "files", deletedCount, "freed_mb", float64(deletedSize)/(1024*1024))
	}
	return deletedCount
}

// EnsureTempDirExists creates the temp directory if it doesn't exist
func EnsureTempDirExists(tempDir string) error {
	return os.MkdirAll(tempDir, 0755)
}
