// Package cleanup removes run temp files left behind by crashed processes.
package cleanup

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"speech-insights-service/internal/observability/logging"
	"speech-insights-service/internal/observability/metrics"
	"speech-insights-service/internal/service/pipeline"
)

// Scheduler periodically sweeps stale pipeline temp files. Only files whose
// name matches the pipeline temp pattern are touched, so the temp dir may be
// shared.
type Scheduler struct {
	tempDir  string
	interval time.Duration
	maxAge   time.Duration
	metrics  *metrics.Metrics
	log      zerolog.Logger
	now      func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewScheduler creates a sweeper for tempDir.
func NewScheduler(tempDir string, interval, maxAge time.Duration) *Scheduler {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &Scheduler{
		tempDir:  tempDir,
		interval: interval,
		maxAge:   maxAge,
		metrics:  metrics.DefaultMetrics,
		log:      logging.WithComponent("cleanup"),
		now:      time.Now,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start sweeps once, then every interval until Stop.
func (s *Scheduler) Start() {
	s.Sweep()

	ticker := time.NewTicker(s.interval)
	go func() {
		defer close(s.done)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep()
			case <-s.stopCh:
				return
			}
		}
	}()

	s.log.Info().
		Dur("interval", s.interval).
		Dur("maxAge", s.maxAge).
		Str("dir", s.tempDir).
		Msg("Cleanup scheduler started")
}

// Stop ends the sweep loop and waits for it. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		<-s.done
		s.log.Info().Msg("Cleanup scheduler stopped")
	})
}

// Sweep removes matching files older than maxAge and returns how many it removed.
func (s *Scheduler) Sweep() int {
	entries, err := os.ReadDir(s.tempDir)
	if err != nil {
		s.log.Warn().Err(err).Str("dir", s.tempDir).Msg("cannot read temp dir")
		return 0
	}

	now := s.now()
	var removed int
	var freed int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ok, _ := filepath.Match(pipeline.TempPattern, e.Name()); !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		age := now.Sub(info.ModTime())
		if age <= s.maxAge {
			continue
		}

		path := filepath.Join(s.tempDir, e.Name())
		if err := pipeline.RemoveTemp(path); err != nil {
			s.log.Warn().Err(err).Str("file", e.Name()).Msg("failed to delete stale temp file")
			continue
		}
		removed++
		freed += info.Size()
		s.log.Debug().Str("file", e.Name()).Dur("age", age.Round(time.Second)).Msg("deleted stale temp file")
	}

	if removed > 0 {
		s.metrics.RecordTempFilesSwept(removed)
		s.log.Info().Int("files", removed).Int64("bytes", freed).Msg("temp cleanup complete")
	}
	return removed
}
