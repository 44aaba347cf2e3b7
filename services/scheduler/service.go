package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"streamcat/config"
	"streamcat/models"
	"streamcat/services/ingest"
)

type batchRunner interface {
	IngestBatch(ctx context.Context, externalIDs []string) ingest.BatchResult
}

type idSource interface {
	Load() ([]string, error)
}

type progressTracker interface {
	Refresh() (models.ProgressSnapshot, error)
	NeedsSync(idsInSource int) bool
}

// Service runs the batch ingest on a configured interval. A run already in
// progress is never doubled up; each interval tick is skipped while one is
// active.
type Service struct {
	cfgManager *config.Manager
	engine     batchRunner
	source     idSource
	progress   progressTracker

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	taskMu     sync.Mutex
	syncActive bool
}

// NewService creates the auto-sync scheduler.
func NewService(cfgManager *config.Manager, engine batchRunner, source idSource, progress progressTracker) *Service {
	return &Service{
		cfgManager: cfgManager,
		engine:     engine,
		source:     source,
		progress:   progress,
	}
}

// Start begins the background loop. It is a no-op when already running or
// when auto-sync is disabled in settings.
func (s *Service) Start(ctx context.Context) error {
	settings, err := s.cfgManager.Load()
	if err != nil {
		return err
	}
	if !settings.AutoSyncEnabled {
		log.Println("[scheduler] auto-sync disabled, not starting")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	interval := time.Duration(settings.AutoSyncIntervalMinutes) * time.Minute

	s.wg.Add(1)
	go s.loop(interval)

	log.Printf("[scheduler] started, interval %s", interval)
	return nil
}

// Stop cancels the loop and waits for an active run to finish, bounded by
// the given context. The store stays valid either way; ingestion is
// idempotent and committed per item.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Println("[scheduler] stopped")
	case <-ctx.Done():
		log.Println("[scheduler] stopped (timeout waiting for active run)")
	}
	s.running = false
	return nil
}

func (s *Service) loop(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.runAutoSync()
		}
	}
}

func (s *Service) runAutoSync() {
	s.taskMu.Lock()
	if s.syncActive {
		s.taskMu.Unlock()
		log.Println("[scheduler] sync already running, skipping tick")
		return
	}
	s.syncActive = true
	s.taskMu.Unlock()

	defer func() {
		s.taskMu.Lock()
		s.syncActive = false
		s.taskMu.Unlock()
	}()

	ids, err := s.source.Load()
	if err != nil {
		log.Printf("[scheduler] failed to load id source: %v", err)
		return
	}
	if !s.progress.NeedsSync(len(ids)) {
		log.Printf("[scheduler] store already covers %d source ids, skipping", len(ids))
		return
	}

	result := s.engine.IngestBatch(s.ctx, ids)
	log.Printf("[scheduler] auto-sync run %s: %d succeeded, %d skipped, %d failed",
		result.RunID, result.Succeeded, result.Skipped, result.Failed)

	if _, err := s.progress.Refresh(); err != nil {
		log.Printf("[scheduler] progress refresh failed: %v", err)
	}
}
