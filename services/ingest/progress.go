package ingest

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"streamcat/models"
)

// progressStore is the subset of the record store the tracker reads from and
// persists its derived snapshot to.
type progressStore interface {
	CountEpisodes() (int, error)
	CountSeries() (int, error)
	EpisodeCountsByYear() (map[int]int, error)
	SaveSyncProgress(models.ProgressSnapshot) error
	LoadSyncProgress() (*models.ProgressSnapshot, error)
}

// ProgressTracker maintains a cached, explicitly refreshed summary of the
// catalog store. The snapshot is derived state: Refresh always recomputes
// from the durable tables, never from in-process memory.
type ProgressTracker struct {
	mu    sync.RWMutex
	store progressStore
	snap  models.ProgressSnapshot
}

// NewProgressTracker creates a tracker, warming the cache from the last
// persisted snapshot when one exists.
func NewProgressTracker(store progressStore) *ProgressTracker {
	t := &ProgressTracker{store: store}
	if snap, err := store.LoadSyncProgress(); err != nil {
		log.Printf("[progress] failed to load persisted snapshot: %v", err)
	} else if snap != nil {
		t.snap = *snap
	}
	return t
}

// Refresh recomputes the snapshot from the durable store and persists it.
func (t *ProgressTracker) Refresh() (models.ProgressSnapshot, error) {
	episodes, err := t.store.CountEpisodes()
	if err != nil {
		return models.ProgressSnapshot{}, fmt.Errorf("refresh progress: %w", err)
	}
	series, err := t.store.CountSeries()
	if err != nil {
		return models.ProgressSnapshot{}, fmt.Errorf("refresh progress: %w", err)
	}
	yearCounts, err := t.store.EpisodeCountsByYear()
	if err != nil {
		return models.ProgressSnapshot{}, fmt.Errorf("refresh progress: %w", err)
	}

	snap := models.ProgressSnapshot{
		EpisodesStored: episodes,
		SeriesStored:   series,
		YearCounts:     yearCounts,
		UpdatedAt:      time.Now().UTC(),
	}
	for year := range yearCounts {
		snap.Years = append(snap.Years, year)
	}
	sort.Ints(snap.Years)

	if err := t.store.SaveSyncProgress(snap); err != nil {
		// The snapshot is a rebuildable cache; failing to persist it is not
		// fatal for the caller.
		log.Printf("[progress] failed to persist snapshot: %v", err)
	}

	t.mu.Lock()
	t.snap = snap
	t.mu.Unlock()
	return snap, nil
}

// Snapshot returns the last computed values without touching the store.
func (t *ProgressTracker) Snapshot() models.ProgressSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap
}

// NeedsSync reports whether the driver's id list holds more episodes than the
// store. Equal counts mean no sync is needed.
func (t *ProgressTracker) NeedsSync(idsInSource int) bool {
	return idsInSource > t.Snapshot().EpisodesStored
}
