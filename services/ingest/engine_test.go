package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"streamcat/models"
	"streamcat/services/metadata"
)

// fakeFetcher serves canned metadata and counts upstream calls.
type fakeFetcher struct {
	mu           sync.Mutex
	episodeCalls int
	seriesCalls  int
	episodeErr   error
	seriesErr    error
}

func (f *fakeFetcher) FindEpisode(ctx context.Context, seriesIMDBID string, season, episode int) (*models.Episode, error) {
	f.mu.Lock()
	f.episodeCalls++
	f.mu.Unlock()
	if f.episodeErr != nil {
		return nil, f.episodeErr
	}
	return &models.Episode{
		Name:    "Episode One",
		AirDate: "1950-01-01",
		Season:  season,
		Episode: episode,
	}, nil
}

func (f *fakeFetcher) FindSeries(ctx context.Context, seriesIMDBID string) (*models.Series, error) {
	f.mu.Lock()
	f.seriesCalls++
	f.mu.Unlock()
	if f.seriesErr != nil {
		return nil, f.seriesErr
	}
	return &models.Series{IMDBID: seriesIMDBID, Name: "Test Series"}, nil
}

// fakeStore keeps records in maps and can simulate write failures.
type fakeStore struct {
	mu              sync.Mutex
	episodes        map[string]*models.Episode
	series          map[string]*models.Series
	episodeWriteErr error
	seriesWriteErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		episodes: make(map[string]*models.Episode),
		series:   make(map[string]*models.Series),
	}
}

func (s *fakeStore) EpisodeExists(externalID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.episodes[externalID]
	return ok, nil
}

func (s *fakeStore) UpsertEpisode(ep *models.Episode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.episodeWriteErr != nil {
		return s.episodeWriteErr
	}
	clone := *ep
	s.episodes[ep.ExternalID] = &clone
	return nil
}

func (s *fakeStore) SeriesExists(imdbID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.series[imdbID]
	return ok, nil
}

func (s *fakeStore) UpsertSeries(series *models.Series) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seriesWriteErr != nil {
		return s.seriesWriteErr
	}
	clone := *series
	s.series[series.IMDBID] = &clone
	return nil
}

func TestIngestOne_CreatedThenAlreadyExists(t *testing.T) {
	fetcher := &fakeFetcher{}
	store := newFakeStore()
	engine := NewEngine(fetcher, store, 1)

	first := engine.IngestOne(context.Background(), "tt0041038_1x1")
	if first.Outcome != OutcomeCreated {
		t.Fatalf("first ingest: outcome = %s, want %s (%s)", first.Outcome, OutcomeCreated, first.Reason)
	}
	if first.Episode == nil || first.Episode.ExternalID != "tt0041038_1x1" {
		t.Fatalf("first ingest: missing or mis-keyed episode: %+v", first.Episode)
	}
	if first.Episode.Name != "Episode One" || first.Episode.AirDate != "1950-01-01" {
		t.Errorf("first ingest: episode payload lost: %+v", first.Episode)
	}

	second := engine.IngestOne(context.Background(), "tt0041038_1x1")
	if second.Outcome != OutcomeAlreadyExists {
		t.Fatalf("second ingest: outcome = %s, want %s", second.Outcome, OutcomeAlreadyExists)
	}
	if fetcher.episodeCalls != 1 {
		t.Errorf("upstream episode calls = %d, want 1 (idempotency gate must skip the fetch)", fetcher.episodeCalls)
	}

	stored := store.episodes["tt0041038_1x1"]
	if stored == nil {
		t.Fatal("episode not stored")
	}
	if stored.Season != 1 || stored.Episode != 1 || stored.SeriesIMDBID != "tt0041038" {
		t.Errorf("stored episode fields drifted: %+v", stored)
	}
}

func TestIngestOne_ParseFailedDoesNoIO(t *testing.T) {
	fetcher := &fakeFetcher{}
	store := newFakeStore()
	engine := NewEngine(fetcher, store, 1)

	res := engine.IngestOne(context.Background(), "not-an-id")
	if res.Outcome != OutcomeParseFailed {
		t.Fatalf("outcome = %s, want %s", res.Outcome, OutcomeParseFailed)
	}
	if fetcher.episodeCalls != 0 || fetcher.seriesCalls != 0 {
		t.Error("malformed input must not reach upstream")
	}
	if len(store.episodes) != 0 {
		t.Error("malformed input must not write to the store")
	}
}

func TestIngestOne_LazySeriesCreation(t *testing.T) {
	fetcher := &fakeFetcher{}
	store := newFakeStore()
	engine := NewEngine(fetcher, store, 1)

	res := engine.IngestOne(context.Background(), "tt0041038_1x1")
	if res.Outcome != OutcomeCreated {
		t.Fatalf("outcome = %s, want %s", res.Outcome, OutcomeCreated)
	}
	if store.series["tt0041038"] == nil {
		t.Fatal("expected series record to be created lazily")
	}
	if fetcher.seriesCalls != 1 {
		t.Errorf("series fetch calls = %d, want 1", fetcher.seriesCalls)
	}

	// A second episode of the same series must not refetch the series.
	res = engine.IngestOne(context.Background(), "tt0041038_1x2")
	if res.Outcome != OutcomeCreated {
		t.Fatalf("outcome = %s, want %s", res.Outcome, OutcomeCreated)
	}
	if fetcher.seriesCalls != 1 {
		t.Errorf("series fetch calls = %d, want still 1", fetcher.seriesCalls)
	}
}

func TestIngestOne_SeriesFailureKeepsEpisode(t *testing.T) {
	fetcher := &fakeFetcher{seriesErr: errors.New("boom")}
	store := newFakeStore()
	engine := NewEngine(fetcher, store, 1)

	res := engine.IngestOne(context.Background(), "tt0041038_1x1")
	if res.Outcome != OutcomeCreated {
		t.Fatalf("outcome = %s, want %s (episode must not be rolled back)", res.Outcome, OutcomeCreated)
	}
	if store.episodes["tt0041038_1x1"] == nil {
		t.Fatal("episode must be committed despite series failure")
	}
	if len(store.series) != 0 {
		t.Fatal("series should not exist after failed fetch")
	}
}

func TestIngestOne_NotFoundUpstream(t *testing.T) {
	fetcher := &fakeFetcher{episodeErr: metadata.ErrNotFound}
	store := newFakeStore()
	engine := NewEngine(fetcher, store, 1)

	res := engine.IngestOne(context.Background(), "tt0041038_1x1")
	if res.Outcome != OutcomeNotFoundUpstream {
		t.Fatalf("outcome = %s, want %s", res.Outcome, OutcomeNotFoundUpstream)
	}
	if len(store.episodes) != 0 {
		t.Error("nothing should be stored for a not-found episode")
	}
}

func TestIngestOne_RateLimitedIsUpstreamError(t *testing.T) {
	fetcher := &fakeFetcher{episodeErr: &metadata.RateLimitedError{}}
	store := newFakeStore()
	engine := NewEngine(fetcher, store, 1)

	res := engine.IngestOne(context.Background(), "tt0041038_1x1")
	if res.Outcome != OutcomeUpstreamError {
		t.Fatalf("outcome = %s, want %s", res.Outcome, OutcomeUpstreamError)
	}
}

func TestIngestOne_StoreWriteError(t *testing.T) {
	fetcher := &fakeFetcher{}
	store := newFakeStore()
	store.episodeWriteErr = errors.New("disk full")
	engine := NewEngine(fetcher, store, 1)

	res := engine.IngestOne(context.Background(), "tt0041038_1x1")
	if res.Outcome != OutcomeStoreError {
		t.Fatalf("outcome = %s, want %s", res.Outcome, OutcomeStoreError)
	}
}

func TestIngestBatch_PartialFailureContainment(t *testing.T) {
	fetcher := &fakeFetcher{}
	store := newFakeStore()
	engine := NewEngine(fetcher, store, 3)

	ids := []string{
		"tt0041038_1x1",
		"garbage",
		"tt0041038_1x2",
		"tt0041038_0x0",
		"tt0903747_2x3",
	}
	result := engine.IngestBatch(context.Background(), ids)

	if result.Total != len(ids) {
		t.Fatalf("total = %d, want %d", result.Total, len(ids))
	}
	if result.Succeeded != 3 {
		t.Errorf("succeeded = %d, want 3 (errors: %+v)", result.Succeeded, result.Errors)
	}
	if result.Failed+result.Skipped < 2 {
		t.Errorf("failed+skipped = %d, want >= 2 malformed items accounted", result.Failed+result.Skipped)
	}
	if result.Succeeded+result.Failed+result.Skipped != result.Total {
		t.Errorf("counters do not add up: %+v", result)
	}
	if len(result.Errors) != result.Failed {
		t.Errorf("errors list length %d != failed %d", len(result.Errors), result.Failed)
	}
	if result.RunID == "" {
		t.Error("expected a run id")
	}
}

func TestIngestBatch_RerunSkipsEverything(t *testing.T) {
	fetcher := &fakeFetcher{}
	store := newFakeStore()
	engine := NewEngine(fetcher, store, 2)

	ids := []string{"tt0041038_1x1", "tt0041038_1x2"}
	first := engine.IngestBatch(context.Background(), ids)
	if first.Succeeded != 2 {
		t.Fatalf("first run succeeded = %d, want 2", first.Succeeded)
	}
	callsAfterFirst := fetcher.episodeCalls

	second := engine.IngestBatch(context.Background(), ids)
	if second.Skipped != 2 {
		t.Fatalf("second run skipped = %d, want 2", second.Skipped)
	}
	if fetcher.episodeCalls != callsAfterFirst {
		t.Errorf("re-run spent upstream quota: %d calls after first, %d after second",
			callsAfterFirst, fetcher.episodeCalls)
	}
}

func TestIngestBatch_CanceledContextSchedulesNothing(t *testing.T) {
	fetcher := &fakeFetcher{}
	store := newFakeStore()
	engine := NewEngine(fetcher, store, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := engine.IngestBatch(ctx, []string{"tt0041038_1x1", "tt0041038_1x2"})
	if !result.Canceled {
		t.Fatal("expected canceled result")
	}
	if result.Succeeded != 0 {
		t.Errorf("succeeded = %d, want 0", result.Succeeded)
	}
	if len(store.episodes) != 0 {
		t.Error("no writes expected after cancellation")
	}
}

func TestBatchResult_MergeIsCommutative(t *testing.T) {
	a := BatchResult{Total: 3, Succeeded: 2, Failed: 1, Errors: []ItemError{{ExternalID: "x", Reason: "r"}}}
	b := BatchResult{Total: 2, Succeeded: 1, Skipped: 1}

	left := a
	left.Merge(b)
	right := b
	right.Merge(a)

	if left.Total != right.Total || left.Succeeded != right.Succeeded ||
		left.Skipped != right.Skipped || left.Failed != right.Failed {
		t.Errorf("merge not commutative over counters: %+v vs %+v", left, right)
	}
	if left.Total != 5 || left.Succeeded != 3 || left.Skipped != 1 || left.Failed != 1 {
		t.Errorf("unexpected merged counters: %+v", left)
	}
}
