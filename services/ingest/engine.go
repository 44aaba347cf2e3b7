package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"streamcat/models"
	"streamcat/services/metadata"
)

// Outcome is the terminal state of ingesting one external id.
type Outcome string

const (
	OutcomeCreated          Outcome = "created"
	OutcomeAlreadyExists    Outcome = "already_exists"
	OutcomeParseFailed      Outcome = "parse_failed"
	OutcomeNotFoundUpstream Outcome = "not_found_upstream"
	OutcomeUpstreamError    Outcome = "upstream_error"
	OutcomeStoreError       Outcome = "store_error"
)

// Fetcher retrieves episode and series metadata from the upstream provider.
type Fetcher interface {
	FindEpisode(ctx context.Context, seriesIMDBID string, season, episode int) (*models.Episode, error)
	FindSeries(ctx context.Context, seriesIMDBID string) (*models.Series, error)
}

// Store is the subset of the record store the engine writes through. Writes
// to distinct keys never conflict; same-key writes are last-write-wins at the
// store layer, so the engine holds no locks of its own.
type Store interface {
	EpisodeExists(externalID string) (bool, error)
	UpsertEpisode(*models.Episode) error
	SeriesExists(imdbID string) (bool, error)
	UpsertSeries(*models.Series) error
}

// ItemResult is the outcome of ingesting a single external id.
type ItemResult struct {
	ExternalID string          `json:"externalId"`
	Outcome    Outcome         `json:"outcome"`
	Reason     string          `json:"reason,omitempty"`
	Episode    *models.Episode `json:"episode,omitempty"`
	Series     *models.Series  `json:"series,omitempty"`
}

// ItemError records a failed or skipped-with-reason item in a batch result.
type ItemError struct {
	ExternalID string `json:"externalId"`
	Reason     string `json:"reason"`
}

// BatchResult aggregates per-item outcomes for one batch run. Counters are
// plain sums, so results of partial runs can be merged.
type BatchResult struct {
	RunID     string      `json:"runId"`
	Total     int         `json:"total"`
	Succeeded int         `json:"succeeded"`
	Skipped   int         `json:"skipped"`
	Failed    int         `json:"failed"`
	Errors    []ItemError `json:"errors,omitempty"`
	Canceled  bool        `json:"canceled,omitempty"`
	Duration  string      `json:"duration,omitempty"`
}

func (b *BatchResult) record(r ItemResult) {
	switch r.Outcome {
	case OutcomeCreated:
		b.Succeeded++
	case OutcomeAlreadyExists:
		b.Skipped++
	default:
		b.Failed++
		b.Errors = append(b.Errors, ItemError{ExternalID: r.ExternalID, Reason: r.Reason})
	}
}

// Merge folds another batch result into this one. Merging is commutative and
// associative over the counters, so partial runs can be summed in any order.
func (b *BatchResult) Merge(other BatchResult) {
	b.Total += other.Total
	b.Succeeded += other.Succeeded
	b.Skipped += other.Skipped
	b.Failed += other.Failed
	b.Errors = append(b.Errors, other.Errors...)
	b.Canceled = b.Canceled || other.Canceled
}

// Engine drives the episode/series reconciliation loop: parse, idempotency
// check, upstream fetch, episode upsert, lazy series resolution.
type Engine struct {
	log        *slog.Logger
	fetcher    Fetcher
	store      Store
	maxWorkers int
}

// NewEngine creates a reconciliation engine with the given fan-out limit.
func NewEngine(fetcher Fetcher, store Store, maxWorkers int) *Engine {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &Engine{
		log:        slog.Default().With("component", "ingest-engine"),
		fetcher:    fetcher,
		store:      store,
		maxWorkers: maxWorkers,
	}
}

// IngestOne processes a single external id through the full state machine.
// The existence check always precedes the upstream fetch: re-running over
// already-stored ids must not spend upstream quota. The episode write is not
// rolled back if the follow-up series creation fails; a later run heals the
// missing series record.
func (e *Engine) IngestOne(ctx context.Context, rawID string) ItemResult {
	res := ItemResult{ExternalID: rawID}

	ref, err := ParseExternalID(rawID)
	if err != nil {
		res.Outcome = OutcomeParseFailed
		res.Reason = err.Error()
		return res
	}
	res.ExternalID = ref.ExternalID()

	exists, err := e.store.EpisodeExists(res.ExternalID)
	if err != nil {
		res.Outcome = OutcomeStoreError
		res.Reason = fmt.Sprintf("existence check: %v", err)
		return res
	}
	if exists {
		res.Outcome = OutcomeAlreadyExists
		return res
	}

	ep, err := e.fetcher.FindEpisode(ctx, ref.SeriesIMDBID, ref.Season, ref.Episode)
	if err != nil {
		return e.classifyFetchFailure(res, err)
	}

	// Key and numbering come from the parsed identifier, not the upstream
	// payload; the payload is descriptive only.
	ep.ExternalID = res.ExternalID
	ep.SeriesIMDBID = ref.SeriesIMDBID
	ep.Season = ref.Season
	ep.Episode = ref.Episode

	if err := e.store.UpsertEpisode(ep); err != nil {
		res.Outcome = OutcomeStoreError
		res.Reason = fmt.Sprintf("store episode: %v", err)
		return res
	}

	res.Outcome = OutcomeCreated
	res.Episode = ep
	res.Series = e.ensureSeries(ctx, ref.SeriesIMDBID)
	return res
}

func (e *Engine) classifyFetchFailure(res ItemResult, err error) ItemResult {
	var rateLimited *metadata.RateLimitedError
	switch {
	case errors.Is(err, metadata.ErrNotFound):
		res.Outcome = OutcomeNotFoundUpstream
		res.Reason = err.Error()
	case errors.As(err, &rateLimited):
		res.Outcome = OutcomeUpstreamError
		res.Reason = err.Error()
	default:
		res.Outcome = OutcomeUpstreamError
		res.Reason = fmt.Sprintf("upstream fetch: %v", err)
	}
	return res
}

// ensureSeries lazily creates the parent series record when absent. Failures
// are logged and swallowed: the episode already committed and a later run
// re-attempts series creation on the next episode that references it.
func (e *Engine) ensureSeries(ctx context.Context, imdbID string) *models.Series {
	exists, err := e.store.SeriesExists(imdbID)
	if err != nil {
		e.log.Warn("series existence check failed", "series", imdbID, "error", err)
		return nil
	}
	if exists {
		return nil
	}

	series, err := e.fetcher.FindSeries(ctx, imdbID)
	if err != nil {
		e.log.Warn("series fetch failed, episode kept without series", "series", imdbID, "error", err)
		return nil
	}
	if err := e.store.UpsertSeries(series); err != nil {
		e.log.Warn("series store failed, episode kept without series", "series", imdbID, "error", err)
		return nil
	}
	return series
}

// IngestBatch processes the ids with bounded concurrency. One item's failure
// never aborts the batch; every processed item lands in exactly one counter.
// When the context is canceled, no new items are scheduled; items already in
// flight finish, and the store remains valid and resumable.
func (e *Engine) IngestBatch(ctx context.Context, ids []string) BatchResult {
	runID := uuid.NewString()
	start := time.Now()
	result := BatchResult{RunID: runID, Total: len(ids)}

	e.log.Info("starting batch ingest", "run_id", runID, "total", len(ids), "max_workers", e.maxWorkers)

	workers := pool.New().WithMaxGoroutines(e.maxWorkers)
	var mu sync.Mutex

	for _, id := range ids {
		if ctx.Err() != nil {
			result.Canceled = true
			break
		}
		id := id
		workers.Go(func() {
			item := e.IngestOne(ctx, id)
			mu.Lock()
			result.record(item)
			mu.Unlock()
		})
	}
	workers.Wait()

	result.Duration = time.Since(start).Round(time.Millisecond).String()
	e.log.Info("batch ingest finished",
		"run_id", runID,
		"total", result.Total,
		"succeeded", result.Succeeded,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"canceled", result.Canceled,
		"duration", result.Duration)
	return result
}
