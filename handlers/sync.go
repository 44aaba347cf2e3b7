package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"streamcat/models"
	"streamcat/services/ingest"
)

// ingestEngine drives the reconciliation pipeline.
type ingestEngine interface {
	IngestOne(ctx context.Context, externalID string) ingest.ItemResult
	IngestBatch(ctx context.Context, externalIDs []string) ingest.BatchResult
}

// progressTracker exposes the derived catalog summary.
type progressTracker interface {
	Refresh() (models.ProgressSnapshot, error)
	Snapshot() models.ProgressSnapshot
	NeedsSync(idsInSource int) bool
}

// idSource supplies the configured external id list.
type idSource interface {
	Load() ([]string, error)
}

// storePinger is the pre-flight store reachability check for batch runs.
type storePinger interface {
	Ping() error
}

// SyncHandler serves the ingestion driver endpoints.
type SyncHandler struct {
	engine   ingestEngine
	progress progressTracker
	source   idSource
	store    storePinger
}

// NewSyncHandler constructs a SyncHandler.
func NewSyncHandler(engine ingestEngine, progress progressTracker, source idSource, store storePinger) *SyncHandler {
	return &SyncHandler{engine: engine, progress: progress, source: source, store: store}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[http] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// RunSync handles POST /api/episodes/sync. It runs a full batch over the
// configured id list and always answers 200 with a structured result when the
// loop ran, even if individual items failed; partial success is success.
// Only a failure to load the source or reach the store before the loop starts
// is a top-level failure.
func (h *SyncHandler) RunSync(w http.ResponseWriter, r *http.Request) {
	ids, err := h.source.Load()
	if err != nil {
		log.Printf("[sync] failed to load id source: %v", err)
		writeError(w, http.StatusServiceUnavailable, "episode id source unavailable")
		return
	}
	if err := h.store.Ping(); err != nil {
		log.Printf("[sync] store unreachable: %v", err)
		writeError(w, http.StatusServiceUnavailable, "record store unavailable")
		return
	}

	result := h.engine.IngestBatch(r.Context(), ids)

	if _, err := h.progress.Refresh(); err != nil {
		log.Printf("[sync] progress refresh after batch failed: %v", err)
	}

	writeJSON(w, http.StatusOK, result)
}

// SyncStatus handles GET /api/episodes/sync. It reports counts without
// performing any ingestion work or upstream calls.
func (h *SyncHandler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	ids, err := h.source.Load()
	if err != nil {
		log.Printf("[sync] failed to load id source: %v", err)
		writeError(w, http.StatusServiceUnavailable, "episode id source unavailable")
		return
	}

	snap, err := h.progress.Refresh()
	if err != nil {
		log.Printf("[sync] progress refresh failed: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to compute sync status")
		return
	}

	status := models.SyncStatus{
		IDsInSource:    len(ids),
		EpisodesStored: snap.EpisodesStored,
		SeriesStored:   snap.SeriesStored,
		NeedsSync:      h.progress.NeedsSync(len(ids)),
	}
	if !snap.UpdatedAt.IsZero() {
		status.LastUpdated = snap.UpdatedAt.Format("2006-01-02T15:04:05Z07:00")
	}
	writeJSON(w, http.StatusOK, status)
}

// SyncSingle handles POST /api/episodes/sync-single?externalId=... — ad hoc
// backfill of exactly one id. The HTTP status reflects the outcome.
func (h *SyncHandler) SyncSingle(w http.ResponseWriter, r *http.Request) {
	externalID := strings.TrimSpace(r.URL.Query().Get("externalId"))
	if externalID == "" {
		writeError(w, http.StatusBadRequest, "externalId query parameter is required")
		return
	}

	result := h.engine.IngestOne(r.Context(), externalID)

	switch result.Outcome {
	case ingest.OutcomeParseFailed:
		writeError(w, http.StatusBadRequest, result.Reason)
	case ingest.OutcomeNotFoundUpstream:
		writeError(w, http.StatusNotFound, result.Reason)
	case ingest.OutcomeUpstreamError:
		writeError(w, http.StatusBadGateway, result.Reason)
	case ingest.OutcomeStoreError:
		writeError(w, http.StatusInternalServerError, result.Reason)
	case ingest.OutcomeAlreadyExists:
		writeJSON(w, http.StatusOK, result)
	default:
		writeJSON(w, http.StatusCreated, result)
	}
}
