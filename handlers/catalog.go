package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"streamcat/internal/database"
	"streamcat/models"
)

// catalogStore is the read-side of the record store used by browse endpoints.
type catalogStore interface {
	ListSeries(database.SeriesFilter) ([]models.Series, error)
	GetSeries(imdbID string) (*models.Series, error)
	ListEpisodes(database.EpisodeFilter) ([]models.Episode, error)
	GetEpisode(externalID string) (*models.Episode, error)
}

// CatalogHandler serves filtered catalog queries over the record store.
type CatalogHandler struct {
	store    catalogStore
	progress progressTracker
}

// NewCatalogHandler constructs a CatalogHandler.
func NewCatalogHandler(store catalogStore, progress progressTracker) *CatalogHandler {
	return &CatalogHandler{store: store, progress: progress}
}

const maxPageSize = 200

func parsePage(r *http.Request) (limit, offset int) {
	limit = 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}

// ListSeries handles GET /api/series?genre=&year=&limit=&offset=.
func (h *CatalogHandler) ListSeries(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePage(r)
	filter := database.SeriesFilter{
		Genre:  strings.TrimSpace(r.URL.Query().Get("genre")),
		Limit:  limit,
		Offset: offset,
	}
	if v := r.URL.Query().Get("year"); v != "" {
		if year, err := strconv.Atoi(v); err == nil && year > 0 {
			filter.Year = year
		}
	}

	series, err := h.store.ListSeries(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list series")
		return
	}
	if series == nil {
		series = []models.Series{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": series, "count": len(series)})
}

// GetSeries handles GET /api/series/{id}.
func (h *CatalogHandler) GetSeries(w http.ResponseWriter, r *http.Request) {
	imdbID := mux.Vars(r)["id"]
	series, err := h.store.GetSeries(imdbID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load series")
		return
	}
	if series == nil {
		writeError(w, http.StatusNotFound, "series not found")
		return
	}
	writeJSON(w, http.StatusOK, series)
}

// ListSeriesEpisodes handles GET /api/series/{id}/episodes?season=.
func (h *CatalogHandler) ListSeriesEpisodes(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePage(r)
	filter := database.EpisodeFilter{
		SeriesIMDBID: mux.Vars(r)["id"],
		Limit:        limit,
		Offset:       offset,
	}
	if v := r.URL.Query().Get("season"); v != "" {
		season, err := strconv.Atoi(v)
		if err != nil || season < 1 {
			writeError(w, http.StatusBadRequest, "season must be a positive integer")
			return
		}
		filter.Season = season
	}

	episodes, err := h.store.ListEpisodes(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list episodes")
		return
	}
	if episodes == nil {
		episodes = []models.Episode{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": episodes, "count": len(episodes)})
}

// ListEpisodes handles GET /api/episodes?year=&minRating=&limit=&offset=.
func (h *CatalogHandler) ListEpisodes(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePage(r)
	filter := database.EpisodeFilter{Limit: limit, Offset: offset}
	if v := r.URL.Query().Get("year"); v != "" {
		if year, err := strconv.Atoi(v); err == nil && year > 0 {
			filter.Year = year
		}
	}
	if v := r.URL.Query().Get("minRating"); v != "" {
		if rating, err := strconv.ParseFloat(v, 64); err == nil && rating > 0 {
			filter.MinRating = rating
		}
	}

	episodes, err := h.store.ListEpisodes(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list episodes")
		return
	}
	if episodes == nil {
		episodes = []models.Episode{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": episodes, "count": len(episodes)})
}

// GetEpisode handles GET /api/episodes/{externalId}.
func (h *CatalogHandler) GetEpisode(w http.ResponseWriter, r *http.Request) {
	externalID := mux.Vars(r)["externalId"]
	episode, err := h.store.GetEpisode(externalID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load episode")
		return
	}
	if episode == nil {
		writeError(w, http.StatusNotFound, "episode not found")
		return
	}
	writeJSON(w, http.StatusOK, episode)
}

// GetYears handles GET /api/catalog/years. It serves the cached progress
// snapshot; callers wanting fresh numbers hit the sync status endpoint.
func (h *CatalogHandler) GetYears(w http.ResponseWriter, r *http.Request) {
	snap := h.progress.Snapshot()
	years := snap.Years
	if years == nil {
		years = []int{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"years":      years,
		"yearCounts": snap.YearCounts,
	})
}
