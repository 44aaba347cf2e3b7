package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/mattn/go-sqlite3"

	"streamcat/models"
)

// Repository provides typed access to the catalog tables. It is the single
// place that maps between the loose stored representation (JSON-encoded sets,
// nullable columns) and the typed models.
type Repository struct {
	db *sql.DB
}

// isTransient reports whether a write failed on short-lived sqlite contention.
func isTransient(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// execWrite runs a write statement, retrying briefly on SQLITE_BUSY. Upstream
// fetch failures are never retried here; only store-level lock contention is.
func (r *Repository) execWrite(query string, args ...any) error {
	return retry.Do(
		func() error {
			_, err := r.db.Exec(query, args...)
			return err
		},
		retry.Attempts(3),
		retry.Delay(50*time.Millisecond),
		retry.RetryIf(isTransient),
		retry.LastErrorOnly(true),
	)
}

func encodeStrings(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	buf, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(buf)
}

func decodeStrings(raw string) []string {
	if raw == "" || raw == "[]" {
		return nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil
	}
	return values
}

// --- episodes ---

// EpisodeExists reports whether an episode with the given external id is
// already stored. This is the idempotency gate checked before any upstream
// fetch.
func (r *Repository) EpisodeExists(externalID string) (bool, error) {
	var one int
	err := r.db.QueryRow(`SELECT 1 FROM episodes WHERE external_id = ?`, externalID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check episode exists: %w", err)
	}
	return true, nil
}

// UpsertEpisode inserts or overwrites the episode keyed by its external id.
// Last write wins; the upstream provider is the source of truth for the
// payload, so overwriting identical-or-newer data is acceptable.
func (r *Repository) UpsertEpisode(ep *models.Episode) error {
	if ep == nil || ep.ExternalID == "" {
		return errors.New("episode external id is required")
	}
	err := r.execWrite(`
		INSERT INTO episodes (
			external_id, series_imdb_id, tmdb_id, series_tmdb_id, season, episode,
			name, overview, still_path, air_date, rating, runtime_minutes, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(external_id) DO UPDATE SET
			series_imdb_id = excluded.series_imdb_id,
			tmdb_id = excluded.tmdb_id,
			series_tmdb_id = excluded.series_tmdb_id,
			season = excluded.season,
			episode = excluded.episode,
			name = excluded.name,
			overview = excluded.overview,
			still_path = excluded.still_path,
			air_date = excluded.air_date,
			rating = excluded.rating,
			runtime_minutes = excluded.runtime_minutes,
			updated_at = datetime('now')`,
		ep.ExternalID, ep.SeriesIMDBID, ep.TMDBID, ep.SeriesTMDBID, ep.Season, ep.Episode,
		ep.Name, ep.Overview, ep.StillPath, ep.AirDate, nullableFloat(ep.Rating), ep.RuntimeMinutes,
	)
	if err != nil {
		return fmt.Errorf("upsert episode %s: %w", ep.ExternalID, err)
	}
	return nil
}

const episodeColumns = `external_id, series_imdb_id, tmdb_id, series_tmdb_id, season, episode,
	name, overview, still_path, air_date, rating, runtime_minutes`

func scanEpisode(row interface{ Scan(...any) error }) (*models.Episode, error) {
	var ep models.Episode
	var rating sql.NullFloat64
	err := row.Scan(
		&ep.ExternalID, &ep.SeriesIMDBID, &ep.TMDBID, &ep.SeriesTMDBID, &ep.Season, &ep.Episode,
		&ep.Name, &ep.Overview, &ep.StillPath, &ep.AirDate, &rating, &ep.RuntimeMinutes,
	)
	if err != nil {
		return nil, err
	}
	if rating.Valid {
		v := rating.Float64
		ep.Rating = &v
	}
	return &ep, nil
}

// GetEpisode returns the episode for the given external id, or nil when absent.
func (r *Repository) GetEpisode(externalID string) (*models.Episode, error) {
	row := r.db.QueryRow(`SELECT `+episodeColumns+` FROM episodes WHERE external_id = ?`, externalID)
	ep, err := scanEpisode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get episode %s: %w", externalID, err)
	}
	return ep, nil
}

// EpisodeFilter narrows ListEpisodes. Zero values mean "any".
type EpisodeFilter struct {
	SeriesIMDBID string
	Season       int
	Year         int
	MinRating    float64
	Limit        int
	Offset       int
}

// ListEpisodes returns episodes matching the filter, ordered by series,
// season and episode number.
func (r *Repository) ListEpisodes(filter EpisodeFilter) ([]models.Episode, error) {
	var where []string
	var args []any
	if filter.SeriesIMDBID != "" {
		where = append(where, "series_imdb_id = ?")
		args = append(args, filter.SeriesIMDBID)
	}
	if filter.Season > 0 {
		where = append(where, "season = ?")
		args = append(args, filter.Season)
	}
	if filter.Year > 0 {
		where = append(where, "substr(air_date, 1, 4) = ?")
		args = append(args, strconv.Itoa(filter.Year))
	}
	if filter.MinRating > 0 {
		where = append(where, "rating >= ?")
		args = append(args, filter.MinRating)
	}

	query := `SELECT ` + episodeColumns + ` FROM episodes`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY series_imdb_id, season, episode"
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	defer rows.Close()

	var episodes []models.Episode
	for rows.Next() {
		ep, err := scanEpisode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		episodes = append(episodes, *ep)
	}
	return episodes, rows.Err()
}

// CountEpisodes returns the number of stored episode records.
func (r *Repository) CountEpisodes() (int, error) {
	var n int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM episodes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count episodes: %w", err)
	}
	return n, nil
}

// EpisodeCountsByYear returns a histogram of stored episodes keyed by the
// year portion of their air date. Episodes without an air date are skipped.
func (r *Repository) EpisodeCountsByYear() (map[int]int, error) {
	rows, err := r.db.Query(`
		SELECT substr(air_date, 1, 4) AS year, COUNT(*)
		FROM episodes
		WHERE length(air_date) >= 4
		GROUP BY year`)
	if err != nil {
		return nil, fmt.Errorf("episode year histogram: %w", err)
	}
	defer rows.Close()

	counts := make(map[int]int)
	for rows.Next() {
		var year string
		var n int
		if err := rows.Scan(&year, &n); err != nil {
			return nil, fmt.Errorf("scan year count: %w", err)
		}
		y, err := strconv.Atoi(year)
		if err != nil || y <= 0 {
			continue
		}
		counts[y] = n
	}
	return counts, rows.Err()
}

// --- series ---

// SeriesExists reports whether a series with the given IMDB id is stored.
func (r *Repository) SeriesExists(imdbID string) (bool, error) {
	var one int
	err := r.db.QueryRow(`SELECT 1 FROM series WHERE imdb_id = ?`, imdbID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check series exists: %w", err)
	}
	return true, nil
}

// UpsertSeries inserts or overwrites the series keyed by its IMDB id.
func (r *Repository) UpsertSeries(s *models.Series) error {
	if s == nil || s.IMDBID == "" {
		return errors.New("series imdb id is required")
	}
	err := r.execWrite(`
		INSERT INTO series (
			imdb_id, tmdb_id, name, original_name, overview, poster_path, backdrop_path,
			first_air_date, last_air_date, season_count, episode_count, status, rating,
			genres, networks, creators, origin_country, original_language, popularity, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(imdb_id) DO UPDATE SET
			tmdb_id = excluded.tmdb_id,
			name = excluded.name,
			original_name = excluded.original_name,
			overview = excluded.overview,
			poster_path = excluded.poster_path,
			backdrop_path = excluded.backdrop_path,
			first_air_date = excluded.first_air_date,
			last_air_date = excluded.last_air_date,
			season_count = excluded.season_count,
			episode_count = excluded.episode_count,
			status = excluded.status,
			rating = excluded.rating,
			genres = excluded.genres,
			networks = excluded.networks,
			creators = excluded.creators,
			origin_country = excluded.origin_country,
			original_language = excluded.original_language,
			popularity = excluded.popularity,
			updated_at = datetime('now')`,
		s.IMDBID, s.TMDBID, s.Name, s.OriginalName, s.Overview, s.PosterPath, s.BackdropPath,
		s.FirstAirDate, s.LastAirDate, s.SeasonCount, s.EpisodeCount, s.Status, nullableFloat(s.Rating),
		encodeStrings(s.Genres), encodeStrings(s.Networks), encodeStrings(s.Creators),
		s.OriginCountry, s.OriginalLanguage, s.Popularity,
	)
	if err != nil {
		return fmt.Errorf("upsert series %s: %w", s.IMDBID, err)
	}
	return nil
}

const seriesColumns = `imdb_id, tmdb_id, name, original_name, overview, poster_path, backdrop_path,
	first_air_date, last_air_date, season_count, episode_count, status, rating,
	genres, networks, creators, origin_country, original_language, popularity`

func scanSeries(row interface{ Scan(...any) error }) (*models.Series, error) {
	var s models.Series
	var rating sql.NullFloat64
	var genres, networks, creators string
	err := row.Scan(
		&s.IMDBID, &s.TMDBID, &s.Name, &s.OriginalName, &s.Overview, &s.PosterPath, &s.BackdropPath,
		&s.FirstAirDate, &s.LastAirDate, &s.SeasonCount, &s.EpisodeCount, &s.Status, &rating,
		&genres, &networks, &creators, &s.OriginCountry, &s.OriginalLanguage, &s.Popularity,
	)
	if err != nil {
		return nil, err
	}
	if rating.Valid {
		v := rating.Float64
		s.Rating = &v
	}
	s.Genres = decodeStrings(genres)
	s.Networks = decodeStrings(networks)
	s.Creators = decodeStrings(creators)
	return &s, nil
}

// GetSeries returns the series for the given IMDB id, or nil when absent.
func (r *Repository) GetSeries(imdbID string) (*models.Series, error) {
	row := r.db.QueryRow(`SELECT `+seriesColumns+` FROM series WHERE imdb_id = ?`, imdbID)
	s, err := scanSeries(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get series %s: %w", imdbID, err)
	}
	return s, nil
}

// SeriesFilter narrows ListSeries. Zero values mean "any".
type SeriesFilter struct {
	Genre  string
	Year   int
	Limit  int
	Offset int
}

// ListSeries returns series matching the filter, ordered by popularity.
func (r *Repository) ListSeries(filter SeriesFilter) ([]models.Series, error) {
	var where []string
	var args []any
	if filter.Genre != "" {
		// Genres are stored as a JSON array of strings; match the quoted value.
		where = append(where, "genres LIKE ?")
		args = append(args, `%"`+filter.Genre+`"%`)
	}
	if filter.Year > 0 {
		where = append(where, "substr(first_air_date, 1, 4) = ?")
		args = append(args, strconv.Itoa(filter.Year))
	}

	query := `SELECT ` + seriesColumns + ` FROM series`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY popularity DESC, imdb_id"
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list series: %w", err)
	}
	defer rows.Close()

	var result []models.Series
	for rows.Next() {
		s, err := scanSeries(rows)
		if err != nil {
			return nil, fmt.Errorf("scan series: %w", err)
		}
		result = append(result, *s)
	}
	return result, rows.Err()
}

// CountSeries returns the number of stored series records.
func (r *Repository) CountSeries() (int, error) {
	var n int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM series`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count series: %w", err)
	}
	return n, nil
}

// --- sync progress ---

// SaveSyncProgress persists the derived progress snapshot. The snapshot is a
// rebuildable cache; losing it only costs a recompute.
func (r *Repository) SaveSyncProgress(snap models.ProgressSnapshot) error {
	yearCounts, err := json.Marshal(snap.YearCounts)
	if err != nil {
		yearCounts = []byte("{}")
	}
	err = r.execWrite(`
		INSERT INTO sync_progress (id, episodes_stored, series_stored, year_counts, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			episodes_stored = excluded.episodes_stored,
			series_stored = excluded.series_stored,
			year_counts = excluded.year_counts,
			updated_at = excluded.updated_at`,
		snap.EpisodesStored, snap.SeriesStored, string(yearCounts), snap.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("save sync progress: %w", err)
	}
	return nil
}

// LoadSyncProgress returns the last persisted snapshot, or nil when none was
// saved yet.
func (r *Repository) LoadSyncProgress() (*models.ProgressSnapshot, error) {
	var snap models.ProgressSnapshot
	var yearCounts, updatedAt string
	err := r.db.QueryRow(`
		SELECT episodes_stored, series_stored, year_counts, updated_at
		FROM sync_progress WHERE id = 1`).
		Scan(&snap.EpisodesStored, &snap.SeriesStored, &yearCounts, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load sync progress: %w", err)
	}
	if yearCounts != "" && yearCounts != "{}" {
		counts := make(map[int]int)
		if err := json.Unmarshal([]byte(yearCounts), &counts); err == nil {
			snap.YearCounts = counts
			for y := range counts {
				snap.Years = append(snap.Years, y)
			}
			sort.Ints(snap.Years)
		}
	}
	if ts, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		snap.UpdatedAt = ts
	}
	return &snap, nil
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
