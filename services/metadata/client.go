package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"streamcat/models"
)

const tmdbBaseURL = "https://api.themoviedb.org/3"

// Minimal TMDB client for the two lookups ingestion needs: resolving an IMDB
// series id to a TMDB series, and fetching a single episode's metadata.
type Client struct {
	apiKey   string
	language string
	httpc    *http.Client
	limiter  *rate.Limiter
	cache    *fileCache
}

// NewClient creates a TMDB client. Upstream calls are paced by a token
// bucket (requestsPerSecond, same burst) so a batch ingest cannot exceed the
// provider's request-rate ceiling regardless of worker count.
func NewClient(apiKey, language string, httpc *http.Client, cacheDir string, ttlHours int, requestsPerSecond float64) *Client {
	if httpc == nil {
		httpc = &http.Client{Timeout: 15 * time.Second}
	}
	if requestsPerSecond <= 0 {
		requestsPerSecond = 35
	}
	burst := int(requestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		apiKey:   apiKey,
		language: normalizeLanguage(language),
		httpc:    httpc,
		limiter:  rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		cache:    newFileCache(cacheDir, ttlHours),
	}
}

// IsConfigured reports whether an API key is set.
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

// normalizeLanguage maps loose language values to TMDB's bcp-47 form.
func normalizeLanguage(lang string) string {
	lang = strings.TrimSpace(strings.ReplaceAll(lang, "_", "-"))
	if lang == "" {
		return "en-US"
	}
	parts := strings.SplitN(lang, "-", 2)
	if len(parts) == 2 {
		return strings.ToLower(parts[0]) + "-" + strings.ToUpper(parts[1])
	}
	if lang == "en" {
		return "en-US"
	}
	return strings.ToLower(lang)
}

// do performs a single paced TMDB request and decodes the JSON response.
// 404 maps to ErrNotFound, 429 to RateLimitedError; everything else
// non-2xx is a transport error.
func (c *Client) do(ctx context.Context, path string, query url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("tmdb: wait for rate limiter: %w", err)
	}

	if query == nil {
		query = url.Values{}
	}
	query.Set("api_key", c.apiKey)
	query.Set("language", c.language)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tmdbBaseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("tmdb: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("tmdb: %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		var retryAfter time.Duration
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			retryAfter = time.Duration(secs) * time.Second
		}
		return &RateLimitedError{RetryAfter: retryAfter}
	case resp.StatusCode >= 300:
		return fmt.Errorf("tmdb: unexpected status %d for %s", resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("tmdb: decode %s: %w", path, err)
	}
	return nil
}

type tmdbFindResponse struct {
	TVResults []struct {
		ID int64 `json:"id"`
	} `json:"tv_results"`
}

// resolveSeriesID maps an IMDB series id to a TMDB series id. Mappings are
// stable, so hits are cached on disk.
func (c *Client) resolveSeriesID(ctx context.Context, imdbID string) (int64, error) {
	key := cacheKey("tmdb", "find", imdbID)
	var cached int64
	if ok, _ := c.cache.get(key, &cached); ok && cached > 0 {
		return cached, nil
	}

	var found tmdbFindResponse
	q := url.Values{}
	q.Set("external_source", "imdb_id")
	if err := c.do(ctx, "/find/"+url.PathEscape(imdbID), q, &found); err != nil {
		return 0, err
	}
	if len(found.TVResults) == 0 {
		return 0, fmt.Errorf("no tv match for %s: %w", imdbID, ErrNotFound)
	}

	id := found.TVResults[0].ID
	_ = c.cache.set(key, id)
	return id, nil
}

type tmdbSeriesDetails struct {
	ID               int64   `json:"id"`
	Name             string  `json:"name"`
	OriginalName     string  `json:"original_name"`
	Overview         string  `json:"overview"`
	PosterPath       string  `json:"poster_path"`
	BackdropPath     string  `json:"backdrop_path"`
	FirstAirDate     string  `json:"first_air_date"`
	LastAirDate      string  `json:"last_air_date"`
	NumberOfSeasons  int     `json:"number_of_seasons"`
	NumberOfEpisodes int     `json:"number_of_episodes"`
	Status           string  `json:"status"`
	VoteAverage      float64 `json:"vote_average"`
	Popularity       float64 `json:"popularity"`
	OriginalLanguage string  `json:"original_language"`
	OriginCountry    []string `json:"origin_country"`
	Genres           []struct {
		Name string `json:"name"`
	} `json:"genres"`
	Networks []struct {
		Name string `json:"name"`
	} `json:"networks"`
	CreatedBy []struct {
		Name string `json:"name"`
	} `json:"created_by"`
}

// FindSeries fetches series metadata for the given IMDB id.
func (c *Client) FindSeries(ctx context.Context, imdbID string) (*models.Series, error) {
	key := cacheKey("tmdb", "series", "v1", imdbID)
	var cached models.Series
	if ok, _ := c.cache.get(key, &cached); ok && cached.IMDBID != "" {
		return &cached, nil
	}

	tmdbID, err := c.resolveSeriesID(ctx, imdbID)
	if err != nil {
		return nil, err
	}

	var details tmdbSeriesDetails
	if err := c.do(ctx, fmt.Sprintf("/tv/%d", tmdbID), nil, &details); err != nil {
		return nil, err
	}

	series := &models.Series{
		IMDBID:           imdbID,
		TMDBID:           details.ID,
		Name:             details.Name,
		OriginalName:     details.OriginalName,
		Overview:         details.Overview,
		PosterPath:       details.PosterPath,
		BackdropPath:     details.BackdropPath,
		FirstAirDate:     details.FirstAirDate,
		LastAirDate:      details.LastAirDate,
		SeasonCount:      details.NumberOfSeasons,
		EpisodeCount:     details.NumberOfEpisodes,
		Status:           details.Status,
		OriginalLanguage: details.OriginalLanguage,
		Popularity:       details.Popularity,
	}
	if details.VoteAverage > 0 {
		v := details.VoteAverage
		series.Rating = &v
	}
	if len(details.OriginCountry) > 0 {
		series.OriginCountry = details.OriginCountry[0]
	}
	for _, g := range details.Genres {
		series.Genres = append(series.Genres, g.Name)
	}
	for _, n := range details.Networks {
		series.Networks = append(series.Networks, n.Name)
	}
	for _, cr := range details.CreatedBy {
		series.Creators = append(series.Creators, cr.Name)
	}

	_ = c.cache.set(key, series)
	return series, nil
}

type tmdbEpisodeDetails struct {
	ID            int64   `json:"id"`
	Name          string  `json:"name"`
	Overview      string  `json:"overview"`
	StillPath     string  `json:"still_path"`
	AirDate       string  `json:"air_date"`
	VoteAverage   float64 `json:"vote_average"`
	Runtime       int     `json:"runtime"`
	SeasonNumber  int     `json:"season_number"`
	EpisodeNumber int     `json:"episode_number"`
}

// FindEpisode fetches metadata for one episode of the series identified by
// its IMDB id. Episode payloads are not cached on disk; the caller's
// existence check already prevents refetching stored episodes.
func (c *Client) FindEpisode(ctx context.Context, imdbID string, season, episode int) (*models.Episode, error) {
	tmdbID, err := c.resolveSeriesID(ctx, imdbID)
	if err != nil {
		return nil, err
	}

	var details tmdbEpisodeDetails
	path := fmt.Sprintf("/tv/%d/season/%d/episode/%d", tmdbID, season, episode)
	if err := c.do(ctx, path, nil, &details); err != nil {
		return nil, err
	}

	ep := &models.Episode{
		SeriesIMDBID:   imdbID,
		TMDBID:         details.ID,
		SeriesTMDBID:   tmdbID,
		Season:         details.SeasonNumber,
		Episode:        details.EpisodeNumber,
		Name:           details.Name,
		Overview:       details.Overview,
		StillPath:      details.StillPath,
		AirDate:        details.AirDate,
		RuntimeMinutes: details.Runtime,
	}
	if details.VoteAverage > 0 {
		v := details.VoteAverage
		ep.Rating = &v
	}
	return ep, nil
}
