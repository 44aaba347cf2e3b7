package metadata

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
)

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     make(http.Header),
	}
}

func newTestClient(t *testing.T, rt roundTripFunc) *Client {
	t.Helper()
	return NewClient("test-key", "en-US", &http.Client{Transport: rt}, t.TempDir(), 24, 1000)
}

func TestFindEpisode_MapsFields(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		path := req.URL.Path
		switch {
		case strings.HasPrefix(path, "/3/find/tt0041038"):
			return jsonResponse(http.StatusOK, `{"tv_results":[{"id":42}]}`), nil
		case path == "/3/tv/42/season/1/episode/1":
			return jsonResponse(http.StatusOK, `{
				"id": 101,
				"name": "Episode One",
				"overview": "The first one.",
				"still_path": "/still.jpg",
				"air_date": "1950-01-01",
				"vote_average": 7.5,
				"runtime": 30,
				"season_number": 1,
				"episode_number": 1
			}`), nil
		}
		t.Logf("unhandled request: %s", req.URL.String())
		return jsonResponse(http.StatusNotFound, `{}`), nil
	})

	ep, err := client.FindEpisode(context.Background(), "tt0041038", 1, 1)
	if err != nil {
		t.Fatalf("FindEpisode failed: %v", err)
	}
	if ep.Name != "Episode One" || ep.AirDate != "1950-01-01" {
		t.Errorf("payload not mapped: %+v", ep)
	}
	if ep.TMDBID != 101 || ep.SeriesTMDBID != 42 {
		t.Errorf("ids not mapped: %+v", ep)
	}
	if ep.Rating == nil || *ep.Rating != 7.5 {
		t.Errorf("rating not mapped: %v", ep.Rating)
	}
	if ep.RuntimeMinutes != 30 {
		t.Errorf("runtime not mapped: %d", ep.RuntimeMinutes)
	}
	if ep.SeriesIMDBID != "tt0041038" {
		t.Errorf("series back reference not set: %q", ep.SeriesIMDBID)
	}
}

func TestFindEpisode_NotFoundWhenNoTVMatch(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"tv_results":[]}`), nil
	})

	_, err := client.FindEpisode(context.Background(), "tt9999999", 1, 1)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFindEpisode_EpisodeMissingUpstream(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if strings.HasPrefix(req.URL.Path, "/3/find/") {
			return jsonResponse(http.StatusOK, `{"tv_results":[{"id":42}]}`), nil
		}
		return jsonResponse(http.StatusNotFound, `{"status_message":"not found"}`), nil
	})

	_, err := client.FindEpisode(context.Background(), "tt0041038", 99, 99)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDo_RateLimited(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		resp := jsonResponse(http.StatusTooManyRequests, `{}`)
		resp.Header.Set("Retry-After", "7")
		return resp, nil
	})

	_, err := client.FindEpisode(context.Background(), "tt0041038", 1, 1)
	var rateLimited *RateLimitedError
	if !errors.As(err, &rateLimited) {
		t.Fatalf("expected RateLimitedError, got %v", err)
	}
	if rateLimited.RetryAfter.Seconds() != 7 {
		t.Errorf("Retry-After not parsed: %v", rateLimited.RetryAfter)
	}
}

func TestDo_ServerErrorIsTransportError(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusInternalServerError, `{}`), nil
	})

	_, err := client.FindEpisode(context.Background(), "tt0041038", 1, 1)
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatal("5xx must not map to not-found")
	}
}

func TestFindSeries_MapsFieldsAndCaches(t *testing.T) {
	var (
		mu       sync.Mutex
		requests int
	)
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		mu.Lock()
		requests++
		mu.Unlock()
		switch {
		case strings.HasPrefix(req.URL.Path, "/3/find/tt0041038"):
			return jsonResponse(http.StatusOK, `{"tv_results":[{"id":42}]}`), nil
		case req.URL.Path == "/3/tv/42":
			return jsonResponse(http.StatusOK, `{
				"id": 42,
				"name": "Test Series",
				"original_name": "Test Series Original",
				"overview": "About testing.",
				"first_air_date": "1950-01-01",
				"last_air_date": "1957-06-15",
				"number_of_seasons": 8,
				"number_of_episodes": 180,
				"status": "Ended",
				"vote_average": 8.2,
				"popularity": 12.5,
				"original_language": "en",
				"origin_country": ["US"],
				"genres": [{"name":"Comedy"},{"name":"Family"}],
				"networks": [{"name":"CBS"}],
				"created_by": [{"name":"Somebody"}]
			}`), nil
		}
		return jsonResponse(http.StatusNotFound, `{}`), nil
	})

	series, err := client.FindSeries(context.Background(), "tt0041038")
	if err != nil {
		t.Fatalf("FindSeries failed: %v", err)
	}
	if series.Name != "Test Series" || series.Status != "Ended" {
		t.Errorf("payload not mapped: %+v", series)
	}
	if series.SeasonCount != 8 || series.EpisodeCount != 180 {
		t.Errorf("counts not mapped: %+v", series)
	}
	if len(series.Genres) != 2 || series.Genres[0] != "Comedy" {
		t.Errorf("genres not mapped: %v", series.Genres)
	}
	if series.OriginCountry != "US" {
		t.Errorf("origin country not mapped: %q", series.OriginCountry)
	}
	if series.Rating == nil || *series.Rating != 8.2 {
		t.Errorf("rating not mapped: %v", series.Rating)
	}

	mu.Lock()
	after := requests
	mu.Unlock()

	// Second lookup must come from the disk cache.
	if _, err := client.FindSeries(context.Background(), "tt0041038"); err != nil {
		t.Fatalf("cached FindSeries failed: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if requests != after {
		t.Errorf("expected cache hit, got %d extra requests", requests-after)
	}
}

func TestResolveSeriesID_CachedAcrossCalls(t *testing.T) {
	var (
		mu    sync.Mutex
		finds int
	)
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if strings.HasPrefix(req.URL.Path, "/3/find/") {
			mu.Lock()
			finds++
			mu.Unlock()
			return jsonResponse(http.StatusOK, `{"tv_results":[{"id":42}]}`), nil
		}
		return jsonResponse(http.StatusOK, `{"id":1,"season_number":1,"episode_number":1}`), nil
	})

	for i := 1; i <= 3; i++ {
		if _, err := client.FindEpisode(context.Background(), "tt0041038", 1, i); err != nil {
			t.Fatalf("FindEpisode %d failed: %v", i, err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if finds != 1 {
		t.Errorf("find endpoint hit %d times, want 1 (id mapping should be cached)", finds)
	}
}

func TestNormalizeLanguage(t *testing.T) {
	tests := map[string]string{
		"":      "en-US",
		"en":    "en-US",
		"en_US": "en-US",
		"pt-br": "pt-BR",
		"fr-FR": "fr-FR",
		"de":    "de",
	}
	for input, want := range tests {
		if got := normalizeLanguage(input); got != want {
			t.Errorf("normalizeLanguage(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestIsConfigured(t *testing.T) {
	if NewClient("", "en-US", nil, t.TempDir(), 24, 10).IsConfigured() {
		t.Error("empty key must not be configured")
	}
	if !NewClient("key", "en-US", nil, t.TempDir(), 24, 10).IsConfigured() {
		t.Error("non-empty key must be configured")
	}
}
