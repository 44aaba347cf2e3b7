package models

// Series is an independently owned catalog record for a TV series, keyed by
// its external IMDB identifier (e.g. "tt0041038").
type Series struct {
	IMDBID           string   `json:"imdbId"`
	TMDBID           int64    `json:"tmdbId,omitempty"`
	Name             string   `json:"name"`
	OriginalName     string   `json:"originalName,omitempty"`
	Overview         string   `json:"overview,omitempty"`
	PosterPath       string   `json:"posterPath,omitempty"`
	BackdropPath     string   `json:"backdropPath,omitempty"`
	FirstAirDate     string   `json:"firstAirDate,omitempty"` // YYYY-MM-DD
	LastAirDate      string   `json:"lastAirDate,omitempty"`  // YYYY-MM-DD
	SeasonCount      int      `json:"seasonCount,omitempty"`
	EpisodeCount     int      `json:"episodeCount,omitempty"`
	Status           string   `json:"status,omitempty"` // e.g. "Returning Series", "Ended"
	Rating           *float64 `json:"rating,omitempty"`
	Genres           []string `json:"genres,omitempty"`
	Networks         []string `json:"networks,omitempty"`
	Creators         []string `json:"creators,omitempty"`
	OriginCountry    string   `json:"originCountry,omitempty"`
	OriginalLanguage string   `json:"originalLanguage,omitempty"`
	Popularity       float64  `json:"popularity,omitempty"`
}
