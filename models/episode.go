package models

// Episode is a catalog record for a single episode, keyed by the full flat
// external identifier ("tt<series>_<season>x<episode>"). SeriesIMDBID is a
// non-owning back reference; the series record may be created after the
// episode when series metadata arrives late.
type Episode struct {
	ExternalID     string   `json:"externalId"`
	SeriesIMDBID   string   `json:"seriesImdbId"`
	TMDBID         int64    `json:"tmdbId,omitempty"`
	SeriesTMDBID   int64    `json:"seriesTmdbId,omitempty"`
	Season         int      `json:"season"`
	Episode        int      `json:"episode"`
	Name           string   `json:"name,omitempty"`
	Overview       string   `json:"overview,omitempty"`
	StillPath      string   `json:"stillPath,omitempty"`
	AirDate        string   `json:"airDate,omitempty"` // YYYY-MM-DD
	Rating         *float64 `json:"rating,omitempty"`
	RuntimeMinutes int      `json:"runtimeMinutes,omitempty"`
}
