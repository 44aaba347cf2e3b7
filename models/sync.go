package models

import "time"

// ProgressSnapshot is a derived, rebuildable summary of the catalog store.
// It is recomputed from the durable episode/series tables on refresh and is
// never the source of truth.
type ProgressSnapshot struct {
	EpisodesStored int         `json:"episodesStored"`
	SeriesStored   int         `json:"seriesStored"`
	Years          []int       `json:"years,omitempty"`
	YearCounts     map[int]int `json:"yearCounts,omitempty"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// SyncStatus is the response for the sync status endpoint.
type SyncStatus struct {
	IDsInSource    int    `json:"idsInSource"`
	EpisodesStored int    `json:"episodesStored"`
	SeriesStored   int    `json:"seriesStored"`
	NeedsSync      bool   `json:"needsSync"`
	LastUpdated    string `json:"lastUpdated,omitempty"` // RFC 3339
}
