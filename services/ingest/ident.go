package ingest

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// externalIDPattern is the wire-level contract for the flat episode
// identifier used by the upstream listing source.
var externalIDPattern = regexp.MustCompile(`^(tt[0-9]+)_([0-9]+)x([0-9]+)$`)

// ErrMalformedIdentifier is returned for input that does not match the
// tt<series>_<season>x<episode> format. Callers treat it as a per-item skip;
// no network or store I/O happens for malformed input.
var ErrMalformedIdentifier = errors.New("malformed external identifier")

// EpisodeRef is the structured form of a flat external episode identifier.
type EpisodeRef struct {
	SeriesIMDBID string
	Season       int
	Episode      int
}

// ParseExternalID parses "tt<series>_<season>x<episode>" into an EpisodeRef.
// Season and episode must be positive integers; anything else is malformed.
func ParseExternalID(raw string) (EpisodeRef, error) {
	m := externalIDPattern.FindStringSubmatch(raw)
	if m == nil {
		return EpisodeRef{}, fmt.Errorf("%w: %q", ErrMalformedIdentifier, raw)
	}
	season, err := strconv.Atoi(m[2])
	if err != nil || season < 1 {
		return EpisodeRef{}, fmt.Errorf("%w: season in %q", ErrMalformedIdentifier, raw)
	}
	episode, err := strconv.Atoi(m[3])
	if err != nil || episode < 1 {
		return EpisodeRef{}, fmt.Errorf("%w: episode in %q", ErrMalformedIdentifier, raw)
	}
	return EpisodeRef{SeriesIMDBID: m[1], Season: season, Episode: episode}, nil
}

// ExternalID renders the ref back to its canonical flat form. Round-trips
// exactly with ParseExternalID for canonical input.
func (r EpisodeRef) ExternalID() string {
	return fmt.Sprintf("%s_%dx%d", r.SeriesIMDBID, r.Season, r.Episode)
}
