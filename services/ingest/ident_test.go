package ingest

import (
	"errors"
	"testing"
)

func TestParseExternalID_Valid(t *testing.T) {
	tests := []struct {
		raw     string
		series  string
		season  int
		episode int
	}{
		{"tt0041038_1x1", "tt0041038", 1, 1},
		{"tt0903747_5x14", "tt0903747", 5, 14},
		{"tt1234567_12x345", "tt1234567", 12, 345},
	}
	for _, tt := range tests {
		ref, err := ParseExternalID(tt.raw)
		if err != nil {
			t.Fatalf("ParseExternalID(%q) returned error: %v", tt.raw, err)
		}
		if ref.SeriesIMDBID != tt.series {
			t.Errorf("%q: series = %q, want %q", tt.raw, ref.SeriesIMDBID, tt.series)
		}
		if ref.Season != tt.season {
			t.Errorf("%q: season = %d, want %d", tt.raw, ref.Season, tt.season)
		}
		if ref.Episode != tt.episode {
			t.Errorf("%q: episode = %d, want %d", tt.raw, ref.Episode, tt.episode)
		}
		if ref.ExternalID() != tt.raw {
			t.Errorf("%q: round-trip = %q", tt.raw, ref.ExternalID())
		}
	}
}

func TestParseExternalID_Malformed(t *testing.T) {
	malformed := []string{
		"",
		"tt0041038",         // missing delimiter and episode part
		"tt0041038_1",       // missing x
		"tt0041038_x1",      // missing season
		"tt0041038_1x",      // missing episode
		"_1x1",              // empty series id
		"0041038_1x1",       // missing tt prefix
		"tt0041038_ax1",     // non-numeric season
		"tt0041038_1xa",     // non-numeric episode
		"tt0041038_0x1",     // season must be positive
		"tt0041038_1x0",     // episode must be positive
		"tt0041038_-1x1",    // negative season
		"tt0041038_1x1 ",    // trailing content
		" tt0041038_1x1",    // leading content
		"tt0041038_1x1x2",   // extra segment
		"ttabc_1x1",         // non-numeric series digits
		"tt0041038__1x1",    // double delimiter
	}
	for _, raw := range malformed {
		_, err := ParseExternalID(raw)
		if err == nil {
			t.Errorf("ParseExternalID(%q): expected error", raw)
			continue
		}
		if !errors.Is(err, ErrMalformedIdentifier) {
			t.Errorf("ParseExternalID(%q): error %v is not ErrMalformedIdentifier", raw, err)
		}
	}
}
