package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// Settings holds all runtime configuration.
type Settings struct {
	ListenAddr   string `json:"listenAddr"`
	DataDir      string `json:"dataDir"`
	LogFile      string `json:"logFile,omitempty"`
	TMDBAPIKey   string `json:"tmdbApiKey"`
	TMDBLanguage string `json:"tmdbLanguage"`

	// Path to the newline-delimited external episode id list.
	EpisodeIDSourcePath string `json:"episodeIdSourcePath"`

	// Ingestion tuning.
	SyncWorkers               int     `json:"syncWorkers"`
	UpstreamRequestsPerSecond float64 `json:"upstreamRequestsPerSecond"`
	CacheTTLHours             int     `json:"cacheTtlHours"`

	// Background auto-sync.
	AutoSyncEnabled         bool `json:"autoSyncEnabled"`
	AutoSyncIntervalMinutes int  `json:"autoSyncIntervalMinutes"`
}

func defaults() Settings {
	return Settings{
		ListenAddr:                ":8080",
		DataDir:                   "./data",
		TMDBLanguage:              "en-US",
		EpisodeIDSourcePath:       "./data/episode_ids.txt",
		SyncWorkers:               4,
		UpstreamRequestsPerSecond: 35,
		CacheTTLHours:             24,
		AutoSyncEnabled:           false,
		AutoSyncIntervalMinutes:   360,
	}
}

// Manager loads and saves settings from a JSON file, applying environment
// overrides on every load.
type Manager struct {
	mu   sync.Mutex
	path string
}

// NewManager creates a settings manager for the given file path.
func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Load reads settings from disk, filling defaults for missing fields and
// applying STREAMCAT_* environment overrides. A missing file yields defaults.
func (m *Manager) Load() (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	settings := defaults()
	data, err := os.ReadFile(m.path)
	if err == nil {
		if err := json.Unmarshal(data, &settings); err != nil {
			return Settings{}, fmt.Errorf("parse settings %s: %w", m.path, err)
		}
	} else if !os.IsNotExist(err) {
		return Settings{}, fmt.Errorf("read settings %s: %w", m.path, err)
	}

	applyEnvOverrides(&settings)
	normalize(&settings)
	return settings, nil
}

// Save writes settings to disk atomically.
func (m *Manager) Save(settings Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if dir := filepath.Dir(m.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create settings dir: %w", err)
		}
	}
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return os.Rename(tmp, m.path)
}

func applyEnvOverrides(s *Settings) {
	if v := os.Getenv("STREAMCAT_LISTEN_ADDR"); v != "" {
		s.ListenAddr = v
	}
	if v := os.Getenv("STREAMCAT_DATA_DIR"); v != "" {
		s.DataDir = v
	}
	if v := os.Getenv("STREAMCAT_TMDB_API_KEY"); v != "" {
		s.TMDBAPIKey = v
	}
	if v := os.Getenv("STREAMCAT_IDS_PATH"); v != "" {
		s.EpisodeIDSourcePath = v
	}
	if v := os.Getenv("STREAMCAT_SYNC_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			s.SyncWorkers = n
		}
	}
}

func normalize(s *Settings) {
	s.TMDBLanguage = strings.TrimSpace(s.TMDBLanguage)
	if s.TMDBLanguage == "" {
		s.TMDBLanguage = "en-US"
	}
	if s.SyncWorkers < 1 {
		s.SyncWorkers = 1
	}
	if s.UpstreamRequestsPerSecond <= 0 {
		s.UpstreamRequestsPerSecond = 35
	}
	if s.CacheTTLHours <= 0 {
		s.CacheTTLHours = 24
	}
	if s.AutoSyncIntervalMinutes < 5 {
		s.AutoSyncIntervalMinutes = 5
	}
}
