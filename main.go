package main

import (
	"context"
	"flag"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/time/rate"
	"gopkg.in/natefinch/lumberjack.v2"

	"streamcat/api"
	"streamcat/config"
	"streamcat/handlers"
	"streamcat/internal/database"
	"streamcat/services/ingest"
	"streamcat/services/metadata"
	"streamcat/services/scheduler"
	"streamcat/utils"
)

func main() {
	configPath := flag.String("config", "./data/settings.json", "path to settings file")
	flag.Parse()

	cfgManager := config.NewManager(*configPath)
	settings, err := cfgManager.Load()
	if err != nil {
		log.Fatalf("load settings: %v", err)
	}

	if settings.LogFile != "" {
		sink := io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   settings.LogFile,
			MaxSize:    20, // megabytes
			MaxBackups: 3,
			MaxAge:     14, // days
			Compress:   true,
		})
		log.SetOutput(sink)
		slog.SetDefault(slog.New(slog.NewTextHandler(sink, nil)))
	}

	if settings.TMDBAPIKey == "" {
		log.Println("[main] warning: no TMDB API key configured, upstream fetches will fail")
	}

	db, err := database.NewDB(database.Config{
		DatabasePath: filepath.Join(settings.DataDir, "catalog.db"),
	})
	if err != nil {
		log.Fatalf("open catalog database: %v", err)
	}
	defer db.Close()

	fetcher := metadata.NewClient(
		settings.TMDBAPIKey,
		settings.TMDBLanguage,
		nil,
		filepath.Join(settings.DataDir, "cache", "metadata"),
		settings.CacheTTLHours,
		settings.UpstreamRequestsPerSecond,
	)

	engine := ingest.NewEngine(fetcher, db.Repository, settings.SyncWorkers)
	progress := ingest.NewProgressTracker(db.Repository)
	source := ingest.FileSource{Path: settings.EpisodeIDSourcePath}

	syncHandler := handlers.NewSyncHandler(engine, progress, source, db)
	catalogHandler := handlers.NewCatalogHandler(db.Repository, progress)

	router := utils.NewRouter()
	apiRouter := router.PathPrefix("/api").Subrouter()

	apiRouter.HandleFunc("/series", catalogHandler.ListSeries).Methods(http.MethodGet)
	apiRouter.HandleFunc("/series/{id}", catalogHandler.GetSeries).Methods(http.MethodGet)
	apiRouter.HandleFunc("/series/{id}/episodes", catalogHandler.ListSeriesEpisodes).Methods(http.MethodGet)
	apiRouter.HandleFunc("/episodes", catalogHandler.ListEpisodes).Methods(http.MethodGet)
	apiRouter.HandleFunc("/catalog/years", catalogHandler.GetYears).Methods(http.MethodGet)

	// Sync runs fan out to the upstream provider; throttle per caller.
	syncLimiter := api.NewIPRateLimiter(rate.Every(30*time.Second), 2)
	defer syncLimiter.Close()
	limited := syncLimiter.Middleware()
	apiRouter.Handle("/episodes/sync", limited(http.HandlerFunc(syncHandler.RunSync))).Methods(http.MethodPost)
	apiRouter.HandleFunc("/episodes/sync", syncHandler.SyncStatus).Methods(http.MethodGet)
	apiRouter.Handle("/episodes/sync-single", limited(http.HandlerFunc(syncHandler.SyncSingle))).Methods(http.MethodPost)

	// Registered after the sync routes so /episodes/sync resolves to the
	// sync handlers, not a lookup of external id "sync".
	apiRouter.HandleFunc("/episodes/{externalId}", catalogHandler.GetEpisode).Methods(http.MethodGet)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.NewService(cfgManager, engine, source, progress)
	if err := sched.Start(ctx); err != nil {
		log.Printf("[main] scheduler start failed: %v", err)
	}

	server := &http.Server{
		Addr:         settings.ListenAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Minute, // batch sync responses can take a while
	}

	go func() {
		log.Printf("[main] listening on %s", settings.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("[main] shutting down")
	cancel() // stop accepting new batch items; in-flight items finish

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := sched.Stop(shutdownCtx); err != nil {
		log.Printf("[main] scheduler stop: %v", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[main] server shutdown: %v", err)
	}
}
