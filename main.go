package main

import (
	"flag"
	"net/http"
	"os"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/quelan/filmlens/handlers"
	"github.com/quelan/filmlens/lib/catalog"
	"github.com/quelan/filmlens/lib/config"
	"github.com/quelan/filmlens/lib/db"
	"github.com/quelan/filmlens/lib/health"
	"github.com/quelan/filmlens/lib/ingest"
	"github.com/quelan/filmlens/lib/metrics"
	"github.com/quelan/filmlens/lib/omdb"
	"github.com/quelan/filmlens/lib/radar"
	"github.com/quelan/filmlens/lib/stats"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	gormDB, err := db.Open(cfg.Database.Path, logger)
	if err != nil {
		logger.Error("Failed to open database", slog.Any("error", err))
		os.Exit(1)
	}

	m := metrics.New()

	gateway, err := omdb.NewClient(omdb.Options{
		BaseURL:        cfg.OMDB.BaseURL,
		Keys:           cfg.OMDB.Keys,
		Timeout:        cfg.OMDB.Timeout,
		RequestsPerSec: cfg.OMDB.RequestsPerSec,
	}, logger, m)
	if err != nil {
		logger.Error("Failed to create metadata gateway", slog.Any("error", err))
		os.Exit(1)
	}

	catalogStore := catalog.NewGormStore(gormDB)
	errorStore := catalog.NewGormErrorStore(gormDB)
	statsStore := stats.NewGormStore(gormDB, logger)

	deps := &handlers.Deps{
		Logger:     logger,
		Ingestor:   ingest.New(logger),
		Reconciler: catalog.NewReconciler(catalogStore, errorStore, gateway, logger, m),
		Scorer:     radar.NewScorer(statsStore, logger),
		Stats:      statsStore,
		Metrics:    m,
		SessionDir: cfg.Session.BaseDir,
	}

	registry := handlers.NewRegistry(cfg.Session.TTL, logger)
	go func() {
		for range time.Tick(10 * time.Minute) {
			registry.EvictExpired()
		}
	}()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", health.Check(gormDB))
	r.Method(http.MethodGet, "/metrics", m.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/upload", handlers.HandleUpload(deps, registry))
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/radar", handlers.HandleRadar(registry))
			r.Get("/stats/{year}", handlers.HandleStats(registry))
			r.Get("/calendar/{year}", handlers.HandleCalendar(registry))
			r.Get("/posters", handlers.HandlePosters(registry))
			r.Get("/wrapped/{year}", handlers.HandleWrapped(registry))
			r.Delete("/", handlers.HandleRelease(registry))
		})
	})

	logger.Info("Starting server", slog.String("addr", cfg.Addr()))
	if err := http.ListenAndServe(cfg.Addr(), r); err != nil {
		logger.Error("Server failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
