package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/EmpoweredVote/geo-ingest/internal/config"
	"github.com/EmpoweredVote/geo-ingest/internal/db"
	"github.com/EmpoweredVote/geo-ingest/internal/logs"
	"github.com/EmpoweredVote/geo-ingest/internal/middleware"
	"github.com/EmpoweredVote/geo-ingest/internal/runs"
)

func RootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, "Import feed is up!")
}

// newRouter builds the status feed consumed by the import monitor.
func newRouter(cfg config.Config, tracker *runs.Tracker) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.RequestLog(log.Logger))
	r.Get("/", RootHandler)

	r.Mount("/imports", runs.SetupRoutes(tracker, middleware.RequireToken(cfg.FeedToken)))
	return r
}

func main() {
	_ = godotenv.Load(".env.local")

	cfg := config.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger, closer, err := logs.New(cfg.LogFile, cfg.LogConsole, logs.ParseLevel(cfg.LogLevel))
	if err != nil {
		fmt.Fprintln(os.Stderr, "log file:", err)
		os.Exit(1)
	}
	defer closer.Close()

	gdb, err := db.Open(cfg.DatabaseURL, cfg.Schema, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("database connection failed")
	}
	if err := runs.Migrate(gdb); err != nil {
		logger.Fatal().Err(err).Msg("import_runs migration failed")
	}

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           newRouter(cfg, runs.NewTracker(gdb, logger)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info().Str("port", cfg.Port).Msg("import feed listening")
	if err := srv.ListenAndServe(); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}
