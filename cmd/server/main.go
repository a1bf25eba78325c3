// Command server exposes the query pipeline over HTTP: POST /v1/query
// for questions, GET /healthz for liveness.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/nagarikconnect/civicrag"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	flag.Parse()

	_ = godotenv.Load()

	log := zerolog.New(os.Stderr).With().Timestamp().Str("component", "server").Logger()

	cfg, err := civicrag.FromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("configuration invalid")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	core, err := civicrag.NewCore(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("core init failed")
	}
	defer core.Close()

	rows, err := core.RowStore(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	if ok, err := rows.CheckHNSWIndex(ctx); err != nil {
		log.Warn().Err(err).Msg("HNSW index check failed")
	} else if !ok {
		log.Warn().Msg("no HNSW index on embedding column, searches will be exact and slow")
	}

	orch, err := core.Orchestrator(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("orchestrator init failed")
	}

	h := &handler{orch: orch, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Get("/healthz", h.healthz)
	r.Post("/v1/query", h.query)

	srv := &http.Server{
		Addr:              *addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", *addr).Msg("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server failed")
	}
}
