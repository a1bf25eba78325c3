// Command indexer runs the indexing pipeline: chunk raw documents,
// materialize chunk files, then embed and insert rows into the vector
// store.
//
// Exit codes distinguish failure classes for the surrounding job
// runner: 10 configuration, 20 database init, 21 schema, 42 unsupported
// storage backend, 50 schema-invalid chunk lines were skipped.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/nagarikconnect/civicrag"
)

const (
	exitOK          = 0
	exitConfig      = 10
	exitDBInit      = 20
	exitSchema      = 21
	exitBackend     = 42
	exitSchemaSkips = 50
)

func main() {
	os.Exit(run())
}

func run() int {
	skipIngest := flag.Bool("skip-ingest", false, "skip chunking, only index existing chunk files")
	skipIndex := flag.Bool("skip-index", false, "skip indexing, only chunk and materialize")
	timeout := flag.Duration("timeout", 0, "overall run timeout, 0 for none")
	flag.Parse()

	_ = godotenv.Load()

	log := zerolog.New(os.Stderr).With().Timestamp().Str("component", "indexer").Logger()

	cfg, err := civicrag.FromEnv()
	if err != nil {
		log.Error().Err(err).Msg("configuration invalid")
		if errors.Is(err, civicrag.ErrUnsupportedBackend) {
			return exitBackend
		}
		return exitConfig
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	core, err := civicrag.NewCore(cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("core init failed")
		if errors.Is(err, civicrag.ErrUnsupportedBackend) {
			return exitBackend
		}
		return exitConfig
	}
	defer core.Close()

	if !*skipIngest {
		started := time.Now()
		ingestor, err := core.Ingestor(ctx)
		if err != nil {
			log.Error().Err(err).Msg("ingestor init failed")
			return exitConfig
		}
		stats, err := ingestor.Run(ctx)
		if err != nil {
			log.Error().Err(err).Msg("ingest run failed")
			return exitConfig
		}
		log.Info().
			Int64("documents", stats.Documents).
			Int64("chunked", stats.Chunked).
			Int64("failed", stats.Failed).
			Dur("elapsed", time.Since(started)).
			Msg("ingest phase done")
	}

	if *skipIndex {
		return exitOK
	}

	rows, err := core.RowStore(ctx)
	if err != nil {
		log.Error().Err(err).Msg("database connection failed")
		return exitDBInit
	}
	if err := rows.EnsureSchema(ctx); err != nil {
		log.Error().Err(err).Msg("schema setup failed")
		return exitSchema
	}
	if ok, err := rows.CheckHNSWIndex(ctx); err == nil && !ok {
		log.Warn().Msg("no HNSW index on embedding column, searches will be exact and slow")
	}

	indexer, err := core.Indexer(ctx)
	if err != nil {
		log.Error().Err(err).Msg("indexer init failed")
		return exitDBInit
	}
	stats, err := indexer.Run(ctx)
	if err != nil {
		log.Error().Err(err).Msg("indexing run failed")
		return exitDBInit
	}
	if stats.SkippedSchema > 0 {
		log.Error().Int64("skipped_schema", stats.SkippedSchema).Msg("schema-invalid chunk lines were skipped")
		return exitSchemaSkips
	}
	return exitOK
}
