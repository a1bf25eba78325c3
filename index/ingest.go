package index

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/nagarikconnect/civicrag/chunk"
	"github.com/nagarikconnect/civicrag/chunker"
	"github.com/nagarikconnect/civicrag/materialize"
	"github.com/nagarikconnect/civicrag/objstore"
)

// IngestConfig controls a chunk-and-materialize run.
type IngestConfig struct {
	RawPrefix   string
	Concurrency int // raw objects in flight, default 4
}

// IngestStats summarizes a run over the raw prefix.
type IngestStats struct {
	Documents   int64 // raw objects considered
	Chunked     int64 // chunk files written
	Unchanged   int64 // idempotency hits and pre-existing chunk files
	Skipped     int64 // unrecognized formats
	Failed      int64 // parse or write failures
	EmptyDocs   int64 // documents with no extractable text
	ChunksSaved int64
}

// Ingestor walks the raw prefix, chunks each recognized document, and
// materializes the results. Failures are annotated in the raw manifest
// and counted, never fatal to the run.
type Ingestor struct {
	objects objstore.Store
	chunks  *chunker.Chunker
	mat     *materialize.Materializer
	cfg     IngestConfig
	log     zerolog.Logger
}

// NewIngestor returns an Ingestor over objects.
func NewIngestor(objects objstore.Store, chunks *chunker.Chunker, mat *materialize.Materializer, cfg IngestConfig, log zerolog.Logger) *Ingestor {
	if cfg.RawPrefix == "" {
		cfg.RawPrefix = "raw"
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 4
	}
	return &Ingestor{objects: objects, chunks: chunks, mat: mat, cfg: cfg, log: log}
}

// Run processes every raw object under the raw prefix.
func (in *Ingestor) Run(ctx context.Context) (*IngestStats, error) {
	keys, err := in.objects.List(ctx, in.cfg.RawPrefix)
	if err != nil {
		return nil, fmt.Errorf("listing raw objects: %w", err)
	}

	var stats IngestStats
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.cfg.Concurrency)

	for _, key := range keys {
		if strings.HasSuffix(key, ".manifest.json") || strings.Contains(key, ".tmp.") {
			continue
		}
		g.Go(func() error {
			atomic.AddInt64(&stats.Documents, 1)
			if err := in.processRaw(gctx, key, &stats); err != nil {
				atomic.AddInt64(&stats.Failed, 1)
				in.log.Error().Err(err).Str("key", key).Msg("document failed")
				if aerr := in.mat.AnnotateError(gctx, key, err.Error()); aerr != nil {
					in.log.Warn().Err(aerr).Str("key", key).Msg("error annotation failed")
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return &stats, err
	}

	in.log.Info().
		Int64("documents", stats.Documents).
		Int64("chunked", stats.Chunked).
		Int64("unchanged", stats.Unchanged).
		Int64("skipped", stats.Skipped).
		Int64("empty", stats.EmptyDocs).
		Int64("failed", stats.Failed).
		Msg("ingest run complete")
	return &stats, nil
}

func (in *Ingestor) processRaw(ctx context.Context, key string, stats *IngestStats) error {
	manifest, err := in.readManifest(ctx, key)
	if err != nil {
		return err
	}

	format, ok := chunker.DetectFormat(manifest.String("content_type"), key)
	if !ok {
		atomic.AddInt64(&stats.Skipped, 1)
		in.log.Debug().Str("key", key).Msg("unrecognized format, skipping")
		return nil
	}

	raw, err := in.objects.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("reading raw object: %w", err)
	}
	sha := chunk.SHA256Hex(raw)
	docID := manifest.String("file_hash")
	if docID == "" {
		docID = sha
	}

	// Cheap short-circuit before parsing. The manifest hash comparison
	// inside Write stays authoritative.
	if exists, err := in.mat.ChunkFileExists(ctx, docID); err == nil && exists {
		atomic.AddInt64(&stats.Unchanged, 1)
		return nil
	}

	chunks, err := in.chunks.ChunkDocument(ctx, chunker.Document{
		ID:       docID,
		Format:   format,
		RawKey:   key,
		RawSHA:   sha,
		Raw:      raw,
		Manifest: manifest,
	})
	if err != nil {
		return fmt.Errorf("chunking %s: %w", key, err)
	}
	if len(chunks) == 0 {
		atomic.AddInt64(&stats.EmptyDocs, 1)
		return in.mat.AnnotateError(ctx, key, "no_extractable_text")
	}

	res, err := in.mat.Write(ctx, docID, key, chunks)
	if err != nil {
		return err
	}
	if res.Written {
		atomic.AddInt64(&stats.Chunked, 1)
		atomic.AddInt64(&stats.ChunksSaved, int64(res.ChunkCount))
	} else {
		atomic.AddInt64(&stats.Unchanged, 1)
	}
	return nil
}

func (in *Ingestor) readManifest(ctx context.Context, rawKey string) (chunk.Manifest, error) {
	b, err := in.objects.Get(ctx, materialize.ManifestKey(rawKey))
	if err != nil {
		if errors.Is(err, objstore.ErrNotFound) {
			return chunk.Manifest{}, nil
		}
		return nil, fmt.Errorf("reading manifest for %s: %w", rawKey, err)
	}
	return chunk.ParseManifest(b)
}
