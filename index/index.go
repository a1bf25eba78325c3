// Package index streams chunk JSONL files from the object store into
// the vector row store: validate, embed, insert, each chunk exactly
// once.
package index

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/nagarikconnect/civicrag/llm"
	"github.com/nagarikconnect/civicrag/objstore"
	"github.com/nagarikconnect/civicrag/store"
)

// RowStore is the slice of the vector store the indexer needs.
type RowStore interface {
	HasChunk(ctx context.Context, chunkID string) (bool, error)
	InsertBatch(ctx context.Context, rows []store.Row) (int, error)
}

// Config controls an indexing run.
type Config struct {
	ChunkedPrefix string
	BatchSize     int // rows per insert batch, default 32
	Concurrency   int // chunk files in flight, default 4
}

// Stats summarizes a run. Counters cover every file, including the
// ones that failed part-way.
type Stats struct {
	FilesProcessed  int64
	FilesFailed     int64
	Indexed         int64
	SkippedExisting int64
	SkippedSchema   int64
	FailedRows      int64
}

// Indexer drives one run.
type Indexer struct {
	objects  objstore.Store
	rows     RowStore
	embedder llm.Embedder
	cfg      Config
	log      zerolog.Logger
}

// New returns an Indexer reading chunk files from objects and writing
// rows through rowStore.
func New(objects objstore.Store, rowStore RowStore, embedder llm.Embedder, cfg Config, log zerolog.Logger) *Indexer {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 32
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 4
	}
	return &Indexer{objects: objects, rows: rowStore, embedder: embedder, cfg: cfg, log: log}
}

// Run indexes every chunk file under the chunked prefix. Per-file
// errors are counted, logged, and do not stop the run; the returned
// Stats tell the caller whether the run was clean.
func (ix *Indexer) Run(ctx context.Context) (*Stats, error) {
	keys, err := ix.objects.List(ctx, ix.cfg.ChunkedPrefix)
	if err != nil {
		return nil, fmt.Errorf("listing chunk files: %w", err)
	}

	var stats Stats
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.cfg.Concurrency)

	for _, key := range keys {
		if !strings.HasSuffix(key, ".chunks.jsonl") {
			continue
		}
		g.Go(func() error {
			if err := ix.processFile(gctx, key, &stats); err != nil {
				atomic.AddInt64(&stats.FilesFailed, 1)
				ix.log.Error().Err(err).Str("key", key).Msg("chunk file failed")
			}
			atomic.AddInt64(&stats.FilesProcessed, 1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return &stats, err
	}

	ix.log.Info().
		Int64("files", stats.FilesProcessed).
		Int64("indexed", stats.Indexed).
		Int64("skipped_existing", stats.SkippedExisting).
		Int64("skipped_schema", stats.SkippedSchema).
		Int64("failed_rows", stats.FailedRows).
		Msg("indexing run complete")
	return &stats, nil
}

func (ix *Indexer) processFile(ctx context.Context, key string, stats *Stats) error {
	data, err := ix.objects.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("reading %s: %w", key, err)
	}

	var batch []store.Row
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := ix.rows.InsertBatch(ctx, batch)
		if err != nil {
			return fmt.Errorf("inserting batch: %w", err)
		}
		atomic.AddInt64(&stats.Indexed, int64(n))
		batch = batch[:0]
		return nil
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var obj map[string]any
		if err := json.Unmarshal(line, &obj); err != nil {
			atomic.AddInt64(&stats.SkippedSchema, 1)
			ix.log.Warn().Str("key", key).Int("line", lineNo).Err(err).Msg("unparseable chunk line")
			continue
		}
		row, err := normalizeLine(obj)
		if err != nil {
			atomic.AddInt64(&stats.SkippedSchema, 1)
			ix.log.Warn().Str("key", key).Int("line", lineNo).Err(err).Msg("chunk line failed schema validation")
			continue
		}

		exists, err := ix.rows.HasChunk(ctx, row.ChunkID)
		if err != nil {
			return fmt.Errorf("existence check for %s: %w", row.ChunkID, err)
		}
		if exists {
			atomic.AddInt64(&stats.SkippedExisting, 1)
			continue
		}

		vec, err := ix.embedder.Embed(ctx, row.Content)
		if err != nil {
			// Never insert a wrong or missing embedding.
			atomic.AddInt64(&stats.FailedRows, 1)
			ix.log.Error().Err(err).Str("chunk_id", row.ChunkID).Msg("embedding failed")
			continue
		}
		row.Embedding = vec

		batch = append(batch, row)
		if len(batch) >= ix.cfg.BatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanning %s: %w", key, err)
	}
	return flush()
}
