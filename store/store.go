// Package store is the vector row store: one row per chunk in a
// pgvector-backed Postgres table, with primary-key idempotency and
// filter-first k-NN search.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
	"github.com/rs/zerolog"
)

// Config configures the row store.
type Config struct {
	DatabaseURL string
	Table       string
	EmbedDim    int
}

// Row is one chunk as stored in the table.
type Row struct {
	ChunkID             string
	DocumentID          string
	Content             string
	Embedding           []float32
	Meta                map[string]any
	TokenCount          int
	TokenRange          [2]int
	DocumentTotalTokens int
	SemanticRegion      string
	SourceURL           string
	PageNumber          *int
	Language            string
	IngestTime          *time.Time
	ParserVersion       string
}

// Candidate is one k-NN search hit.
type Candidate struct {
	ChunkID        string
	DocumentID     string
	Content        string
	Meta           map[string]any
	TokenCount     int
	SemanticRegion string
	SourceURL      string
	PageNumber     *int
	Language       string
	ParserVersion  string
	Distance       float64
}

// Store wraps the connection pool.
type Store struct {
	pool *pgxpool.Pool
	cfg  Config
	log  zerolog.Logger
}

// New connects to the database and verifies the connection. The
// vector codec is registered per connection so Row embeddings encode
// natively.
func New(ctx context.Context, cfg Config, log zerolog.Logger) (*Store, error) {
	if cfg.Table == "" {
		cfg.Table = "chunks"
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &Store{pool: pool, cfg: cfg, log: log}, nil
}

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

// EnsureSchema creates the vector extension and the chunk table when
// missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector;"); err != nil {
		return fmt.Errorf("creating vector extension: %w", err)
	}
	ddl := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
	  chunk_id TEXT PRIMARY KEY,
	  document_id TEXT,
	  content TEXT,
	  embedding vector(%d),
	  meta JSONB,
	  token_count INT,
	  token_range INT[],
	  document_total_tokens INT,
	  semantic_region TEXT,
	  source_url TEXT,
	  page_number INT,
	  language TEXT,
	  ingest_time TIMESTAMP,
	  parser_version TEXT
	);`, s.cfg.Table, s.cfg.EmbedDim)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("creating table %s: %w", s.cfg.Table, err)
	}
	return nil
}

// HasChunk reports whether chunkID is already indexed.
func (s *Store) HasChunk(ctx context.Context, chunkID string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT 1 FROM %s WHERE chunk_id = $1 LIMIT 1;", s.cfg.Table), chunkID,
	).Scan(&one)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("chunk existence check: %w", err)
	}
	return true, nil
}

// InsertBatch inserts rows one by one with ON CONFLICT DO NOTHING and
// returns how many were actually inserted. Autocommit per row: a
// partially applied batch is safe to retry.
func (s *Store) InsertBatch(ctx context.Context, rows []Row) (int, error) {
	sql := fmt.Sprintf(`
	INSERT INTO %s
	  (chunk_id, document_id, content, embedding, meta, token_count, token_range, document_total_tokens, semantic_region, source_url, page_number, language, ingest_time, parser_version)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	ON CONFLICT (chunk_id) DO NOTHING;`, s.cfg.Table)

	inserted := 0
	for _, r := range rows {
		if len(r.Embedding) != s.cfg.EmbedDim {
			return inserted, fmt.Errorf("row %s: embedding has %d dims, want %d", r.ChunkID, len(r.Embedding), s.cfg.EmbedDim)
		}
		meta := r.Meta
		if meta == nil {
			meta = map[string]any{}
		}
		tag, err := s.pool.Exec(ctx, sql,
			r.ChunkID,
			r.DocumentID,
			r.Content,
			pgvector.NewVector(r.Embedding),
			meta,
			r.TokenCount,
			[]int32{int32(r.TokenRange[0]), int32(r.TokenRange[1])},
			r.DocumentTotalTokens,
			r.SemanticRegion,
			r.SourceURL,
			r.PageNumber,
			r.Language,
			r.IngestTime,
			r.ParserVersion,
		)
		if err != nil {
			return inserted, fmt.Errorf("inserting %s: %w", r.ChunkID, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// CheckHNSWIndex reports whether an HNSW index exists on the embedding
// column. A missing index is an operational warning, not an error.
func (s *Store) CheckHNSWIndex(ctx context.Context) (bool, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
	SELECT count(*) FROM pg_indexes
	WHERE tablename = $1 AND indexdef ILIKE '%hnsw%' AND indexdef ILIKE '%embedding%';`,
		s.cfg.Table,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking hnsw index: %w", err)
	}
	return count > 0, nil
}

// Search runs a filter-first k-NN query: equality filters on meta keys
// narrow the candidate set, then L2 distance to the query vector
// orders it. Filter keys must already be whitelisted by the caller;
// Search re-validates them because they are interpolated into SQL.
func (s *Store) Search(ctx context.Context, embedding []float32, filters map[string]string, limit int) ([]Candidate, error) {
	vec := VectorLiteral(embedding)

	args := []any{vec}
	var where []string
	for _, k := range sortedKeys(filters) {
		if !FilterKeyRe.MatchString(k) {
			return nil, fmt.Errorf("invalid filter key %q", k)
		}
		args = append(args, filters[k])
		where = append(where, fmt.Sprintf("meta->>'%s' = $%d", k, len(args)))
	}
	args = append(args, vec)
	orderParam := len(args)
	args = append(args, limit)
	limitParam := len(args)

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}
	query := fmt.Sprintf(`
	SELECT chunk_id, COALESCE(document_id,''), COALESCE(content,''), COALESCE(meta,'{}'::jsonb),
	       COALESCE(token_count,0), COALESCE(semantic_region,''), COALESCE(source_url,''),
	       page_number, COALESCE(language,''), COALESCE(parser_version,''),
	       (embedding <-> $1::vector) AS distance
	FROM %s
	%s
	ORDER BY embedding <-> $%d::vector
	LIMIT $%d;`, s.cfg.Table, whereClause, orderParam, limitParam)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("knn query: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(
			&c.ChunkID, &c.DocumentID, &c.Content, &c.Meta,
			&c.TokenCount, &c.SemanticRegion, &c.SourceURL,
			&c.PageNumber, &c.Language, &c.ParserVersion,
			&c.Distance,
		); err != nil {
			return nil, fmt.Errorf("scanning candidate: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading candidates: %w", err)
	}
	return out, nil
}
