// Package materialize persists chunk sets to the object store:
// canonical JSONL under a schema-versioned key plus a chunked
// sub-record in the raw manifest. Writes are idempotent by content
// hash.
package materialize

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nagarikconnect/civicrag/chunk"
	"github.com/nagarikconnect/civicrag/objstore"
)

// Config controls key layout and idempotency.
type Config struct {
	ChunkedPrefix  string
	SchemaVersion  string
	ParserVersion  string
	ForceOverwrite bool
}

// Materializer writes chunk files and raw manifests.
type Materializer struct {
	store objstore.Store
	cfg   Config
	log   zerolog.Logger
	now   func() time.Time
}

// New returns a Materializer writing through store.
func New(store objstore.Store, cfg Config, log zerolog.Logger) *Materializer {
	if cfg.ChunkedPrefix == "" {
		cfg.ChunkedPrefix = "chunked"
	}
	if cfg.SchemaVersion == "" {
		cfg.SchemaVersion = "chunked_v1"
	}
	return &Materializer{store: store, cfg: cfg, log: log, now: time.Now}
}

// Result reports what one materialization run did.
type Result struct {
	ChunkFile  string
	SHA256     string
	SizeBytes  int
	ChunkCount int
	Written    bool // false on an idempotency hit
}

// ChunkFileKey returns the object store key of a document's chunk file.
func (m *Materializer) ChunkFileKey(documentID string) string {
	return fmt.Sprintf("%s/%s/%s.chunks.jsonl", m.cfg.ChunkedPrefix, m.cfg.SchemaVersion, documentID)
}

// ManifestKey returns the sidecar manifest key for a raw object key.
func ManifestKey(rawKey string) string {
	return rawKey + ".manifest.json"
}

// ChunkFileExists reports whether the document already has a chunk
// file. Callers use it to short-circuit parsing; the manifest hash
// comparison in Write stays the authoritative idempotency check.
func (m *Materializer) ChunkFileExists(ctx context.Context, documentID string) (bool, error) {
	if m.cfg.ForceOverwrite {
		return false, nil
	}
	return m.store.Exists(ctx, m.ChunkFileKey(documentID))
}

// Write serializes chunks, compares the content hash against the raw
// manifest, and on a mismatch writes the chunk file and the extended
// manifest, in that order. Both writes are atomic.
func (m *Materializer) Write(ctx context.Context, documentID, rawKey string, chunks []chunk.Chunk) (*Result, error) {
	data, err := chunk.MarshalJSONL(chunks)
	if err != nil {
		return nil, err
	}
	sha := chunk.SHA256Hex(data)
	chunkKey := m.ChunkFileKey(documentID)

	manifest, err := m.readManifest(ctx, rawKey)
	if err != nil {
		return nil, err
	}

	result := &Result{
		ChunkFile:  chunkKey,
		SHA256:     sha,
		SizeBytes:  len(data),
		ChunkCount: len(chunks),
	}

	if !m.cfg.ForceOverwrite && manifest.ChunkedSHA() == sha {
		m.log.Info().Str("document_id", documentID).Str("sha256", sha).Msg("idempotency hit, skipping write")
		return result, nil
	}

	if err := m.store.Put(ctx, chunkKey, data); err != nil {
		return nil, fmt.Errorf("writing chunk file %s: %w", chunkKey, err)
	}

	writtenAt := chunk.FormatTime(m.now())
	manifest.SetChunked(chunk.ChunkedMeta{
		ChunkFile:        chunkKey,
		ChunkFormat:      "jsonl",
		SchemaVersion:    m.cfg.SchemaVersion,
		ParserVersion:    m.cfg.ParserVersion,
		IngestTime:       writtenAt,
		ChunkCount:       len(chunks),
		ChunkedSHA256:    sha,
		ChunkedSizeBytes: len(data),
	}, writtenAt)

	manifestBytes, err := manifest.Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshaling manifest for %s: %w", rawKey, err)
	}
	if err := m.store.Put(ctx, ManifestKey(rawKey), manifestBytes); err != nil {
		return nil, fmt.Errorf("writing manifest for %s: %w", rawKey, err)
	}

	result.Written = true
	m.log.Info().
		Str("document_id", documentID).
		Str("chunk_file", chunkKey).
		Int("chunk_count", len(chunks)).
		Int("size_bytes", len(data)).
		Str("sha256", sha).
		Msg("chunk file written")
	return result, nil
}

// AnnotateError records a processing failure in the raw manifest so
// the document shows up in corpus audits. No chunk file is written.
func (m *Materializer) AnnotateError(ctx context.Context, rawKey, message string) error {
	manifest, err := m.readManifest(ctx, rawKey)
	if err != nil {
		return err
	}
	manifest["error"] = message
	manifest["error_time"] = chunk.FormatTime(m.now())
	b, err := manifest.Marshal()
	if err != nil {
		return fmt.Errorf("marshaling manifest for %s: %w", rawKey, err)
	}
	return m.store.Put(ctx, ManifestKey(rawKey), b)
}

func (m *Materializer) readManifest(ctx context.Context, rawKey string) (chunk.Manifest, error) {
	b, err := m.store.Get(ctx, ManifestKey(rawKey))
	if err != nil {
		if errors.Is(err, objstore.ErrNotFound) {
			return chunk.Manifest{}, nil
		}
		return nil, fmt.Errorf("reading manifest for %s: %w", rawKey, err)
	}
	return chunk.ParseManifest(b)
}
