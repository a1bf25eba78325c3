package chunk

import (
	"encoding/json"
	"fmt"
)

// ChunkedMeta is the sub-record the materializer writes into a raw
// manifest after a successful chunking run.
type ChunkedMeta struct {
	ChunkFile        string `json:"chunk_file"`
	ChunkFormat      string `json:"chunk_format"`
	SchemaVersion    string `json:"schema_version"`
	ParserVersion    string `json:"parser_version"`
	IngestTime       string `json:"ingest_time"`
	ChunkCount       int    `json:"chunk_count"`
	ChunkedSHA256    string `json:"chunked_sha256"`
	ChunkedSizeBytes int    `json:"chunked_size_bytes"`
}

// Manifest is the sidecar record written next to every raw object.
// The crawler owns most of its fields; the materializer only extends
// it, so the type stays schemaless.
type Manifest map[string]any

// ParseManifest decodes manifest JSON. A nil byte slice yields an
// empty manifest.
func ParseManifest(b []byte) (Manifest, error) {
	if len(b) == 0 {
		return Manifest{}, nil
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	return m, nil
}

// ChunkedSHA returns the recorded chunked_sha256, or "" when the
// manifest has no chunked sub-record.
func (m Manifest) ChunkedSHA() string {
	sub, ok := m["chunked"].(map[string]any)
	if !ok {
		return ""
	}
	sha, _ := sub["chunked_sha256"].(string)
	return sha
}

// String returns the manifest field under key, or "" when absent or
// not a string.
func (m Manifest) String(key string) string {
	v, _ := m[key].(string)
	return v
}

// SetChunked merges meta into the manifest without disturbing the
// crawler-owned fields.
func (m Manifest) SetChunked(meta ChunkedMeta, writtenAt string) {
	m["chunked"] = map[string]any{
		"chunk_file":         meta.ChunkFile,
		"chunk_format":       meta.ChunkFormat,
		"schema_version":     meta.SchemaVersion,
		"parser_version":     meta.ParserVersion,
		"ingest_time":        meta.IngestTime,
		"chunk_count":        meta.ChunkCount,
		"chunked_sha256":     meta.ChunkedSHA256,
		"chunked_size_bytes": meta.ChunkedSizeBytes,
	}
	m["saved_chunks"] = meta.ChunkCount
	m["chunked_manifest_written_at"] = writtenAt
}

// Marshal renders the manifest as indented JSON for human inspection
// alongside the raw object.
func (m Manifest) Marshal() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}
