// Package chunk defines the chunk record produced by the indexing
// pipeline and its canonical JSONL serialization.
package chunk

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Chunk types emitted by the extractors.
const (
	TypeTokenWindow    = "token_window"
	TypePage           = "page"
	TypePDFPageChunk   = "pdf_page_chunk"
	TypeImagePage      = "image_page"
	TypeImagePageChunk = "image_page_chunk"
)

// Semantic region labels assigned by position within the document.
const (
	RegionIntro   = "intro"
	RegionEarly   = "early"
	RegionMiddle  = "middle"
	RegionLate    = "late"
	RegionFooter  = "footer"
	RegionUnknown = "unknown"
)

// Provenance ties a chunk back to the raw object it came from.
type Provenance struct {
	RawSHA256   string `json:"raw_sha256"`
	RawKey      string `json:"raw_key"`
	OriginalURL string `json:"original_url,omitempty"`
}

// Chunk is one token-bounded slice of a document's canonical text.
// Field order is fixed by this struct; together with compact JSON
// encoding it makes the serialized form a pure function of the content.
type Chunk struct {
	DocumentID          string         `json:"document_id"`
	ChunkID             string         `json:"chunk_id"`
	ChunkIndex          int            `json:"chunk_index"`
	ChunkType           string         `json:"chunk_type"`
	Text                string         `json:"text"`
	TokenCount          int            `json:"token_count"`
	TokenRange          [2]int         `json:"token_range"`
	DocumentTotalTokens int            `json:"document_total_tokens"`
	SemanticRegion      string         `json:"semantic_region"`
	Headings            []string       `json:"headings"`
	HeadingPath         []string       `json:"heading_path"`
	LayoutTags          []string       `json:"layout_tags"`
	Figures             []Figure       `json:"figures"`
	SourceURL           string         `json:"source_url,omitempty"`
	SourceDomain        string         `json:"source_domain,omitempty"`
	S3URL               string         `json:"s3_url,omitempty"`
	LocalPath           string         `json:"local_path,omitempty"`
	PageNumber          int            `json:"page_number,omitempty"`
	Language            string         `json:"language,omitempty"`
	Region              string         `json:"region,omitempty"`
	TopicTags           []string       `json:"topic_tags"`
	TrustLevel          string         `json:"trust_level"`
	LastUpdated         string         `json:"last_updated,omitempty"`
	IngestTime          string         `json:"ingest_time,omitempty"`
	Timestamp           string         `json:"timestamp,omitempty"`
	ParserVersion       string         `json:"parser_version"`
	UsedOCR             bool           `json:"used_ocr"`
	OriginalManifest    map[string]any `json:"original_manifest,omitempty"`
	Provenance          Provenance     `json:"provenance"`
	Embedding           []float32      `json:"embedding"`
}

// Figure is non-body content lifted out of a page: an OCRed image or a
// flattened table, with any caption text found near it.
type Figure struct {
	Kind    string `json:"kind"` // "image" or "table"
	Page    int    `json:"page,omitempty"`
	Text    string `json:"text,omitempty"`
	Caption string `json:"caption,omitempty"`
	OCR     bool   `json:"ocr,omitempty"`
}

// HTMLChunkID returns the chunk id for an HTML token window.
// Indexes are 1-based.
func HTMLChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s_c%04d", documentID, index)
}

// PageChunkID returns the chunk id for a PDF page or image frame chunk.
// Indexes are 1-based.
func PageChunkID(documentID string, page, index int) string {
	return fmt.Sprintf("%s_p%d_%04d", documentID, page, index)
}

// FormatTime renders a timestamp the way every pipeline component
// expects it: RFC3339 with millisecond precision, UTC, trailing Z.
func FormatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// MarshalJSONL serializes chunks to the canonical JSONL byte form: one
// compact JSON object per line, newline-terminated. Identical chunk
// slices produce identical bytes.
func MarshalJSONL(chunks []Chunk) ([]byte, error) {
	var buf bytes.Buffer
	for i := range chunks {
		line, err := json.Marshal(&chunks[i])
		if err != nil {
			return nil, fmt.Errorf("marshaling chunk %s: %w", chunks[i].ChunkID, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// SHA256Hex returns the hex digest of b.
func SHA256Hex(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}
