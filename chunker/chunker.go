// Package chunker turns raw documents into ordered chunk records:
// format-specific extraction to canonical text, sentence windowing,
// and provenance assembly.
package chunker

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nagarikconnect/civicrag/chunk"
)

// ErrUnsupportedFormat is returned for formats outside the closed
// html/pdf/image set.
var ErrUnsupportedFormat = errors.New("chunker: unsupported document format")

// Supported document formats.
const (
	FormatHTML  = "html"
	FormatPDF   = "pdf"
	FormatImage = "image"
)

// Config controls windowing and provenance stamping.
type Config struct {
	MaxTokens        int    // Maximum tokens per window.
	MinTokens        int    // Windows below this merge into their predecessor.
	OverlapSentences int    // Sentence overlap between consecutive windows.
	ParserVersion    string // Stamped into every chunk.
	Storage          string // "s3" or "local"; selects s3_url vs local_path provenance.
	S3Bucket         string
}

// Document is one raw object to be chunked.
type Document struct {
	ID       string // document id, normally the manifest file_hash
	Format   string // FormatHTML, FormatPDF or FormatImage
	RawKey   string // object store key of the raw bytes
	RawSHA   string // sha256 of the raw bytes
	Raw      []byte
	Manifest chunk.Manifest
}

// OCRClient reads text out of image bytes. The zero client (nil) is
// valid; pages that would need OCR then come back empty.
type OCRClient interface {
	Recognize(ctx context.Context, requestID, fileName string, data []byte) (string, error)
}

// Chunker converts documents into chunk records.
type Chunker struct {
	cfg Config
	tok Tokenizer
	ocr OCRClient
	log zerolog.Logger
	now func() time.Time
}

// Option customizes a Chunker.
type Option func(*Chunker)

// WithOCR wires an OCR client for image and scanned-PDF content.
func WithOCR(c OCRClient) Option { return func(ch *Chunker) { ch.ocr = c } }

// WithTokenizer overrides the default whitespace tokenizer.
func WithTokenizer(t Tokenizer) Option { return func(ch *Chunker) { ch.tok = t } }

// WithLogger sets the structured logger.
func WithLogger(l zerolog.Logger) Option { return func(ch *Chunker) { ch.log = l } }

// WithClock overrides the ingest-time clock. Tests use this to make
// chunk bytes reproducible.
func WithClock(fn func() time.Time) Option { return func(ch *Chunker) { ch.now = fn } }

// New returns a Chunker with the given configuration. Zero-value
// fields are replaced with the standard defaults.
func New(cfg Config, opts ...Option) *Chunker {
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 512
	}
	if cfg.MinTokens == 0 {
		cfg.MinTokens = 100
	}
	if cfg.OverlapSentences == 0 {
		cfg.OverlapSentences = 2
	}
	if cfg.ParserVersion == "" {
		cfg.ParserVersion = "parser_v1"
	}
	c := &Chunker{
		cfg: cfg,
		tok: WhitespaceTokenizer{},
		log: zerolog.Nop(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ChunkDocument produces the ordered chunk records for one document.
// A document with no extractable text yields zero chunks and no error;
// the caller annotates the manifest.
func (c *Chunker) ChunkDocument(ctx context.Context, doc Document) ([]chunk.Chunk, error) {
	if doc.Manifest == nil {
		doc.Manifest = chunk.Manifest{}
	}
	switch doc.Format {
	case FormatHTML:
		return c.chunkHTML(ctx, doc)
	case FormatPDF:
		return c.chunkPDF(ctx, doc)
	case FormatImage:
		return c.chunkImage(ctx, doc)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, doc.Format)
	}
}

// DetectFormat maps a content type (and key extension as fallback) to
// a chunker format.
func DetectFormat(contentType, key string) (string, bool) {
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	switch {
	case ct == "text/html" || ct == "application/xhtml+xml":
		return FormatHTML, true
	case ct == "application/pdf":
		return FormatPDF, true
	case strings.HasPrefix(ct, "image/"):
		return FormatImage, true
	}
	lower := strings.ToLower(key)
	switch {
	case strings.HasSuffix(lower, ".html"), strings.HasSuffix(lower, ".htm"):
		return FormatHTML, true
	case strings.HasSuffix(lower, ".pdf"):
		return FormatPDF, true
	case strings.HasSuffix(lower, ".png"), strings.HasSuffix(lower, ".jpg"),
		strings.HasSuffix(lower, ".jpeg"), strings.HasSuffix(lower, ".gif"),
		strings.HasSuffix(lower, ".tif"), strings.HasSuffix(lower, ".tiff"):
		return FormatImage, true
	}
	return "", false
}

// ---------------------------------------------------------------------------
// shared provenance helpers
// ---------------------------------------------------------------------------

func (c *Chunker) s3URL(key string) string {
	if c.cfg.Storage == "s3" && c.cfg.S3Bucket != "" {
		return "s3://" + c.cfg.S3Bucket + "/" + key
	}
	return ""
}

func (c *Chunker) localPath(key string) string {
	if c.cfg.Storage != "s3" {
		return key
	}
	return ""
}

func (c *Chunker) provenance(doc Document) chunk.Provenance {
	return chunk.Provenance{
		RawSHA256:   doc.RawSHA,
		RawKey:      doc.RawKey,
		OriginalURL: doc.Manifest.String("original_url"),
	}
}

// sourceDomain extracts the host (or first path segment for bare
// paths) from a source reference.
func sourceDomain(src string) string {
	if src == "" {
		return ""
	}
	u, err := url.Parse(src)
	if err != nil {
		return ""
	}
	if u.Host != "" {
		return u.Host
	}
	parts := strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)
	return parts[0]
}

func topicTags(m chunk.Manifest) []string {
	raw, ok := m["tags"].([]any)
	if !ok {
		return []string{}
	}
	tags := make([]string, 0, len(raw))
	for _, t := range raw {
		if s, ok := t.(string); ok {
			tags = append(tags, s)
		}
	}
	return tags
}

func trustLevel(m chunk.Manifest) string {
	if t := m.String("trust_level"); t != "" {
		return t
	}
	return "gov"
}
