// Package civicrag assembles the civic-information RAG service: an
// indexing pipeline that turns raw documents into embedded chunk rows,
// and a query pipeline that answers questions grounded strictly in
// retrieved passages.
package civicrag

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nagarikconnect/civicrag/audit"
	"github.com/nagarikconnect/civicrag/chunker"
	"github.com/nagarikconnect/civicrag/index"
	"github.com/nagarikconnect/civicrag/llm"
	"github.com/nagarikconnect/civicrag/materialize"
	"github.com/nagarikconnect/civicrag/objstore"
	"github.com/nagarikconnect/civicrag/ocr"
	"github.com/nagarikconnect/civicrag/query"
	"github.com/nagarikconnect/civicrag/retrieve"
	"github.com/nagarikconnect/civicrag/store"
)

// Core builds and owns the pipeline components for one configuration.
// Components are constructed on first use and shared afterwards; Core
// is safe for concurrent use.
type Core struct {
	cfg Config
	log zerolog.Logger

	mu       sync.Mutex
	objects  objstore.Store
	rowStore *store.Store
	embedder llm.Embedder
}

// NewCore validates cfg and returns a Core. No connections are opened
// until a component is requested.
func NewCore(cfg Config, log zerolog.Logger) (*Core, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Core{cfg: cfg, log: log}, nil
}

// Config returns the configuration the Core was built with.
func (c *Core) Config() Config { return c.cfg }

// Objects returns the configured object store backend.
func (c *Core) Objects(ctx context.Context) (objstore.Store, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.objects != nil {
		return c.objects, nil
	}
	var (
		s   objstore.Store
		err error
	)
	switch c.cfg.Storage {
	case "s3":
		backoff := time.Duration(c.cfg.PutBackoffSec * float64(time.Second))
		s, err = objstore.NewS3(ctx, c.cfg.S3Bucket, c.cfg.PutRetries, backoff, c.log)
	case "local":
		s, err = objstore.NewLocal(c.cfg.LocalRoot)
	default:
		err = fmt.Errorf("%w: STORAGE=%q", ErrUnsupportedBackend, c.cfg.Storage)
	}
	if err != nil {
		return nil, err
	}
	c.objects = s
	return s, nil
}

// RowStore returns the pgvector row store, connecting on first use.
func (c *Core) RowStore(ctx context.Context) (*store.Store, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rowStore != nil {
		return c.rowStore, nil
	}
	if c.cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("%w: DATABASE_URL", ErrNotConfigured)
	}
	s, err := store.New(ctx, store.Config{
		DatabaseURL: c.cfg.DatabaseURL,
		Table:       c.cfg.VectorTable,
		EmbedDim:    c.cfg.EmbedDim,
	}, c.log)
	if err != nil {
		return nil, err
	}
	c.rowStore = s
	return s, nil
}

// Embedder returns the embedding client. Without EMBEDDER_URL the
// deterministic hash embedder is used, which keeps local and test
// deployments self-contained.
func (c *Core) Embedder() llm.Embedder {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.embedder != nil {
		return c.embedder
	}
	if c.cfg.EmbedderURL == "" {
		c.embedder = llm.NewDeterministicEmbedder(c.cfg.EmbedDim)
	} else {
		c.embedder = llm.NewEmbedder(llm.EmbedderConfig{
			BaseURL: c.cfg.EmbedderURL,
			Model:   c.cfg.EmbedModel,
			Dim:     c.cfg.EmbedDim,
		})
	}
	return c.embedder
}

// Generator returns the generation client, or an error when
// GENERATOR_URL is not configured.
func (c *Core) Generator() (llm.Generator, error) {
	if c.cfg.GeneratorURL == "" {
		return nil, fmt.Errorf("%w: GENERATOR_URL", ErrNotConfigured)
	}
	return llm.NewGenerator(llm.GeneratorConfig{
		BaseURL: c.cfg.GeneratorURL,
		Model:   c.cfg.GenModel,
	}), nil
}

// Chunker returns a document chunker, with OCR wired when OCR_URL is
// configured.
func (c *Core) Chunker() *chunker.Chunker {
	opts := []chunker.Option{chunker.WithLogger(c.log)}
	if c.cfg.OCRURL != "" {
		opts = append(opts, chunker.WithOCR(ocr.NewClient(c.cfg.OCRURL, nil)))
	}
	return chunker.New(chunker.Config{
		MaxTokens:        c.cfg.MaxTokensPerChunk,
		MinTokens:        c.cfg.MinTokensPerChunk,
		OverlapSentences: c.cfg.OverlapSentences,
		ParserVersion:    c.cfg.ParserVersion,
		Storage:          c.cfg.Storage,
		S3Bucket:         c.cfg.S3Bucket,
	}, opts...)
}

// Materializer returns the chunk-file writer.
func (c *Core) Materializer(ctx context.Context) (*materialize.Materializer, error) {
	objects, err := c.Objects(ctx)
	if err != nil {
		return nil, err
	}
	return materialize.New(objects, materialize.Config{
		ChunkedPrefix:  c.cfg.ChunkedPrefix,
		SchemaVersion:  c.cfg.SchemaVersion,
		ParserVersion:  c.cfg.ParserVersion,
		ForceOverwrite: c.cfg.ForceOverwrite,
	}, c.log), nil
}

// Ingestor returns the chunk-and-materialize runner for the raw prefix.
func (c *Core) Ingestor(ctx context.Context) (*index.Ingestor, error) {
	objects, err := c.Objects(ctx)
	if err != nil {
		return nil, err
	}
	mat, err := c.Materializer(ctx)
	if err != nil {
		return nil, err
	}
	return index.NewIngestor(objects, c.Chunker(), mat, index.IngestConfig{
		RawPrefix: c.cfg.RawPrefix,
	}, c.log), nil
}

// Indexer returns the embed-and-insert runner over materialized chunk
// files.
func (c *Core) Indexer(ctx context.Context) (*index.Indexer, error) {
	objects, err := c.Objects(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := c.RowStore(ctx)
	if err != nil {
		return nil, err
	}
	return index.New(objects, rows, c.Embedder(), index.Config{
		ChunkedPrefix: c.cfg.ChunkedPrefix,
		BatchSize:     c.cfg.BatchSize,
	}, c.log), nil
}

// Retriever returns the k-NN retrieval engine.
func (c *Core) Retriever(ctx context.Context) (*retrieve.Retriever, error) {
	rows, err := c.RowStore(ctx)
	if err != nil {
		return nil, err
	}
	return retrieve.New(rows, c.Embedder(), retrieve.Config{
		RawK:   c.cfg.RawK,
		FinalK: c.cfg.FinalK,
	}, c.log), nil
}

// Auditor returns the audit sink. It is valid even when the object
// store is unavailable; the sink then drops records with a debug log.
func (c *Core) Auditor(ctx context.Context) *audit.Sink {
	objects, err := c.Objects(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("audit store unavailable, auditing disabled")
		objects = nil
	}
	return audit.NewSink(objects, c.cfg.AuditPrefix, c.log)
}

// Orchestrator returns the query pipeline orchestrator.
func (c *Core) Orchestrator(ctx context.Context) (*query.Orchestrator, error) {
	retriever, err := c.Retriever(ctx)
	if err != nil {
		return nil, err
	}
	generator, err := c.Generator()
	if err != nil {
		return nil, err
	}
	return query.New(retriever, generator, c.Auditor(ctx), query.Config{
		MinSimilarity:     c.cfg.MinSimilarity,
		ASRConfThreshold:  c.cfg.ASRConfThreshold,
		EmbedSearchBudget: time.Duration(c.cfg.EmbedSearchBudgetSec * float64(time.Second)),
		GenBudget:         time.Duration(c.cfg.GenBudgetSec * float64(time.Second)),
	}, c.log), nil
}

// Close releases held resources. Safe to call more than once.
func (c *Core) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rowStore != nil {
		c.rowStore.Close()
		c.rowStore = nil
	}
}
