package civicrag

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all configuration for the civicrag pipelines.
type Config struct {
	// Storage selects the object store backend: "s3" or "local".
	Storage string `json:"storage"`

	// S3Bucket is the bucket name when Storage is "s3".
	S3Bucket string `json:"s3_bucket"`

	// LocalRoot is the directory backing the object store when
	// Storage is "local".
	LocalRoot string `json:"local_root"`

	// Key prefixes inside the object store.
	RawPrefix     string `json:"raw_prefix"`
	ChunkedPrefix string `json:"chunked_prefix"`
	AuditPrefix   string `json:"audit_prefix"`

	// SchemaVersion names the chunk-file layout generation, e.g. "chunked_v1".
	// It is part of every chunk-file key.
	SchemaVersion string `json:"schema_version"`

	// ParserVersion is stamped into every chunk and manifest.
	ParserVersion string `json:"parser_version"`

	// Chunking
	MinTokensPerChunk int `json:"min_tokens_per_chunk"`
	MaxTokensPerChunk int `json:"max_tokens_per_chunk"`
	OverlapSentences  int `json:"overlap_sentences"`

	// Vector store
	DatabaseURL string `json:"database_url"`
	VectorTable string `json:"vector_table"`
	EmbedDim    int    `json:"embed_dim"`
	BatchSize   int    `json:"batch_size"`

	// Embedder / generator endpoints
	EmbedderURL  string `json:"embedder_url"`
	EmbedModel   string `json:"embed_model"`
	GeneratorURL string `json:"generator_url"`
	GenModel     string `json:"gen_model"`
	OCRURL       string `json:"ocr_url"`

	// Retrieval
	RawK          int     `json:"raw_k"`
	FinalK        int     `json:"final_k"`
	MinSimilarity float64 `json:"min_similarity"`

	// Policy
	ASRConfThreshold float64 `json:"asr_conf_threshold"`

	// Soft budgets, seconds. Exceeding logs a warning, never fails.
	EmbedSearchBudgetSec float64 `json:"embed_search_budget_sec"`
	GenBudgetSec         float64 `json:"gen_budget_sec"`

	// Object store writes
	PutRetries    int     `json:"put_retries"`
	PutBackoffSec float64 `json:"put_backoff_sec"`

	// ForceOverwrite bypasses chunk-file idempotency checks.
	ForceOverwrite bool `json:"force_overwrite"`
}

// DefaultConfig returns a Config with defaults for a local deployment.
func DefaultConfig() Config {
	return Config{
		Storage:              "local",
		LocalRoot:            "data",
		RawPrefix:            "raw",
		ChunkedPrefix:        "chunked",
		AuditPrefix:          "audits",
		SchemaVersion:        "chunked_v1",
		ParserVersion:        "parser_v1",
		MinTokensPerChunk:    100,
		MaxTokensPerChunk:    512,
		OverlapSentences:     2,
		VectorTable:          "chunks",
		EmbedDim:             1024,
		BatchSize:            32,
		RawK:                 50,
		FinalK:               5,
		MinSimilarity:        0.35,
		ASRConfThreshold:     0.35,
		EmbedSearchBudgetSec: 2.5,
		GenBudgetSec:         4.0,
		PutRetries:           3,
		PutBackoffSec:        0.3,
	}
}

// FromEnv returns DefaultConfig overridden by recognized environment
// variables. Malformed numeric values are reported as errors rather
// than silently ignored.
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	setStr := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	var envErr error
	setInt := func(dst *int, key string) {
		v := os.Getenv(key)
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil && envErr == nil {
			envErr = fmt.Errorf("%w: %s=%q", ErrInvalidConfig, key, v)
			return
		}
		*dst = n
	}
	setFloat := func(dst *float64, key string) {
		v := os.Getenv(key)
		if v == "" {
			return
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil && envErr == nil {
			envErr = fmt.Errorf("%w: %s=%q", ErrInvalidConfig, key, v)
			return
		}
		*dst = f
	}

	setStr(&cfg.Storage, "STORAGE")
	setStr(&cfg.S3Bucket, "S3_BUCKET")
	setStr(&cfg.LocalRoot, "LOCAL_ROOT")
	setStr(&cfg.RawPrefix, "RAW_PREFIX")
	setStr(&cfg.ChunkedPrefix, "CHUNKED_PREFIX")
	setStr(&cfg.AuditPrefix, "AUDIT_PREFIX")
	setStr(&cfg.SchemaVersion, "CHUNKED_SCHEMA_VERSION")
	setStr(&cfg.ParserVersion, "PARSER_VERSION")
	setStr(&cfg.DatabaseURL, "DATABASE_URL")
	setStr(&cfg.VectorTable, "VECTOR_TABLE")
	setStr(&cfg.EmbedderURL, "EMBEDDER_URL")
	setStr(&cfg.EmbedModel, "EMBED_MODEL")
	setStr(&cfg.GeneratorURL, "GENERATOR_URL")
	setStr(&cfg.GenModel, "GEN_MODEL")
	setStr(&cfg.OCRURL, "OCR_URL")

	setInt(&cfg.MinTokensPerChunk, "MIN_TOKENS_PER_CHUNK")
	setInt(&cfg.MaxTokensPerChunk, "MAX_TOKENS_PER_CHUNK")
	setInt(&cfg.OverlapSentences, "OVERLAP_SENTENCES")
	setInt(&cfg.EmbedDim, "EMBED_DIM")
	setInt(&cfg.BatchSize, "BATCH_SIZE")
	setInt(&cfg.RawK, "RAW_K")
	setInt(&cfg.FinalK, "FINAL_K")
	setInt(&cfg.PutRetries, "PUT_RETRIES")

	setFloat(&cfg.MinSimilarity, "MIN_SIMILARITY")
	setFloat(&cfg.ASRConfThreshold, "ASR_CONF_THRESHOLD")
	setFloat(&cfg.EmbedSearchBudgetSec, "EMBED_SEARCH_BUDGET_SEC")
	setFloat(&cfg.GenBudgetSec, "GEN_BUDGET_SEC")
	setFloat(&cfg.PutBackoffSec, "PUT_BACKOFF_SEC")

	if v := os.Getenv("FORCE_OVERWRITE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil && envErr == nil {
			envErr = fmt.Errorf("%w: FORCE_OVERWRITE=%q", ErrInvalidConfig, v)
		}
		cfg.ForceOverwrite = b
	}

	if envErr != nil {
		return cfg, envErr
	}
	return cfg, cfg.Validate()
}

// Validate checks value ranges that would otherwise fail deep inside a
// pipeline run.
func (c Config) Validate() error {
	switch c.Storage {
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("%w: STORAGE=s3 requires S3_BUCKET", ErrInvalidConfig)
		}
	case "local":
		if c.LocalRoot == "" {
			return fmt.Errorf("%w: STORAGE=local requires LOCAL_ROOT", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: STORAGE=%q", ErrUnsupportedBackend, c.Storage)
	}
	if c.MaxTokensPerChunk <= 0 || c.MinTokensPerChunk < 0 {
		return fmt.Errorf("%w: token bounds min=%d max=%d", ErrInvalidConfig, c.MinTokensPerChunk, c.MaxTokensPerChunk)
	}
	if c.MinTokensPerChunk >= c.MaxTokensPerChunk {
		return fmt.Errorf("%w: MIN_TOKENS_PER_CHUNK must be below MAX_TOKENS_PER_CHUNK", ErrInvalidConfig)
	}
	if c.EmbedDim <= 0 {
		return fmt.Errorf("%w: EMBED_DIM=%d", ErrInvalidConfig, c.EmbedDim)
	}
	if c.RawK <= 0 || c.FinalK <= 0 || c.FinalK > c.RawK {
		return fmt.Errorf("%w: RAW_K=%d FINAL_K=%d", ErrInvalidConfig, c.RawK, c.FinalK)
	}
	return nil
}
