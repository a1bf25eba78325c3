// Package retrieve turns a user query into ranked, deduplicated
// evidence passages: embed, filter-first k-NN, near-duplicate removal,
// trust-weighted re-ranking.
package retrieve

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/text/unicode/norm"

	"github.com/nagarikconnect/civicrag/llm"
	"github.com/nagarikconnect/civicrag/store"
)

// Searcher is the slice of the vector store the retriever needs.
type Searcher interface {
	Search(ctx context.Context, embedding []float32, filters map[string]string, limit int) ([]store.Candidate, error)
}

// Config controls candidate and result set sizes.
type Config struct {
	RawK   int // candidates fetched from the store, default 50
	FinalK int // passages returned, default 5
}

// Options are per-request overrides of the configured set sizes. Zero
// means the configured value; overrides never exceed the config.
type Options struct {
	RawK   int
	FinalK int
}

// Passage is one ranked evidence passage. Number is the 1-based
// citation index shown to the generator.
type Passage struct {
	Number      int            `json:"number"`
	ChunkID     string         `json:"chunk_id"`
	DocumentID  string         `json:"document_id"`
	Text        string         `json:"text"`
	SourceURL   string         `json:"source_url"`
	Meta        map[string]any `json:"meta"`
	Distance    float64        `json:"distance"`
	Similarity  float64        `json:"similarity"`
	TrustWeight float64        `json:"trust_weight"`
	Score       float64        `json:"score"`
}

// Result is the ranked passage list for one query.
type Result struct {
	Passages      []Passage `json:"passages"`
	TopSimilarity float64   `json:"top_similarity"`
}

// Retriever embeds queries and ranks the store's nearest chunks.
type Retriever struct {
	searcher Searcher
	embedder llm.Embedder
	cfg      Config
	log      zerolog.Logger
}

// New returns a Retriever with zero-value config fields defaulted.
func New(searcher Searcher, embedder llm.Embedder, cfg Config, log zerolog.Logger) *Retriever {
	if cfg.RawK == 0 {
		cfg.RawK = 50
	}
	if cfg.FinalK == 0 {
		cfg.FinalK = 5
	}
	return &Retriever{searcher: searcher, embedder: embedder, cfg: cfg, log: log}
}

// Retrieve returns ranked passages for the query, up to FinalK or the
// request's tighter cap. Filters with non-whitelisted keys are dropped
// with a warning; retrieval still runs. An empty result is not an
// error.
func (r *Retriever) Retrieve(ctx context.Context, query string, filters map[string]string, opts Options) (*Result, error) {
	rawK := r.cfg.RawK
	if opts.RawK > 0 && opts.RawK < rawK {
		rawK = opts.RawK
	}
	finalK := r.cfg.FinalK
	if opts.FinalK > 0 && opts.FinalK < finalK {
		finalK = opts.FinalK
	}
	if finalK > rawK {
		finalK = rawK
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	clean := map[string]string{}
	for k, v := range filters {
		if !store.FilterKeyRe.MatchString(k) {
			r.log.Warn().Str("key", k).Msg("dropping non-whitelisted filter key")
			continue
		}
		clean[k] = v
	}

	candidates, err := r.searcher.Search(ctx, vec, clean, rawK)
	if err != nil {
		return nil, fmt.Errorf("knn search: %w", err)
	}

	deduped := dedupe(candidates, rawK)

	passages := make([]Passage, 0, len(deduped))
	for _, c := range deduped {
		similarity := 1.0 / (1.0 + c.Distance)
		weight := trustWeight(c.Meta)
		passages = append(passages, Passage{
			ChunkID:     c.ChunkID,
			DocumentID:  c.DocumentID,
			Text:        c.Content,
			SourceURL:   c.SourceURL,
			Meta:        c.Meta,
			Distance:    c.Distance,
			Similarity:  similarity,
			TrustWeight: weight,
			Score:       similarity * weight,
		})
	}

	sort.Slice(passages, func(i, j int) bool {
		if passages[i].Score != passages[j].Score {
			return passages[i].Score > passages[j].Score
		}
		if passages[i].Similarity != passages[j].Similarity {
			return passages[i].Similarity > passages[j].Similarity
		}
		return passages[i].ChunkID < passages[j].ChunkID
	})

	if len(passages) > finalK {
		passages = passages[:finalK]
	}
	for i := range passages {
		passages[i].Number = i + 1
	}

	result := &Result{Passages: passages}
	if len(passages) > 0 {
		result.TopSimilarity = passages[0].Score
	}
	return result, nil
}

// dedupe drops candidates whose normalized text already appeared.
// Candidates arrive ordered by distance, so the survivor of each
// duplicate group is the nearest one.
func dedupe(candidates []store.Candidate, limit int) []store.Candidate {
	seen := map[string]struct{}{}
	out := make([]store.Candidate, 0, len(candidates))
	for _, c := range candidates {
		key := dedupeKey(c.Content)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// dedupeKey hashes the NFKC-lowercased, whitespace-collapsed text.
func dedupeKey(text string) string {
	t := norm.NFKC.String(text)
	t = strings.ToLower(t)
	t = strings.Join(strings.Fields(t), " ")
	h := sha256.Sum256([]byte(t))
	return hex.EncodeToString(h[:])
}

// trustWeight maps a source's trust level to its ranking weight.
// Unknown levels rank as fully trusted rather than silently burying
// sources that predate the taxonomy.
func trustWeight(meta map[string]any) float64 {
	level, _ := meta["trust_level"].(string)
	switch strings.ToLower(level) {
	case "gov", "government":
		return 1.0
	case "implementing_agency", "agency":
		return 0.9
	case "ngo":
		return 0.7
	case "news":
		return 0.6
	default:
		return 1.0
	}
}
