package retrieve

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/nagarikconnect/civicrag/llm"
	"github.com/nagarikconnect/civicrag/store"
)

type fakeSearcher struct {
	candidates  []store.Candidate
	lastFilters map[string]string
	lastLimit   int
}

func (f *fakeSearcher) Search(_ context.Context, _ []float32, filters map[string]string, limit int) ([]store.Candidate, error) {
	f.lastFilters = filters
	f.lastLimit = limit
	return f.candidates, nil
}

func cand(id, text, trust string, distance float64) store.Candidate {
	return store.Candidate{
		ChunkID:  id,
		Content:  text,
		Meta:     map[string]any{"trust_level": trust},
		Distance: distance,
	}
}

func newTestRetriever(s Searcher, cfg Config) *Retriever {
	return New(s, llm.NewDeterministicEmbedder(8), cfg, zerolog.Nop())
}

func TestRetrieveRanksByTrustWeightedScore(t *testing.T) {
	// The nearest candidate comes from a news source; a slightly more
	// distant government source must outrank it.
	s := &fakeSearcher{candidates: []store.Candidate{
		cand("news1", "Scheme closes in June.", "news", 0.10),
		cand("gov1", "The scheme accepts applications until June.", "gov", 0.20),
	}}
	r := newTestRetriever(s, Config{RawK: 10, FinalK: 5})

	res, err := r.Retrieve(context.Background(), "when does the scheme close", nil, Options{})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(res.Passages) != 2 {
		t.Fatalf("len(passages) = %d, want 2", len(res.Passages))
	}
	if res.Passages[0].ChunkID != "gov1" {
		t.Errorf("top passage = %s, want gov1", res.Passages[0].ChunkID)
	}
	// news: sim 1/1.1 ≈ 0.909 × 0.6 ≈ 0.545; gov: 1/1.2 ≈ 0.833 × 1.0.
	if res.Passages[0].Score <= res.Passages[1].Score {
		t.Errorf("scores not descending: %v then %v", res.Passages[0].Score, res.Passages[1].Score)
	}
	if res.TopSimilarity != res.Passages[0].Score {
		t.Errorf("TopSimilarity = %v, want top score %v", res.TopSimilarity, res.Passages[0].Score)
	}
	for i, p := range res.Passages {
		if p.Number != i+1 {
			t.Errorf("passages[%d].Number = %d, want %d", i, p.Number, i+1)
		}
	}
}

func TestRetrieveDedupesNearIdenticalText(t *testing.T) {
	s := &fakeSearcher{candidates: []store.Candidate{
		cand("a", "Apply  at the ward office.", "gov", 0.10),
		cand("b", "apply at THE ward office.", "gov", 0.30),
		cand("c", "A different sentence entirely.", "gov", 0.40),
	}}
	r := newTestRetriever(s, Config{RawK: 10, FinalK: 5})

	res, err := r.Retrieve(context.Background(), "q", nil, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Passages) != 2 {
		t.Fatalf("len(passages) = %d, want 2 after dedupe", len(res.Passages))
	}
	for _, p := range res.Passages {
		if p.ChunkID == "b" {
			t.Error("duplicate with larger distance survived dedupe")
		}
	}
}

func TestRetrieveTieBreakByChunkID(t *testing.T) {
	s := &fakeSearcher{candidates: []store.Candidate{
		cand("zzz", "First text.", "gov", 0.25),
		cand("aaa", "Second text.", "gov", 0.25),
	}}
	r := newTestRetriever(s, Config{RawK: 10, FinalK: 5})

	res, err := r.Retrieve(context.Background(), "q", nil, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Passages[0].ChunkID != "aaa" {
		t.Errorf("tie should break by ascending chunk id, got %s first", res.Passages[0].ChunkID)
	}
}

func TestRetrieveCapsAtFinalK(t *testing.T) {
	var cands []store.Candidate
	for _, id := range []string{"a", "b", "c", "d"} {
		cands = append(cands, cand(id, "unique text "+id+".", "gov", 0.2))
	}
	s := &fakeSearcher{candidates: cands}
	r := newTestRetriever(s, Config{RawK: 10, FinalK: 2})

	res, err := r.Retrieve(context.Background(), "q", nil, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Passages) != 2 {
		t.Errorf("len(passages) = %d, want FinalK=2", len(res.Passages))
	}
	if s.lastLimit != 10 {
		t.Errorf("store limit = %d, want RawK=10", s.lastLimit)
	}
}

func TestRetrievePerRequestKOverrides(t *testing.T) {
	var cands []store.Candidate
	for _, id := range []string{"a", "b", "c", "d"} {
		cands = append(cands, cand(id, "unique text "+id+".", "gov", 0.2))
	}
	s := &fakeSearcher{candidates: cands}
	r := newTestRetriever(s, Config{RawK: 10, FinalK: 5})

	res, err := r.Retrieve(context.Background(), "q", nil, Options{RawK: 3, FinalK: 1})
	if err != nil {
		t.Fatal(err)
	}
	if s.lastLimit != 3 {
		t.Errorf("store limit = %d, want requested RawK=3", s.lastLimit)
	}
	if len(res.Passages) != 1 {
		t.Errorf("len(passages) = %d, want requested FinalK=1", len(res.Passages))
	}
}

func TestRetrieveOverridesClampedToConfig(t *testing.T) {
	s := &fakeSearcher{candidates: []store.Candidate{cand("a", "text a.", "gov", 0.2)}}
	r := newTestRetriever(s, Config{RawK: 10, FinalK: 5})

	_, err := r.Retrieve(context.Background(), "q", nil, Options{RawK: 500, FinalK: 50})
	if err != nil {
		t.Fatal(err)
	}
	if s.lastLimit != 10 {
		t.Errorf("store limit = %d, want config RawK=10 as the ceiling", s.lastLimit)
	}
}

func TestRetrieveDropsInvalidFilterKeys(t *testing.T) {
	s := &fakeSearcher{}
	r := newTestRetriever(s, Config{})

	_, err := r.Retrieve(context.Background(), "q", map[string]string{
		"trust_level":   "gov",
		"bad-key":       "x",
		"k'; DROP --":   "y",
		"source_domain": "water.gov.example",
	}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(s.lastFilters) != 2 {
		t.Errorf("filters passed through = %v, want only whitelisted keys", s.lastFilters)
	}
	if _, ok := s.lastFilters["bad-key"]; ok {
		t.Error("bad-key not dropped")
	}
}

func TestRetrieveEmptyResult(t *testing.T) {
	r := newTestRetriever(&fakeSearcher{}, Config{})
	res, err := r.Retrieve(context.Background(), "q", nil, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Passages) != 0 || res.TopSimilarity != 0 {
		t.Errorf("empty search = %+v, want zero result", res)
	}
}

func TestTrustWeight(t *testing.T) {
	tests := []struct {
		level string
		want  float64
	}{
		{"gov", 1.0},
		{"government", 1.0},
		{"implementing_agency", 0.9},
		{"agency", 0.9},
		{"ngo", 0.7},
		{"news", 0.6},
		{"", 1.0},
		{"blog", 1.0},
	}
	for _, tt := range tests {
		if got := trustWeight(map[string]any{"trust_level": tt.level}); got != tt.want {
			t.Errorf("trustWeight(%q) = %v, want %v", tt.level, got, tt.want)
		}
	}
}
