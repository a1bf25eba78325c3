package index

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/nagarikconnect/civicrag/chunk"
	"github.com/nagarikconnect/civicrag/llm"
	"github.com/nagarikconnect/civicrag/objstore"
	"github.com/nagarikconnect/civicrag/store"
)

type fakeRows struct {
	mu   sync.Mutex
	rows map[string]store.Row
}

func newFakeRows() *fakeRows {
	return &fakeRows{rows: map[string]store.Row{}}
}

func (f *fakeRows) HasChunk(_ context.Context, chunkID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.rows[chunkID]
	return ok, nil
}

func (f *fakeRows) InsertBatch(_ context.Context, rows []store.Row) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range rows {
		if _, ok := f.rows[r.ChunkID]; ok {
			continue
		}
		f.rows[r.ChunkID] = r
		n++
	}
	return n, nil
}

func testChunks(docID string, n int) []chunk.Chunk {
	chunks := make([]chunk.Chunk, 0, n)
	for i := 1; i <= n; i++ {
		chunks = append(chunks, chunk.Chunk{
			DocumentID:          docID,
			ChunkID:             chunk.HTMLChunkID(docID, i),
			ChunkIndex:          i,
			ChunkType:           chunk.TypeTokenWindow,
			Text:                "Birth certificates are issued by the municipal registrar.",
			TokenCount:          8,
			TokenRange:          [2]int{(i - 1) * 8, i * 8},
			DocumentTotalTokens: n * 8,
			SemanticRegion:      chunk.RegionMiddle,
			Headings:            []string{},
			HeadingPath:         []string{},
			LayoutTags:          []string{"html"},
			Figures:             []chunk.Figure{},
			TopicTags:           []string{},
			TrustLevel:          "gov",
			IngestTime:          "2025-06-01T12:00:00.000Z",
			ParserVersion:       "parser_v1",
		})
	}
	return chunks
}

func putChunkFile(t *testing.T, objects objstore.Store, key string, chunks []chunk.Chunk) {
	t.Helper()
	data, err := chunk.MarshalJSONL(chunks)
	if err != nil {
		t.Fatal(err)
	}
	if err := objects.Put(context.Background(), key, data); err != nil {
		t.Fatal(err)
	}
}

func TestIndexerRun(t *testing.T) {
	objects, err := objstore.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	putChunkFile(t, objects, "chunked/chunked_v1/doc1.chunks.jsonl", testChunks("doc1", 3))
	putChunkFile(t, objects, "chunked/chunked_v1/doc2.chunks.jsonl", testChunks("doc2", 2))

	rows := newFakeRows()
	ix := New(objects, rows, llm.NewDeterministicEmbedder(8), Config{ChunkedPrefix: "chunked"}, zerolog.Nop())

	stats, err := ix.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Indexed != 5 {
		t.Errorf("Indexed = %d, want 5", stats.Indexed)
	}
	if stats.FilesProcessed != 2 {
		t.Errorf("FilesProcessed = %d, want 2", stats.FilesProcessed)
	}
	if stats.FilesFailed != 0 || stats.SkippedSchema != 0 {
		t.Errorf("stats = %+v", stats)
	}

	row, ok := rows.rows["doc1_c0001"]
	if !ok {
		t.Fatal("doc1_c0001 not inserted")
	}
	if len(row.Embedding) != 8 {
		t.Errorf("embedding dim = %d, want 8", len(row.Embedding))
	}
	if row.IngestTime == nil {
		t.Error("IngestTime not carried into the row")
	}

	// A second run skips every already-indexed chunk.
	stats, err = ix.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if stats.Indexed != 0 {
		t.Errorf("second run Indexed = %d, want 0", stats.Indexed)
	}
	if stats.SkippedExisting != 5 {
		t.Errorf("SkippedExisting = %d, want 5", stats.SkippedExisting)
	}
}

func TestIndexerSkipsSchemaInvalidLines(t *testing.T) {
	objects, err := objstore.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	good, err := chunk.MarshalJSONL(testChunks("doc1", 1))
	if err != nil {
		t.Fatal(err)
	}
	data := append([]byte(`{"chunk_id":"orphan"}`+"\n"), good...)
	data = append(data, []byte("not json at all\n")...)
	if err := objects.Put(context.Background(), "chunked/chunked_v1/doc1.chunks.jsonl", data); err != nil {
		t.Fatal(err)
	}

	rows := newFakeRows()
	ix := New(objects, rows, llm.NewDeterministicEmbedder(8), Config{ChunkedPrefix: "chunked"}, zerolog.Nop())

	stats, err := ix.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.SkippedSchema != 2 {
		t.Errorf("SkippedSchema = %d, want 2", stats.SkippedSchema)
	}
	if stats.Indexed != 1 {
		t.Errorf("Indexed = %d, want 1 (the valid line)", stats.Indexed)
	}
}

func TestIndexerIgnoresNonChunkFiles(t *testing.T) {
	objects, err := objstore.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := objects.Put(context.Background(), "chunked/readme.txt", []byte("nope")); err != nil {
		t.Fatal(err)
	}

	ix := New(objects, newFakeRows(), llm.NewDeterministicEmbedder(8), Config{ChunkedPrefix: "chunked"}, zerolog.Nop())
	stats, err := ix.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.FilesProcessed != 0 {
		t.Errorf("FilesProcessed = %d, want 0", stats.FilesProcessed)
	}
}
