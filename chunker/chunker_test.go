package chunker

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"strings"
	"testing"
	"time"

	"github.com/nagarikconnect/civicrag/chunk"
)

var testClock = func() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func newTestChunker(opts ...Option) *Chunker {
	opts = append([]Option{WithClock(testClock)}, opts...)
	return New(Config{MaxTokens: 64, MinTokens: 4, OverlapSentences: 1, ParserVersion: "parser_v1"}, opts...)
}

type fakeOCR struct {
	text  string
	err   error
	calls int
}

func (f *fakeOCR) Recognize(ctx context.Context, requestID, fileName string, data []byte) (string, error) {
	f.calls++
	return f.text, f.err
}

func TestChunkHTML(t *testing.T) {
	html := `<html><head><title>Ration Card Guide</title></head><body>
<p>A ration card entitles a household to subsidized food grains. Apply at the district supply office.</p>
<p>Carry proof of residence and identity. Processing takes about thirty days.</p>
</body></html>`

	c := newTestChunker()
	chunks, err := c.ChunkDocument(context.Background(), Document{
		ID:     "doc1",
		Format: FormatHTML,
		RawKey: "raw/doc1.html",
		RawSHA: "abc",
		Raw:    []byte(html),
		Manifest: chunk.Manifest{
			"original_url": "https://food.gov.example/ration",
		},
	})
	if err != nil {
		t.Fatalf("ChunkDocument: %v", err)
	}
	if len(chunks) == 0 {
		t.Fatal("expected chunks")
	}

	for i, ck := range chunks {
		if ck.ChunkIndex != i+1 {
			t.Errorf("chunks[%d].ChunkIndex = %d, want %d", i, ck.ChunkIndex, i+1)
		}
		wantID := fmt.Sprintf("doc1_c%04d", i+1)
		if ck.ChunkID != wantID {
			t.Errorf("chunks[%d].ChunkID = %q, want %q", i, ck.ChunkID, wantID)
		}
		if ck.DocumentID != "doc1" {
			t.Errorf("DocumentID = %q", ck.DocumentID)
		}
		if strings.TrimSpace(ck.Text) == "" {
			t.Errorf("chunks[%d] has empty text", i)
		}
		if ck.SemanticRegion == "" {
			t.Errorf("chunks[%d] missing semantic region", i)
		}
		if ck.TokenRange[1] > ck.DocumentTotalTokens {
			t.Errorf("chunks[%d] token_end %d beyond document total %d", i, ck.TokenRange[1], ck.DocumentTotalTokens)
		}
		if ck.SourceURL != "https://food.gov.example/ration" {
			t.Errorf("SourceURL = %q", ck.SourceURL)
		}
		if ck.SourceDomain != "food.gov.example" {
			t.Errorf("SourceDomain = %q", ck.SourceDomain)
		}
		if ck.TrustLevel != "gov" {
			t.Errorf("TrustLevel = %q, want default gov", ck.TrustLevel)
		}
		if len(ck.LayoutTags) != 1 || ck.LayoutTags[0] != "html" {
			t.Errorf("LayoutTags = %v", ck.LayoutTags)
		}
		if ck.IngestTime == "" {
			t.Errorf("chunks[%d] missing ingest time", i)
		}
		if ck.Provenance.RawSHA256 != "abc" || ck.Provenance.RawKey != "raw/doc1.html" {
			t.Errorf("Provenance = %+v", ck.Provenance)
		}
	}

	if len(chunks) == 1 && chunks[0].ChunkType != chunk.TypePage {
		t.Errorf("single-window ChunkType = %q, want %q", chunks[0].ChunkType, chunk.TypePage)
	}
	if len(chunks) > 1 {
		for i, ck := range chunks {
			if ck.ChunkType != chunk.TypeTokenWindow {
				t.Errorf("chunks[%d].ChunkType = %q, want %q", i, ck.ChunkType, chunk.TypeTokenWindow)
			}
		}
	}
}

func TestChunkHTMLEmptyDocument(t *testing.T) {
	c := newTestChunker()
	chunks, err := c.ChunkDocument(context.Background(), Document{
		ID:     "doc2",
		Format: FormatHTML,
		RawKey: "raw/doc2.html",
		Raw:    []byte(""),
	})
	if err != nil {
		t.Fatalf("ChunkDocument: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("len(chunks) = %d, want 0 for empty document", len(chunks))
	}
}

func TestChunkImageWithoutOCR(t *testing.T) {
	c := newTestChunker()
	chunks, err := c.ChunkDocument(context.Background(), Document{
		ID:     "img1",
		Format: FormatImage,
		RawKey: "raw/img1.png",
		Raw:    []byte("not really a png"),
	})
	if err != nil {
		t.Fatalf("ChunkDocument: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("len(chunks) = %d, want 1", len(chunks))
	}
	ck := chunks[0]
	if ck.ChunkID != "img1_p1_1" {
		t.Errorf("ChunkID = %q, want img1_p1_1", ck.ChunkID)
	}
	if ck.ChunkIndex != 1 {
		t.Errorf("ChunkIndex = %d, want 1", ck.ChunkIndex)
	}
	if ck.ChunkType != chunk.TypeImagePage {
		t.Errorf("ChunkType = %q, want %q", ck.ChunkType, chunk.TypeImagePage)
	}
	if ck.SemanticRegion != chunk.RegionUnknown {
		t.Errorf("SemanticRegion = %q, want unknown", ck.SemanticRegion)
	}
	if ck.UsedOCR {
		t.Error("UsedOCR = true, want false")
	}
	if ck.Text != "" {
		t.Errorf("Text = %q, want empty", ck.Text)
	}
}

func TestChunkImageWithOCR(t *testing.T) {
	ocr := &fakeOCR{text: "Apply for a voter identity card at the electoral office. Bring your address proof."}
	c := newTestChunker(WithOCR(ocr))
	chunks, err := c.ChunkDocument(context.Background(), Document{
		ID:     "img2",
		Format: FormatImage,
		RawKey: "raw/img2.png",
		Raw:    []byte("png bytes"),
	})
	if err != nil {
		t.Fatalf("ChunkDocument: %v", err)
	}
	if ocr.calls != 1 {
		t.Errorf("ocr.calls = %d, want 1", ocr.calls)
	}
	if len(chunks) == 0 {
		t.Fatal("expected chunks")
	}
	total := 0
	for i, ck := range chunks {
		if ck.ChunkType != chunk.TypeImagePageChunk {
			t.Errorf("chunks[%d].ChunkType = %q", i, ck.ChunkType)
		}
		if !ck.UsedOCR {
			t.Errorf("chunks[%d].UsedOCR = false, want true", i)
		}
		if ck.PageNumber != 1 {
			t.Errorf("chunks[%d].PageNumber = %d, want 1", i, ck.PageNumber)
		}
		if len(ck.LayoutTags) != 2 || ck.LayoutTags[0] != "image" || ck.LayoutTags[1] != "ocr" {
			t.Errorf("chunks[%d].LayoutTags = %v", i, ck.LayoutTags)
		}
		total += ck.TokenCount
	}
	if chunks[0].DocumentTotalTokens != total {
		t.Errorf("DocumentTotalTokens = %d, want %d (sum of window counts)", chunks[0].DocumentTotalTokens, total)
	}
}

func TestChunkImageMultiFrameGIF(t *testing.T) {
	var buf bytes.Buffer
	pal := color.Palette{color.Black, color.White}
	g := &gif.GIF{}
	for i := 0; i < 2; i++ {
		img := image.NewPaletted(image.Rect(0, 0, 4, 4), pal)
		g.Image = append(g.Image, img)
		g.Delay = append(g.Delay, 10)
	}
	if err := gif.EncodeAll(&buf, g); err != nil {
		t.Fatalf("encoding gif: %v", err)
	}

	ocr := &fakeOCR{text: "Notice text."}
	c := newTestChunker(WithOCR(ocr))
	chunks, err := c.ChunkDocument(context.Background(), Document{
		ID:     "gif1",
		Format: FormatImage,
		RawKey: "raw/gif1.gif",
		Raw:    buf.Bytes(),
	})
	if err != nil {
		t.Fatalf("ChunkDocument: %v", err)
	}
	if ocr.calls != 2 {
		t.Errorf("ocr.calls = %d, want 2 (one per frame)", ocr.calls)
	}
	pages := map[int]bool{}
	for _, ck := range chunks {
		pages[ck.PageNumber] = true
	}
	if !pages[1] || !pages[2] {
		t.Errorf("pages = %v, want frames 1 and 2", pages)
	}
}

func TestChunkDocumentUnsupportedFormat(t *testing.T) {
	c := newTestChunker()
	_, err := c.ChunkDocument(context.Background(), Document{ID: "x", Format: "docx"})
	if err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		contentType string
		key         string
		want        string
		ok          bool
	}{
		{"text/html; charset=utf-8", "raw/a", FormatHTML, true},
		{"application/pdf", "raw/b", FormatPDF, true},
		{"image/png", "raw/c", FormatImage, true},
		{"", "raw/page.html", FormatHTML, true},
		{"", "raw/form.PDF", FormatPDF, true},
		{"", "raw/scan.jpeg", FormatImage, true},
		{"application/vnd.ms-excel", "raw/data.xls", "", false},
		{"", "raw/noext", "", false},
	}
	for _, tt := range tests {
		got, ok := DetectFormat(tt.contentType, tt.key)
		if got != tt.want || ok != tt.ok {
			t.Errorf("DetectFormat(%q, %q) = (%q, %v), want (%q, %v)",
				tt.contentType, tt.key, got, ok, tt.want, tt.ok)
		}
	}
}
