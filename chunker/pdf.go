package chunker

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/nagarikconnect/civicrag/chunk"
)

// Layout thresholds, in PDF points.
const (
	wordGap      = 1.0  // horizontal gap treated as a word boundary
	cellGap      = 40.0 // horizontal gap treated as a table cell boundary
	paragraphGap = 50.0 // vertical gap treated as a paragraph break
	columnFactor = 1.5  // column split at gaps > factor * median center gap
)

// chunkPDF reads the text layer page by page, reorders it into reading
// order, and windows each page independently. Pages without a text
// layer stay empty; if the whole document has no text layer and an OCR
// client is wired, the raw bytes go through OCR once and the result is
// treated as page 1.
func (c *Chunker) chunkPDF(ctx context.Context, doc Document) ([]chunk.Chunk, error) {
	reader, err := pdf.NewReader(bytes.NewReader(doc.Raw), int64(len(doc.Raw)))
	if err != nil {
		return nil, fmt.Errorf("opening pdf: %w", err)
	}

	totalPages := reader.NumPage()
	type pageInfo struct {
		text    string
		figures []chunk.Figure
		tokens  int
		usedOCR bool
	}
	infos := make([]pageInfo, totalPages)

	anyText := false
	for pageNo := 1; pageNo <= totalPages; pageNo++ {
		text, figures := c.extractPage(reader, pageNo)
		if text != "" {
			anyText = true
		}
		infos[pageNo-1] = pageInfo{
			text:    text,
			figures: figures,
			tokens:  len(c.tok.Tokenize(text)),
		}
	}

	if !anyText && c.ocr != nil {
		text, err := c.ocr.Recognize(ctx, doc.ID, doc.RawKey, doc.Raw)
		if err != nil {
			c.log.Warn().Err(err).Str("key", doc.RawKey).Msg("pdf ocr failed")
		} else if text = strings.TrimSpace(text); text != "" {
			// A scanned PDF can have an empty page tree; the OCR result
			// still needs a page to live on.
			if len(infos) == 0 {
				infos = make([]pageInfo, 1)
				totalPages = 1
			}
			infos[0] = pageInfo{
				text:    text,
				figures: infos[0].figures,
				tokens:  len(c.tok.Tokenize(text)),
				usedOCR: true,
			}
		}
	}

	totalTokens := 0
	for _, info := range infos {
		totalTokens += info.tokens
	}

	sourceURL := doc.Manifest.String("original_url")
	if sourceURL == "" {
		if s3 := c.s3URL(doc.RawKey); s3 != "" {
			sourceURL = s3
		} else {
			sourceURL = doc.RawKey
		}
	}
	ts := chunk.FormatTime(c.now())
	prov := c.provenance(doc)

	base := func(pageNo int) chunk.Chunk {
		return chunk.Chunk{
			DocumentID:          doc.ID,
			ChunkType:           chunk.TypePDFPageChunk,
			DocumentTotalTokens: totalTokens,
			Headings:            []string{},
			HeadingPath:         []string{},
			LayoutTags:          []string{"pdf"},
			SourceURL:           sourceURL,
			SourceDomain:        sourceDomain(sourceURL),
			S3URL:               c.s3URL(doc.RawKey),
			LocalPath:           c.localPath(doc.RawKey),
			PageNumber:          pageNo,
			TopicTags:           topicTags(doc.Manifest),
			TrustLevel:          trustLevel(doc.Manifest),
			LastUpdated:         doc.Manifest.String("last_updated"),
			Timestamp:           ts,
			ParserVersion:       c.cfg.ParserVersion,
			OriginalManifest:    doc.Manifest,
			Provenance:          prov,
		}
	}

	var chunks []chunk.Chunk
	cumulative := 0
	for pageNo := 1; pageNo <= totalPages; pageNo++ {
		info := infos[pageNo-1]
		figures := info.figures
		if figures == nil {
			figures = []chunk.Figure{}
		}

		if info.text == "" {
			ck := base(pageNo)
			ck.ChunkID = chunk.PageChunkID(doc.ID, pageNo, 1)
			ck.ChunkIndex = 1
			ck.Figures = figures
			ck.SemanticRegion = PageRegion(cumulative, 0, totalTokens, pageNo, totalPages)
			ck.UsedOCR = info.usedOCR
			chunks = append(chunks, ck)
			continue
		}

		windows := NewWindower(info.text, c.tok, c.cfg.MaxTokens, c.cfg.MinTokens, c.cfg.OverlapSentences).All()
		for _, w := range windows {
			index := w.Index + 1
			ck := base(pageNo)
			ck.ChunkID = chunk.PageChunkID(doc.ID, pageNo, index)
			ck.ChunkIndex = index
			ck.Text = w.Text
			ck.TokenCount = w.TokenCount
			ck.TokenRange = [2]int{w.TokenStart, w.TokenEnd}
			ck.SemanticRegion = PageRegion(cumulative, w.TokenCount, totalTokens, pageNo, totalPages)
			ck.Figures = figures
			ck.UsedOCR = info.usedOCR
			chunks = append(chunks, ck)
			cumulative += w.TokenCount
		}
	}
	return chunks, nil
}

// extractPage returns the reading-order text of one page plus any
// table rows lifted out as figures. Malformed pages are logged and
// come back empty rather than failing the document.
func (c *Chunker) extractPage(reader *pdf.Reader, pageNo int) (text string, figures []chunk.Figure) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Warn().Int("page", pageNo).Interface("panic", r).Msg("page extraction failed")
			text, figures = "", nil
		}
	}()

	page := reader.Page(pageNo)
	if page.V.IsNull() {
		return "", nil
	}
	content := page.Content()
	if len(content.Text) == 0 {
		return "", nil
	}

	lines := assembleLines(content.Text)
	if len(lines) == 0 {
		return "", nil
	}

	var tableRows []string
	var bodyLines []textLine
	for _, ln := range lines {
		if strings.Contains(ln.text, "\t") {
			tableRows = append(tableRows, ln.text)
			continue
		}
		bodyLines = append(bodyLines, ln)
	}
	if len(tableRows) > 0 {
		figures = append(figures, chunk.Figure{
			Kind: "table",
			Page: pageNo,
			Text: strings.Join(tableRows, "\n"),
		})
	}

	text = reflow(orderColumns(bodyLines))
	return text, figures
}

type textLine struct {
	y    float64
	minX float64
	maxX float64
	text string
}

func (l textLine) center() float64 { return (l.minX + l.maxX) / 2 }

// assembleLines groups character fragments into lines by quantized
// baseline, then joins each line left to right. Horizontal gaps wider
// than cellGap become tabs so table rows stay detectable.
func assembleLines(frags []pdf.Text) []textLine {
	byLine := map[int][]pdf.Text{}
	for _, f := range frags {
		if strings.TrimSpace(f.S) == "" && f.S != " " {
			continue
		}
		key := int(math.Round(f.Y / 2))
		byLine[key] = append(byLine[key], f)
	}

	lines := make([]textLine, 0, len(byLine))
	for _, group := range byLine {
		sort.Slice(group, func(i, j int) bool { return group[i].X < group[j].X })

		var b strings.Builder
		minX, maxX := group[0].X, group[0].X
		prevEnd := math.Inf(-1)
		for _, f := range group {
			if !math.IsInf(prevEnd, -1) {
				gap := f.X - prevEnd
				if gap > cellGap {
					b.WriteByte('\t')
				} else if gap > wordGap {
					b.WriteByte(' ')
				}
			}
			b.WriteString(f.S)
			prevEnd = f.X + f.W
			if f.X < minX {
				minX = f.X
			}
			if end := f.X + f.W; end > maxX {
				maxX = end
			}
		}
		t := strings.TrimSpace(b.String())
		if t == "" {
			continue
		}
		lines = append(lines, textLine{y: group[0].Y, minX: minX, maxX: maxX, text: t})
	}
	return lines
}

// orderColumns clusters lines into columns by x-center gaps, orders
// columns left to right, and reads each column top to bottom. Vertical
// gaps wider than paragraphGap become paragraph breaks.
func orderColumns(lines []textLine) string {
	if len(lines) == 0 {
		return ""
	}

	sorted := make([]textLine, len(lines))
	copy(sorted, lines)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].center() < sorted[j].center() })

	// Median gap between consecutive distinct centers.
	var gaps []float64
	for i := 1; i < len(sorted); i++ {
		if g := sorted[i].center() - sorted[i-1].center(); g > 0 {
			gaps = append(gaps, g)
		}
	}
	threshold := math.Inf(1)
	if len(gaps) > 0 {
		sort.Float64s(gaps)
		median := gaps[len(gaps)/2]
		if median > 0 {
			threshold = median * columnFactor
		}
	}

	var columns [][]textLine
	current := []textLine{sorted[0]}
	for i := 1; i < len(sorted); i++ {
		if sorted[i].center()-sorted[i-1].center() > threshold {
			columns = append(columns, current)
			current = nil
		}
		current = append(current, sorted[i])
	}
	columns = append(columns, current)

	var parts []string
	for _, col := range columns {
		// PDF y grows upward: reading order is decreasing y.
		sort.Slice(col, func(i, j int) bool { return col[i].y > col[j].y })
		var b strings.Builder
		for i, ln := range col {
			if i > 0 {
				if col[i-1].y-ln.y > paragraphGap {
					b.WriteString("\n\n")
				} else {
					b.WriteString("\n")
				}
			}
			b.WriteString(ln.text)
		}
		parts = append(parts, b.String())
	}
	return strings.Join(parts, "\n\n")
}

// reflow strips control characters, joins single-newline-separated
// lines with spaces, keeps paragraph breaks, and collapses space runs.
func reflow(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == '\n' || r == '\t' || r >= 0x20 {
			b.WriteRune(r)
		}
	}
	s = b.String()

	paragraphs := strings.Split(s, "\n\n")
	out := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		p = strings.ReplaceAll(p, "\n", " ")
		p = strings.Join(strings.Fields(p), " ")
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n\n")
}
