package chunker

import (
	"bytes"
	"context"
	"fmt"
	"image/gif"
	"image/png"
	"strings"

	"github.com/nagarikconnect/civicrag/chunk"
)

// chunkImage OCRs each frame of an image document and windows the
// recognized text. A frame with no recognized text still emits one
// empty chunk so the page keeps its provenance in the corpus.
func (c *Chunker) chunkImage(ctx context.Context, doc Document) ([]chunk.Chunk, error) {
	frames := imageFrames(doc.Raw)

	ingest := chunk.FormatTime(c.now())
	prov := c.provenance(doc)

	base := func(frameNo int) chunk.Chunk {
		return chunk.Chunk{
			DocumentID:       doc.ID,
			Headings:         []string{},
			HeadingPath:      []string{},
			Figures:          []chunk.Figure{},
			S3URL:            c.s3URL(doc.RawKey),
			LocalPath:        c.localPath(doc.RawKey),
			PageNumber:       frameNo,
			TopicTags:        topicTags(doc.Manifest),
			TrustLevel:       trustLevel(doc.Manifest),
			LastUpdated:      doc.Manifest.String("last_updated"),
			IngestTime:       ingest,
			ParserVersion:    c.cfg.ParserVersion,
			OriginalManifest: doc.Manifest,
			Provenance:       prov,
		}
	}

	var chunks []chunk.Chunk
	for frameIdx, data := range frames {
		frameNo := frameIdx + 1

		var text string
		if c.ocr != nil {
			recognized, err := c.ocr.Recognize(ctx, fmt.Sprintf("%s_p%d", doc.ID, frameNo), doc.RawKey, data)
			if err != nil {
				c.log.Warn().Err(err).Str("key", doc.RawKey).Int("frame", frameNo).Msg("ocr failed")
			} else {
				text = strings.TrimSpace(recognized)
			}
		}

		if text == "" {
			ck := base(frameNo)
			ck.ChunkID = fmt.Sprintf("%s_p%d_1", doc.ID, frameNo)
			ck.ChunkIndex = 1
			ck.ChunkType = chunk.TypeImagePage
			ck.SemanticRegion = chunk.RegionUnknown
			ck.LayoutTags = []string{"image"}
			chunks = append(chunks, ck)
			continue
		}

		windows := NewWindower(text, c.tok, c.cfg.MaxTokens, c.cfg.MinTokens, c.cfg.OverlapSentences).All()
		frameTotal := 0
		for _, w := range windows {
			frameTotal += w.TokenCount
		}

		for _, w := range windows {
			index := w.Index + 1
			ck := base(frameNo)
			ck.ChunkID = chunk.PageChunkID(doc.ID, frameNo, index)
			ck.ChunkIndex = index
			ck.ChunkType = chunk.TypeImagePageChunk
			ck.Text = w.Text
			ck.TokenCount = w.TokenCount
			ck.TokenRange = [2]int{w.TokenStart, w.TokenEnd}
			ck.DocumentTotalTokens = frameTotal
			ck.SemanticRegion = Region(w.TokenStart, frameTotal)
			ck.LayoutTags = []string{"image", "ocr"}
			ck.UsedOCR = true
			chunks = append(chunks, ck)
		}
	}
	return chunks, nil
}

// imageFrames splits a multi-frame GIF into per-frame PNG bytes; any
// other image is a single frame passed through unchanged.
func imageFrames(raw []byte) [][]byte {
	g, err := gif.DecodeAll(bytes.NewReader(raw))
	if err != nil || len(g.Image) <= 1 {
		return [][]byte{raw}
	}
	frames := make([][]byte, 0, len(g.Image))
	for _, frame := range g.Image {
		var buf bytes.Buffer
		if err := png.Encode(&buf, frame); err != nil {
			frames = append(frames, raw)
			continue
		}
		frames = append(frames, buf.Bytes())
	}
	return frames
}
