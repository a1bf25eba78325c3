package chunker

import "github.com/nagarikconnect/civicrag/chunk"

// Region classifies a window by where its first token falls in the
// document. Flat documents (HTML, OCR text) use the window start.
func Region(tokenStart, documentTotalTokens int) string {
	if documentTotalTokens <= 0 {
		return chunk.RegionUnknown
	}
	ratio := float64(tokenStart) / float64(documentTotalTokens)
	switch {
	case ratio < 0.10:
		return chunk.RegionIntro
	case ratio < 0.30:
		return chunk.RegionEarly
	case ratio < 0.70:
		return chunk.RegionMiddle
	case ratio < 0.90:
		return chunk.RegionLate
	default:
		return chunk.RegionFooter
	}
}

// PageRegion classifies a PDF window by the midpoint of its token
// span within the whole document, with boosts at the page boundaries:
// early text on the first page is intro, late text on the last page
// is footer.
func PageRegion(cumulativeBefore, chunkTokens, documentTotalTokens, page, totalPages int) string {
	if documentTotalTokens <= 0 {
		return chunk.RegionUnknown
	}
	midpoint := (float64(cumulativeBefore) + float64(chunkTokens)/2.0) / float64(documentTotalTokens)
	if page == 1 && midpoint < 0.15 {
		return chunk.RegionIntro
	}
	if page == totalPages && midpoint > 0.85 {
		return chunk.RegionFooter
	}
	switch {
	case midpoint < 0.10:
		return chunk.RegionIntro
	case midpoint < 0.30:
		return chunk.RegionEarly
	case midpoint < 0.75:
		return chunk.RegionMiddle
	case midpoint < 0.95:
		return chunk.RegionLate
	default:
		return chunk.RegionFooter
	}
}
