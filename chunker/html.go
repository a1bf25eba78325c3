package chunker

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
	xhtml "golang.org/x/net/html"

	"github.com/nagarikconnect/civicrag/chunk"
)

// chunkHTML extracts article text from an HTML document and windows it
// into token_window chunks. Extraction tries the boilerplate-aware
// reader first, then a plain DOM paragraph walk, then the raw bytes.
func (c *Chunker) chunkHTML(ctx context.Context, doc Document) ([]chunk.Chunk, error) {
	raw := string(doc.Raw)

	var extracted, title, language string

	pageURL := resolvePageURL(doc.Manifest)
	article, err := readability.FromReader(bytes.NewReader(doc.Raw), pageURL)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		extracted = article.TextContent
		title = article.Title
		language = article.Language
	} else if err != nil {
		c.log.Debug().Err(err).Str("key", doc.RawKey).Msg("readability extraction failed")
	}

	if extracted == "" {
		text, domTitle, canonical := extractDOM(doc.Raw)
		extracted = text
		if title == "" {
			title = domTitle
		}
		if canonical != "" && doc.Manifest.String("source_url") == "" {
			doc.Manifest["source_url"] = canonical
		}
	}
	if strings.TrimSpace(extracted) == "" {
		extracted = raw
	}
	if strings.TrimSpace(extracted) == "" {
		c.log.Warn().Str("key", doc.RawKey).Msg("no extractable text")
		return nil, nil
	}

	canonical := Canonicalize(extracted)
	totalTokens := len(c.tok.Tokenize(canonical))
	windows := NewWindower(canonical, c.tok, c.cfg.MaxTokens, c.cfg.MinTokens, c.cfg.OverlapSentences).All()

	headings := []string{}
	if title != "" {
		headings = append(headings, title)
	}

	sourceURL := doc.Manifest.String("original_url")
	if sourceURL == "" {
		sourceURL = doc.Manifest.String("source_url")
	}
	if sourceURL == "" {
		if s3 := c.s3URL(doc.RawKey); s3 != "" {
			sourceURL = s3
		} else {
			sourceURL = doc.RawKey
		}
	}

	chunkType := chunk.TypeTokenWindow
	if len(windows) == 1 {
		chunkType = chunk.TypePage
	}
	ingest := chunk.FormatTime(c.now())
	prov := c.provenance(doc)

	chunks := make([]chunk.Chunk, 0, len(windows))
	for _, w := range windows {
		index := w.Index + 1
		chunks = append(chunks, chunk.Chunk{
			DocumentID:          doc.ID,
			ChunkID:             chunk.HTMLChunkID(doc.ID, index),
			ChunkIndex:          index,
			ChunkType:           chunkType,
			Text:                w.Text,
			TokenCount:          w.TokenCount,
			TokenRange:          [2]int{w.TokenStart, w.TokenEnd},
			DocumentTotalTokens: totalTokens,
			SemanticRegion:      Region(w.TokenStart, totalTokens),
			Headings:            headings,
			HeadingPath:         headings,
			LayoutTags:          []string{"html"},
			Figures:             []chunk.Figure{},
			SourceURL:           sourceURL,
			SourceDomain:        sourceDomain(sourceURL),
			S3URL:               c.s3URL(doc.RawKey),
			LocalPath:           c.localPath(doc.RawKey),
			Language:            language,
			TopicTags:           topicTags(doc.Manifest),
			TrustLevel:          trustLevel(doc.Manifest),
			LastUpdated:         doc.Manifest.String("last_updated"),
			IngestTime:          ingest,
			ParserVersion:       c.cfg.ParserVersion,
			UsedOCR:             false,
			OriginalManifest:    doc.Manifest,
			Provenance:          prov,
		})
	}
	return chunks, nil
}

// resolvePageURL gives the readability extractor a base URL for
// resolving relative references.
func resolvePageURL(m chunk.Manifest) *url.URL {
	for _, key := range []string{"original_url", "source_url"} {
		if raw := m.String(key); raw != "" {
			if u, err := url.Parse(raw); err == nil && u.Host != "" {
				return u
			}
		}
	}
	u, _ := url.Parse("http://localhost/")
	return u
}

// extractDOM is the fallback extractor: every <p> and <li> in document
// order, joined as paragraphs. It also reports the <title> text and
// the canonical link when present.
func extractDOM(raw []byte) (text, title, canonical string) {
	root, err := xhtml.Parse(bytes.NewReader(raw))
	if err != nil {
		return "", "", ""
	}

	var paras []string
	var walk func(n *xhtml.Node)
	walk = func(n *xhtml.Node) {
		if n.Type == xhtml.ElementNode {
			switch n.Data {
			case "p", "li":
				if t := strings.TrimSpace(nodeText(n)); t != "" {
					paras = append(paras, t)
				}
				return
			case "title":
				if title == "" {
					title = strings.TrimSpace(nodeText(n))
				}
			case "link":
				var rel, href string
				for _, a := range n.Attr {
					switch a.Key {
					case "rel":
						rel = a.Val
					case "href":
						href = a.Val
					}
				}
				if strings.EqualFold(rel, "canonical") && canonical == "" {
					canonical = href
				}
			case "script", "style", "noscript":
				return
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(root)
	return strings.Join(paras, "\n\n"), title, canonical
}

func nodeText(n *xhtml.Node) string {
	var b strings.Builder
	var walk func(n *xhtml.Node)
	walk = func(n *xhtml.Node) {
		if n.Type == xhtml.TextNode {
			b.WriteString(n.Data)
			b.WriteString(" ")
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
