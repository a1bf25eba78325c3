package index

import (
	"fmt"
	"strings"
	"time"

	"github.com/nagarikconnect/civicrag/store"
)

var requiredKeys = []string{
	"document_id", "chunk_id", "text", "chunk_index", "token_count",
	"token_range", "document_total_tokens", "parser_version",
}

// metaKeys are the enriched chunk fields carried into the row's meta
// bag when present.
var metaKeys = []string{
	"headings", "heading_path", "figures", "layout_tags", "file_type",
	"used_ocr", "provenance", "trust_level", "region", "topic_tags",
	"source_domain",
}

// normalizeLine validates one chunk JSONL object and shapes it into a
// store row (without embedding). A schema violation returns an error;
// the caller counts it and moves on.
func normalizeLine(obj map[string]any) (store.Row, error) {
	var missing []string
	for _, k := range requiredKeys {
		if _, ok := obj[k]; !ok {
			missing = append(missing, k)
		}
	}
	ingestVal := stringField(obj, "ingest_time")
	if ingestVal == "" {
		ingestVal = stringField(obj, "timestamp")
	}
	if ingestVal == "" {
		missing = append(missing, "ingest_time|timestamp")
	}
	if len(missing) > 0 {
		return store.Row{}, fmt.Errorf("missing fields: %s", strings.Join(missing, ","))
	}

	text := stringField(obj, "text")
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))

	row := store.Row{
		ChunkID:        stringField(obj, "chunk_id"),
		DocumentID:     stringField(obj, "document_id"),
		Content:        text,
		TokenCount:     intField(obj, "token_count", len(strings.Fields(text))),
		SemanticRegion: stringField(obj, "semantic_region"),
		SourceURL:      stringField(obj, "source_url"),
		Language:       stringField(obj, "language"),
		ParserVersion:  stringField(obj, "parser_version"),
		Meta:           map[string]any{},
	}

	if tr, ok := obj["token_range"].([]any); ok && len(tr) == 2 {
		row.TokenRange = [2]int{toInt(tr[0]), toInt(tr[1])}
	} else {
		row.TokenRange = [2]int{0, row.TokenCount}
	}
	row.DocumentTotalTokens = intField(obj, "document_total_tokens", row.TokenCount)

	if pn, ok := obj["page_number"]; ok && pn != nil {
		n := toInt(pn)
		row.PageNumber = &n
	}
	if t, err := time.Parse(time.RFC3339, ingestVal); err == nil {
		utc := t.UTC()
		row.IngestTime = &utc
	}

	for _, k := range metaKeys {
		if v, ok := obj[k]; ok {
			row.Meta[k] = v
		}
	}
	return row, nil
}

func stringField(obj map[string]any, key string) string {
	v, _ := obj[key].(string)
	return v
}

func intField(obj map[string]any, key string, fallback int) int {
	v, ok := obj[key]
	if !ok || v == nil {
		return fallback
	}
	return toInt(v)
}

func toInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	default:
		return 0
	}
}
