package store

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// FilterKeyRe is the whitelist pattern for meta filter keys. Keys are
// interpolated into the SQL text, so anything outside this set is
// rejected outright.
var FilterKeyRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// VectorLiteral renders a vector as the textual pgvector literal,
// with 17 significant digits so the round trip through text is exact.
func VectorLiteral(vec []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'g', 17, 64))
	}
	b.WriteByte(']')
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
