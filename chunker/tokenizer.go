package chunker

import "strings"

// Tokenizer maps text to the token stream the windower counts over.
// The embedding service does not expose its tokenizer, so token counts
// here are an approximation; whitespace splitting keeps the counts
// deterministic and language-neutral.
type Tokenizer interface {
	Tokenize(text string) []string
}

// WhitespaceTokenizer splits on Unicode whitespace.
type WhitespaceTokenizer struct{}

func (WhitespaceTokenizer) Tokenize(text string) []string {
	return strings.Fields(text)
}
