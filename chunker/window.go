package chunker

import "strings"

// Window is one token-bounded slice of canonical text. Token positions
// are expressed in the document-wide token coordinate space, so
// overlapping windows have overlapping ranges.
type Window struct {
	Index      int
	Text       string
	TokenCount int
	TokenStart int
	TokenEnd   int
}

// Windower yields the overlapping windows of one canonical text.
type Windower struct {
	windows []Window
	next    int
}

// NewWindower segments text into sentences, tokenizes them, and packs
// them into windows of at most maxTokens tokens. Windows shorter than
// minTokens merge into their predecessor when one exists. Consecutive
// windows overlap by overlapSentences sentences.
//
// Empty text yields exactly one empty window so that callers always
// have a record carrying document provenance.
func NewWindower(text string, tok Tokenizer, maxTokens, minTokens, overlapSentences int) *Windower {
	return &Windower{windows: buildWindows(text, tok, maxTokens, minTokens, overlapSentences)}
}

// Next returns the next window, or false when exhausted.
func (w *Windower) Next() (Window, bool) {
	if w.next >= len(w.windows) {
		return Window{}, false
	}
	win := w.windows[w.next]
	w.next++
	return win, true
}

// All returns every remaining window.
func (w *Windower) All() []Window {
	out := w.windows[w.next:]
	w.next = len(w.windows)
	return out
}

type sentenceItem struct {
	tokens   []string
	startIdx int
	endIdx   int
}

func buildWindows(text string, tok Tokenizer, maxTokens, minTokens, overlapSentences int) []Window {
	text = Canonicalize(text)
	if text == "" {
		return []Window{{}}
	}

	sentences := splitSentences(text)
	if len(sentences) == 0 {
		toks := tok.Tokenize(text)
		return []Window{{Text: text, TokenCount: len(toks), TokenStart: 0, TokenEnd: len(toks)}}
	}

	items := make([]sentenceItem, len(sentences))
	cursor := 0
	for idx, s := range sentences {
		toks := tok.Tokenize(s)
		items[idx] = sentenceItem{tokens: toks, startIdx: cursor, endIdx: cursor + len(toks)}
		cursor += len(toks)
	}

	var windows []Window
	i := 0
	for i < len(items) {
		curCount := 0
		var parts []string
		tokenStart := items[i].startIdx
		tokenEnd := tokenStart
		startI := i
		remainderCarried := false

		for i < len(items) {
			it := items[i]
			if curCount+len(it.tokens) > maxTokens {
				break
			}
			parts = append(parts, strings.Join(it.tokens, " "))
			curCount += len(it.tokens)
			tokenEnd = it.endIdx
			i++
		}

		var winText string
		if len(parts) == 0 {
			// Single sentence larger than maxTokens: emit a truncated
			// window and leave the remainder in place for the next pass.
			it := items[i]
			truncated := it.tokens[:maxTokens]
			winText = strings.Join(truncated, " ")
			curCount = maxTokens
			tokenEnd = tokenStart + maxTokens
			if len(it.tokens) > maxTokens {
				items[i].tokens = it.tokens[maxTokens:]
				items[i].startIdx = tokenStart + maxTokens
				remainderCarried = true
			} else {
				i++
			}
		} else {
			winText = strings.TrimSpace(strings.Join(parts, " "))
		}

		win := Window{
			Text:       winText,
			TokenCount: curCount,
			TokenStart: tokenStart,
			TokenEnd:   tokenEnd,
		}

		if len(windows) > 0 && win.TokenCount < minTokens {
			prev := &windows[len(windows)-1]
			prev.Text = prev.Text + " " + win.Text
			prev.TokenCount += win.TokenCount
			prev.TokenEnd = win.TokenEnd
		} else {
			windows = append(windows, win)
		}

		if remainderCarried {
			i = startI
		} else {
			next := i - overlapSentences
			if next < startI+1 {
				next = startI + 1
			}
			i = next
		}
	}

	for idx := range windows {
		windows[idx].Index = idx
	}
	return windows
}
