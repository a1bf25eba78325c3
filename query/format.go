package query

import "strings"

// smsMaxLen caps SMS bodies at the concatenated-message limit.
const smsMaxLen = 1600

// stripCitations removes the trailing [n] markers for channels that
// cannot render citations.
func stripCitations(text string) string {
	return strings.TrimSpace(citationRe.ReplaceAllString(text, ""))
}

// FormatForSMS renders an answer as a single plain-text message: the
// answer lines without citation markers, truncated to the SMS limit.
func FormatForSMS(resp Response) string {
	if resp.Resolution != ResolutionAnswer {
		return ""
	}
	var parts []string
	for _, line := range resp.AnswerLines {
		if t := stripCitations(line.Text); t != "" {
			parts = append(parts, t)
		}
	}
	out := strings.Join(parts, " ")
	if len(out) > smsMaxLen {
		out = out[:smsMaxLen]
	}
	return out
}

// FormatForVoice renders the first two sentences of an answer for
// speech synthesis, citation markers stripped.
func FormatForVoice(resp Response) string {
	if resp.Resolution != ResolutionAnswer {
		return ""
	}
	var b strings.Builder
	for _, line := range resp.AnswerLines {
		if t := stripCitations(line.Text); t != "" {
			if b.Len() > 0 {
				b.WriteString(" ")
			}
			b.WriteString(t)
		}
	}
	sentences := splitSentencesForSpeech(b.String())
	if len(sentences) > 2 {
		sentences = sentences[:2]
	}
	return strings.Join(sentences, " ")
}

func splitSentencesForSpeech(text string) []string {
	var sentences []string
	var cur strings.Builder
	for _, r := range text {
		cur.WriteRune(r)
		if r == '.' || r == '?' || r == '!' {
			if s := strings.TrimSpace(cur.String()); s != "" {
				sentences = append(sentences, s)
			}
			cur.Reset()
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
