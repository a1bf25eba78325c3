package query

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/nagarikconnect/civicrag/llm"
)

// Generator verdict tokens. The decision field is either empty,
// ACCEPT, or the refusal literal; anything else is an invalid output.
const (
	acceptLiteral        = "ACCEPT"
	notEnoughInfoLiteral = "NOT_ENOUGH_INFORMATION"
)

// citationRe matches the mandatory trailing citation marker.
var citationRe = regexp.MustCompile(`\[(\d+)\]\s*$`)

// disallowedSubstrings must never appear in an answer line; answers
// cite passages, they do not leak raw locations.
var disallowedSubstrings = []string{"http://", "https://", "www.", "file://"}

// validateOutput checks the generator result against the grounding
// contract. It returns the accepted lines, or notEnoughInfo=true for
// the explicit refusal literal, or ok=false when any line violates
// the contract.
func validateOutput(res *llm.GenerateResult, maxPassage int) (lines []AnswerLine, notEnoughInfo, ok bool) {
	if res == nil {
		return nil, false, false
	}
	if res.Decision == notEnoughInfoLiteral || strings.TrimSpace(res.Text) == notEnoughInfoLiteral {
		return nil, true, false
	}
	if res.Decision != "" && res.Decision != acceptLiteral {
		return nil, false, false
	}

	var raw []string
	if len(res.AnswerLines) > 0 {
		for _, l := range res.AnswerLines {
			raw = append(raw, l.Text)
		}
	} else {
		raw = strings.Split(res.Text, "\n")
	}

	for _, line := range raw {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		m := citationRe.FindStringSubmatch(line)
		if m == nil {
			return nil, false, false
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > maxPassage {
			return nil, false, false
		}
		lower := strings.ToLower(line)
		for _, bad := range disallowedSubstrings {
			if strings.Contains(lower, bad) {
				return nil, false, false
			}
		}
		lines = append(lines, AnswerLine{Text: line})
	}
	if len(lines) == 0 {
		return nil, false, false
	}
	return lines, false, true
}
