package query

import "regexp"

// intentRule maps a blocked intent category to its refusal guidance.
type intentRule struct {
	category string
	guidance string
	pattern  *regexp.Regexp
}

// The blocklist is a small closed set, checked in order. It is never
// extended at runtime.
var intentRules = []intentRule{
	{
		category: "medical",
		guidance: GuidanceMedical,
		pattern:  regexp.MustCompile(`(?i)\b(medic(al|ine)|prescribe|diagnos|symptom|pill|dosage)\b`),
	},
	{
		category: "legal",
		guidance: GuidanceLegal,
		pattern:  regexp.MustCompile(`(?i)\b(attorney|sue|lawsuit|contract|custody|divorce|legal advice|crime)\b`),
	},
}

// blockedIntent returns the guidance key of the first matching
// category, or "" when the query passes.
func blockedIntent(q string) string {
	for _, rule := range intentRules {
		if rule.pattern.MatchString(q) {
			return rule.guidance
		}
	}
	return ""
}
