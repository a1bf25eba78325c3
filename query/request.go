package query

import "strings"

// Guidance keys for refusals. Stable identifiers: channel adapters
// localize them for users.
const (
	GuidanceInvalidRequest   = "refusal_invalid_request"
	GuidanceASRLowConfidence = "refusal_asr_low_confidence"
	GuidanceMedical          = "refusal_medical"
	GuidanceLegal            = "refusal_legal"
)

// Supported request languages and channels.
var (
	supportedLanguages = map[string]bool{"en": true, "hi": true, "ta": true}
	supportedChannels  = map[string]bool{"web": true, "sms": true, "voice": true}
)

// Request is the channel-agnostic query request.
type Request struct {
	RequestID     string            `json:"request_id,omitempty"`
	SessionID     string            `json:"session_id,omitempty"`
	Language      string            `json:"language"`
	Channel       string            `json:"channel"`
	Query         string            `json:"query"`
	TopK          int               `json:"top_k,omitempty"`
	RawK          int               `json:"raw_k,omitempty"`
	Filters       map[string]string `json:"filters,omitempty"`
	ASRConfidence *float64          `json:"asr_confidence,omitempty"`
	Region        string            `json:"region,omitempty"`
}

// validateShape checks the request schema. It returns false when any
// field violates the contract; the caller answers with an
// invalid-request refusal.
func (r Request) validateShape() bool {
	if !supportedLanguages[r.Language] {
		return false
	}
	if !supportedChannels[r.Channel] {
		return false
	}
	if strings.TrimSpace(r.Query) == "" {
		return false
	}
	if r.Channel == "voice" && r.ASRConfidence == nil {
		return false
	}
	return true
}

// AnswerLine is one validated line of the answer, trailing citation
// marker included.
type AnswerLine struct {
	Text string `json:"text"`
}

// Citation hydrates one passage for the client.
type Citation struct {
	Citation  int            `json:"citation"`
	ChunkID   string         `json:"chunk_id"`
	SourceURL string         `json:"source_url"`
	Meta      map[string]any `json:"meta"`
}

// Response is the canonical reply for every request.
type Response struct {
	RequestID   string       `json:"request_id"`
	Resolution  Resolution   `json:"resolution"`
	AnswerLines []AnswerLine `json:"answer_lines,omitempty"`
	Citations   []Citation   `json:"citations,omitempty"`
	Confidence  float64      `json:"confidence,omitempty"`
	GuidanceKey string       `json:"guidance_key,omitempty"`
}
