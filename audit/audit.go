// Package audit writes one append-only JSON record per query request
// to the object store, keyed by date and request id.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nagarikconnect/civicrag/objstore"
)

// Record is the audit trail entry for one request.
type Record struct {
	RequestID         string   `json:"request_id"`
	SessionID         string   `json:"session_id,omitempty"`
	Language          string   `json:"language,omitempty"`
	Channel           string   `json:"channel,omitempty"`
	Query             string   `json:"query,omitempty"`
	UsedChunkIDs      []string `json:"used_chunk_ids"`
	TopSimilarity     float64  `json:"top_similarity"`
	Resolution        string   `json:"resolution"`
	GeneratorDecision string   `json:"generator_decision,omitempty"`
	TimingMS          int64    `json:"timing_ms"`
	GuidanceKey       string   `json:"guidance_key,omitempty"`
	Timestamp         string   `json:"timestamp"`
}

// Sink writes audit records. A Sink with a nil store is valid and
// skips every write, so callers never need a nil check.
type Sink struct {
	store  objstore.Store
	prefix string
	log    zerolog.Logger
	now    func() time.Time
}

// NewSink returns a Sink writing under prefix. store may be nil when
// auditing is not configured.
func NewSink(store objstore.Store, prefix string, log zerolog.Logger) *Sink {
	if prefix == "" {
		prefix = "audits"
	}
	return &Sink{store: store, prefix: prefix, log: log, now: time.Now}
}

// Write persists one record. Failures are logged and returned, but
// callers treat them as best-effort: an audit failure never reaches
// the client.
func (s *Sink) Write(ctx context.Context, rec Record) error {
	if s.store == nil {
		s.log.Debug().Str("request_id", rec.RequestID).Msg("audit store not configured, skipping")
		return nil
	}

	now := s.now().UTC()
	if rec.Timestamp == "" {
		rec.Timestamp = now.Format(time.RFC3339Nano)
	}
	key := fmt.Sprintf("%s/%s/%s.json", s.prefix, now.Format("2006-01-02"), rec.RequestID)

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling audit record: %w", err)
	}
	if err := s.store.Put(ctx, key, data); err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("audit write failed")
		return err
	}
	return nil
}
