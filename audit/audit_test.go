package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/nagarikconnect/civicrag/objstore"
)

func TestSinkWrite(t *testing.T) {
	store, err := objstore.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	sink := NewSink(store, "audits", zerolog.Nop())
	sink.now = func() time.Time {
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	}

	rec := Record{
		RequestID:     "req-42",
		Language:      "en",
		Channel:       "web",
		Query:         "ration card status",
		UsedChunkIDs:  []string{"doc1_c0001"},
		TopSimilarity: 0.8,
		Resolution:    "answer",
		TimingMS:      120,
	}
	if err := sink.Write(context.Background(), rec); err != nil {
		t.Fatalf("Write: %v", err)
	}

	data, err := store.Get(context.Background(), "audits/2025-06-01/req-42.json")
	if err != nil {
		t.Fatalf("audit object missing: %v", err)
	}
	var got Record
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("audit record not JSON: %v", err)
	}
	if got.RequestID != "req-42" || got.Resolution != "answer" {
		t.Errorf("record = %+v", got)
	}
	if got.Timestamp == "" {
		t.Error("timestamp not stamped")
	}
	if len(got.UsedChunkIDs) != 1 {
		t.Errorf("UsedChunkIDs = %v", got.UsedChunkIDs)
	}
}

func TestSinkNilStore(t *testing.T) {
	sink := NewSink(nil, "", zerolog.Nop())
	if err := sink.Write(context.Background(), Record{RequestID: "x"}); err != nil {
		t.Errorf("nil-store Write = %v, want nil", err)
	}
}

func TestSinkDefaultPrefix(t *testing.T) {
	store, err := objstore.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	sink := NewSink(store, "", zerolog.Nop())
	if err := sink.Write(context.Background(), Record{RequestID: "y"}); err != nil {
		t.Fatal(err)
	}
	keys, err := store.List(context.Background(), "audits/")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 {
		t.Errorf("keys under default prefix = %v", keys)
	}
}
