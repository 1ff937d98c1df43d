package policy

import (
	"context"
	"testing"
	"time"

	"github.com/agentcore-dev/agentcore/pkg/telemetry"
)

type captureSink struct {
	entries []AuditEntry
}

func (s *captureSink) Write(ctx context.Context, entry AuditEntry) error {
	s.entries = append(s.entries, entry)
	return nil
}

func TestTrailCapsEntries(t *testing.T) {
	trail := NewTrail(3, nil, telemetry.NewNopLogger())
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		trail.Append(ctx, AuditEntry{TransactionID: "t", ResourceID: string(rune('a' + i)), Timestamp: time.Now()})
	}
	if trail.Len() != 3 {
		t.Errorf("Len() = %d, want 3", trail.Len())
	}
	recent := trail.Recent(0)
	if recent[0].ResourceID != "e" {
		t.Errorf("newest entry = %+v", recent[0])
	}
}

func TestTrailSinkFanOut(t *testing.T) {
	sink := &captureSink{}
	trail := NewTrail(10, sink, telemetry.NewNopLogger())
	trail.Append(context.Background(), AuditEntry{TransactionID: "txn-1"})
	if len(sink.entries) != 1 || sink.entries[0].TransactionID != "txn-1" {
		t.Errorf("sink entries = %+v", sink.entries)
	}
}

func TestTrailPrune(t *testing.T) {
	trail := NewTrail(100, nil, telemetry.NewNopLogger())
	ctx := context.Background()
	old := time.Now().UTC().Add(-2 * time.Hour)
	trail.Append(ctx, AuditEntry{Timestamp: old})
	trail.Append(ctx, AuditEntry{Timestamp: time.Now().UTC()})

	if n := trail.Prune(time.Hour); n != 1 {
		t.Errorf("Prune() = %d, want 1", n)
	}
	if trail.Len() != 1 {
		t.Errorf("Len() = %d, want 1", trail.Len())
	}
}
