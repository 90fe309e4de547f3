package audit

import (
	"context"
	"sync"

	"github.com/inboxforge/triage-engine/internal/core"
)

// MemorySink keeps the most recent triage records in a fixed-size ring
// for tests and single-process deployments.
type MemorySink struct {
	mu       sync.RWMutex
	records  []core.TriageRecord
	next     int
	capacity int
}

// NewMemorySink creates a sink retaining up to capacity records.
func NewMemorySink(capacity int) *MemorySink {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemorySink{
		records:  make([]core.TriageRecord, 0, capacity),
		capacity: capacity,
	}
}

// Append implements core.AuditSink. Once full, the oldest record is
// overwritten.
func (s *MemorySink) Append(ctx context.Context, record core.TriageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.records) < s.capacity {
		s.records = append(s.records, record)
		return nil
	}
	s.records[s.next] = record
	s.next = (s.next + 1) % s.capacity
	return nil
}

// Recent returns up to limit records, newest first. A non-positive
// limit returns everything retained.
func (s *MemorySink) Recent(limit int) []core.TriageRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.records)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]core.TriageRecord, 0, limit)
	for i := 0; i < limit; i++ {
		out = append(out, s.records[(s.next+n-1-i)%n])
	}
	return out
}
