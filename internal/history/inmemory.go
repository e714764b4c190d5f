package history

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultMaxRecords = 500

// InMemoryStore keeps the last max records in a ring buffer.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []Record
	next    int
	filled  bool
}

func NewInMemoryStore(max int) *InMemoryStore {
	if max <= 0 {
		max = defaultMaxRecords
	}
	return &InMemoryStore{records: make([]Record, max)}
}

func (s *InMemoryStore) Save(_ context.Context, record Record) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[s.next] = record
	s.next++
	if s.next == len(s.records) {
		s.next = 0
		s.filled = true
	}
	return nil
}

func (s *InMemoryStore) Recent(_ context.Context, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	size := s.next
	if s.filled {
		size = len(s.records)
	}
	if limit <= 0 || limit > size {
		limit = size
	}
	out := make([]Record, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (s.next - i + len(s.records)) % len(s.records)
		out = append(out, s.records[idx])
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
