package ledger

import (
	"context"
	"sync"

	"github.com/clearway/submitonce"
)

// UpdateFunc inspects the record slot for one request id and returns the
// record to store. found reports whether the slot already held a record.
// Returning an error leaves the slot untouched.
type UpdateFunc func(rec submitonce.Record, found bool) (submitonce.Record, error)

// RecordStore persists ledger records. Implementations must serialize
// Update calls for the same request id; that is what makes the ledger's
// check-then-act safe when duplicate submissions race.
type RecordStore interface {
	// Update atomically runs fn against the slot for id and stores the
	// returned record.
	Update(ctx context.Context, id string, fn UpdateFunc) (submitonce.Record, error)
	// Get returns the record for id, with found false when the slot is empty.
	Get(ctx context.Context, id string) (submitonce.Record, bool, error)
	// PendingCount returns the number of records still pending.
	PendingCount(ctx context.Context) (int, error)
}

// MemoryStore keeps records in a map behind a single mutex, serializing
// every mutation. Records live for the process lifetime; nothing is evicted.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]submitonce.Record
}

var _ RecordStore = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]submitonce.Record)}
}

// Update implements RecordStore.
func (s *MemoryStore) Update(_ context.Context, id string, fn UpdateFunc) (submitonce.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, found := s.records[id]
	updated, err := fn(rec, found)
	if err != nil {
		return submitonce.Record{}, err
	}
	s.records[id] = updated

	return updated, nil
}

// Get implements RecordStore.
func (s *MemoryStore) Get(_ context.Context, id string) (submitonce.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, found := s.records[id]

	return rec, found, nil
}

// PendingCount implements RecordStore.
func (s *MemoryStore) PendingCount(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, rec := range s.records {
		if rec.Status == submitonce.StatusPending {
			count++
		}
	}

	return count, nil
}

// Len returns the total number of records.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.records)
}
