package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

var _ MessageStore = (*MemStore)(nil)

// MemStore is an in-process [MessageStore]. Records are lost on restart.
type MemStore struct {
	mu      sync.Mutex
	records []Record
	now     func() time.Time
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{now: time.Now}
}

// Append implements [MessageStore].
func (s *MemStore) Append(_ context.Context, r Record) (Record, error) {
	if err := r.Validate(); err != nil {
		return Record{}, err
	}
	r.ID = uuid.NewString()
	if r.Timestamp.IsZero() {
		r.Timestamp = s.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	return r, nil
}

// List implements [MessageStore].
func (s *MemStore) List(_ context.Context, opts ...ListOpt) ([]Record, error) {
	p := ApplyListOpts(opts)

	s.mu.Lock()
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		if p.Session != "" && r.Session != p.Session {
			continue
		}
		out = append(out, r)
	}
	s.mu.Unlock()

	// Newest first; equal timestamps keep reverse insertion order.
	slices.Reverse(out)
	slices.SortStableFunc(out, func(a, b Record) int {
		return cmp.Compare(b.Timestamp.UnixNano(), a.Timestamp.UnixNano())
	})
	if p.Limit > 0 && len(out) > p.Limit {
		out = out[:p.Limit]
	}
	return out, nil
}
