package history

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory append-only repository. It keeps at most capacity
// entries, dropping the oldest first; capacity <= 0 keeps everything.
type MemoryRepo struct {
	mu       sync.Mutex
	capacity int
	entries  []Entry
}

func NewMemoryRepo(capacity int) *MemoryRepo { return &MemoryRepo{capacity: capacity} }

func (r *MemoryRepo) Append(ctx context.Context, e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	if r.capacity > 0 && len(r.entries) > r.capacity {
		r.entries = append([]Entry(nil), r.entries[len(r.entries)-r.capacity:]...)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (r *MemoryRepo) Recent(ctx context.Context, limit int) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Entry, 0, n)
	for i := len(r.entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, r.entries[i])
	}
	return out, nil
}
