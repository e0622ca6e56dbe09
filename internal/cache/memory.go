package cache

import (
	"context"
	"sync"
)

// MemorySetStore is an in-memory SetStore. Sets grow for the process
// lifetime and are never pruned.
type MemorySetStore struct {
	mu     sync.RWMutex
	sets   map[string]map[string]struct{}
	closed bool
}

// NewMemorySetStore creates an empty in-memory set store.
func NewMemorySetStore() *MemorySetStore {
	return &MemorySetStore{
		sets: make(map[string]map[string]struct{}),
	}
}

// IsMember reports whether member is in the named set.
func (s *MemorySetStore) IsMember(ctx context.Context, set, member string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false, ErrStoreClosed
	}
	_, ok := s.sets[set][member]
	return ok, nil
}

// Add inserts member into the named set.
func (s *MemorySetStore) Add(ctx context.Context, set, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	members, ok := s.sets[set]
	if !ok {
		members = make(map[string]struct{})
		s.sets[set] = members
	}
	members[member] = struct{}{}
	return nil
}

// Count returns the size of the named set.
func (s *MemorySetStore) Count(ctx context.Context, set string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrStoreClosed
	}
	return int64(len(s.sets[set])), nil
}

// Members returns a copy of the named set.
func (s *MemorySetStore) Members(ctx context.Context, set string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	out := make([]string, 0, len(s.sets[set]))
	for m := range s.sets[set] {
		out = append(out, m)
	}
	return out, nil
}

// Close marks the store closed.
func (s *MemorySetStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

var _ SetStore = (*MemorySetStore)(nil)
