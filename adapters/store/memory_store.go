package store

import (
	"context"
	"sync"

	"github.com/hust/bookingclient/core"
	"github.com/hust/bookingclient/ports"
)

// MemoryStore keeps the snapshot in process memory. Nothing survives a restart.
type MemoryStore struct {
	snapshot *core.Snapshot
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory snapshot store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

var _ ports.SnapshotStore = (*MemoryStore)(nil)

// Load returns a copy of the stored snapshot
func (s *MemoryStore) Load(ctx context.Context) (core.Snapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.snapshot == nil {
		return core.Snapshot{}, false, nil
	}
	return cloneSnapshot(*s.snapshot), true, nil
}

// Save replaces the stored snapshot
func (s *MemoryStore) Save(ctx context.Context, snapshot core.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := cloneSnapshot(snapshot)
	s.snapshot = &cp
	return nil
}

// Delete removes the stored snapshot
func (s *MemoryStore) Delete(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot = nil
	return nil
}

func cloneSnapshot(in core.Snapshot) core.Snapshot {
	out := core.Snapshot{Credential: in.Credential}
	if in.Identity != nil {
		id := *in.Identity
		out.Identity = &id
	}
	return out
}
