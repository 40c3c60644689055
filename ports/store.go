package ports

import (
	"context"

	"github.com/hust/bookingclient/core"
)

// SnapshotStore persists the session snapshot across process restarts
type SnapshotStore interface {
	// Load returns the stored snapshot, or false when none exists
	Load(ctx context.Context) (core.Snapshot, bool, error)
	Save(ctx context.Context, snapshot core.Snapshot) error
	Delete(ctx context.Context) error
}
