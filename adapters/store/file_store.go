package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hust/bookingclient/core"
	"github.com/hust/bookingclient/ports"
)

// FileStore keeps the snapshot in a JSON file readable only by the owner
type FileStore struct {
	path string
}

// NewFileStore creates a snapshot store backed by path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

var _ ports.SnapshotStore = (*FileStore)(nil)

// Load reads the snapshot file; a missing file means no snapshot
func (s *FileStore) Load(ctx context.Context) (core.Snapshot, bool, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return core.Snapshot{}, false, nil
		}
		return core.Snapshot{}, false, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snapshot core.Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return core.Snapshot{}, false, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return snapshot, true, nil
}

// Save writes the snapshot through a temp file and rename
func (s *FileStore) Save(ctx context.Context, snapshot core.Snapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// Delete removes the snapshot file
func (s *FileStore) Delete(ctx context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}
