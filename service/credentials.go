package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hust/bookingclient/core"
	"github.com/hust/bookingclient/ports"
)

// CredentialStore is the single source of truth for the active credential and
// identity. Every mutation is mirrored to the snapshot store.
type CredentialStore struct {
	// writeMu orders mutations together with their persistence
	writeMu  sync.Mutex
	mu       sync.RWMutex
	cred     core.Credential
	identity *core.Identity
	present  bool

	persist ports.SnapshotStore
	log     *slog.Logger
}

// NewCredentialStore creates an empty credential store. persist may be nil.
func NewCredentialStore(persist ports.SnapshotStore, log *slog.Logger) *CredentialStore {
	return &CredentialStore{
		persist: persist,
		log:     orDiscard(log),
	}
}

// Get returns the current credential
func (s *CredentialStore) Get() (core.Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.cred, s.present
}

// Identity returns the authenticated user's profile. It is never present without a credential.
func (s *CredentialStore) Identity() (core.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.present || s.identity == nil {
		return core.Identity{}, false
	}
	return *s.identity, true
}

// Set replaces credential and identity together
func (s *CredentialStore) Set(ctx context.Context, cred core.Credential, identity *core.Identity) error {
	if !cred.Valid() {
		return core.ErrPartialCredential
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.cred = cred
	s.identity = copyIdentity(identity)
	s.present = true
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.save(ctx, snapshot)
	return nil
}

// Clear removes credential and identity
func (s *CredentialStore) Clear(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.cred = core.Credential{}
	s.identity = nil
	s.present = false
	s.mu.Unlock()

	if s.persist != nil {
		if err := s.persist.Delete(ctx); err != nil {
			s.log.Warn("failed to delete session snapshot", "error", err)
		}
	}
	return nil
}

// UpdateAccessToken swaps the access token after a refresh. The refresh token is
// replaced only when rotatedRefresh is non-empty; identity is untouched.
func (s *CredentialStore) UpdateAccessToken(ctx context.Context, access, rotatedRefresh string) error {
	if access == "" {
		return core.ErrPartialCredential
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if !s.present {
		s.mu.Unlock()
		return core.ErrNoCredential
	}
	s.cred.AccessToken = access
	if rotatedRefresh != "" {
		s.cred.RefreshToken = rotatedRefresh
	}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.save(ctx, snapshot)
	return nil
}

// UpdateIdentity replaces the stored profile of the signed-in user
func (s *CredentialStore) UpdateIdentity(ctx context.Context, identity core.Identity) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if !s.present {
		s.mu.Unlock()
		return core.ErrNoCredential
	}
	s.identity = &identity
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.save(ctx, snapshot)
	return nil
}

// Rehydrate loads the persisted snapshot. It reports whether a usable credential
// was restored; a partial snapshot is deleted instead of loaded.
func (s *CredentialStore) Rehydrate(ctx context.Context) (bool, error) {
	if s.persist == nil {
		return false, nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	snapshot, ok, err := s.persist.Load(ctx)
	if err != nil {
		s.log.Warn("discarding unreadable session snapshot", "error", err)
		_ = s.persist.Delete(ctx)
		return false, nil
	}
	if !ok {
		return false, nil
	}
	if !snapshot.Credential.Valid() {
		s.log.Warn("discarding partial session snapshot")
		if err := s.persist.Delete(ctx); err != nil {
			return false, err
		}
		return false, nil
	}

	s.mu.Lock()
	s.cred = snapshot.Credential
	s.identity = copyIdentity(snapshot.Identity)
	s.present = true
	s.mu.Unlock()

	return true, nil
}

func (s *CredentialStore) snapshotLocked() core.Snapshot {
	return core.Snapshot{
		Credential: s.cred,
		Identity:   copyIdentity(s.identity),
	}
}

func (s *CredentialStore) save(ctx context.Context, snapshot core.Snapshot) {
	if s.persist == nil {
		return
	}
	if err := s.persist.Save(ctx, snapshot); err != nil {
		s.log.Warn("failed to persist session snapshot", "error", err)
	}
}

func copyIdentity(identity *core.Identity) *core.Identity {
	if identity == nil {
		return nil
	}
	cp := *identity
	return &cp
}
