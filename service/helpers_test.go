package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/hust/bookingclient/adapters/store"
	"github.com/hust/bookingclient/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

// fakeAuthAPI scripts the remote credential endpoints
type fakeAuthAPI struct {
	refreshCalls atomic.Int32
	logoutCalls  atomic.Int32

	mu        sync.Mutex
	refreshFn func(ctx context.Context, refreshToken string) (core.RefreshResult, error)
	loginFn   func(email, password string) (core.LoginResult, error)
	logoutErr error
}

func (f *fakeAuthAPI) Login(ctx context.Context, email, password string) (core.LoginResult, error) {
	f.mu.Lock()
	fn := f.loginFn
	f.mu.Unlock()
	if fn == nil {
		return core.LoginResult{
			Credential: core.Credential{AccessToken: "T1", RefreshToken: "R1"},
			Identity:   core.Identity{ID: 1, Email: email, FullName: "An Nguyen"},
		}, nil
	}
	return fn(email, password)
}

func (f *fakeAuthAPI) Register(ctx context.Context, reg core.Registration) error {
	return nil
}

func (f *fakeAuthAPI) Refresh(ctx context.Context, refreshToken string) (core.RefreshResult, error) {
	f.refreshCalls.Add(1)
	f.mu.Lock()
	fn := f.refreshFn
	f.mu.Unlock()
	if fn == nil {
		return core.RefreshResult{AccessToken: "T2"}, nil
	}
	return fn(ctx, refreshToken)
}

func (f *fakeAuthAPI) Logout(ctx context.Context, accessToken string) error {
	f.logoutCalls.Add(1)
	return f.logoutErr
}

type harness struct {
	api         *fakeAuthAPI
	snapshots   *store.MemoryStore
	creds       *CredentialStore
	machine     *SessionMachine
	coordinator *RefreshCoordinator
	metrics     *Metrics
	registry    *prometheus.Registry
}

func newHarness(t *testing.T, opts RefreshOptions) *harness {
	t.Helper()

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	api := &fakeAuthAPI{}
	snapshots := store.NewMemoryStore()
	creds := NewCredentialStore(snapshots, nil)
	machine := NewSessionMachine(nil, metrics, nil)

	return &harness{
		api:         api,
		snapshots:   snapshots,
		creds:       creds,
		machine:     machine,
		coordinator: NewRefreshCoordinator(api, creds, machine, metrics, nil, opts),
		metrics:     metrics,
		registry:    reg,
	}
}

// login puts the harness in Authenticated with access T1 and refresh R1
func (h *harness) login(t *testing.T) {
	t.Helper()
	require.NoError(t, h.coordinator.Establish(context.Background(),
		core.Credential{AccessToken: "T1", RefreshToken: "R1"},
		&core.Identity{ID: 1, Email: "an@example.com", FullName: "An Nguyen"},
	))
}
