package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hust/bookingclient/core"
	"github.com/hust/bookingclient/ports"
)

const (
	ProfilePath        = "/api/users/me"
	ChangePasswordPath = "/api/users/me/password"
)

// Deps wires an AuthService
type Deps struct {
	API     ports.AuthAPI
	Doer    ports.Doer
	Store   ports.SnapshotStore
	Events  ports.EventPublisher
	Metrics *Metrics
	Logger  *slog.Logger
	Gateway GatewayOptions
	Refresh RefreshOptions
}

// AuthService is what the UI layer calls: login, registration, logout and the
// signed-in user's profile. Every profile call goes through the Gateway.
type AuthService struct {
	api         ports.AuthAPI
	creds       *CredentialStore
	machine     *SessionMachine
	coordinator *RefreshCoordinator
	gateway     *Gateway
	log         *slog.Logger
}

// NewAuthService creates a new authentication service
func NewAuthService(deps Deps) *AuthService {
	log := orDiscard(deps.Logger)

	creds := NewCredentialStore(deps.Store, log.With("component", "credentials"))
	machine := NewSessionMachine(deps.Events, deps.Metrics, log.With("component", "session"))
	coordinator := NewRefreshCoordinator(deps.API, creds, machine, deps.Metrics, log.With("component", "refresh"), deps.Refresh)
	gateway := NewGateway(deps.Doer, creds, coordinator, deps.Metrics, log.With("component", "gateway"), deps.Gateway)

	return &AuthService{
		api:         deps.API,
		creds:       creds,
		machine:     machine,
		coordinator: coordinator,
		gateway:     gateway,
		log:         log,
	}
}

// Gateway returns the authenticated gateway for other API calls
func (s *AuthService) Gateway() *Gateway {
	return s.gateway
}

// State returns the current session state
func (s *AuthService) State() core.State {
	return s.machine.State()
}

// Subscribe observes session transitions, e.g. to redirect to login on Anonymous
func (s *AuthService) Subscribe(buffer int) (<-chan core.StateChange, func()) {
	return s.machine.Subscribe(buffer)
}

// Identity returns the cached profile of the signed-in user
func (s *AuthService) Identity() (core.Identity, bool) {
	return s.creds.Identity()
}

// Rehydrate restores a persisted session. Call it once before the first request.
func (s *AuthService) Rehydrate(ctx context.Context) (bool, error) {
	ok, err := s.coordinator.Resume(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to rehydrate session: %w", err)
	}
	return ok, nil
}

// Login authenticates with email and password and starts a session
func (s *AuthService) Login(ctx context.Context, email, password string) (core.Identity, error) {
	res, err := s.api.Login(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return core.Identity{}, fmt.Errorf("login failed: %w", err)
	}

	if err := s.coordinator.Establish(ctx, res.Credential, &res.Identity); err != nil {
		return core.Identity{}, fmt.Errorf("failed to start session: %w", err)
	}

	s.log.Info("logged in", "user_id", res.Identity.ID)
	return res.Identity, nil
}

// Register creates an account. It does not sign the user in.
func (s *AuthService) Register(ctx context.Context, reg core.Registration) error {
	reg.Email = strings.TrimSpace(reg.Email)
	if err := s.api.Register(ctx, reg); err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}
	return nil
}

// Logout ends the session. The server is notified on a best-effort basis; the
// local session is torn down regardless.
func (s *AuthService) Logout(ctx context.Context) error {
	if cred, ok := s.creds.Get(); ok {
		if err := s.api.Logout(ctx, cred.AccessToken); err != nil {
			// The local teardown below is what matters
			s.log.Warn("failed to notify logout", "error", err)
		}
	}

	s.coordinator.Terminate(ctx, core.ReasonLogout)
	return nil
}

type profileResponse struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	FullName  string    `json:"fullName"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Enabled   bool      `json:"enabled"`
}

func (p profileResponse) identity() core.Identity {
	return core.Identity{ID: p.ID, Email: p.Email, FullName: p.FullName, Phone: p.Phone}
}

// Profile fetches the signed-in user's profile and refreshes the cached identity
func (s *AuthService) Profile(ctx context.Context) (core.Identity, error) {
	if s.machine.State() == core.StateAnonymous {
		return core.Identity{}, core.ErrNoSession
	}

	var out profileResponse
	if err := s.sendJSON(ctx, http.MethodGet, ProfilePath, nil, &out); err != nil {
		return core.Identity{}, err
	}

	identity := out.identity()
	if err := s.creds.UpdateIdentity(ctx, identity); err != nil {
		return core.Identity{}, core.ErrNoSession
	}
	return identity, nil
}

// UpdateProfile edits the signed-in user's profile
func (s *AuthService) UpdateProfile(ctx context.Context, upd core.ProfileUpdate) (core.Identity, error) {
	if s.machine.State() == core.StateAnonymous {
		return core.Identity{}, core.ErrNoSession
	}

	var out profileResponse
	if err := s.sendJSON(ctx, http.MethodPut, ProfilePath, upd, &out); err != nil {
		return core.Identity{}, err
	}

	identity := out.identity()
	if err := s.creds.UpdateIdentity(ctx, identity); err != nil {
		return core.Identity{}, core.ErrNoSession
	}
	return identity, nil
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ChangePassword changes the signed-in user's password
func (s *AuthService) ChangePassword(ctx context.Context, current, next string) error {
	if s.machine.State() == core.StateAnonymous {
		return core.ErrNoSession
	}
	return s.sendJSON(ctx, http.MethodPut, ChangePasswordPath, changePasswordRequest{
		CurrentPassword: current,
		NewPassword:     next,
	}, nil)
}

// sendJSON sends in as JSON through the gateway and decodes a 2xx body into out.
// Non-2xx answers become *core.APIError.
func (s *AuthService) sendJSON(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	header := http.Header{}
	header.Set("Accept", "application/json")
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = encoded
		header.Set("Content-Type", "application/json")
	}

	resp, err := s.gateway.Send(ctx, NewRequest(method, path, body, header))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %w", core.ErrTransport, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return core.ParseAPIError(resp.StatusCode, payload)
	}
	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
