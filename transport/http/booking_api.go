package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hust/bookingclient/ports"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

var ErrAccessTokenRevoked = errors.New("access token is no longer valid")

// Options configures token lifetimes of the booking API
type Options struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// BookingAPI implements the auth and profile endpoints of the booking backend.
// Access tokens are ES256 JWTs; refresh tokens are opaque and rotate on every use.
type BookingAPI struct {
	tokenizer ports.Tokenizer
	users     *UserDirectory
	opts      Options
	log       *slog.Logger

	mu   sync.Mutex
	live map[string]int64
	gate chan struct{}

	refreshCalls atomic.Int64
}

// NewBookingAPI creates a new booking API backend
func NewBookingAPI(tokenizer ports.Tokenizer, users *UserDirectory, opts Options, log *slog.Logger) *BookingAPI {
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = DefaultAccessTTL
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = DefaultRefreshTTL
	}
	if users == nil {
		users = NewUserDirectory()
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &BookingAPI{
		tokenizer: tokenizer,
		users:     users,
		opts:      opts,
		log:       log,
		live:      make(map[string]int64),
	}
}

// Users returns the account directory
func (a *BookingAPI) Users() *UserDirectory {
	return a.users
}

// AccessTTL is the lifetime of issued access tokens
func (a *BookingAPI) AccessTTL() time.Duration {
	return a.opts.AccessTTL
}

// Login verifies email and password and issues a fresh token pair
func (a *BookingAPI) Login(email, password string) (User, string, string, error) {
	user, err := a.users.Authenticate(email, password)
	if err != nil {
		return User{}, "", "", err
	}

	access, err := a.issueAccessToken(user)
	if err != nil {
		return User{}, "", "", err
	}
	refresh := a.users.IssueRefreshToken(user.ID, a.opts.RefreshTTL)

	a.log.Info("user logged in", "user_id", user.ID)
	return user, access, refresh, nil
}

// Refresh redeems a refresh token for a new access token and a rotated refresh token
func (a *BookingAPI) Refresh(ctx context.Context, refreshToken string) (string, string, error) {
	a.refreshCalls.Add(1)

	a.mu.Lock()
	gate := a.gate
	a.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", "", ctx.Err()
		}
	}

	user, rotated, err := a.users.RotateRefreshToken(refreshToken, a.opts.RefreshTTL)
	if err != nil {
		return "", "", err
	}

	access, err := a.issueAccessToken(user)
	if err != nil {
		return "", "", err
	}

	a.log.Info("tokens refreshed", "user_id", user.ID)
	return access, rotated, nil
}

// Logout revokes the user's refresh token and every live access token
func (a *BookingAPI) Logout(userID int64) {
	a.users.RevokeRefreshToken(userID)

	a.mu.Lock()
	for id, owner := range a.live {
		if owner == userID {
			delete(a.live, id)
		}
	}
	a.mu.Unlock()

	a.log.Info("user logged out", "user_id", userID)
}

// ValidateAccessToken verifies a bearer token
func (a *BookingAPI) ValidateAccessToken(token string) (ports.AccessGrant, error) {
	grant, err := a.tokenizer.AccessTokenToGrant(token)
	if err != nil {
		return ports.AccessGrant{}, err
	}

	a.mu.Lock()
	_, ok := a.live[grant.ID]
	a.mu.Unlock()
	if !ok {
		return ports.AccessGrant{}, ErrAccessTokenRevoked
	}

	return grant, nil
}

// ExpireAccessTokens invalidates every access token issued so far
func (a *BookingAPI) ExpireAccessTokens() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.live = make(map[string]int64)
}

// RefreshCalls counts refresh requests received
func (a *BookingAPI) RefreshCalls() int64 {
	return a.refreshCalls.Load()
}

// HoldRefreshes blocks refresh requests until the returned release func is called
func (a *BookingAPI) HoldRefreshes() func() {
	gate := make(chan struct{})

	a.mu.Lock()
	a.gate = gate
	a.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			if a.gate == gate {
				a.gate = nil
			}
			a.mu.Unlock()
			close(gate)
		})
	}
}

func (a *BookingAPI) issueAccessToken(user User) (string, error) {
	now := time.Now()
	grant := ports.AccessGrant{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Email:     user.Email,
		IssuedAt:  now,
		ExpiresAt: now.Add(a.opts.AccessTTL),
	}

	token, err := a.tokenizer.GrantToAccessToken(grant)
	if err != nil {
		return "", fmt.Errorf("failed to issue access token: %w", err)
	}

	a.mu.Lock()
	a.live[grant.ID] = user.ID
	a.mu.Unlock()

	return token, nil
}
