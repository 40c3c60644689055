package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Rican7/retry"
	"github.com/Rican7/retry/backoff"
	"github.com/Rican7/retry/strategy"
	"github.com/hust/bookingclient/core"
	"github.com/hust/bookingclient/ports"
	"golang.org/x/sync/singleflight"
)

// RefreshOptions tune the refresh round trip
type RefreshOptions struct {
	// Timeout bounds one refresh call, detached from any caller's cancellation
	Timeout time.Duration

	// TransportRetries is how many extra attempts a network failure gets before the
	// episode fails. Zero ends the session on the first failure of any kind.
	TransportRetries uint

	// RetryBackoff is the base of the exponential wait between attempts
	RetryBackoff time.Duration
}

const (
	DefaultRefreshTimeout = 10 * time.Second
	DefaultRetryBackoff   = 200 * time.Millisecond
)

// RefreshCoordinator collapses concurrent refresh requests into one network call
// per episode and is the only writer of the credential and session state.
type RefreshCoordinator struct {
	api     ports.AuthAPI
	creds   *CredentialStore
	machine *SessionMachine
	metrics *Metrics
	log     *slog.Logger
	opts    RefreshOptions

	group singleflight.Group

	// mu orders episode outcomes with login and logout; epoch changes on both
	mu    sync.Mutex
	epoch uint64
}

// NewRefreshCoordinator creates a new refresh coordinator
func NewRefreshCoordinator(
	api ports.AuthAPI,
	creds *CredentialStore,
	machine *SessionMachine,
	metrics *Metrics,
	log *slog.Logger,
	opts RefreshOptions,
) *RefreshCoordinator {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultRefreshTimeout
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = DefaultRetryBackoff
	}
	return &RefreshCoordinator{
		api:     api,
		creds:   creds,
		machine: machine,
		metrics: metrics,
		log:     orDiscard(log),
		opts:    opts,
	}
}

// RequestRefresh returns a credential newer than failedAccess. Callers arriving
// while an episode is in flight wait for its outcome; a caller whose token was
// already replaced by a finished episode gets the current credential without a
// network call. Refresh failure yields an error matching core.ErrSessionEnded.
func (c *RefreshCoordinator) RequestRefresh(ctx context.Context, failedAccess string) (core.Credential, error) {
	cur, ok := c.creds.Get()
	if !ok {
		return core.Credential{}, core.ErrSessionEnded
	}
	if failedAccess != "" && failedAccess != cur.AccessToken && c.machine.State() == core.StateAuthenticated {
		return cur, nil
	}

	return c.join(ctx, cur.AccessToken)
}

// join waits on the episode keyed by the access token being replaced
func (c *RefreshCoordinator) join(ctx context.Context, key string) (core.Credential, error) {
	led := false
	ch := c.group.DoChan(key, func() (any, error) {
		led = true
		return c.lead(context.WithoutCancel(ctx), key)
	})

	select {
	case res := <-ch:
		if !led {
			c.metrics.follower()
		}
		if res.Err != nil {
			return core.Credential{}, res.Err
		}
		return res.Val.(core.Credential), nil
	case <-ctx.Done():
		return core.Credential{}, ctx.Err()
	}
}

func (c *RefreshCoordinator) lead(ctx context.Context, key string) (core.Credential, error) {
	c.mu.Lock()
	cur, ok := c.creds.Get()
	if !ok {
		c.mu.Unlock()
		return core.Credential{}, core.ErrSessionEnded
	}
	if cur.AccessToken != key {
		// An episode replaced key between the caller's check and this call.
		state := c.machine.State()
		c.mu.Unlock()
		if state == core.StateAuthenticated {
			return cur, nil
		}
		return c.join(ctx, cur.AccessToken)
	}
	if err := c.machine.BeginRefresh(ctx); err != nil {
		c.mu.Unlock()
		return core.Credential{}, err
	}
	epoch := c.epoch
	c.mu.Unlock()

	res, err := c.call(ctx, cur.RefreshToken)

	c.mu.Lock()
	defer c.mu.Unlock()

	if epoch != c.epoch {
		c.metrics.episode("stale")
		c.log.Info("discarding refresh outcome of an ended session")
		return core.Credential{}, core.ErrSessionEnded
	}

	if err == nil {
		err = c.creds.UpdateAccessToken(ctx, res.AccessToken, res.RefreshToken)
	}
	if err != nil {
		c.epoch++
		_ = c.creds.Clear(ctx)
		c.machine.End(ctx, core.ReasonRefreshFailed)
		c.metrics.episode("failed")
		c.log.Warn("credential refresh failed, session ended", "error", err)
		return core.Credential{}, fmt.Errorf("%w: %w", core.ErrSessionEnded, err)
	}

	if err := c.machine.CompleteRefresh(ctx); err != nil {
		return core.Credential{}, err
	}
	c.metrics.episode("succeeded")

	fresh, _ := c.creds.Get()
	return fresh, nil
}

func (c *RefreshCoordinator) call(ctx context.Context, refreshToken string) (core.RefreshResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	if c.opts.TransportRetries == 0 {
		return c.api.Refresh(ctx, refreshToken)
	}

	var (
		res     core.RefreshResult
		lastErr error
	)
	_ = retry.Retry(func(attempt uint) error {
		res, lastErr = c.api.Refresh(ctx, refreshToken)
		if lastErr != nil && errors.Is(lastErr, core.ErrTransport) && ctx.Err() == nil {
			c.log.Warn("refresh transport failure", "attempt", attempt, "error", lastErr)
			return lastErr
		}
		return nil
	},
		strategy.Limit(c.opts.TransportRetries+1),
		strategy.Backoff(backoff.Exponential(c.opts.RetryBackoff, 2)),
	)

	return res, lastErr
}

// Establish installs a credential from a successful login and starts a new epoch.
// An existing session is ended first.
func (c *RefreshCoordinator) Establish(ctx context.Context, cred core.Credential, identity *core.Identity) error {
	if !cred.Valid() {
		return core.ErrPartialCredential
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.epoch++
	if c.machine.State() != core.StateAnonymous {
		c.machine.End(ctx, core.ReasonLogout)
	}
	if err := c.creds.Set(ctx, cred, identity); err != nil {
		return err
	}
	return c.machine.Authenticate(ctx, core.ReasonLogin)
}

// Resume rehydrates a persisted credential at start-up. It reports whether a
// session was restored.
func (c *RefreshCoordinator) Resume(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.machine.State() != core.StateAnonymous {
		return true, nil
	}

	ok, err := c.creds.Rehydrate(ctx)
	if err != nil || !ok {
		return false, err
	}

	c.epoch++
	if err := c.machine.Authenticate(ctx, core.ReasonRehydrate); err != nil {
		return false, err
	}
	return true, nil
}

// Terminate ends the session. An in-flight episode keeps running but its outcome
// is discarded.
func (c *RefreshCoordinator) Terminate(ctx context.Context, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.epoch++
	_ = c.creds.Clear(ctx)
	c.machine.End(ctx, reason)
}
