package ports

import (
	"context"
	"net/http"

	"github.com/hust/bookingclient/core"
)

// AuthAPI is the remote booking API's credential surface
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (core.LoginResult, error)
	Register(ctx context.Context, reg core.Registration) error
	// Refresh exchanges a refresh token for a new access token
	Refresh(ctx context.Context, refreshToken string) (core.RefreshResult, error)
	// Logout is a best-effort notification
	Logout(ctx context.Context, accessToken string) error
}

// Doer sends HTTP requests; *http.Client satisfies it
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}
