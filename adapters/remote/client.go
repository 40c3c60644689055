package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hust/bookingclient/core"
	"github.com/hust/bookingclient/ports"
)

// Paths are the credential endpoints relative to the API base URL
type Paths struct {
	Login    string
	Register string
	Refresh  string
	Logout   string
}

// DefaultPaths matches the booking backend routes
var DefaultPaths = Paths{
	Login:    "/api/auth/login",
	Register: "/api/auth/register",
	Refresh:  "/api/auth/refresh",
	Logout:   "/api/auth/logout",
}

// Client implements ports.AuthAPI over HTTP. It talks to the credential endpoints
// directly and never goes through the authenticated gateway.
type Client struct {
	baseURL string
	paths   Paths
	doer    ports.Doer
}

// NewClient creates a new auth API client
func NewClient(baseURL string, paths Paths, doer ports.Doer) *Client {
	if doer == nil {
		doer = http.DefaultClient
	}
	if paths == (Paths{}) {
		paths = DefaultPaths
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		paths:   paths,
		doer:    doer,
	}
}

var _ ports.AuthAPI = (*Client)(nil)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	Type         string `json:"type"`
	ID           int64  `json:"id"`
	Email        string `json:"email"`
	FullName     string `json:"fullName"`
	Phone        string `json:"phone"`
	ExpiresIn    int64  `json:"expiresIn"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// Login exchanges email and password for a credential and identity
func (c *Client) Login(ctx context.Context, email, password string) (core.LoginResult, error) {
	status, body, err := c.post(ctx, c.paths.Login, loginRequest{Email: email, Password: password}, "")
	if err != nil {
		return core.LoginResult{}, err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return core.LoginResult{}, fmt.Errorf("%w: %w", core.ErrInvalidCredentials, core.ParseAPIError(status, body))
	}
	if !isSuccess(status) {
		return core.LoginResult{}, core.ParseAPIError(status, body)
	}

	var parsed loginResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return core.LoginResult{}, fmt.Errorf("decode login response: %w", err)
	}

	cred := core.Credential{AccessToken: parsed.AccessToken, RefreshToken: parsed.RefreshToken}
	if !cred.Valid() {
		return core.LoginResult{}, fmt.Errorf("login response: %w", core.ErrPartialCredential)
	}

	return core.LoginResult{
		Credential: cred,
		Identity: core.Identity{
			ID:       parsed.ID,
			Email:    parsed.Email,
			FullName: parsed.FullName,
			Phone:    parsed.Phone,
		},
		ExpiresIn: time.Duration(parsed.ExpiresIn) * time.Second,
	}, nil
}

// Register creates a new account
func (c *Client) Register(ctx context.Context, reg core.Registration) error {
	status, body, err := c.post(ctx, c.paths.Register, reg, "")
	if err != nil {
		return err
	}
	if !isSuccess(status) {
		return core.ParseAPIError(status, body)
	}
	return nil
}

// Refresh exchanges the refresh token for a new access token. Any non-2xx answer is
// reported as ErrRefreshRejected.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (core.RefreshResult, error) {
	status, body, err := c.post(ctx, c.paths.Refresh, refreshRequest{RefreshToken: refreshToken}, "")
	if err != nil {
		return core.RefreshResult{}, err
	}
	if !isSuccess(status) {
		return core.RefreshResult{}, fmt.Errorf("%w: %w", core.ErrRefreshRejected, core.ParseAPIError(status, body))
	}

	var parsed refreshResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return core.RefreshResult{}, fmt.Errorf("%w: %v", core.ErrInvalidRefreshResponse, err)
	}
	if parsed.AccessToken == "" {
		return core.RefreshResult{}, fmt.Errorf("%w: missing access token", core.ErrInvalidRefreshResponse)
	}

	return core.RefreshResult{
		AccessToken:  parsed.AccessToken,
		RefreshToken: parsed.RefreshToken,
		ExpiresIn:    time.Duration(parsed.ExpiresIn) * time.Second,
	}, nil
}

// Logout tells the server to drop the refresh token bound to accessToken
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	status, body, err := c.post(ctx, c.paths.Logout, nil, accessToken)
	if err != nil {
		return err
	}
	if !isSuccess(status) {
		return core.ParseAPIError(status, body)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload any, bearer string) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %w", core.ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: read response: %w", core.ErrTransport, err)
	}
	return resp.StatusCode, body, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
