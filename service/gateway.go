package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/hust/bookingclient/core"
	"github.com/hust/bookingclient/ports"
)

// RequestIDHeader carries the descriptor ID on every attempt, including the replay
const RequestIDHeader = "X-Request-ID"

// Request describes an outbound call well enough to resubmit it verbatim.
// It is immutable after NewRequest; a replay is a copy with the replay mark set.
type Request struct {
	id     string
	method string
	url    string
	header http.Header
	body   []byte
	replay bool
}

// NewRequest builds a descriptor. url may be absolute or a path resolved against
// the gateway's base URL.
func NewRequest(method, url string, body []byte, header http.Header) *Request {
	if method == "" {
		method = http.MethodGet
	}
	return &Request{
		id:     uuid.NewString(),
		method: method,
		url:    url,
		header: header.Clone(),
		body:   bytes.Clone(body),
	}
}

func (r *Request) ID() string     { return r.id }
func (r *Request) Method() string { return r.method }
func (r *Request) URL() string    { return r.url }
func (r *Request) Replay() bool   { return r.replay }

func (r *Request) asReplay() *Request {
	cp := *r
	cp.replay = true
	return &cp
}

type credentialSource interface {
	Get() (core.Credential, bool)
}

type refresher interface {
	RequestRefresh(ctx context.Context, failedAccess string) (core.Credential, error)
}

// GatewayOptions configure the Gateway
type GatewayOptions struct {
	// BaseURL is prepended to descriptor URLs that are not absolute
	BaseURL string

	// AuthFailureStatus is the status the API uses for an invalid or expired access
	// token. Policy denials must use a different status.
	AuthFailureStatus int
}

// Gateway is the entry point for every outbound API call. It attaches the bearer
// credential, refreshes once on authentication failure and replays the request.
type Gateway struct {
	doer      ports.Doer
	creds     credentialSource
	refresher refresher
	metrics   *Metrics
	log       *slog.Logger

	baseURL       string
	failureStatus int
}

// NewGateway creates a new gateway
func NewGateway(doer ports.Doer, creds *CredentialStore, coordinator *RefreshCoordinator, metrics *Metrics, log *slog.Logger, opts GatewayOptions) *Gateway {
	return newGateway(doer, creds, coordinator, metrics, log, opts)
}

func newGateway(doer ports.Doer, creds credentialSource, r refresher, metrics *Metrics, log *slog.Logger, opts GatewayOptions) *Gateway {
	if doer == nil {
		doer = http.DefaultClient
	}
	if opts.AuthFailureStatus == 0 {
		opts.AuthFailureStatus = http.StatusUnauthorized
	}
	return &Gateway{
		doer:          doer,
		creds:         creds,
		refresher:     r,
		metrics:       metrics,
		log:           orDiscard(log),
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		failureStatus: opts.AuthFailureStatus,
	}
}

// Send submits req. An authentication failure on a first attempt triggers one
// refresh and one replay whose response is returned as is. When the refresh fails
// the error matches core.ErrSessionEnded. All other responses pass through.
func (g *Gateway) Send(ctx context.Context, req *Request) (*http.Response, error) {
	cred, authed := g.creds.Get()
	token := ""
	if authed {
		token = cred.AccessToken
	}

	resp, err := g.do(ctx, req, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != g.failureStatus || token == "" || req.Replay() {
		return resp, nil
	}

	discard(resp)
	g.log.Debug("access token rejected, refreshing", "request_id", req.ID(), "method", req.Method(), "url", req.URL())

	fresh, err := g.refresher.RequestRefresh(ctx, token)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		g.metrics.replay("session_ended")
		if errors.Is(err, core.ErrSessionEnded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", core.ErrSessionEnded, err)
	}

	replay := req.asReplay()
	resp, err = g.do(ctx, replay, fresh.AccessToken)
	if err != nil {
		g.metrics.replay("error")
		return nil, err
	}
	if resp.StatusCode == g.failureStatus {
		g.metrics.replay("rejected")
		g.log.Warn("replayed request rejected again", "request_id", req.ID(), "status", resp.StatusCode)
	} else {
		g.metrics.replay("sent")
	}
	return resp, nil
}

func (g *Gateway) do(ctx context.Context, req *Request, token string) (*http.Response, error) {
	target := req.url
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = g.baseURL + "/" + strings.TrimLeft(target, "/")
	}

	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for key, values := range req.header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	httpReq.Header.Set(RequestIDHeader, req.id)
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	} else {
		httpReq.Header.Del("Authorization")
	}

	resp, err := g.doer.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrTransport, err)
	}
	return resp, nil
}

// RoundTripper adapts the gateway for use as an http.Client transport. The
// request body is buffered so it can be replayed.
func (g *Gateway) RoundTripper() http.RoundTripper {
	return roundTripper{g: g}
}

type roundTripper struct {
	g *Gateway
}

func (rt roundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(r.Body)
		r.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("buffer request body: %w", err)
		}
	}
	return rt.g.Send(r.Context(), NewRequest(r.Method, r.URL.String(), body, r.Header))
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
