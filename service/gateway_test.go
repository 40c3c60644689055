package service

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/hust/bookingclient/core"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// protectedAPI accepts only the bearer tokens in valid and answers 401 otherwise
type protectedAPI struct {
	mu       sync.Mutex
	valid    map[string]bool
	seen     []string
	requests atomic.Int32
	rejected atomic.Int32
	onReject func(count int32)
}

func newProtectedAPI(valid ...string) *protectedAPI {
	p := &protectedAPI{valid: make(map[string]bool)}
	for _, v := range valid {
		p.valid[v] = true
	}
	return p
}

func (p *protectedAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.requests.Add(1)
	auth := r.Header.Get("Authorization")

	p.mu.Lock()
	p.seen = append(p.seen, auth)
	ok := p.valid[strings.TrimPrefix(auth, "Bearer ")]
	p.mu.Unlock()

	switch r.URL.Path {
	case "/api/users/2":
		w.WriteHeader(http.StatusForbidden)
		return
	case "/api/broken":
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"boom"}`))
		return
	}

	if !ok {
		count := p.rejected.Add(1)
		if p.onReject != nil {
			p.onReject(count)
		}
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	body, _ := io.ReadAll(r.Body)
	w.Header().Set("X-Echo-Request-ID", r.Header.Get(RequestIDHeader))
	_, _ = w.Write(append([]byte("ok:"), body...))
}

func (p *protectedAPI) Seen() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.seen...)
}

func newTestGateway(t *testing.T, h *harness, api *protectedAPI) (*Gateway, string) {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	return NewGateway(srv.Client(), h.creds, h.coordinator, h.metrics, nil, GatewayOptions{BaseURL: srv.URL}), srv.URL
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestGatewayAttachesBearer(t *testing.T) {
	h := newHarness(t, RefreshOptions{})
	h.login(t)
	api := newProtectedAPI("T1")
	g, _ := newTestGateway(t, h, api)

	resp, err := g.Send(context.Background(), NewRequest(http.MethodPost, "/api/users/me", []byte("hello"), nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok:hello", readBody(t, resp))
	assert.Equal(t, []string{"Bearer T1"}, api.Seen())
	assert.Equal(t, int32(0), h.api.refreshCalls.Load())
}

func TestGatewayRefreshesAndReplaysOnce(t *testing.T) {
	h := newHarness(t, RefreshOptions{})
	h.login(t)
	api := newProtectedAPI("T2")
	g, _ := newTestGateway(t, h, api)

	req := NewRequest(http.MethodPut, "/api/users/me", []byte(`{"fullName":"An"}`), http.Header{"Content-Type": {"application/json"}})
	resp, err := g.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `ok:{"fullName":"An"}`, readBody(t, resp))
	assert.Equal(t, req.ID(), resp.Header.Get("X-Echo-Request-ID"))

	assert.Equal(t, []string{"Bearer T1", "Bearer T2"}, api.Seen())
	assert.Equal(t, int32(1), h.api.refreshCalls.Load())
	assert.False(t, req.Replay())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.replays.WithLabelValues("sent")))
}

func TestGatewayConcurrentFailuresShareOneRefresh(t *testing.T) {
	const n = 2
	h := newHarness(t, RefreshOptions{})
	h.login(t)

	allRejected := make(chan struct{})
	api := newProtectedAPI("T2")
	api.onReject = func(count int32) {
		if count == n {
			close(allRejected)
		}
	}
	h.api.refreshFn = func(ctx context.Context, refreshToken string) (core.RefreshResult, error) {
		<-allRejected
		return core.RefreshResult{AccessToken: "T2"}, nil
	}
	g, _ := newTestGateway(t, h, api)

	var wg sync.WaitGroup
	wg.Add(n)
	statuses := make(chan int, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			resp, err := g.Send(context.Background(), NewRequest(http.MethodGet, "/api/users/me", nil, nil))
			if !assert.NoError(t, err) {
				return
			}
			resp.Body.Close()
			statuses <- resp.StatusCode
		}()
	}
	wg.Wait()
	close(statuses)

	for status := range statuses {
		assert.Equal(t, http.StatusOK, status)
	}
	assert.Equal(t, int32(1), h.api.refreshCalls.Load())

	replayed := 0
	for _, auth := range api.Seen() {
		if auth == "Bearer T2" {
			replayed++
		}
	}
	assert.Equal(t, n, replayed)
}

func TestGatewayManyConcurrentFailures(t *testing.T) {
	for _, succeed := range []bool{true, false} {
		name := "refresh succeeds"
		if !succeed {
			name = "refresh fails"
		}
		t.Run(name, func(t *testing.T) {
			const n = 32
			h := newHarness(t, RefreshOptions{})
			h.login(t)

			allRejected := make(chan struct{})
			api := newProtectedAPI("T2")
			api.onReject = func(count int32) {
				if count == n {
					close(allRejected)
				}
			}
			if succeed {
				h.api.refreshFn = func(ctx context.Context, refreshToken string) (core.RefreshResult, error) {
					<-allRejected
					return core.RefreshResult{AccessToken: "T2"}, nil
				}
			} else {
				h.api.refreshFn = func(ctx context.Context, refreshToken string) (core.RefreshResult, error) {
					<-allRejected
					return core.RefreshResult{}, core.ErrRefreshRejected
				}
			}
			g, _ := newTestGateway(t, h, api)

			start := make(chan struct{})
			var wg sync.WaitGroup
			wg.Add(n)
			var ok, ended atomic.Int32
			for i := 0; i < n; i++ {
				go func() {
					defer wg.Done()
					<-start
					resp, err := g.Send(context.Background(), NewRequest(http.MethodGet, "/api/users/me", nil, nil))
					if err != nil {
						if errors.Is(err, core.ErrSessionEnded) {
							ended.Add(1)
						}
						return
					}
					resp.Body.Close()
					if resp.StatusCode == http.StatusOK {
						ok.Add(1)
					}
				}()
			}
			close(start)
			wg.Wait()

			assert.Equal(t, int32(1), h.api.refreshCalls.Load())
			if succeed {
				assert.Equal(t, int32(n), ok.Load())
				assert.Equal(t, core.StateAuthenticated, h.machine.State())
			} else {
				assert.Equal(t, int32(n), ended.Load())
				assert.Equal(t, core.StateAnonymous, h.machine.State())
			}
		})
	}
}

func TestGatewayRefreshFailureEndsSession(t *testing.T) {
	h := newHarness(t, RefreshOptions{})
	h.login(t)
	h.api.refreshFn = func(ctx context.Context, refreshToken string) (core.RefreshResult, error) {
		return core.RefreshResult{}, core.ErrRefreshRejected
	}
	changes, unsubscribe := h.machine.Subscribe(8)
	defer unsubscribe()

	api := newProtectedAPI("T2")
	g, _ := newTestGateway(t, h, api)

	resp, err := g.Send(context.Background(), NewRequest(http.MethodGet, "/api/users/me", nil, nil))
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, core.ErrSessionEnded)

	_, ok := h.creds.Get()
	assert.False(t, ok)
	assert.Equal(t, core.StateAnonymous, h.machine.State())
	assert.Equal(t, int32(1), api.requests.Load())

	assert.Equal(t, core.StateRefreshing, (<-changes).To)
	last := <-changes
	assert.Equal(t, core.StateAnonymous, last.To)
	assert.Equal(t, core.ReasonRefreshFailed, last.Reason)
}

func TestGatewayReplayFailureIsNotRetried(t *testing.T) {
	h := newHarness(t, RefreshOptions{})
	h.login(t)
	api := newProtectedAPI()
	g, _ := newTestGateway(t, h, api)

	resp, err := g.Send(context.Background(), NewRequest(http.MethodGet, "/api/users/me", nil, nil))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, int32(2), api.requests.Load())
	assert.Equal(t, int32(1), h.api.refreshCalls.Load())
	assert.Equal(t, core.StateAuthenticated, h.machine.State())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.replays.WithLabelValues("rejected")))
}

func TestGatewayPassesThroughOtherStatuses(t *testing.T) {
	h := newHarness(t, RefreshOptions{})
	h.login(t)
	api := newProtectedAPI("T1")
	g, _ := newTestGateway(t, h, api)

	resp, err := g.Send(context.Background(), NewRequest(http.MethodGet, "/api/users/2", nil, nil))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, err = g.Send(context.Background(), NewRequest(http.MethodGet, "/api/broken", nil, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, `{"message":"boom"}`, readBody(t, resp))

	assert.Equal(t, int32(0), h.api.refreshCalls.Load())
	assert.Equal(t, int32(2), api.requests.Load())
}

func TestGatewayAnonymousFailureIsSurfaced(t *testing.T) {
	h := newHarness(t, RefreshOptions{})
	api := newProtectedAPI("T1")
	g, _ := newTestGateway(t, h, api)

	resp, err := g.Send(context.Background(), NewRequest(http.MethodGet, "/api/users/me", nil, nil))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, []string{""}, api.Seen())
	assert.Equal(t, int32(0), h.api.refreshCalls.Load())
}

func TestGatewayCustomFailureStatus(t *testing.T) {
	h := newHarness(t, RefreshOptions{})
	h.login(t)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Authorization") != "Bearer T2" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	g := NewGateway(srv.Client(), h.creds, h.coordinator, nil, nil, GatewayOptions{
		BaseURL:           srv.URL,
		AuthFailureStatus: http.StatusForbidden,
	})

	resp, err := g.Send(context.Background(), NewRequest(http.MethodDelete, srv.URL+"/api/users/me", nil, nil))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGatewayTransportError(t *testing.T) {
	h := newHarness(t, RefreshOptions{})
	h.login(t)
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	g := NewGateway(nil, h.creds, h.coordinator, nil, nil, GatewayOptions{BaseURL: url})
	_, err := g.Send(context.Background(), NewRequest(http.MethodGet, "/api/users/me", nil, nil))
	assert.ErrorIs(t, err, core.ErrTransport)
	assert.Equal(t, core.StateAuthenticated, h.machine.State())
}

func TestGatewayRoundTripper(t *testing.T) {
	h := newHarness(t, RefreshOptions{})
	h.login(t)
	api := newProtectedAPI("T2")
	g, base := newTestGateway(t, h, api)

	client := &http.Client{Transport: g.RoundTripper()}
	req, err := http.NewRequest(http.MethodPost, base+"/api/users/me", strings.NewReader("payload"))
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	assert.Equal(t, "ok:payload", readBody(t, resp))
	assert.Equal(t, int32(1), h.api.refreshCalls.Load())
}

type staticSource struct{ cred core.Credential }

func (s staticSource) Get() (core.Credential, bool) { return s.cred, s.cred.Valid() }

type failingRefresher struct{ err error }

func (f failingRefresher) RequestRefresh(ctx context.Context, failedAccess string) (core.Credential, error) {
	return core.Credential{}, f.err
}

func TestGatewayWrapsUnexpectedRefreshErrors(t *testing.T) {
	api := newProtectedAPI()
	srv := httptest.NewServer(api)
	defer srv.Close()

	g := newGateway(srv.Client(), staticSource{core.Credential{AccessToken: "T1", RefreshToken: "R1"}},
		failingRefresher{err: core.ErrIllegalTransition}, nil, nil, GatewayOptions{BaseURL: srv.URL})

	_, err := g.Send(context.Background(), NewRequest(http.MethodGet, "/x", nil, nil))
	assert.ErrorIs(t, err, core.ErrSessionEnded)
	assert.ErrorIs(t, err, core.ErrIllegalTransition)
}

func TestNewRequestCopiesInputs(t *testing.T) {
	body := []byte("abc")
	header := http.Header{"X-Trace": {"1"}}
	req := NewRequest("", "/x", body, header)

	body[0] = 'z'
	header.Set("X-Trace", "2")

	assert.Equal(t, http.MethodGet, req.Method())
	assert.Equal(t, "abc", string(req.body))
	assert.Equal(t, "1", req.header.Get("X-Trace"))

	replay := req.asReplay()
	assert.True(t, replay.Replay())
	assert.False(t, req.Replay())
	assert.Equal(t, req.ID(), replay.ID())
}
