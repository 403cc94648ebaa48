package gateway_test

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lipvoice/voice-client/credentials"
	"github.com/lipvoice/voice-client/gateway"
	"github.com/lipvoice/voice-client/identity"
	"github.com/lipvoice/voice-client/internal/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const (
	staleToken = "stale-access"
	freshToken = "fresh-access"
)

// backend answers 419 to any bearer other than the fresh one.
type backend struct {
	server   *httptest.Server
	requests atomic.Int32
	mu       sync.Mutex
	bodies   []string
	headers  []http.Header
	status   int
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{status: http.StatusOK}
	b.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.requests.Add(1)
		body, _ := io.ReadAll(r.Body)
		b.mu.Lock()
		b.bodies = append(b.bodies, string(body))
		b.headers = append(b.headers, r.Header.Clone())
		status := b.status
		b.mu.Unlock()

		if r.Header.Get("Authorization") != "Bearer "+freshToken && r.URL.Path != "/public" {
			w.WriteHeader(gateway.DefaultExpiryStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"message":"ok","status":200,"metadata":{"path":"` + r.URL.Path + `"}}`))
	}))
	t.Cleanup(b.server.Close)
	return b
}

type countingRefresher struct {
	calls   atomic.Int32
	release chan struct{}
	err     error
}

func (r *countingRefresher) Refresh(ctx context.Context, _ *credentials.Session) (*oauth2.Token, error) {
	r.calls.Add(1)
	if r.release != nil {
		select {
		case <-r.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	return &oauth2.Token{AccessToken: freshToken}, nil
}

func signedIn(t *testing.T, token string) *credentials.InMemoryStore {
	t.Helper()
	store := credentials.NewInMemoryStore()
	require.NoError(t, store.Save(context.Background(), credentials.NewSession(token, "refresh-1", credentials.User{ID: "u1"})))
	return store
}

func get(t *testing.T, g *gateway.Gateway, url string) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	require.NoError(t, err)
	return g.Do(req)
}

func TestIdentityHeaders(t *testing.T) {
	b := newBackend(t)
	guests := identity.NewManager(identity.NewInMemoryRepo(), identity.WithIDGenerator(func() string { return "guest-abc" }))

	t.Run("guest only", func(t *testing.T) {
		g := gateway.New(b.server.URL, credentials.NewInMemoryStore(), &countingRefresher{},
			gateway.WithGuestIdentity(guests), gateway.WithLogger(zerolog.Nop()))
		resp, err := get(t, g, b.server.URL+"/public")
		require.NoError(t, err)
		resp.Body.Close()

		b.mu.Lock()
		h := b.headers[len(b.headers)-1]
		b.mu.Unlock()
		require.Equal(t, "guest-abc", h.Get(identity.HeaderGuestID))
		require.Empty(t, h.Get("Authorization"))
	})

	t.Run("guest and bearer", func(t *testing.T) {
		g := gateway.New(b.server.URL, signedIn(t, freshToken), &countingRefresher{},
			gateway.WithGuestIdentity(guests), gateway.WithLogger(zerolog.Nop()))
		resp, err := get(t, g, b.server.URL+"/voices")
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		b.mu.Lock()
		h := b.headers[len(b.headers)-1]
		b.mu.Unlock()
		require.Equal(t, "guest-abc", h.Get(identity.HeaderGuestID))
		require.Equal(t, "Bearer "+freshToken, h.Get("Authorization"))
	})
}

func TestConcurrentExpiryRefreshesOnce(t *testing.T) {
	b := newBackend(t)
	refresher := &countingRefresher{}
	g := gateway.New(b.server.URL, signedIn(t, staleToken), refresher, gateway.WithLogger(zerolog.Nop()))

	const n = 25
	statuses := make([]int, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := get(t, g, b.server.URL+"/voices/system")
			errs[i] = err
			if err == nil {
				statuses[i] = resp.StatusCode
				resp.Body.Close()
			}
		}(i)
	}
	wg.Wait()

	require.EqualValues(t, 1, refresher.calls.Load())
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, http.StatusOK, statuses[i])
	}
	require.False(t, g.Broker().Refreshing())
	require.Zero(t, g.Broker().Pending())
}

func TestThreeQueuedCallsReplayAfterOneRefresh(t *testing.T) {
	b := newBackend(t)
	refresher := &countingRefresher{release: make(chan struct{})}
	store := signedIn(t, staleToken)
	g := gateway.New(b.server.URL, store, refresher, gateway.WithLogger(zerolog.Nop()))

	type result struct {
		status int
		err    error
	}
	results := make(chan result, 3)
	for i := 0; i < 3; i++ {
		go func() {
			resp, err := get(t, g, b.server.URL+"/voices/system")
			if err != nil {
				results <- result{err: err}
				return
			}
			resp.Body.Close()
			results <- result{status: resp.StatusCode}
		}()
	}

	require.Eventually(t, func() bool { return g.Broker().Pending() == 3 }, 2*time.Second, 5*time.Millisecond)
	require.True(t, g.Broker().Refreshing())
	close(refresher.release)

	for i := 0; i < 3; i++ {
		r := <-results
		require.NoError(t, r.err)
		require.Equal(t, http.StatusOK, r.status)
	}
	require.EqualValues(t, 1, refresher.calls.Load())
	require.EqualValues(t, 6, b.requests.Load())

	session, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, freshToken, session.AccessToken())
	require.Equal(t, "refresh-1", session.RefreshToken())
}

func TestReplayIsBoundedToOneRetry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(gateway.DefaultExpiryStatus)
	}))
	defer srv.Close()

	refresher := &countingRefresher{}
	g := gateway.New(srv.URL, signedIn(t, staleToken), refresher, gateway.WithLogger(zerolog.Nop()))

	resp, err := get(t, g, srv.URL+"/voices/system")
	require.Nil(t, resp)
	require.ErrorIs(t, err, gateway.ErrSessionExpired)
	require.EqualValues(t, 1, refresher.calls.Load())
}

func TestNonExpiryErrorsPassThrough(t *testing.T) {
	b := newBackend(t)
	b.status = http.StatusInternalServerError
	refresher := &countingRefresher{}
	g := gateway.New(b.server.URL, signedIn(t, freshToken), refresher, gateway.WithLogger(zerolog.Nop()))

	t.Run("raw response is returned unchanged", func(t *testing.T) {
		resp, err := get(t, g, b.server.URL+"/voices/system")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})

	t.Run("json helpers surface a StatusError", func(t *testing.T) {
		err := g.GetJSON(context.Background(), "/voices/system", nil, &struct{}{})
		require.Error(t, err)
		require.Equal(t, http.StatusInternalServerError, gateway.StatusCode(err))
		var se *gateway.StatusError
		require.True(t, errors.As(err, &se))
		require.Equal(t, "ok", se.Message)
	})

	t.Run("network errors", func(t *testing.T) {
		dead := httptest.NewServer(http.NotFoundHandler())
		dead.Close()
		_, err := get(t, g, dead.URL+"/voices/system")
		require.Error(t, err)
	})

	require.Zero(t, refresher.calls.Load())
}

func TestRefreshFailureRejectsAllQueued(t *testing.T) {
	b := newBackend(t)
	cause := stderrors.New("refresh token revoked")
	refresher := &countingRefresher{release: make(chan struct{}), err: cause}
	store := signedIn(t, staleToken)

	var hookCalls atomic.Int32
	g := gateway.New(b.server.URL, store, refresher,
		gateway.WithLogger(zerolog.Nop()),
		gateway.OnSessionExpired(func(err error) {
			hookCalls.Add(1)
		}),
	)

	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() {
			resp, err := get(t, g, b.server.URL+"/voices/system")
			if resp != nil {
				resp.Body.Close()
			}
			errs <- err
		}()
	}
	require.Eventually(t, func() bool { return g.Broker().Pending() == 3 }, 2*time.Second, 5*time.Millisecond)
	close(refresher.release)

	for i := 0; i < 3; i++ {
		err := <-errs
		require.ErrorIs(t, err, gateway.ErrRefreshFailed)
		require.ErrorIs(t, err, cause)
	}
	require.EqualValues(t, 1, refresher.calls.Load())
	require.EqualValues(t, 1, hookCalls.Load())
	require.False(t, g.Broker().Refreshing())

	_, err := store.Load(context.Background())
	require.ErrorIs(t, err, errors.ErrNoSession)

	t.Run("a later expiry starts a new refresh", func(t *testing.T) {
		refresher.err = nil
		require.NoError(t, store.Save(context.Background(), credentials.NewSession(staleToken, "refresh-2", credentials.User{})))
		resp, err := get(t, g, b.server.URL+"/voices/system")
		require.NoError(t, err)
		resp.Body.Close()
		require.EqualValues(t, 2, refresher.calls.Load())
	})
}

func TestRequestBodyIsReplayed(t *testing.T) {
	b := newBackend(t)
	g := gateway.New(b.server.URL, signedIn(t, staleToken), &countingRefresher{}, gateway.WithLogger(zerolog.Nop()))

	var out struct {
		Path string `json:"path"`
	}
	err := g.PostJSON(context.Background(), "/tts/synthesize", map[string]string{"text": "xin chào"}, &out)
	require.NoError(t, err)
	require.Equal(t, "/tts/synthesize", out.Path)

	b.mu.Lock()
	defer b.mu.Unlock()
	require.Len(t, b.bodies, 2)
	require.Equal(t, b.bodies[0], b.bodies[1])
	require.JSONEq(t, `{"text":"xin chào"}`, b.bodies[1])
}

func TestStaleResponseAfterRefreshSkipsSecondRefresh(t *testing.T) {
	b := newBackend(t)
	refresher := &countingRefresher{}
	store := signedIn(t, freshToken)
	g := gateway.New(b.server.URL, store, refresher, gateway.WithLogger(zerolog.Nop()))

	// a request sent with the old token whose 419 arrives after the refresh finished
	resp, err := g.Broker().Enqueue(context.Background(), staleToken, func(ctx context.Context) (*http.Response, error) {
		return get(t, g, b.server.URL+"/voices/system")
	})
	require.NoError(t, err)
	resp.Body.Close()
	require.Zero(t, refresher.calls.Load())
}

func TestCancelledWhileQueued(t *testing.T) {
	b := newBackend(t)
	refresher := &countingRefresher{release: make(chan struct{})}
	g := gateway.New(b.server.URL, signedIn(t, staleToken), refresher, gateway.WithLogger(zerolog.Nop()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, b.server.URL+"/voices/system", nil)
		_, err := g.Do(req)
		done <- err
	}()

	require.Eventually(t, func() bool { return g.Broker().Pending() == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	close(refresher.release)
	require.Eventually(t, func() bool { return !g.Broker().Refreshing() }, 2*time.Second, 5*time.Millisecond)
	require.Zero(t, g.Broker().Pending())
}

type cookieRefresher struct {
	countingRefresher
	hasCookie bool
}

func (r *cookieRefresher) HasCredential() bool { return r.hasCookie }

func TestExpiryReturnedWithoutRefresh(t *testing.T) {
	b := newBackend(t)

	t.Run("credential-issuing request", func(t *testing.T) {
		refresher := &countingRefresher{}
		g := gateway.New(b.server.URL, signedIn(t, staleToken), refresher, gateway.WithLogger(zerolog.Nop()))
		req, err := http.NewRequestWithContext(gateway.WithoutRefresh(context.Background()), http.MethodPost, b.server.URL+"/auth/login", nil)
		require.NoError(t, err)

		resp, err := g.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, gateway.DefaultExpiryStatus, resp.StatusCode)
		require.Zero(t, refresher.calls.Load())
	})

	t.Run("signed out with nothing to refresh from", func(t *testing.T) {
		refresher := &cookieRefresher{}
		g := gateway.New(b.server.URL, credentials.NewInMemoryStore(), refresher, gateway.WithLogger(zerolog.Nop()))
		resp, err := get(t, g, b.server.URL+"/voices")
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, gateway.DefaultExpiryStatus, resp.StatusCode)
		require.Zero(t, refresher.calls.Load())
	})

	t.Run("signed out with a refresh cookie", func(t *testing.T) {
		refresher := &cookieRefresher{hasCookie: true}
		store := credentials.NewInMemoryStore()
		g := gateway.New(b.server.URL, store, refresher, gateway.WithLogger(zerolog.Nop()))
		resp, err := get(t, g, b.server.URL+"/voices")
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.EqualValues(t, 1, refresher.calls.Load())

		session, err := store.Load(context.Background())
		require.NoError(t, err)
		require.Equal(t, freshToken, session.AccessToken())
	})
}
