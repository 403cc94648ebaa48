package gateway

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/lipvoice/voice-client/credentials"
	"github.com/lipvoice/voice-client/identity"
	"github.com/lipvoice/voice-client/internal/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/metric"
)

// DefaultExpiryStatus is the status the backend answers with when the access token expired.
const DefaultExpiryStatus = 419

// GuestSource supplies the guest identity attached to outbound requests.
type GuestSource interface {
	Ensure(ctx context.Context) (string, error)
}

// CredentialChecker is implemented by refreshers that can renew without a stored
// session, for example from a refresh-token cookie held in a jar.
type CredentialChecker interface {
	HasCredential() bool
}

type noRefreshKey struct{}

// WithoutRefresh marks requests made with ctx as credential-issuing (login,
// register): an expiry-status answer is returned as is instead of starting a refresh.
func WithoutRefresh(ctx context.Context) context.Context {
	return context.WithValue(ctx, noRefreshKey{}, true)
}

func refreshAllowed(ctx context.Context) bool {
	skip, _ := ctx.Value(noRefreshKey{}).(bool)
	return !skip
}

// Gateway issues API calls with identity headers and recovers transparently
// from access-token expiry.
type Gateway struct {
	baseURL        string
	client         *http.Client
	store          credentials.Store
	refresher      Refresher
	guests         GuestSource
	broker         *Broker
	expiryStatus   int
	refreshTimeout time.Duration
	onExpired      func(error)
	meterProvider  metric.MeterProvider
	log            zerolog.Logger
}

type Option func(*Gateway)

func WithHTTPClient(client *http.Client) Option {
	return func(g *Gateway) {
		g.client = client
	}
}

func WithGuestIdentity(guests GuestSource) Option {
	return func(g *Gateway) {
		g.guests = guests
	}
}

// WithExpiryStatus sets the single status code that triggers refresh-and-retry.
func WithExpiryStatus(status int) Option {
	return func(g *Gateway) {
		g.expiryStatus = status
	}
}

func WithRefreshTimeout(timeout time.Duration) Option {
	return func(g *Gateway) {
		g.refreshTimeout = timeout
	}
}

// OnSessionExpired registers the hook run when a refresh fails and the session is dropped.
func OnSessionExpired(hook func(error)) Option {
	return func(g *Gateway) {
		g.onExpired = hook
	}
}

func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(g *Gateway) {
		g.meterProvider = provider
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(g *Gateway) {
		g.log = logger
	}
}

// New creates a Gateway rooted at baseURL (e.g. "http://localhost:3000/api/v1").
func New(baseURL string, store credentials.Store, refresher Refresher, options ...Option) *Gateway {
	g := &Gateway{
		baseURL:        baseURL,
		client:         &http.Client{Timeout: 10 * time.Second},
		store:          store,
		refresher:      refresher,
		expiryStatus:   DefaultExpiryStatus,
		refreshTimeout: 15 * time.Second,
		log:            log.Logger,
	}
	for _, opt := range options {
		opt(g)
	}
	g.broker = NewBroker(refresher, store,
		WithBrokerTimeout(g.refreshTimeout),
		WithSessionExpired(g.onExpired),
		WithBrokerLogger(g.log),
		withBrokerMetrics(newMetrics(g.meterProvider, g.log)),
	)
	return g
}

// BaseURL returns the API root.
func (g *Gateway) BaseURL() string {
	return g.baseURL
}

// HTTPClient returns the underlying client without identity handling, for
// calls that must not carry credentials (refresh, third-party downloads).
func (g *Gateway) HTTPClient() *http.Client {
	return g.client
}

// Broker exposes the credential broker (for status and tests).
func (g *Gateway) Broker() *Broker {
	return g.broker
}

// Do sends req with identity headers. A response carrying the expiry status is
// not returned: the request is parked behind a single refresh and replayed once.
// Requests marked WithoutRefresh, and unauthenticated requests with no refresh
// credential to fall back on, get the expiry response back unchanged, as does
// any other response or transport error.
func (g *Gateway) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	body, err := snapshotBody(req)
	if err != nil {
		return nil, err
	}

	attempt, used, err := g.prepare(ctx, req, body)
	if err != nil {
		return nil, err
	}
	resp, err := g.client.Do(attempt)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != g.expiryStatus || !g.recoverable(ctx, used) {
		return resp, nil
	}
	discard(resp)

	g.log.Debug().Str("method", req.Method).Str("path", req.URL.Path).Int("status", resp.StatusCode).Msg("access token expired")
	return g.broker.Enqueue(ctx, used, func(ctx context.Context) (*http.Response, error) {
		return g.retry(ctx, req, body)
	})
}

// recoverable reports whether a refresh could fix an expiry answer to a request
// sent with the access token used.
func (g *Gateway) recoverable(ctx context.Context, used string) bool {
	if !refreshAllowed(ctx) {
		return false
	}
	if used != "" {
		return true
	}
	checker, ok := g.refresher.(CredentialChecker)
	return ok && checker.HasCredential()
}

func (g *Gateway) retry(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	attempt, _, err := g.prepare(ctx, req, body)
	if err != nil {
		return nil, err
	}
	resp, err := g.client.Do(attempt)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == g.expiryStatus {
		discard(resp)
		return nil, errors.Wrapf(ErrSessionExpired, "%s %s still expired after refresh", req.Method, req.URL.Path)
	}
	return resp, nil
}

// prepare clones req for one attempt and attaches the guest id and bearer token.
// It returns the access token used, "" when unauthenticated.
func (g *Gateway) prepare(ctx context.Context, req *http.Request, body []byte) (*http.Request, string, error) {
	r := req.Clone(ctx)
	if body != nil {
		r.Body = io.NopCloser(bytes.NewReader(body))
		r.ContentLength = int64(len(body))
	}

	if g.guests != nil {
		if id, err := g.guests.Ensure(ctx); err != nil {
			g.log.Warn().Err(err).Msg("guest identity unavailable")
		} else {
			r.Header.Set(identity.HeaderGuestID, id)
		}
	}

	session, err := g.store.Load(ctx)
	if errors.Is(err, errors.ErrNoSession) {
		return r, "", nil
	}
	if err != nil {
		return nil, "", errors.Wrapf(err, "load session")
	}
	session.Token.SetAuthHeader(r)
	return r, session.AccessToken(), nil
}

func snapshotBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer req.Body.Close()
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "read request body")
	}
	return body, nil
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
