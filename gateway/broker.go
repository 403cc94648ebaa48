package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/lipvoice/voice-client/credentials"
	"github.com/lipvoice/voice-client/internal/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// Refresher exchanges the refresh credential for a new access token. session is
// nil when nothing is stored; implementations may still succeed using a cookie.
type Refresher interface {
	Refresh(ctx context.Context, session *credentials.Session) (*oauth2.Token, error)
}

// RefresherFunc adapts a function to Refresher.
type RefresherFunc func(ctx context.Context, session *credentials.Session) (*oauth2.Token, error)

func (f RefresherFunc) Refresh(ctx context.Context, session *credentials.Session) (*oauth2.Token, error) {
	return f(ctx, session)
}

// ReplayFunc reissues a request that hit the expiry status. It is called at most once.
type ReplayFunc func(ctx context.Context) (*http.Response, error)

type outcome struct {
	resp *http.Response
	err  error
}

type waiter struct {
	ctx    context.Context
	replay ReplayFunc
	done   chan outcome
}

// Broker owns the refresh-in-progress flag and the queue of requests waiting on it.
// At most one refresh runs at a time; every queued request is resolved exactly once.
type Broker struct {
	refresher Refresher
	store     credentials.Store
	timeout   time.Duration
	onExpired func(error)
	log       zerolog.Logger
	metrics   *metrics

	mu         sync.Mutex
	refreshing bool
	queue      []*waiter
}

type BrokerOption func(*Broker)

func WithBrokerTimeout(timeout time.Duration) BrokerOption {
	return func(b *Broker) {
		b.timeout = timeout
	}
}

// WithSessionExpired registers a hook called once per failed refresh, after the
// stored session has been cleared. Typically used to send the user to login.
func WithSessionExpired(hook func(error)) BrokerOption {
	return func(b *Broker) {
		b.onExpired = hook
	}
}

func WithBrokerLogger(logger zerolog.Logger) BrokerOption {
	return func(b *Broker) {
		b.log = logger
	}
}

func withBrokerMetrics(m *metrics) BrokerOption {
	return func(b *Broker) {
		b.metrics = m
	}
}

func NewBroker(refresher Refresher, store credentials.Store, options ...BrokerOption) *Broker {
	b := &Broker{
		refresher: refresher,
		store:     store,
		timeout:   15 * time.Second,
		log:       log.Logger,
	}
	for _, opt := range options {
		opt(b)
	}
	if b.metrics == nil {
		b.metrics = newMetrics(nil, b.log)
	}
	return b
}

// Enqueue parks a request whose credential expired. staleToken is the access token
// the request was sent with. If the stored token has already moved on, the request
// is replayed straight away; otherwise it waits for the refresh in flight, starting
// one if none is running.
func (b *Broker) Enqueue(ctx context.Context, staleToken string, replay ReplayFunc) (*http.Response, error) {
	b.mu.Lock()
	if !b.refreshing && b.renewedSince(ctx, staleToken) {
		b.mu.Unlock()
		b.metrics.replays.Add(ctx, 1)
		return replay(ctx)
	}

	w := &waiter{ctx: ctx, replay: replay, done: make(chan outcome, 1)}
	b.queue = append(b.queue, w)
	start := !b.refreshing
	b.refreshing = true
	b.mu.Unlock()

	b.metrics.queued.Add(ctx, 1)
	if start {
		go b.refresh(context.WithoutCancel(ctx))
	}

	select {
	case o := <-w.done:
		return o.resp, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Refreshing reports whether a refresh is in flight.
func (b *Broker) Refreshing() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refreshing
}

// Pending returns the number of queued requests.
func (b *Broker) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// renewedSince must be called with mu held.
func (b *Broker) renewedSince(ctx context.Context, staleToken string) bool {
	if staleToken == "" {
		return false
	}
	session, err := b.store.Load(ctx)
	if err != nil {
		return false
	}
	current := session.AccessToken()
	return current != "" && current != staleToken
}

func (b *Broker) refresh(ctx context.Context) {
	b.metrics.refreshes.Add(ctx, 1)
	err := b.renew(ctx)

	b.mu.Lock()
	queue := b.queue
	b.queue = nil
	b.refreshing = false
	b.mu.Unlock()

	if err != nil {
		b.reject(ctx, queue, err)
		return
	}
	b.log.Debug().Int("queued", len(queue)).Msg("credential refreshed, replaying queued requests")
	for _, w := range queue {
		w.done <- b.replay(w)
	}
}

func (b *Broker) renew(ctx context.Context) error {
	rctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	session, err := b.store.Load(rctx)
	if err != nil && !errors.Is(err, errors.ErrNoSession) {
		return errors.Wrapf(err, "load session")
	}
	if errors.Is(err, errors.ErrNoSession) {
		session = nil
	}

	tok, err := b.refresher.Refresh(rctx, session)
	if err != nil {
		return err
	}
	if tok == nil || tok.AccessToken == "" {
		return errors.Wrapf(errors.ErrInvalidInput, "refresh returned no access token")
	}
	return b.store.Save(ctx, session.WithToken(tok))
}

func (b *Broker) reject(ctx context.Context, queue []*waiter, cause error) {
	b.metrics.refreshFailures.Add(ctx, 1)
	b.log.Warn().Err(cause).Int("queued", len(queue)).Msg("credential refresh failed")

	if err := b.store.Clear(ctx); err != nil {
		b.log.Error().Err(err).Msg("failed to clear session after refresh failure")
	}

	err := errors.Join(ErrRefreshFailed, cause)
	if b.onExpired != nil {
		b.onExpired(err)
	}
	for _, w := range queue {
		w.done <- outcome{err: err}
	}
}

func (b *Broker) replay(w *waiter) outcome {
	if err := w.ctx.Err(); err != nil {
		return outcome{err: err}
	}
	b.metrics.replays.Add(w.ctx, 1)
	resp, err := w.replay(w.ctx)
	if w.ctx.Err() != nil && resp != nil {
		// caller stopped waiting; nobody will read this body
		resp.Body.Close()
		return outcome{err: w.ctx.Err()}
	}
	return outcome{resp: resp, err: err}
}
