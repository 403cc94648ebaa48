package identity

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lipvoice/voice-client/internal/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Manager hands out the guest identity, creating it on first use.
type Manager struct {
	repo     Repo
	lifetime time.Duration
	nowFunc  func() time.Time
	newID    func() string
	log      zerolog.Logger

	// mu serializes Ensure so concurrent first requests share one identity
	mu sync.Mutex
}

type ManagerOption func(*Manager)

func WithLifetime(lifetime time.Duration) ManagerOption {
	return func(m *Manager) {
		m.lifetime = lifetime
	}
}

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func WithIDGenerator(newID func() string) ManagerOption {
	return func(m *Manager) {
		m.newID = newID
	}
}

func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.log = logger
	}
}

func NewManager(repo Repo, options ...ManagerOption) *Manager {
	m := &Manager{
		repo:     repo,
		lifetime: DefaultLifetime,
		nowFunc:  time.Now,
		newID:    func() string { return uuid.New().String() },
		log:      log.Logger,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// Ensure returns the current guest id, generating and persisting one when it is
// absent or past its lifetime. An existing identity is never rotated.
func (m *Manager) Ensure(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFunc()
	g, err := m.repo.Get(ctx)
	switch {
	case err == nil && !g.Expired(now):
		return g.ID, nil
	case err != nil && !errors.Is(err, errors.ErrNoGuestIdentity):
		return "", errors.Wrapf(err, "load guest identity")
	}

	g = &Guest{
		ID:        m.newID(),
		CreatedAt: now,
		ExpiresAt: now.Add(m.lifetime),
	}
	if err := m.repo.Put(ctx, g); err != nil {
		return "", errors.Wrapf(err, "store guest identity")
	}
	m.log.Debug().Str("guest_id", g.ID).Time("expires_at", g.ExpiresAt).Msg("created guest identity")
	return g.ID, nil
}

// Current returns the stored guest id without creating one.
func (m *Manager) Current(ctx context.Context) (string, bool) {
	g, err := m.repo.Get(ctx)
	if err != nil || g.Expired(m.nowFunc()) {
		return "", false
	}
	return g.ID, true
}

// Clear forgets the guest identity; the next Ensure creates a new one.
func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repo.Delete(ctx)
}
