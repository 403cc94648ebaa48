package identity

import (
	"context"
	"sync"

	"github.com/lipvoice/voice-client/internal/errors"
)

var _ Repo = (*InMemoryRepo)(nil)

// InMemoryRepo keeps the guest identity for the life of the process.
type InMemoryRepo struct {
	mu    sync.RWMutex
	guest *Guest
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{}
}

func (r *InMemoryRepo) Get(_ context.Context) (*Guest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.guest == nil {
		return nil, errors.ErrNoGuestIdentity
	}
	g := *r.guest
	return &g, nil
}

func (r *InMemoryRepo) Put(_ context.Context, guest *Guest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g := *guest
	r.guest = &g
	return nil
}

func (r *InMemoryRepo) Delete(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.guest = nil
	return nil
}
