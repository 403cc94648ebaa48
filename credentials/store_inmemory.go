package credentials

import (
	"context"
	"sync"

	"github.com/lipvoice/voice-client/internal/errors"
)

var _ Store = (*InMemoryStore)(nil)

// InMemoryStore keeps the session for the life of the process.
type InMemoryStore struct {
	mu      sync.RWMutex
	session *Session
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Load(_ context.Context) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil, errors.ErrNoSession
	}
	return copySession(s.session), nil
}

func (s *InMemoryStore) Save(_ context.Context, session *Session) error {
	if session == nil || session.Token == nil {
		return errors.Wrapf(errors.ErrInvalidInput, "save session")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = copySession(session)
	return nil
}

func (s *InMemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = nil
	return nil
}

func copySession(s *Session) *Session {
	tok := *s.Token
	return &Session{Token: &tok, User: s.User}
}
