package credentials

import (
	"context"
	"encoding/json"

	"github.com/lipvoice/voice-client/internal/errors"
	"github.com/lipvoice/voice-client/internal/storage"
)

var _ Store = (*LocalStore)(nil)

// LocalStore persists the session in the local store using the same three keys
// the web client used: accessToken, refreshToken and user.
type LocalStore struct {
	store *storage.Store
}

func NewLocalStore(store *storage.Store) *LocalStore {
	return &LocalStore{store: store}
}

func (s *LocalStore) Load(ctx context.Context) (*Session, error) {
	access, err := s.store.Get(ctx, AccessTokenKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, errors.ErrNoSession
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load access token")
	}

	refresh, err := s.store.Get(ctx, RefreshTokenKey)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, errors.Wrapf(err, "load refresh token")
	}

	var user User
	if raw, err := s.store.Get(ctx, UserKey); err == nil {
		if err := json.Unmarshal(raw, &user); err != nil {
			return nil, errors.Wrapf(err, "decode user")
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, errors.Wrapf(err, "load user")
	}

	return NewSession(string(access), string(refresh), user), nil
}

func (s *LocalStore) Save(ctx context.Context, session *Session) error {
	if session == nil || session.Token == nil {
		return errors.Wrapf(errors.ErrInvalidInput, "save session")
	}
	user, err := json.Marshal(session.User)
	if err != nil {
		return errors.Wrapf(err, "encode user")
	}
	entries := []storage.Entry{
		{Key: AccessTokenKey, Value: []byte(session.AccessToken())},
		{Key: UserKey, Value: user},
	}
	var deletes []string
	if rt := session.RefreshToken(); rt != "" {
		entries = append(entries, storage.Entry{Key: RefreshTokenKey, Value: []byte(rt)})
	} else {
		deletes = append(deletes, RefreshTokenKey)
	}
	return s.store.SetBatch(ctx, entries, deletes...)
}

func (s *LocalStore) Clear(ctx context.Context) error {
	return s.store.DeleteBatch(ctx, AccessTokenKey, RefreshTokenKey, UserKey)
}
