package identity

import (
	"context"
	"encoding/json"

	"github.com/lipvoice/voice-client/internal/errors"
	"github.com/lipvoice/voice-client/internal/storage"
)

var _ Repo = (*StoreRepo)(nil)

// StoreRepo persists the guest identity in the local store under CookieName,
// expiring with the identity itself.
type StoreRepo struct {
	store *storage.Store
}

func NewStoreRepo(store *storage.Store) *StoreRepo {
	return &StoreRepo{store: store}
}

func (r *StoreRepo) Get(ctx context.Context) (*Guest, error) {
	data, err := r.store.Get(ctx, CookieName)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, errors.ErrNoGuestIdentity
	}
	if err != nil {
		return nil, err
	}
	var g Guest
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, errors.Wrapf(err, "decode guest identity")
	}
	return &g, nil
}

func (r *StoreRepo) Put(ctx context.Context, guest *Guest) error {
	data, err := json.Marshal(guest)
	if err != nil {
		return errors.Wrapf(err, "encode guest identity")
	}
	return r.store.Set(ctx, CookieName, data, guest.ExpiresAt)
}

func (r *StoreRepo) Delete(ctx context.Context) error {
	return r.store.Delete(ctx, CookieName)
}
