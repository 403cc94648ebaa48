package identity

import (
	"context"
	"time"
)

// HeaderGuestID carries the guest identity on outbound requests.
const HeaderGuestID = "x-guest-id"

// CookieName is the name the guest identity is persisted under.
const CookieName = "guest_id"

// DefaultLifetime matches the one-year guest cookie.
const DefaultLifetime = 365 * 24 * time.Hour

// Guest is the client-generated identity used before login.
type Guest struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the guest identity is past its lifetime at now.
func (g Guest) Expired(now time.Time) bool {
	return !g.ExpiresAt.IsZero() && !now.Before(g.ExpiresAt)
}

// Repo persists the single guest identity of this client.
// Get returns ErrNotFound when nothing is stored.
type Repo interface {
	Get(ctx context.Context) (*Guest, error)
	Put(ctx context.Context, guest *Guest) error
	Delete(ctx context.Context) error
}
