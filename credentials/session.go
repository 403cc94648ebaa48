package credentials

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// Storage keys, matching the names the web front end kept in local storage.
const (
	AccessTokenKey  = "accessToken"
	RefreshTokenKey = "refreshToken"
	UserKey         = "user"
)

// User is the signed-in account as returned by the auth endpoints.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Session is the authenticated credential pair plus the account it belongs to.
type Session struct {
	Token *oauth2.Token `json:"token"`
	User  User          `json:"user"`
}

// NewSession builds a bearer session. The access token expiry is taken from its
// JWT exp claim when it has one; the signature is not checked here.
func NewSession(accessToken, refreshToken string, user User) *Session {
	return &Session{
		Token: &oauth2.Token{
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			TokenType:    "Bearer",
			Expiry:       ExpiryFromJWT(accessToken),
		},
		User: user,
	}
}

// AccessToken returns the bearer token or "" for a nil session.
func (s *Session) AccessToken() string {
	if s == nil || s.Token == nil {
		return ""
	}
	return s.Token.AccessToken
}

// RefreshToken returns the refresh token or "" for a nil session.
func (s *Session) RefreshToken() string {
	if s == nil || s.Token == nil {
		return ""
	}
	return s.Token.RefreshToken
}

// WithToken returns a copy of the session carrying a renewed token. A renewal that
// does not rotate the refresh token keeps the previous one.
func (s *Session) WithToken(tok *oauth2.Token) *Session {
	next := &Session{Token: tok}
	if s != nil {
		next.User = s.User
		if tok.RefreshToken == "" {
			t := *tok
			t.RefreshToken = s.RefreshToken()
			next.Token = &t
		}
	}
	return next
}

// ExpiryFromJWT reads the exp claim without verifying the token. Opaque or
// malformed tokens yield the zero time.
func ExpiryFromJWT(raw string) time.Time {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

// Store holds the current session. Load returns errors.ErrNoSession when signed out.
type Store interface {
	Load(ctx context.Context) (*Session, error)
	Save(ctx context.Context, session *Session) error
	Clear(ctx context.Context) error
}
