package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/lipvoice/voice-client/credentials"
	"github.com/lipvoice/voice-client/gateway"
	"github.com/lipvoice/voice-client/identity"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const (
	// RefreshPath renews the access token from the refresh-token cookie.
	RefreshPath = "/auth/refresh-token"

	AccessTokenCookie  = credentials.AccessTokenKey
	RefreshTokenCookie = credentials.RefreshTokenKey
)

var (
	_ gateway.Refresher         = (*TokenRefresher)(nil)
	_ gateway.CredentialChecker = (*TokenRefresher)(nil)
)

// TokenRefresher calls the refresh endpoint on the plain transport, never
// through the gateway, so a failing refresh cannot queue behind itself.
type TokenRefresher struct {
	baseURL string
	client  *http.Client
	guests  gateway.GuestSource
	log     zerolog.Logger
}

type RefresherOption func(*TokenRefresher)

func WithRefreshGuests(guests gateway.GuestSource) RefresherOption {
	return func(r *TokenRefresher) {
		r.guests = guests
	}
}

func WithRefresherLogger(logger zerolog.Logger) RefresherOption {
	return func(r *TokenRefresher) {
		r.log = logger
	}
}

func NewTokenRefresher(baseURL string, client *http.Client, options ...RefresherOption) *TokenRefresher {
	if client == nil {
		client = http.DefaultClient
	}
	r := &TokenRefresher{baseURL: baseURL, client: client, log: log.Logger}
	for _, opt := range options {
		opt(r)
	}
	return r
}

type refreshMetadata struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Refresh posts an empty body to the refresh endpoint. The refresh token travels
// as a cookie: the jar's copy if it has one, else the stored session's. The new
// access token is read from the accessToken cookie or from the body metadata.
func (r *TokenRefresher) Refresh(ctx context.Context, session *credentials.Session) (*oauth2.Token, error) {
	endpoint := r.baseURL + RefreshPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, http.NoBody)
	if err != nil {
		return nil, errors.Wrap(err, "[TokenRefresher.Refresh] build request")
	}
	req.Header.Set("Accept", "application/json")

	if rt := session.RefreshToken(); rt != "" && !r.jarHas(endpoint, RefreshTokenCookie) {
		req.AddCookie(&http.Cookie{Name: RefreshTokenCookie, Value: rt})
	}
	if r.guests != nil {
		if id, err := r.guests.Ensure(ctx); err == nil {
			req.Header.Set(identity.HeaderGuestID, id)
		}
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "[TokenRefresher.Refresh] send")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, gateway.ReadStatusError(resp)
	}

	var md refreshMetadata
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "[TokenRefresher.Refresh] read body")
	}
	if len(body) > 0 {
		var env gateway.Envelope
		if err := json.Unmarshal(body, &env); err == nil && len(env.Metadata) > 0 {
			_ = json.Unmarshal(env.Metadata, &md)
		}
	}
	for _, c := range resp.Cookies() {
		switch c.Name {
		case AccessTokenCookie:
			md.AccessToken = c.Value
		case RefreshTokenCookie:
			md.RefreshToken = c.Value
		}
	}
	if md.AccessToken == "" {
		return nil, errors.New("[TokenRefresher.Refresh] response carried no access token")
	}

	r.log.Debug().Bool("rotated", md.RefreshToken != "").Msg("access token refreshed")
	return &oauth2.Token{
		AccessToken:  md.AccessToken,
		RefreshToken: md.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       credentials.ExpiryFromJWT(md.AccessToken),
	}, nil
}

// HasCredential reports whether the cookie jar holds a refresh token, which is
// enough to renew after the stored session is gone.
func (r *TokenRefresher) HasCredential() bool {
	return r.jarHas(r.baseURL+RefreshPath, RefreshTokenCookie)
}

func (r *TokenRefresher) jarHas(endpoint, name string) bool {
	if r.client.Jar == nil {
		return false
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return false
	}
	for _, c := range r.client.Jar.Cookies(u) {
		if c.Name == name {
			return true
		}
	}
	return false
}
