// Package social runs the Google sign-in code flow on the client and hands the
// verified ID token to the LipVoice backend.
package social

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/lipvoice/voice-client/credentials"
	"github.com/lipvoice/voice-client/internal/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const pendingTTL = 10 * time.Minute

// Verifier checks an ID token's signature, issuer, audience and expiry.
// *oidc.IDTokenVerifier satisfies it.
type Verifier interface {
	Verify(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)
}

// Exchanger trades a verified Google ID token for a LipVoice session.
// *api.AuthService satisfies it.
type Exchanger interface {
	GoogleSignIn(ctx context.Context, idToken string) (*credentials.Session, error)
}

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Issuer       string
}

type pending struct {
	redirectURL  string
	codeVerifier string
	nonce        string
	createdAt    time.Time
}

// GoogleSignIn holds the in-flight authorization requests keyed by state.
type GoogleSignIn struct {
	oauth    *oauth2.Config
	verifier Verifier
	backend  Exchanger
	log      zerolog.Logger
	nowFunc  func() time.Time

	mu      sync.Mutex
	pending map[string]pending
}

type Option func(*GoogleSignIn)

func WithLogger(logger zerolog.Logger) Option {
	return func(g *GoogleSignIn) {
		g.log = logger
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(g *GoogleSignIn) {
		g.nowFunc = now
	}
}

// NewGoogle discovers the issuer's endpoints and keys.
func NewGoogle(ctx context.Context, cfg Config, backend Exchanger, options ...Option) (*GoogleSignIn, error) {
	if cfg.ClientID == "" {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "google sign-in: client id is required")
	}
	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create OIDC provider")
	}
	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  cfg.RedirectURL,
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	return New(oauthCfg, verifier, backend, options...), nil
}

// New builds the flow over explicit endpoints and verifier.
func New(oauthCfg *oauth2.Config, verifier Verifier, backend Exchanger, options ...Option) *GoogleSignIn {
	g := &GoogleSignIn{
		oauth:    oauthCfg,
		verifier: verifier,
		backend:  backend,
		log:      log.Logger,
		nowFunc:  time.Now,
		pending:  map[string]pending{},
	}
	for _, opt := range options {
		opt(g)
	}
	return g
}

// AuthCodeURL starts a sign-in: it returns the URL to open in a browser and the
// state that the callback must echo back.
func (g *GoogleSignIn) AuthCodeURL() (string, string) {
	return g.authCodeURL(g.oauth.RedirectURL)
}

func (g *GoogleSignIn) authCodeURL(redirectURL string) (string, string) {
	state := randomString(24)
	p := pending{
		redirectURL:  redirectURL,
		codeVerifier: oauth2.GenerateVerifier(),
		nonce:        randomString(24),
		createdAt:    g.nowFunc(),
	}

	g.mu.Lock()
	g.prune()
	g.pending[state] = p
	g.mu.Unlock()

	url := g.config(redirectURL).AuthCodeURL(state,
		oauth2.S256ChallengeOption(p.codeVerifier),
		oidc.Nonce(p.nonce),
	)
	return url, state
}

// config returns the oauth2 settings with the redirect the flow was started with.
func (g *GoogleSignIn) config(redirectURL string) *oauth2.Config {
	c := *g.oauth
	c.RedirectURL = redirectURL
	return &c
}

// Complete finishes the flow for state: code exchange with the PKCE verifier,
// ID token verification and nonce check, then the backend exchange.
func (g *GoogleSignIn) Complete(ctx context.Context, state, code string) (*credentials.Session, error) {
	g.mu.Lock()
	p, ok := g.pending[state]
	delete(g.pending, state)
	g.mu.Unlock()
	if !ok || g.nowFunc().Sub(p.createdAt) > pendingTTL {
		return nil, errors.Wrapf(errors.ErrInvalidState, "unknown or expired sign-in state")
	}
	if code == "" {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "missing authorization code")
	}

	tok, err := g.config(p.redirectURL).Exchange(ctx, code, oauth2.VerifierOption(p.codeVerifier))
	if err != nil {
		return nil, errors.Wrapf(err, "token exchange failed")
	}
	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "no ID token in response")
	}

	idToken, err := g.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, errors.Wrapf(err, "ID token verification failed")
	}
	if idToken.Nonce != p.nonce {
		return nil, errors.Wrapf(errors.ErrInvalidState, "invalid nonce")
	}

	session, err := g.backend.GoogleSignIn(ctx, rawIDToken)
	if err != nil {
		return nil, errors.Wrapf(err, "backend google sign-in")
	}
	g.log.Info().Str("subject", idToken.Subject).Msg("google sign-in complete")
	return session, nil
}

// prune must be called with mu held.
func (g *GoogleSignIn) prune() {
	now := g.nowFunc()
	for state, p := range g.pending {
		if now.Sub(p.createdAt) > pendingTTL {
			delete(g.pending, state)
		}
	}
}

func randomString(length int) string {
	b := make([]byte, length)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
