package api

import (
	"context"

	"github.com/lipvoice/voice-client/credentials"
	"github.com/lipvoice/voice-client/gateway"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	LoginPath          = "/auth/login"
	RegisterPath       = "/auth/register"
	GoogleSignInPath   = "/auth/google"
	LogoutPath         = "/auth/logout"
	ChangePasswordPath = "/auth/change-password"
)

// AuthService signs the user in and out and keeps the credential store in step.
type AuthService struct {
	gateway *gateway.Gateway
	store   credentials.Store
	log     zerolog.Logger
}

func NewAuthService(g *gateway.Gateway, store credentials.Store, logger zerolog.Logger) *AuthService {
	return &AuthService{gateway: g, store: store, log: logger}
}

// Login exchanges email and password for a session and stores it.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*credentials.Session, error) {
	return s.authenticate(ctx, LoginPath, req)
}

// Register creates the account and signs it in.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*credentials.Session, error) {
	return s.authenticate(ctx, RegisterPath, req)
}

// GoogleSignIn hands a verified Google ID token to the backend for a session.
func (s *AuthService) GoogleSignIn(ctx context.Context, idToken string) (*credentials.Session, error) {
	if idToken == "" {
		return nil, errors.Wrap(ErrInvalidInput, "[AuthService.GoogleSignIn] id token is required")
	}
	return s.authenticate(ctx, GoogleSignInPath, GoogleSignInRequest{IDToken: idToken})
}

// Logout tells the backend and always drops the local session, even when the
// call fails. The call's error is still returned.
func (s *AuthService) Logout(ctx context.Context) error {
	callErr := s.gateway.PostJSON(ctx, LogoutPath, nil, nil)
	if callErr != nil {
		s.log.Warn().Err(callErr).Msg("logout call failed, clearing local session anyway")
	}
	if err := s.store.Clear(ctx); err != nil {
		return errors.Wrap(err, "[AuthService.Logout] clear session")
	}
	if callErr != nil {
		return errors.Wrap(callErr, "[AuthService.Logout]")
	}
	return nil
}

// ChangePassword updates the signed-in account's password. OldPassword may be
// empty for accounts created through Google that never had one.
func (s *AuthService) ChangePassword(ctx context.Context, req ChangePasswordRequest) error {
	if err := s.gateway.PostJSON(ctx, ChangePasswordPath, req, nil); err != nil {
		return errors.Wrap(err, "[AuthService.ChangePassword]")
	}
	return nil
}

// Current returns the stored session; errors.ErrNoSession when signed out.
func (s *AuthService) Current(ctx context.Context) (*credentials.Session, error) {
	return s.store.Load(ctx)
}

// authenticate posts to a credential-issuing endpoint. Its failures are the
// caller's to see, never a reason to refresh.
func (s *AuthService) authenticate(ctx context.Context, path string, body any) (*credentials.Session, error) {
	var result AuthResult
	if err := s.gateway.PostJSON(gateway.WithoutRefresh(ctx), path, body, &result); err != nil {
		return nil, errors.Wrapf(err, "[AuthService] %s", path)
	}
	if result.AccessToken == "" {
		return nil, errors.Errorf("[AuthService] %s: response carried no access token", path)
	}

	session := credentials.NewSession(result.AccessToken, result.RefreshToken, result.User)
	if err := s.store.Save(ctx, session); err != nil {
		return nil, errors.Wrap(err, "[AuthService] save session")
	}
	s.log.Info().Str("user_id", result.User.ID).Str("username", result.User.Username).Msg("signed in")
	return session, nil
}
