package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lipvoice/voice-client/api"
	"github.com/lipvoice/voice-client/credentials"
	"github.com/lipvoice/voice-client/gateway"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestTokenRefresher(t *testing.T) {
	tests := []struct {
		name        string
		handler     http.HandlerFunc
		wantAccess  string
		wantRefresh string
		wantStatus  int
		wantErr     bool
	}{
		{
			name: "access token from cookie",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.SetCookie(w, &http.Cookie{Name: api.AccessTokenCookie, Value: "cookie-access", Path: "/"})
				w.WriteHeader(http.StatusOK)
			},
			wantAccess: "cookie-access",
		},
		{
			name: "access token from body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"message":"ok","status":200,"metadata":{"accessToken":"body-access","refreshToken":"body-refresh"}}`))
			},
			wantAccess:  "body-access",
			wantRefresh: "body-refresh",
		},
		{
			name: "rotated refresh cookie wins over body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.SetCookie(w, &http.Cookie{Name: api.RefreshTokenCookie, Value: "cookie-refresh", Path: "/"})
				_, _ = w.Write([]byte(`{"metadata":{"accessToken":"body-access","refreshToken":"body-refresh"}}`))
			},
			wantAccess:  "body-access",
			wantRefresh: "cookie-refresh",
		},
		{
			name: "no token in response",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"message":"ok","status":200}`))
			},
			wantErr: true,
		},
		{
			name: "rejected",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"message":"refresh token expired","status":401}`))
			},
			wantErr:    true,
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var gotCookie, gotCall string
			var gotBody int64
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotCall = r.Method + " " + r.URL.Path
				if c, err := r.Cookie(api.RefreshTokenCookie); err == nil {
					gotCookie = c.Value
				}
				gotBody = r.ContentLength
				tc.handler(w, r)
			}))
			defer server.Close()

			client, err := api.NewHTTPClient(0)
			require.NoError(t, err)
			refresher := api.NewTokenRefresher(server.URL+"/api/v1", client, api.WithRefresherLogger(zerolog.Nop()))

			session := credentials.NewSession("old-access", "stored-refresh", credentials.User{ID: "u1"})
			tok, err := refresher.Refresh(context.Background(), session)

			require.Equal(t, "POST /api/v1"+api.RefreshPath, gotCall)
			require.Equal(t, "stored-refresh", gotCookie)
			require.Zero(t, gotBody)
			if tc.wantErr {
				require.Error(t, err)
				require.Equal(t, tc.wantStatus, gateway.StatusCode(err))
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantAccess, tok.AccessToken)
			require.Equal(t, tc.wantRefresh, tok.RefreshToken)
			require.Equal(t, "Bearer", tok.TokenType)
		})
	}
}
