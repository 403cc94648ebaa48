// Package fakeapi is an in-process stand-in for the LipVoice REST backend, used by tests
// and local demos. It mints short-lived HS256 access tokens and answers expired ones
// with the expiry status, so the refresh path can be driven end to end.
package fakeapi

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

const (
	BasePath = "/api/v1"

	DefaultExpiryStatus = 419
	DefaultAccessTTL    = 15 * time.Minute
	DefaultRefreshTTL   = 7 * 24 * time.Hour

	accessCookie  = "accessToken"
	refreshCookie = "refreshToken"
	guestHeader   = "x-guest-id"
)

type account struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
}

type refreshRecord struct {
	userID    string
	expiresAt time.Time
}

// Backend holds the fake's accounts, tokens and voice catalogue.
type Backend struct {
	key          []byte
	expiryStatus int
	accessTTL    time.Duration
	refreshTTL   time.Duration

	mu            sync.Mutex
	offset        time.Duration
	accounts      map[string]*account // by email
	refreshTokens map[string]refreshRecord
	googleIDs     map[string]string // id token -> email
	voices        []Voice
	audio         map[string][]byte
	guestIDs      []string
	refreshFail   bool

	refreshCalls atomic.Int32
	requests     atomic.Int32
}

type Option func(*Backend)

func WithExpiryStatus(status int) Option {
	return func(b *Backend) {
		b.expiryStatus = status
	}
}

func WithAccessTTL(ttl time.Duration) Option {
	return func(b *Backend) {
		b.accessTTL = ttl
	}
}

func WithVoices(voices []Voice) Option {
	return func(b *Backend) {
		b.voices = voices
	}
}

func New(options ...Option) *Backend {
	key := make([]byte, 32)
	_, _ = rand.Read(key)
	b := &Backend{
		key:           key,
		expiryStatus:  DefaultExpiryStatus,
		accessTTL:     DefaultAccessTTL,
		refreshTTL:    DefaultRefreshTTL,
		accounts:      map[string]*account{},
		refreshTokens: map[string]refreshRecord{},
		googleIDs:     map[string]string{},
		voices:        SeedVoices(),
		audio:         map[string][]byte{},
	}
	for _, opt := range options {
		opt(b)
	}
	return b
}

// Handler serves the API under BasePath.
func (b *Backend) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+BasePath+"/auth/register", b.register)
	mux.HandleFunc("POST "+BasePath+"/auth/login", b.login)
	mux.HandleFunc("POST "+BasePath+"/auth/google", b.google)
	mux.HandleFunc("POST "+BasePath+"/auth/refresh-token", b.refresh)
	mux.Handle("POST "+BasePath+"/auth/logout", b.requireAuth(b.logout))
	mux.Handle("POST "+BasePath+"/auth/change-password", b.requireAuth(b.changePassword))
	mux.HandleFunc("GET "+BasePath+"/voices/system", b.systemVoices)
	mux.HandleFunc("GET "+BasePath+"/voices/{id}", b.voice)
	mux.Handle("POST "+BasePath+"/tts/synthesize", b.requireAuth(b.synthesize))
	mux.Handle("POST "+BasePath+"/stt/transcribe", b.requireAuth(b.transcribe))
	mux.Handle("GET "+BasePath+"/audio/{name}", b.requireAuth(b.downloadAudio))
	return b.track(mux)
}

// Advance moves the backend clock forward, e.g. past the access token lifetime.
func (b *Backend) Advance(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.offset += d
}

// FailRefresh makes the refresh endpoint reject every call while on.
func (b *Backend) FailRefresh(on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshFail = on
}

// AddGoogleIdentity registers an ID token the /auth/google endpoint will accept.
func (b *Backend) AddGoogleIdentity(idToken, email string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.googleIDs[idToken] = email
}

// AddAccount creates an account directly, skipping the register endpoint.
func (b *Backend) AddAccount(name, email, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return errors.Wrap(err, "hash password")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accounts[strings.ToLower(email)] = &account{ID: uuid.NewString(), Name: name, Email: email, PasswordHash: string(hash)}
	return nil
}

func (b *Backend) RefreshCalls() int {
	return int(b.refreshCalls.Load())
}

func (b *Backend) Requests() int {
	return int(b.requests.Load())
}

// GuestIDs returns the x-guest-id header of every request received, "" when absent.
func (b *Backend) GuestIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.guestIDs...)
}

func (b *Backend) now() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return time.Now().Add(b.offset)
}

func (b *Backend) track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.requests.Add(1)
		b.mu.Lock()
		b.guestIDs = append(b.guestIDs, r.Header.Get(guestHeader))
		b.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

type ctxKey struct{}

// requireAuth answers the expiry status for an expired bearer and 401 for any
// other missing or invalid one.
func (b *Backend) requireAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeJSON(w, http.StatusUnauthorized, "missing bearer token", nil)
			return
		}
		claims := jwt.RegisteredClaims{}
		_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
			return b.key, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(b.now))
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			writeJSON(w, b.expiryStatus, "access token expired", nil)
			return
		case err != nil:
			writeJSON(w, http.StatusUnauthorized, "invalid access token", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, claims.Subject)))
	})
}

func userID(r *http.Request) string {
	id, _ := r.Context().Value(ctxKey{}).(string)
	return id
}

func (b *Backend) accountByID(id string) *account {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, a := range b.accounts {
		if a.ID == id {
			return a
		}
	}
	return nil
}

func (b *Backend) mintAccess(userID string) (string, error) {
	now := b.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(b.accessTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.key)
}

func (b *Backend) mintRefresh(userID string) string {
	token := uuid.NewString()
	expires := b.now().Add(b.refreshTTL)
	b.mu.Lock()
	b.refreshTokens[token] = refreshRecord{userID: userID, expiresAt: expires}
	b.mu.Unlock()
	return token
}

func writeJSON(w http.ResponseWriter, status int, message string, metadata any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := map[string]any{"message": message, "status": status}
	if metadata != nil {
		body["metadata"] = metadata
	}
	_ = json.NewEncoder(w).Encode(body)
}

func decode(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
