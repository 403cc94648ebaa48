package fakeapi

import (
	"net/http"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type userJSON struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type authMetadata struct {
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
	User         userJSON `json:"user"`
}

func (b *Backend) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, "malformed body", nil)
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil || len(req.Password) < 8 || len(strings.TrimSpace(req.Name)) < 2 {
		writeJSON(w, http.StatusBadRequest, "invalid registration details", nil)
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.MinCost)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, "hash failure", nil)
		return
	}

	key := strings.ToLower(req.Email)
	b.mu.Lock()
	if _, exists := b.accounts[key]; exists {
		b.mu.Unlock()
		writeJSON(w, http.StatusConflict, "email already registered", nil)
		return
	}
	acc := &account{ID: uuid.NewString(), Name: req.Name, Email: req.Email, PasswordHash: string(hash)}
	b.accounts[key] = acc
	b.mu.Unlock()

	b.issueSession(w, http.StatusCreated, "registered", acc)
}

func (b *Backend) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, "malformed body", nil)
		return
	}
	b.mu.Lock()
	acc := b.accounts[strings.ToLower(req.Email)]
	b.mu.Unlock()
	if acc == nil || acc.PasswordHash == "" ||
		bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(req.Password)) != nil {
		writeJSON(w, http.StatusUnauthorized, "invalid email or password", nil)
		return
	}
	b.issueSession(w, http.StatusOK, "login successful", acc)
}

func (b *Backend) google(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDToken string `json:"idToken"`
	}
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, "malformed body", nil)
		return
	}
	b.mu.Lock()
	email, ok := b.googleIDs[req.IDToken]
	var acc *account
	if ok {
		key := strings.ToLower(email)
		acc = b.accounts[key]
		if acc == nil {
			acc = &account{ID: uuid.NewString(), Name: email, Email: email}
			b.accounts[key] = acc
		}
	}
	b.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusUnauthorized, "invalid google id token", nil)
		return
	}
	b.issueSession(w, http.StatusOK, "login successful", acc)
}

func (b *Backend) refresh(w http.ResponseWriter, r *http.Request) {
	b.refreshCalls.Add(1)
	cookie, err := r.Cookie(refreshCookie)
	if err != nil || cookie.Value == "" {
		writeJSON(w, http.StatusUnauthorized, "missing refresh token", nil)
		return
	}

	now := b.now()
	b.mu.Lock()
	rec, ok := b.refreshTokens[cookie.Value]
	fail := b.refreshFail
	if ok {
		delete(b.refreshTokens, cookie.Value)
	}
	b.mu.Unlock()
	if fail || !ok || now.After(rec.expiresAt) {
		writeJSON(w, http.StatusUnauthorized, "refresh token invalid or expired", nil)
		return
	}

	access, err := b.mintAccess(rec.userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, "token failure", nil)
		return
	}
	rotated := b.mintRefresh(rec.userID)
	setCookie(w, accessCookie, access, int(b.accessTTL.Seconds()))
	setCookie(w, refreshCookie, rotated, int(b.refreshTTL.Seconds()))
	writeJSON(w, http.StatusOK, "token refreshed", map[string]string{"accessToken": access, "refreshToken": rotated})
}

func (b *Backend) logout(w http.ResponseWriter, r *http.Request) {
	id := userID(r)
	b.mu.Lock()
	for token, rec := range b.refreshTokens {
		if rec.userID == id {
			delete(b.refreshTokens, token)
		}
	}
	b.mu.Unlock()
	setCookie(w, accessCookie, "", -1)
	setCookie(w, refreshCookie, "", -1)
	writeJSON(w, http.StatusOK, "logged out", nil)
}

func (b *Backend) changePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OldPassword string `json:"oldPassword"`
		NewPassword string `json:"newPassword"`
	}
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, "malformed body", nil)
		return
	}
	acc := b.accountByID(userID(r))
	if acc == nil {
		writeJSON(w, http.StatusNotFound, "account not found", nil)
		return
	}
	if len(req.NewPassword) < 8 {
		writeJSON(w, http.StatusBadRequest, "new password too short", nil)
		return
	}

	b.mu.Lock()
	current := acc.PasswordHash
	b.mu.Unlock()
	if current != "" && bcrypt.CompareHashAndPassword([]byte(current), []byte(req.OldPassword)) != nil {
		writeJSON(w, http.StatusBadRequest, "old password is incorrect", nil)
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.MinCost)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, "hash failure", nil)
		return
	}
	b.mu.Lock()
	acc.PasswordHash = string(hash)
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, "password changed", nil)
}

func (b *Backend) issueSession(w http.ResponseWriter, status int, message string, acc *account) {
	access, err := b.mintAccess(acc.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, "token failure", nil)
		return
	}
	refresh := b.mintRefresh(acc.ID)
	setCookie(w, refreshCookie, refresh, int(b.refreshTTL.Seconds()))
	writeJSON(w, status, message, authMetadata{
		AccessToken:  access,
		RefreshToken: refresh,
		User:         userJSON{ID: acc.ID, Username: acc.Name},
	})
}

func setCookie(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}
