package api

import (
	"github.com/lipvoice/voice-client/credentials"
)

// User is the account returned by the auth endpoints.
type User = credentials.User

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type GoogleSignInRequest struct {
	IDToken string `json:"idToken"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword,omitempty"`
	NewPassword string `json:"newPassword"`
}

// AuthResult is the metadata of login, register and Google sign-in responses.
type AuthResult struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	User         User   `json:"user"`
}

type Voice struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language"`
	URL      string `json:"url"`
	Gender   string `json:"gender,omitempty"`
	Style    string `json:"style,omitempty"`
	Region   string `json:"region,omitempty"`
}

// VoiceQuery filters and pages the system voice catalogue. Zero fields are not sent.
type VoiceQuery struct {
	Page     int
	Limit    int
	Name     string
	Gender   string
	Language string
	Style    string
	Region   string
}

type Pagination struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

type VoicePage struct {
	Voices     []Voice    `json:"voices"`
	Pagination Pagination `json:"pagination"`
}

type SynthesizeRequest struct {
	Text    string  `json:"text"`
	VoiceID string  `json:"voiceId"`
	Speed   float64 `json:"speed"`
}

type Synthesis struct {
	AudioURL string  `json:"audioUrl"`
	Duration float64 `json:"duration"`
}

type Transcript struct {
	Text string `json:"text"`
}
