package config

import "github.com/lipvoice/voice-client/internal/utils"

type GoogleConfig interface {
	GetGoogleClientID() string
	GetGoogleClientSecret() string
	GetGoogleRedirectURL() string
	GetGoogleIssuer() string
}

type Google struct {
	file *File
}

var _ GoogleConfig = Google{}

func (g Google) GetGoogleClientID() string {
	return GetEnv("GOOGLE_CLIENT_ID", g.overlay().Google.ClientID)
}

func (g Google) GetGoogleClientSecret() string {
	return GetEnv("GOOGLE_CLIENT_SECRET", g.overlay().Google.ClientSecret)
}

func (g Google) GetGoogleRedirectURL() string {
	return GetEnv("GOOGLE_REDIRECT_URL", utils.FirstNonEmpty(g.overlay().Google.RedirectURL, "http://127.0.0.1:8765/callback"))
}

func (g Google) GetGoogleIssuer() string {
	return GetEnv("GOOGLE_ISSUER", utils.FirstNonEmpty(g.overlay().Google.Issuer, "https://accounts.google.com"))
}

func (g Google) overlay() *File {
	if g.file == nil {
		return &File{}
	}
	return g.file
}
