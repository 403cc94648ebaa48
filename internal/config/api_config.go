package config

import (
	"strconv"
	"time"

	"github.com/lipvoice/voice-client/internal/utils"
)

const (
	baseURLVar        = "API_BASE_URL"
	requestTimeoutVar = "API_TIMEOUT"
	refreshTimeoutVar = "REFRESH_TIMEOUT"
	expiryStatusVar   = "EXPIRY_STATUS_CODE"

	// DefaultExpiryStatusCode is the status the backend uses for an expired access token.
	DefaultExpiryStatusCode = 419
)

type APIConfig interface {
	GetBaseURL() string
	GetRequestTimeout() time.Duration
	GetRefreshTimeout() time.Duration
	GetExpiryStatusCode() int
	GetGuestLifetime() time.Duration
}

type API struct {
	file *File
}

var _ APIConfig = API{}

func (a API) GetBaseURL() string {
	return GetEnv(baseURLVar, utils.FirstNonEmpty(a.overlay().BaseURL, "http://localhost:3000/api/v1"))
}

func (a API) GetRequestTimeout() time.Duration {
	return parseDuration(GetEnv(requestTimeoutVar, a.overlay().RequestTimeout), 10*time.Second)
}

func (a API) GetRefreshTimeout() time.Duration {
	return parseDuration(GetEnv(refreshTimeoutVar, a.overlay().RefreshTimeout), 15*time.Second)
}

// GetExpiryStatusCode returns the single status treated as "access token expired".
// Older backends used 401; only one convention applies at a time.
func (a API) GetExpiryStatusCode() int {
	if v := GetEnv(expiryStatusVar, ""); v != "" {
		if code, err := strconv.Atoi(v); err == nil && code >= 400 && code < 500 {
			return code
		}
	}
	if code := a.overlay().ExpiryStatusCode; code >= 400 && code < 500 {
		return code
	}
	return DefaultExpiryStatusCode
}

func (API) GetGuestLifetime() time.Duration {
	return 365 * 24 * time.Hour
}

func (a API) overlay() *File {
	if a.file == nil {
		return &File{}
	}
	return a.file
}

func parseDuration(v string, def time.Duration) time.Duration {
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
