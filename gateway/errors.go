package gateway

import (
	"fmt"

	"github.com/lipvoice/voice-client/internal/errors"
)

var (
	// ErrRefreshFailed is returned to every request queued behind a failed refresh.
	// errors.Is also matches the refresher's own error.
	ErrRefreshFailed = errors.ErrRefreshFailed
	// ErrSessionExpired is returned when a replayed request hits the expiry status again.
	ErrSessionExpired = errors.ErrSessionExpired
)

// StatusError is a non-2xx response other than the expiry status, surfaced unchanged
// by the JSON helpers.
type StatusError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("http status %d", e.StatusCode)
}

// StatusCode extracts the status of a *StatusError in err's chain, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
