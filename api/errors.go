package api

import (
	internalerrors "github.com/lipvoice/voice-client/internal/errors"
)

var (
	// ErrInvalidInput is returned before any call is made when arguments are unusable.
	ErrInvalidInput = internalerrors.ErrInvalidInput
	ErrNotFound     = internalerrors.ErrNotFound
)
