package domain

import "errors"

var (
	// ErrValidation signals a malformed request parameter (caller's fault).
	ErrValidation = errors.New("validation error")
	// ErrUnsupportedMode signals a scoring mode unavailable for the loaded spaces.
	ErrUnsupportedMode = errors.New("unsupported mode")
	// ErrConfiguration signals missing required startup metadata. Fatal.
	ErrConfiguration = errors.New("configuration error")
	// ErrProtocol signals a malformed or non-conformant protocol message.
	ErrProtocol = errors.New("protocol error")
	// ErrNotReady signals that heavy initialization has not completed yet.
	ErrNotReady = errors.New("server not ready")
)
