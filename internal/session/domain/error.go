package domain

import "errors"

var (
	ErrInvalidSession     = errors.New("invalid session")
	ErrSessionInvalidated = errors.New("session invalidated")
)
