package domain

import "errors"

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrInvalidUserID     = errors.New("invalid user id")
	ErrInvalidUsername   = errors.New("invalid username")
	ErrInvalidTransition = errors.New("invalid user lifecycle transition")
)
